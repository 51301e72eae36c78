// Package protocol defines the datagram messages exchanged between the master and its slaves.
// Every datagram carries exactly one message, discriminated by its "type" field.
package protocol

import (
	"fmt"
	"strings"
)

const (
	TypeIntroduce   = "introduce"    // slave -> master, announces presence
	TypeTimeReport  = "time_report"  // slave -> master, carries the slave clock reading
	TypeRequestTime = "request_time" // master -> slave, asks for a time_report
	TypeAdjustTime  = "adjust_time"  // master -> slave, shift the slave clock
)

// Message is one of Introduce, TimeReport, RequestTime, AdjustTime or Unrecognized.
type Message interface {
	Type() string
	isMessage()
}

type Introduce struct{}

type TimeReport struct {
	Time int64 // Slave clock, milliseconds since epoch
}

type RequestTime struct{}

type AdjustTime struct {
	Adjustment int64 // Signed correction in milliseconds
}

// Unrecognized is returned for well-formed datagrams whose type is not known to this master.
type Unrecognized struct {
	Kind string
}

func (Introduce) Type() string      { return TypeIntroduce }
func (TimeReport) Type() string     { return TypeTimeReport }
func (RequestTime) Type() string    { return TypeRequestTime }
func (AdjustTime) Type() string     { return TypeAdjustTime }
func (u Unrecognized) Type() string { return u.Kind }

func (Introduce) isMessage()    {}
func (TimeReport) isMessage()   {}
func (RequestTime) isMessage()  {}
func (AdjustTime) isMessage()   {}
func (Unrecognized) isMessage() {}

// Codec converts messages to and from their wire representation.
type Codec interface {
	Name() string
	Encode(Message) ([]byte, error)
	Decode([]byte) (Message, error)
}

// DecodeError reports a datagram that could not be turned into a Message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// envelope is the flattened wire shape shared by all codecs.
type envelope struct {
	Type       *string `json:"type,omitempty" cbor:"type,omitempty"`
	Time       *int64  `json:"time,omitempty" cbor:"time,omitempty"`
	Adjustment *int64  `json:"adjustment,omitempty" cbor:"adjustment,omitempty"`
}

func toEnvelope(msg Message) (*envelope, error) {
	t := msg.Type()
	env := &envelope{Type: &t}

	switch m := msg.(type) {
	case Introduce, RequestTime:
	case TimeReport:
		env.Time = &m.Time
	case AdjustTime:
		env.Adjustment = &m.Adjustment
	case Unrecognized:
		if m.Kind == "" {
			return nil, fmt.Errorf("encode: unrecognized message without a type")
		}
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", msg)
	}

	return env, nil
}

func fromEnvelope(env *envelope) (Message, error) {
	if env.Type == nil || *env.Type == "" {
		return nil, &DecodeError{Reason: "missing type"}
	}

	switch *env.Type {
	case TypeIntroduce:
		return Introduce{}, nil
	case TypeTimeReport:
		if env.Time == nil {
			return nil, &DecodeError{Reason: "time_report without time"}
		}
		return TimeReport{Time: *env.Time}, nil
	case TypeRequestTime:
		return RequestTime{}, nil
	case TypeAdjustTime:
		if env.Adjustment == nil {
			return nil, &DecodeError{Reason: "adjust_time without adjustment"}
		}
		return AdjustTime{Adjustment: *env.Adjustment}, nil
	default:
		return Unrecognized{Kind: *env.Type}, nil
	}
}

// CodecByName returns the codec registered under name ("json" or "cbor").
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown wire codec %q", name)
	}
}
