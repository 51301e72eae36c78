package protocol

import (
	"bytes"
	"encoding/json"
)

// JSONCodec encodes one JSON object per datagram. Field names are matched
// exactly: "TYPE" is not "type".
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	env, err := toEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, &DecodeError{Reason: "payload is not a JSON object"}
	}

	// encoding/json folds case when filling structs, so pick the fields by exact key
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}

	env := &envelope{}
	for key, dst := range map[string]any{
		"type":       &env.Type,
		"time":       &env.Time,
		"adjustment": &env.Adjustment,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, &DecodeError{Reason: "invalid " + key, Err: err}
		}
	}

	return fromEnvelope(env)
}
