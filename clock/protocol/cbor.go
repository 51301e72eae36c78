package protocol

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORCodec encodes the same envelope as JSONCodec as a CBOR map with text keys.
type CBORCodec struct {
	em cbor.EncMode
	dm cbor.DecMode
}

func NewCBORCodec() (*CBORCodec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		FieldNameMatching: cbor.FieldNameMatchingCaseSensitive,
	}.DecMode()
	if err != nil {
		return nil, err
	}

	return &CBORCodec{em: em, dm: dm}, nil
}

func (c *CBORCodec) Name() string { return "cbor" }

func (c *CBORCodec) Encode(msg Message) ([]byte, error) {
	env, err := toEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return c.em.Marshal(env)
}

func (c *CBORCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 || data[0]>>5 != 5 { // major type 5: map
		return nil, &DecodeError{Reason: "payload is not a CBOR map"}
	}

	env := &envelope{}
	if err := c.dm.Unmarshal(data, env); err != nil {
		return nil, &DecodeError{Reason: "malformed CBOR", Err: err}
	}

	return fromEnvelope(env)
}
