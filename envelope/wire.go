package envelope

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// MarshalMsg appends the msgpack encoding of the envelope to b. The layout
// is a fixed 4-element map keyed by the same names as the JSON form, with
// binary fields as msgpack bin values rather than base64 text.
func (e *Envelope) MarshalMsg(b []byte) []byte {
	b = msgp.AppendMapHeader(b, 4)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendInt(b, e.Version)
	b = msgp.AppendString(b, "ephemeral_pub")
	b = msgp.AppendBytes(b, e.EphemeralPub)
	b = msgp.AppendString(b, "nonce")
	b = msgp.AppendBytes(b, e.Nonce)
	b = msgp.AppendString(b, "ciphertext")
	b = msgp.AppendBytes(b, e.Ciphertext)
	return b
}

// UnmarshalMsg decodes one msgpack-encoded envelope from b and returns the
// remaining bytes. Unknown keys are skipped so the format can grow.
func (e *Envelope) UnmarshalMsg(b []byte) ([]byte, error) {
	size, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := uint32(0); i < size; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch key {
		case "version":
			e.Version, b, err = msgp.ReadIntBytes(b)
		case "ephemeral_pub":
			e.EphemeralPub, b, err = msgp.ReadBytesBytes(b, nil)
		case "nonce":
			e.Nonce, b, err = msgp.ReadBytesBytes(b, nil)
		case "ciphertext":
			e.Ciphertext, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, fmt.Errorf("%w: field %s: %v", ErrMalformed, key, err)
		}
	}
	return b, nil
}
