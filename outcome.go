package mailproof

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// VerificationOutcome is the result of one verification request: a
// boolean-shaped verdict plus the fields extracted from the message for
// downstream policy. It is immutable once produced and is the sole unit
// retained by the result correlator.
type VerificationOutcome struct {
	// Verified is true iff at least one DKIM signature on the message
	// verified against its published key.
	Verified bool `json:"verified"`

	// AccountID and NewPublicKey come from the recovery instruction in
	// the subject. Both are empty when the message carries none; that
	// is not a verification failure.
	AccountID    string `json:"account_id"`
	NewPublicKey string `json:"new_public_key"`

	// FromAddress is the bare address from the From header. Extracted,
	// not authenticated.
	FromAddress string `json:"from_address"`

	// EmailTimestampMS is the Date header as milliseconds since the
	// Unix epoch, nil when absent or unparseable.
	EmailTimestampMS *int64 `json:"email_timestamp_ms,omitempty"`

	// RequestID is the identifier the outcome was stored under.
	RequestID string `json:"request_id"`

	// Error describes why a failed request failed, empty on success.
	Error string `json:"error,omitempty"`
}

// MarshalMsg appends the msgpack encoding of the outcome to b, a fixed
// map keyed like the JSON form. A nil timestamp encodes as msgpack nil.
func (o *VerificationOutcome) MarshalMsg(b []byte) []byte {
	b = msgp.AppendMapHeader(b, 7)
	b = msgp.AppendString(b, "verified")
	b = msgp.AppendBool(b, o.Verified)
	b = msgp.AppendString(b, "account_id")
	b = msgp.AppendString(b, o.AccountID)
	b = msgp.AppendString(b, "new_public_key")
	b = msgp.AppendString(b, o.NewPublicKey)
	b = msgp.AppendString(b, "from_address")
	b = msgp.AppendString(b, o.FromAddress)
	b = msgp.AppendString(b, "email_timestamp_ms")
	if o.EmailTimestampMS != nil {
		b = msgp.AppendInt64(b, *o.EmailTimestampMS)
	} else {
		b = msgp.AppendNil(b)
	}
	b = msgp.AppendString(b, "request_id")
	b = msgp.AppendString(b, o.RequestID)
	b = msgp.AppendString(b, "error")
	b = msgp.AppendString(b, o.Error)
	return b
}

// UnmarshalMsg decodes one msgpack-encoded outcome from b and returns the
// remaining bytes. Unknown keys are skipped.
func (o *VerificationOutcome) UnmarshalMsg(b []byte) ([]byte, error) {
	size, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, fmt.Errorf("mailproof: decoding outcome: %w", err)
	}
	for i := uint32(0); i < size; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, fmt.Errorf("mailproof: decoding outcome: %w", err)
		}
		switch key {
		case "verified":
			o.Verified, b, err = msgp.ReadBoolBytes(b)
		case "account_id":
			o.AccountID, b, err = msgp.ReadStringBytes(b)
		case "new_public_key":
			o.NewPublicKey, b, err = msgp.ReadStringBytes(b)
		case "from_address":
			o.FromAddress, b, err = msgp.ReadStringBytes(b)
		case "email_timestamp_ms":
			if msgp.IsNil(b) {
				o.EmailTimestampMS = nil
				b, err = msgp.ReadNilBytes(b)
			} else {
				var ms int64
				ms, b, err = msgp.ReadInt64Bytes(b)
				o.EmailTimestampMS = &ms
			}
		case "request_id":
			o.RequestID, b, err = msgp.ReadStringBytes(b)
		case "error":
			o.Error, b, err = msgp.ReadStringBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, fmt.Errorf("mailproof: decoding outcome field %s: %w", key, err)
		}
	}
	return b, nil
}
