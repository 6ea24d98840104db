// Package recovery extracts account-recovery instructions from verified
// messages.
//
// The instruction lives in the Subject header under a fixed grammar:
//
//	recover[-<REQUEST_ID>] <account_id> ed25519:<public_key>
//
// The request-id segment is optional for backward compatibility; older
// senders also placed the replacement key on its own line in the body
// instead of the subject, which is still honored as a fallback.
package recovery

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/mailproof/mailproof/dkim"
)

// KeyPrefix is the curve prefix a replacement public key must carry.
const KeyPrefix = "ed25519:"

// ErrNoInstruction indicates the message carries no recovery instruction
// matching the grammar. This is not a verification failure: the message
// may be authentic and simply not a recovery request.
var ErrNoInstruction = errors.New("recovery: no recovery instruction in message")

// Instruction is one parsed recovery request.
type Instruction struct {
	// RequestID is the short caller-chosen correlation token, empty for
	// the legacy subject form without one.
	RequestID string

	// AccountID is the account to recover.
	AccountID string

	// NewPublicKey is the replacement key including its "ed25519:"
	// prefix.
	NewPublicKey string
}

// Parse extracts the recovery instruction from a parsed message: subject
// grammar first, then the legacy body fallback for the key. Returns
// ErrNoInstruction when the subject does not match the grammar or no
// replacement key is present in either location.
func Parse(msg *dkim.Message) (*Instruction, error) {
	inst, ok := parseSubject(msg.Header("Subject"))
	if !ok {
		return nil, ErrNoInstruction
	}
	if inst.NewPublicKey == "" {
		inst.NewPublicKey = keyFromBody(msg.Body)
	}
	if inst.NewPublicKey == "" {
		return nil, ErrNoInstruction
	}
	return inst, nil
}

// parseSubject matches the subject grammar. The replacement key may be
// absent here when the legacy body form carries it instead.
func parseSubject(subject string) (*Instruction, bool) {
	fields := strings.Fields(strings.TrimSpace(subject))
	if len(fields) < 2 {
		return nil, false
	}

	inst := &Instruction{}
	switch {
	case fields[0] == "recover":
	case strings.HasPrefix(fields[0], "recover-"):
		id := strings.TrimPrefix(fields[0], "recover-")
		if !validRequestID(id) {
			return nil, false
		}
		inst.RequestID = id
	default:
		return nil, false
	}

	inst.AccountID = fields[1]
	for _, token := range fields[2:] {
		if isKeyToken(token) {
			inst.NewPublicKey = token
			break
		}
	}
	return inst, true
}

// RequestID returns the request id embedded in the subject, or "" when
// the subject uses the legacy form or does not match the grammar at all.
// It is deliberately laxer than Parse: the correlation token must be
// recoverable even from messages whose instruction is otherwise
// incomplete, so a failed request still produces a pollable outcome.
func RequestID(msg *dkim.Message) string {
	fields := strings.Fields(strings.TrimSpace(msg.Header("Subject")))
	if len(fields) == 0 {
		return ""
	}
	id := strings.TrimPrefix(fields[0], "recover-")
	if id == fields[0] || !validRequestID(id) {
		return ""
	}
	return id
}

// validRequestID restricts ids to a short alphanumeric token.
func validRequestID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func isKeyToken(token string) bool {
	return strings.HasPrefix(token, KeyPrefix) && len(token) > len(KeyPrefix)
}

// keyFromBody returns the first body line that is a bare replacement key,
// the legacy placement before keys moved into the subject.
func keyFromBody(body []byte) string {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if isKeyToken(line) {
			return line
		}
	}
	return ""
}

// FromAddress reduces the From header to a bare address like
// "user@example.com". Display names and comments are dropped. Returns ""
// when the message has no From header; a header that defies address
// parsing is returned in a best-effort cleaned form rather than dropped,
// since the value is informational, not authenticated.
func FromAddress(msg *dkim.Message) string {
	value := msg.Header("From")
	if value == "" {
		return ""
	}

	if addr, err := mail.ParseAddress(value); err == nil {
		return addr.Address
	}

	// Fallback for malformed headers: prefer an angle-bracketed
	// address, then the last token containing '@'.
	if start := strings.IndexByte(value, '<'); start >= 0 {
		if end := strings.IndexByte(value[start+1:], '>'); end >= 0 {
			return strings.TrimSpace(value[start+1 : start+1+end])
		}
	}
	fields := strings.Fields(value)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.ContainsRune(fields[i], '@') {
			if cleaned := strings.Trim(fields[i], `<>"'`); cleaned != "" {
				return cleaned
			}
		}
	}
	return value
}

// TimestampMS returns the Date header as milliseconds since the Unix
// epoch, or nil when the header is absent, unparseable, or predates the
// epoch.
func TimestampMS(msg *dkim.Message) *int64 {
	value := msg.Header("Date")
	if value == "" {
		return nil
	}
	t, err := mail.ParseDate(value)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	if ms < 0 {
		return nil
	}
	return &ms
}
