package mailproof

import (
	"context"
	"crypto/ecdh"
	"errors"

	"github.com/mailproof/mailproof/envelope"
)

// Broker carries the private verification path across the trusted
// boundary: it consumes an encrypted envelope plus its binding context
// and returns the verification outcome computed inside that boundary.
// The engine trusts the broker's computation and does not re-verify it.
type Broker interface {
	Verify(ctx context.Context, env *envelope.Envelope, bctx envelope.BindingContext) (VerificationOutcome, error)
}

// LocalBroker runs the private path in-process: it opens the envelope
// with the static private key and feeds the plaintext through the same
// pipeline the public path uses. Deployments with a remote trusted
// boundary substitute their own Broker.
type LocalBroker struct {
	// Static is the currently active static X25519 private key.
	// Envelopes sealed to a rotated-out key fail to open; there is no
	// multi-key trial.
	Static *ecdh.PrivateKey

	// Pipeline verifies the recovered plaintext message.
	Pipeline func(ctx context.Context, message []byte) (VerificationOutcome, error)
}

var _ Broker = (*LocalBroker)(nil)

func (b *LocalBroker) Verify(ctx context.Context, env *envelope.Envelope, bctx envelope.BindingContext) (VerificationOutcome, error) {
	if b.Static == nil {
		return VerificationOutcome{}, errors.New("mailproof: local broker has no static key")
	}
	plaintext, err := envelope.Open(b.Static, env, bctx)
	if err != nil {
		return VerificationOutcome{Error: err.Error()}, err
	}
	return b.Pipeline(ctx, plaintext)
}
