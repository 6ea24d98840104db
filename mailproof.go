// Package mailproof authenticates raw email messages against DKIM
// (RFC 6376, restricted to rsa-sha256 with relaxed/relaxed
// canonicalization) so that a downstream policy engine can trust that a
// message genuinely originated from the claimed sending domain.
//
// Two paths reach the verifier. The public path takes a plaintext
// message. The private path takes an authenticated-encryption envelope
// plus a binding context and recovers the plaintext inside a trusted
// boundary before running the same pipeline. Outcomes are retained in a
// bounded-lifetime correlator and polled by request identifier.
//
//	engine, err := mailproof.New(mailproof.Config{
//	    Resolver:  dns.NewStdResolver(),
//	    StaticKey: staticKey,
//	})
//	outcome, err := engine.Verify(ctx, mailproof.Request{
//	    Mode:       mailproof.ModePublic,
//	    RawMessage: message,
//	})
//	// later, from the polling side:
//	outcome, ok := engine.Result(outcome.RequestID)
//
// Verified messages additionally yield any embedded account-recovery
// instruction; see the recovery package for the subject grammar.
package mailproof

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mailproof/mailproof/dkim"
	"github.com/mailproof/mailproof/dns"
	"github.com/mailproof/mailproof/envelope"
	"github.com/mailproof/mailproof/recovery"
	"github.com/mailproof/mailproof/results"
)

// ErrExternalCall indicates an external collaborator (DNS resolver or
// trusted boundary) failed or was unreachable. Terminal for the request;
// the failed outcome is still recorded so pollers get a definitive
// answer.
var ErrExternalCall = errors.New("mailproof: external call failed")

// Mode selects the verification path.
type Mode uint8

const (
	// ModePublic verifies a plaintext message.
	ModePublic Mode = iota

	// ModePrivate decrypts an envelope inside the trusted boundary
	// first.
	ModePrivate
)

func (m Mode) String() string {
	switch m {
	case ModePublic:
		return "public"
	case ModePrivate:
		return "private"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Request is one verification request.
type Request struct {
	Mode Mode

	// RawMessage is the plaintext message for ModePublic.
	RawMessage []byte

	// Envelope and Context carry the ModePrivate payload.
	Envelope *envelope.Envelope
	Context  envelope.BindingContext

	// RequestIDHint is used as the correlation id when the message
	// subject does not embed one. When both are absent a fresh ULID is
	// allocated.
	RequestIDHint string
}

// Config carries engine construction parameters.
type Config struct {
	// Resolver fetches DKIM key records. Required.
	Resolver dns.Resolver

	// StaticKey is the active private-path decryption key. When set and
	// Broker is nil, a LocalBroker is wired automatically.
	StaticKey *ecdh.PrivateKey

	// Broker overrides the trusted-boundary collaborator for the
	// private path.
	Broker Broker

	// Store overrides the correlator backend; nil selects in-memory.
	Store results.Store[results.StoredResult[VerificationOutcome]]

	// TTL is the outcome retention window; non-positive selects
	// results.DefaultTTL.
	TTL time.Duration

	// MinRSAKeyBits tightens the verifier's minimum key size; zero
	// keeps the verifier default.
	MinRSAKeyBits int

	// Logger for structured request logging; nil selects slog.Default.
	Logger *slog.Logger
}

// Engine orchestrates verification requests and retains their outcomes.
// Safe for concurrent use: requests share no mutable state other than
// the correlator.
type Engine struct {
	verifier *dkim.Verifier
	broker   Broker
	results  *results.Correlator[VerificationOutcome]
	logger   *slog.Logger
}

// New builds an Engine from the config.
func New(cfg Config) (*Engine, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("mailproof: config requires a resolver")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		verifier: &dkim.Verifier{
			Resolver:      cfg.Resolver,
			MinRSAKeyBits: cfg.MinRSAKeyBits,
		},
		results: results.NewCorrelator(cfg.Store, cfg.TTL),
		logger:  logger,
	}

	e.broker = cfg.Broker
	if e.broker == nil && cfg.StaticKey != nil {
		e.broker = &LocalBroker{Static: cfg.StaticKey, Pipeline: e.verifyMessage}
	}

	return e, nil
}

// Verify runs one verification request and records its outcome under the
// resolved request identifier. The outcome is returned alongside any
// terminal error; per-signature failures are not errors, they surface as
// a verified=false outcome.
func (e *Engine) Verify(ctx context.Context, req Request) (VerificationOutcome, error) {
	var outcome VerificationOutcome
	var err error

	switch req.Mode {
	case ModePublic:
		outcome, err = e.verifyMessage(ctx, req.RawMessage)
	case ModePrivate:
		if e.broker == nil {
			err = errors.New("mailproof: private path requires a broker or static key")
		} else if req.Envelope == nil {
			err = fmt.Errorf("%w: private request has no envelope", envelope.ErrMalformed)
		} else {
			// Decryption failure is terminal but still produces a
			// pollable outcome below.
			outcome, err = e.broker.Verify(ctx, req.Envelope, req.Context)
		}
	default:
		return outcome, fmt.Errorf("mailproof: unknown mode %d", req.Mode)
	}

	if err != nil && outcome.Error == "" {
		outcome.Error = err.Error()
	}

	// Identifier precedence: subject-embedded, caller hint, fresh ULID.
	if outcome.RequestID == "" {
		outcome.RequestID = req.RequestIDHint
	}
	if outcome.RequestID == "" {
		outcome.RequestID = ulid.Make().String()
	}

	e.results.Store(outcome.RequestID, outcome)
	e.logger.Info("verification request completed",
		slog.String("mode", req.Mode.String()),
		slog.String("request_id", outcome.RequestID),
		slog.Bool("verified", outcome.Verified),
	)

	return outcome, err
}

// verifyMessage runs the plaintext pipeline: parse, DKIM verify, then
// recovery-instruction extraction on success.
func (e *Engine) verifyMessage(ctx context.Context, message []byte) (VerificationOutcome, error) {
	msg, err := dkim.ParseMessage(message)
	if err != nil {
		return VerificationOutcome{Error: err.Error()}, err
	}

	// The correlation id and informational fields are recoverable even
	// when verification fails.
	outcome := VerificationOutcome{
		RequestID:        recovery.RequestID(msg),
		FromAddress:      recovery.FromAddress(msg),
		EmailTimestampMS: recovery.TimestampMS(msg),
	}

	result, err := e.verifier.VerifyMessage(ctx, msg)
	if err != nil {
		outcome.Error = err.Error()
		if dkim.IsExternalError(err) {
			err = fmt.Errorf("%w: %w", ErrExternalCall, err)
		}
		return outcome, err
	}
	if !result.Verified {
		outcome.Error = verdict(result)
		return outcome, nil
	}

	outcome.Verified = true
	inst, err := recovery.Parse(msg)
	if err == nil {
		outcome.AccountID = inst.AccountID
		outcome.NewPublicKey = inst.NewPublicKey
		if inst.RequestID != "" {
			outcome.RequestID = inst.RequestID
		}
	}
	// recovery.ErrNoInstruction leaves the fields empty; a verified
	// message without an instruction is not a failure.
	return outcome, nil
}

// verdict summarizes a failed verification for the outcome's error field.
func verdict(result *dkim.Result) string {
	if len(result.Instances) == 0 {
		return "no dkim signature"
	}
	last := result.Instances[len(result.Instances)-1]
	return fmt.Sprintf("no signature verified (%d instances, last: %v)",
		len(result.Instances), last.Err)
}

// Result is the polling read: it returns the retained outcome for the
// identifier, or false uniformly for unknown, pending, and expired
// identifiers. Pure read, safe to call repeatedly.
func (e *Engine) Result(requestID string) (VerificationOutcome, bool) {
	return e.results.Lookup(requestID)
}

// Sweep removes expired outcomes; driven by an external scheduler.
func (e *Engine) Sweep() int {
	return e.results.Sweep()
}
