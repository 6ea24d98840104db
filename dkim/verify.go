package dkim

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/mailproof/mailproof/dns"
)

// Verifier verifies DKIM signatures against DNS-published key records.
type Verifier struct {
	// Resolver is the DNS resolver to use. Required.
	Resolver dns.Resolver

	// MinRSAKeyBits is the minimum RSA key size to accept.
	// Default is 1024 (per RFC 8301).
	MinRSAKeyBits int
}

// InstanceResult is the outcome of checking one signature instance.
type InstanceResult struct {
	// Signature is the parsed signature, nil if parsing failed.
	Signature *Signature

	// Err is nil when the instance verified; otherwise it classifies
	// the rejection.
	Err error
}

// Result is the outcome of verifying all signatures in a message.
type Result struct {
	// Verified is true iff at least one signature instance verified.
	Verified bool

	// Message is the parsed message.
	Message *Message

	// Instances holds one entry per DKIM-Signature header, in document
	// order. When Verified is true the accepting instance is the first
	// entry with a nil Err; instances after it are not processed and do
	// not appear.
	Instances []InstanceResult
}

// Verify checks all DKIM-Signature headers in the message in document
// order and accepts on the first instance that verifies.
//
// Per-instance failures are recorded in the result and do not abort the
// message. A malformed message structure or a DNS failure other than
// record-not-found is returned as an error: the former is ErrNoBody or
// ErrHeaderMalformed, the latter wraps the resolver error and is terminal
// for the whole request.
func (v *Verifier) Verify(ctx context.Context, message []byte) (*Result, error) {
	msg, err := ParseMessage(message)
	if err != nil {
		return nil, err
	}
	return v.VerifyMessage(ctx, msg)
}

// VerifyMessage is Verify for an already-parsed message.
func (v *Verifier) VerifyMessage(ctx context.Context, msg *Message) (*Result, error) {
	result := &Result{Message: msg}

	index := 0
	for _, hdr := range msg.Headers {
		if !strings.EqualFold(hdr.Name, "DKIM-Signature") {
			continue
		}

		sig, err := ParseSignature(hdr, index)
		index++
		if err != nil {
			result.Instances = append(result.Instances, InstanceResult{Err: err})
			continue
		}

		err = v.verifyInstance(ctx, msg, sig)
		result.Instances = append(result.Instances, InstanceResult{Signature: sig, Err: err})
		if err == nil {
			result.Verified = true
			return result, nil
		}
		if terminal(err) {
			return result, err
		}
	}

	return result, nil
}

// verifyInstance checks one signature instance: body hash first, then the
// signed-header hash against the published key.
func (v *Verifier) verifyInstance(ctx context.Context, msg *Message, sig *Signature) error {
	if isPublicSuffix(sig.Domain) {
		return fmt.Errorf("%w: %s", ErrTLD, sig.Domain)
	}

	// Body hash check before any DNS traffic.
	body := CanonicalBody(msg.Body)
	if sig.Length >= 0 {
		if sig.Length > int64(len(body)) {
			return fmt.Errorf("%w: l=%d, canonical body is %d octets",
				ErrInvalidBodyLength, sig.Length, len(body))
		}
		body = body[:sig.Length]
	}
	bodyHash := sha256.Sum256(body)
	if !bytes.Equal(bodyHash[:], sig.BodyHash) {
		return ErrBodyHashMismatch
	}

	// Assemble and hash the signed data.
	data := signedHeaderData(msg.Headers, sig.SignedHeaders) + sig.canonicalSelf()
	dataHash := sha256.Sum256([]byte(data))

	// Fetch and select the key record.
	lookup, err := v.Resolver.LookupTXT(ctx, sig.QueryName())
	if err != nil {
		if dns.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNoUsableKeyRecord, sig.QueryName())
		}
		return &externalError{err}
	}

	record, err := SelectKeyRecord(lookup.Records)
	if err != nil {
		return fmt.Errorf("%w: %s", err, sig.QueryName())
	}

	minBits := v.MinRSAKeyBits
	if minBits == 0 {
		minBits = 1024
	}
	if record.PublicKey.N.BitLen() < minBits {
		return fmt.Errorf("%w: %d bits, minimum %d",
			ErrWeakKey, record.PublicKey.N.BitLen(), minBits)
	}

	if err := rsa.VerifyPKCS1v15(record.PublicKey, crypto.SHA256, dataHash[:], sig.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSigVerify, err)
	}

	return nil
}

// externalError wraps a resolver failure that is terminal for the whole
// verification request rather than local to one signature instance.
type externalError struct {
	err error
}

func (e *externalError) Error() string { return "dkim: key record lookup failed: " + e.err.Error() }
func (e *externalError) Unwrap() error { return e.err }

// terminal reports whether an instance error must abort the whole message.
func terminal(err error) bool {
	return IsExternalError(err)
}

// IsExternalError reports whether the error from Verify stems from the DNS
// collaborator rather than the message content.
func IsExternalError(err error) bool {
	var ee *externalError
	return errors.As(err, &ee)
}

// isPublicSuffix checks if the signing domain is a bare public suffix
// (like "com" or "co.uk") or otherwise above the organizational level.
// Uses the Public Suffix List from publicsuffix.org.
func isPublicSuffix(domain string) bool {
	if domain == "" {
		return true
	}
	domain = strings.TrimSuffix(domain, ".")

	etldPlusOne, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// Domain is a public suffix itself or invalid.
		return true
	}
	return !strings.EqualFold(domain, etldPlusOne) &&
		!strings.HasSuffix(strings.ToLower(domain), "."+strings.ToLower(etldPlusOne))
}
