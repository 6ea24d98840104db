// Package dkim implements DKIM signature verification per RFC 6376,
// restricted to the profile used for email-based account attestation:
// rsa-sha256 signatures with relaxed/relaxed canonicalization.
//
// A message may carry several DKIM-Signature headers. Signatures are
// processed in document order and the message is considered verified as
// soon as one signature validates against a published key record. A
// signature that uses an unsupported algorithm or canonicalization is
// skipped, not treated as a failure of the whole message.
//
// Verifying a message:
//
//	v := &dkim.Verifier{Resolver: resolver}
//	result, err := v.Verify(ctx, message)
//	if result.Verified {
//	    // At least one signature validated.
//	}
//
// The package also provides a matching Signer so deployments can produce
// messages that verify under the same profile.
package dkim

import (
	"errors"
	"time"
)

// Version is the only supported signature version (v= tag).
const Version = "1"

// Algorithm is the only supported signing algorithm (a= tag).
const Algorithm = "rsa-sha256"

// Canonicalization is the only supported canonicalization mode (c= tag).
const Canonicalization = "relaxed/relaxed"

// KeyRecordVersion is the expected version tag of a DKIM key record.
const KeyRecordVersion = "DKIM1"

// Message structure errors. These are terminal for the whole message.
var (
	ErrNoBody          = errors.New("dkim: no header/body boundary in message")
	ErrHeaderMalformed = errors.New("dkim: mail header is malformed")
)

// Per-signature errors. Each rejects only the signature it occurred in;
// verification proceeds with the remaining signatures.
var (
	ErrUnsupportedVersion          = errors.New("dkim: unsupported signature version")
	ErrUnsupportedAlgorithm        = errors.New("dkim: unsupported signature algorithm")
	ErrUnsupportedCanonicalization = errors.New("dkim: unsupported canonicalization")
	ErrMissingTag                  = errors.New("dkim: missing required tag")
	ErrDuplicateTag                = errors.New("dkim: duplicate tag")
	ErrInvalidBase64               = errors.New("dkim: invalid base64 in tag value")
	ErrInvalidBodyLength           = errors.New("dkim: body length limit exceeds canonical body")
	ErrBodyHashMismatch            = errors.New("dkim: body hash does not match")
	ErrNoUsableKeyRecord           = errors.New("dkim: no usable key record")
	ErrSigVerify                   = errors.New("dkim: signature verification failed")
	ErrWeakKey                     = errors.New("dkim: key is too weak")
	ErrTLD                         = errors.New("dkim: signed domain is a public suffix")
)

// timeNow is used for testing.
var timeNow = time.Now
