// Package dns provides TXT record resolution for DKIM key record lookups.
//
// The package defines a small Resolver interface so the verification engine
// can be tested against a mock and deployed against either the stdlib
// resolver or the miekg/dns based resolver with DNSSEC support.
package dns

import (
	"context"
	"errors"
)

// Resolver retrieves DNS TXT records.
//
// Implementations: DNSResolver (miekg/dns, DNSSEC-capable), StdResolver
// (standard library), MockResolver (testing).
type Resolver interface {
	// LookupTXT retrieves TXT records for the given name.
	// Multi-string TXT answers are joined into a single record string.
	LookupTXT(ctx context.Context, name string) (Result[string], error)
}

// Result holds DNS lookup results with DNSSEC authentication status.
type Result[T any] struct {
	// Records contains the returned records.
	Records []T

	// Authentic indicates the response was DNSSEC-validated.
	Authentic bool
}

// DNS lookup errors.
var (
	// ErrDNSNotFound indicates the name does not exist (NXDOMAIN) or has
	// no records of the requested type.
	ErrDNSNotFound = errors.New("dns: records not found")

	// ErrDNSTimeout indicates the query timed out.
	ErrDNSTimeout = errors.New("dns: query timed out")

	// ErrDNSServFail indicates the server returned SERVFAIL.
	ErrDNSServFail = errors.New("dns: server failure")

	// ErrDNSRefused indicates the server refused the query.
	ErrDNSRefused = errors.New("dns: query refused")

	// ErrDNSBogus indicates DNSSEC validation failed.
	ErrDNSBogus = errors.New("dns: DNSSEC validation failed")
)

// IsNotFound returns true if the error indicates the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDNSNotFound)
}

// IsTimeout returns true if the error indicates a query timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrDNSTimeout)
}

// IsServFail returns true if the error indicates a server failure.
func IsServFail(err error) bool {
	return errors.Is(err, ErrDNSServFail)
}

// IsTemporary returns true if the error may succeed on retry.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrDNSTimeout) ||
		errors.Is(err, ErrDNSServFail) ||
		errors.Is(err, ErrDNSRefused)
}
