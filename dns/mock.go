package dns

import (
	"context"
	"slices"
)

// MockResolver is a Resolver used for testing.
// Set TXT records in the TXT field, which maps FQDNs (with trailing dot)
// to record strings.
type MockResolver struct {
	TXT map[string][]string

	// Fail contains names that will return a temporary error (SERVFAIL).
	// Names are FQDNs with trailing dot, e.g. "sel._domainkey.example.com.".
	Fail []string

	// NotFound contains names that will return NXDOMAIN even if TXT has
	// an entry for them.
	NotFound []string

	// AllAuthentic sets the default value for Authentic in responses.
	AllAuthentic bool
}

var _ Resolver = MockResolver{}

// ensureFQDN ensures the name ends with a dot.
func ensureFQDN(name string) string {
	if len(name) == 0 || name[len(name)-1] != '.' {
		return name + "."
	}
	return name
}

// LookupTXT returns TXT records for the given domain.
func (r MockResolver) LookupTXT(ctx context.Context, name string) (Result[string], error) {
	result := Result[string]{Authentic: r.AllAuthentic}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	fqdn := ensureFQDN(name)
	if slices.Contains(r.Fail, fqdn) {
		return result, ErrDNSServFail
	}
	if slices.Contains(r.NotFound, fqdn) {
		return result, ErrDNSNotFound
	}

	records, ok := r.TXT[fqdn]
	if !ok || len(records) == 0 {
		return result, ErrDNSNotFound
	}

	result.Records = records
	return result, nil
}
