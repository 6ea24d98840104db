package dns

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		isNotFound bool
		isTimeout  bool
		isServFail bool
		isTemp     bool
	}{
		{
			name:       "not found error",
			err:        ErrDNSNotFound,
			isNotFound: true,
		},
		{
			name:      "timeout error",
			err:       ErrDNSTimeout,
			isTimeout: true,
			isTemp:    true,
		},
		{
			name:       "server failure",
			err:        ErrDNSServFail,
			isServFail: true,
			isTemp:     true,
		},
		{
			name:   "refused",
			err:    ErrDNSRefused,
			isTemp: true,
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("lookup: %w", ErrDNSNotFound),
			isNotFound: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("something else"),
		},
		{
			name: "nil error",
			err:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.isNotFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.isNotFound)
			}
			if got := IsTimeout(tt.err); got != tt.isTimeout {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.isTimeout)
			}
			if got := IsServFail(tt.err); got != tt.isServFail {
				t.Errorf("IsServFail() = %v, want %v", got, tt.isServFail)
			}
			if got := IsTemporary(tt.err); got != tt.isTemp {
				t.Errorf("IsTemporary() = %v, want %v", got, tt.isTemp)
			}
		})
	}
}

// TestResolverInterface verifies that our types implement Resolver
func TestResolverInterface(t *testing.T) {
	var _ Resolver = (*DNSResolver)(nil)
	var _ Resolver = (*StdResolver)(nil)
}

func TestNewResolverDefaults(t *testing.T) {
	r := NewResolver(ResolverConfig{})

	// Should have default timeout
	if r.config.Timeout == 0 {
		t.Error("expected default timeout to be set")
	}

	// Should have default retries
	if r.config.Retries == 0 {
		t.Error("expected default retries to be set")
	}

	// Should have nameservers (either from system or fallback)
	if len(r.config.Nameservers) == 0 {
		t.Error("expected nameservers to be set")
	}
}

func TestNewResolverKeepsConfig(t *testing.T) {
	r := NewResolver(ResolverConfig{
		Nameservers: []string{"127.0.0.1:5353"},
		DNSSEC:      true,
	})

	cfg := r.Config()
	if len(cfg.Nameservers) != 1 || cfg.Nameservers[0] != "127.0.0.1:5353" {
		t.Errorf("unexpected nameservers: %v", cfg.Nameservers)
	}
	if !cfg.DNSSEC {
		t.Error("expected DNSSEC to be enabled")
	}
}

func TestMockResolver(t *testing.T) {
	mock := MockResolver{
		TXT: map[string][]string{
			"sel._domainkey.example.com.": {"v=DKIM1; k=rsa; p=abc"},
			"broken._domainkey.test.com.": {"v=DKIM1; p=xyz"},
		},
		Fail:         []string{"fail._domainkey.example.com."},
		NotFound:     []string{"broken._domainkey.test.com."},
		AllAuthentic: true,
	}

	result, err := mock.LookupTXT(context.Background(), "sel._domainkey.example.com")
	if err != nil {
		t.Fatalf("LookupTXT: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0] != "v=DKIM1; k=rsa; p=abc" {
		t.Errorf("unexpected records: %v", result.Records)
	}
	if !result.Authentic {
		t.Error("expected Authentic=true")
	}

	_, err = mock.LookupTXT(context.Background(), "fail._domainkey.example.com")
	if !IsServFail(err) {
		t.Errorf("expected SERVFAIL, got %v", err)
	}

	// NotFound takes precedence over a configured TXT entry.
	_, err = mock.LookupTXT(context.Background(), "broken._domainkey.test.com")
	if !IsNotFound(err) {
		t.Errorf("expected NXDOMAIN, got %v", err)
	}

	_, err = mock.LookupTXT(context.Background(), "missing._domainkey.example.com")
	if !IsNotFound(err) {
		t.Errorf("expected NXDOMAIN for unknown name, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mock.LookupTXT(ctx, "sel._domainkey.example.com")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
