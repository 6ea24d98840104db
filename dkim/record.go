package dkim

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strings"
)

// KeyRecord is a parsed DKIM key record from a selector/domain TXT lookup.
type KeyRecord struct {
	// Version is the v= tag, empty if absent.
	Version string

	// Key is the k= tag (key type), empty if absent.
	Key string

	// Pubkey is the raw decoded public key data (p= tag).
	// Empty means the key has been revoked.
	Pubkey []byte

	// PublicKey is the parsed RSA public key, nil for revoked records.
	PublicKey *rsa.PublicKey
}

// Revoked returns true if the record carries an empty p= tag, which an
// operator publishes to revoke a selector.
func (r *KeyRecord) Revoked() bool {
	return len(r.Pubkey) == 0
}

// ParseKeyRecord interprets one TXT record string as a DKIM key record.
//
// The boolean result reports whether the record is usable for rsa-sha256
// verification. Records with an incompatible v= or k= tag, a revoked
// (empty) p= tag, undecodable base64, or a key that is not a structurally
// valid RSA SPKI are unusable but not an error: selecting among multiple
// TXT records is the caller's concern.
func ParseKeyRecord(txt string) (*KeyRecord, bool) {
	tags, err := parseTagList(txt)
	if err != nil {
		return nil, false
	}

	record := &KeyRecord{
		Version: tags["v"],
		Key:     strings.ToLower(tags["k"]),
	}

	if v, ok := tags["v"]; ok && v != KeyRecordVersion {
		return record, false
	}
	if k, ok := tags["k"]; ok && strings.ToLower(k) != "rsa" {
		return record, false
	}

	p, ok := tags["p"]
	if !ok {
		return record, false
	}
	if p == "" {
		// Explicit revocation.
		return record, false
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, p)
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return record, false
	}
	record.Pubkey = decoded

	pk, err := x509.ParsePKIXPublicKey(decoded)
	if err != nil {
		return record, false
	}
	rsaPK, ok := pk.(*rsa.PublicKey)
	if !ok {
		return record, false
	}
	record.PublicKey = rsaPK

	return record, true
}

// SelectKeyRecord returns the first usable key record from a sequence of
// raw TXT record strings, in input order. Unusable records are skipped,
// never reported as errors. Returns ErrNoUsableKeyRecord when none pass.
//
// Deliberate simplification: only the first usable record is tried against
// a signature, even when a selector publishes several concurrently valid
// keys.
func SelectKeyRecord(records []string) (*KeyRecord, error) {
	for _, txt := range records {
		if record, ok := ParseKeyRecord(txt); ok {
			return record, nil
		}
	}
	return nil, ErrNoUsableKeyRecord
}
