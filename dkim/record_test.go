package dkim

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"testing"
)

// testKeyTXT builds a key record TXT string for the given RSA public key.
func testKeyTXT(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(der)
}

func TestParseKeyRecord(t *testing.T) {
	rsaKey := getRSAKey(t)
	goodTXT := testKeyTXT(t, &rsaKey.PublicKey)

	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating ed25519 key: %v", err)
	}
	edDER, err := x509.MarshalPKIXPublicKey(edPub)
	if err != nil {
		t.Fatalf("marshaling ed25519 key: %v", err)
	}
	edTXT := "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(edDER)

	tests := []struct {
		name   string
		txt    string
		usable bool
	}{
		{"usable record", goodTXT, true},
		{"no version tag", "k=rsa; p=" + goodTXT[len("v=DKIM1; k=rsa; p="):], true},
		{"no key type tag", "v=DKIM1; p=" + goodTXT[len("v=DKIM1; k=rsa; p="):], true},
		{"wrong version", "v=DKIM2; k=rsa; p=QUFBQQ==", false},
		{"wrong key type", "v=DKIM1; k=ed25519; p=QUFBQQ==", false},
		{"revoked empty p", "v=DKIM1; k=rsa; p=", false},
		{"missing p", "v=DKIM1; k=rsa", false},
		{"bad base64", "v=DKIM1; k=rsa; p=!!not-base64!!", false},
		{"not an SPKI", "v=DKIM1; k=rsa; p=QUFBQQ==", false},
		{"non-RSA SPKI", edTXT, false},
		{"unrelated TXT", "google-site-verification=abcdef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, usable := ParseKeyRecord(tt.txt)
			if usable != tt.usable {
				t.Errorf("usable = %v, want %v", usable, tt.usable)
			}
			if usable && record.PublicKey == nil {
				t.Error("usable record has nil public key")
			}
		})
	}
}

func TestParseKeyRecordRevoked(t *testing.T) {
	record, usable := ParseKeyRecord("v=DKIM1; k=rsa; p=")
	if usable {
		t.Fatal("revoked record reported usable")
	}
	if record == nil || !record.Revoked() {
		t.Error("expected Revoked() = true")
	}
}

func TestSelectKeyRecord(t *testing.T) {
	rsaKey := getRSAKey(t)
	goodTXT := testKeyTXT(t, &rsaKey.PublicKey)

	t.Run("first usable wins", func(t *testing.T) {
		record, err := SelectKeyRecord([]string{
			"v=DKIM2; p=QUFBQQ==", // wrong version, skipped
			"v=DKIM1; k=rsa; p=",  // revoked, skipped
			goodTXT,
			"v=DKIM1; k=rsa; p=!!!", // never reached
		})
		if err != nil {
			t.Fatalf("SelectKeyRecord: %v", err)
		}
		if record.PublicKey.N.Cmp(rsaKey.PublicKey.N) != 0 {
			t.Error("selected key does not match")
		}
	})

	t.Run("input order respected", func(t *testing.T) {
		otherKey := getWeakRSAKey(t)
		otherTXT := testKeyTXT(t, &otherKey.PublicKey)

		record, err := SelectKeyRecord([]string{otherTXT, goodTXT})
		if err != nil {
			t.Fatalf("SelectKeyRecord: %v", err)
		}
		if record.PublicKey.N.Cmp(otherKey.PublicKey.N) != 0 {
			t.Error("expected the first usable record, got a later one")
		}
	})

	t.Run("none usable", func(t *testing.T) {
		_, err := SelectKeyRecord([]string{
			"v=DKIM1; k=rsa; p=",
			"v=DKIM2; p=QUFBQQ==",
			"unrelated=txt",
		})
		if !errors.Is(err, ErrNoUsableKeyRecord) {
			t.Errorf("got %v, want ErrNoUsableKeyRecord", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := SelectKeyRecord(nil)
		if !errors.Is(err, ErrNoUsableKeyRecord) {
			t.Errorf("got %v, want ErrNoUsableKeyRecord", err)
		}
	})
}
