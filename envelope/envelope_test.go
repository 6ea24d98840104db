package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

const testEmail = "From: alice@example.com\r\n" +
	"Subject: recover alice.testnet ed25519:4rDpz1CzBNnQ\r\n" +
	"\r\n" +
	"body\r\n"

var testContext = BindingContext{
	AccountID: "alice.testnet",
	NetworkID: "testnet",
}

func TestSealOpenRoundTrip(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if env.Version != Version {
		t.Errorf("Version = %d, want %d", env.Version, Version)
	}
	if len(env.EphemeralPub) != 32 {
		t.Errorf("ephemeral key is %d bytes", len(env.EphemeralPub))
	}
	if bytes.Contains(env.Ciphertext, []byte("alice.testnet")) {
		t.Error("ciphertext leaks plaintext")
	}

	plaintext, err := Open(static, env, testContext)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plaintext) != testEmail {
		t.Errorf("plaintext mismatch:\n%q", plaintext)
	}
}

func TestOpenContextMismatch(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name string
		ctx  BindingContext
	}{
		{"different account", BindingContext{AccountID: "mallory.testnet", NetworkID: "testnet"}},
		{"different network", BindingContext{AccountID: "alice.testnet", NetworkID: "mainnet"}},
		{"extra payer", BindingContext{AccountID: "alice.testnet", NetworkID: "testnet", PayerID: "payer.testnet"}},
		{"empty context", BindingContext{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plaintext, err := Open(static, env, tc.ctx)
			if !errors.Is(err, ErrDecrypt) {
				t.Fatalf("got %v, want ErrDecrypt", err)
			}
			if plaintext != nil {
				t.Error("partial plaintext returned on failure")
			}
		})
	}
}

func TestOpenWrongKey(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	other, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(other, env, testContext); !errors.Is(err, ErrDecrypt) {
		t.Errorf("got %v, want ErrDecrypt", err)
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	env.Ciphertext[0] ^= 0x01
	if _, err := Open(static, env, testContext); !errors.Is(err, ErrDecrypt) {
		t.Errorf("got %v, want ErrDecrypt", err)
	}
}

func TestOpenMalformed(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	good, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"unknown version", func(e *Envelope) { e.Version = 2 }},
		{"short ephemeral key", func(e *Envelope) { e.EphemeralPub = e.EphemeralPub[:16] }},
		{"short nonce", func(e *Envelope) { e.Nonce = e.Nonce[:8] }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := *good
			tc.mutate(&env)
			if _, err := Open(static, &env, testContext); !errors.Is(err, ErrMalformed) {
				t.Errorf("got %v, want ErrMalformed", err)
			}
		})
	}

	t.Run("nil envelope", func(t *testing.T) {
		if _, err := Open(static, nil, testContext); !errors.Is(err, ErrMalformed) {
			t.Errorf("got %v, want ErrMalformed", err)
		}
	})

	t.Run("absent version tolerated", func(t *testing.T) {
		env := *good
		env.Version = 0
		if _, err := Open(static, &env, testContext); err != nil {
			t.Errorf("Open with unversioned envelope: %v", err)
		}
	})
}

func TestParsePrivateKey(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Round trip the private key through its provisioning encoding.
	b64 := base64.StdEncoding.EncodeToString(static.Bytes())
	parsed, err := ParsePrivateKey(b64)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if _, err := Open(parsed, env, testContext); err != nil {
		t.Errorf("Open with re-parsed key: %v", err)
	}

	if _, err := ParsePrivateKey("not base64!"); !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
	if _, err := ParsePrivateKey("c2hvcnQ="); !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
}

func TestEnvelopeJSONWire(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Binary fields travel as base64 strings in JSON, the submission
	// format relayers use.
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, err := Open(static, &decoded, testContext); err != nil {
		t.Errorf("Open after JSON round trip: %v", err)
	}
}

func TestEnvelopeMsgpackWire(t *testing.T) {
	static, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	env, err := Seal(static.PublicKey(), []byte(testEmail), testContext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	buf := env.MarshalMsg(nil)
	var decoded Envelope
	rest, err := decoded.UnmarshalMsg(buf)
	if err != nil {
		t.Fatalf("UnmarshalMsg: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("%d trailing bytes after decode", len(rest))
	}
	if _, err := Open(static, &decoded, testContext); err != nil {
		t.Errorf("Open after msgpack round trip: %v", err)
	}

	var bad Envelope
	if _, err := bad.UnmarshalMsg([]byte{0xc0}); !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
}
