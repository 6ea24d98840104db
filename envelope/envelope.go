// Package envelope implements the authenticated-encryption envelope used
// for the private verification path: X25519 ephemeral-static key agreement,
// HKDF-SHA256 key derivation and ChaCha20-Poly1305 authenticated
// encryption, with a caller-supplied binding context as associated data.
//
// The sending side generates a fresh ephemeral keypair per message,
// derives the symmetric key from its exchange with the service's static
// public key and ships the ephemeral public key inside the envelope. The
// receiving side repeats the exchange with its static private key. Both
// sides must reconstruct the binding context identically; any divergence
// surfaces as a decryption failure rather than a parse error.
package envelope

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is the envelope format version produced by Seal.
const Version = 1

// keyInfo is the HKDF domain-separation label. Changing it invalidates
// every envelope in flight.
const keyInfo = "email-dkim-encryption-key"

var (
	// ErrMalformed indicates an envelope whose fields cannot be decoded
	// (bad base64, wrong key or nonce size, unknown version).
	ErrMalformed = errors.New("envelope: malformed envelope")

	// ErrDecrypt indicates authenticated decryption failure: a wrong
	// key, a tampered ciphertext, or a binding context that differs
	// from the one used at encryption time. The cases are deliberately
	// indistinguishable.
	ErrDecrypt = errors.New("envelope: decryption failed")
)

// Envelope is the wire form of one encrypted message. All binary fields
// are base64 (standard encoding) in JSON, matching what relayers submit.
// An Envelope is transient: it lives for the duration of one Open call
// and is never persisted.
type Envelope struct {
	Version int `json:"version"`

	// EphemeralPub is the sender's ephemeral X25519 public key.
	EphemeralPub []byte `json:"ephemeral_pub"`

	// Nonce is the 12-byte AEAD nonce.
	Nonce []byte `json:"nonce"`

	Ciphertext []byte `json:"ciphertext"`
}

// BindingContext is the structured data bound into the AEAD as associated
// data. Encrypting and decrypting parties must populate it identically.
type BindingContext struct {
	// AccountID is the identity the verification request targets.
	AccountID string `json:"account_id"`

	// NetworkID names the network the request executes on.
	NetworkID string `json:"network_id"`

	// PayerID is the identity funding the request, when distinct from
	// the target.
	PayerID string `json:"payer_id,omitempty"`
}

// aad returns the canonical serialization of the context. Field order is
// fixed by the struct definition, so both parties produce identical bytes
// from identical field values.
func (c BindingContext) aad() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("envelope: serializing binding context: %w", err)
	}
	return b, nil
}

// GenerateKeypair creates a new static X25519 keypair for the service.
func GenerateKeypair() (*ecdh.PrivateKey, error) {
	key, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generating keypair: %w", err)
	}
	return key, nil
}

// ParsePrivateKey decodes a base64-encoded 32-byte X25519 private key, the
// form static keys are provisioned in.
func ParsePrivateKey(b64 string) (*ecdh.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not base64", ErrMalformed)
	}
	key, err := ecdh.X25519().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return key, nil
}

// deriveKey turns an ECDH shared secret into the 32-byte AEAD key:
// HKDF-SHA256 with no salt and the fixed domain-separation label.
func deriveKey(shared []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, shared, nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("envelope: deriving key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext for the holder of staticPub under a fresh
// ephemeral keypair, binding ctx as associated data.
func Seal(staticPub *ecdh.PublicKey, plaintext []byte, ctx BindingContext) (*Envelope, error) {
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generating ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(staticPub)
	if err != nil {
		return nil, fmt.Errorf("envelope: key agreement: %w", err)
	}
	key, err := deriveKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("envelope: generating nonce: %w", err)
	}

	aad, err := ctx.aad()
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Version:      Version,
		EphemeralPub: ephemeral.PublicKey().Bytes(),
		Nonce:        nonce,
		Ciphertext:   aead.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// Open decrypts the envelope with the service's static private key and the
// caller's reconstruction of the binding context. It returns the plaintext
// message bytes, or ErrDecrypt if authentication fails for any reason. No
// partial plaintext is ever returned.
func Open(static *ecdh.PrivateKey, env *Envelope, ctx BindingContext) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: no envelope", ErrMalformed)
	}
	// Version 0 means the field was absent on the wire; senders predating
	// the versioned format omit it.
	if env.Version != 0 && env.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, env.Version)
	}

	ephemeral, err := ecdh.X25519().NewPublicKey(env.EphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral public key: %v", ErrMalformed, err)
	}
	if len(env.Nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d",
			ErrMalformed, chacha20poly1305.NonceSize, len(env.Nonce))
	}

	shared, err := static.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement: %v", ErrMalformed, err)
	}
	key, err := deriveKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}

	aad, err := ctx.aad()
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
