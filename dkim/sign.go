package dkim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultSignedHeaders is the default h= list for new signatures.
var DefaultSignedHeaders = []string{
	"From",
	"To",
	"Subject",
	"Date",
}

// Signer produces rsa-sha256 relaxed/relaxed DKIM-Signature headers.
// It exists so deployments and tests can generate messages that verify
// under the same profile the Verifier accepts.
type Signer struct {
	// Domain is the signing domain (d= tag). Required.
	Domain string

	// Selector is the key selector (s= tag). Required.
	Selector string

	// PrivateKey is the RSA signing key. Required.
	PrivateKey *rsa.PrivateKey

	// SignedHeaders is the h= list. Defaults to DefaultSignedHeaders.
	SignedHeaders []string

	// Length limits the signed body to the first Length octets of the
	// canonical body (l= tag). Negative or zero means no limit.
	Length int64
}

// Sign computes a DKIM-Signature header for the message and returns the
// complete header field including the trailing CRLF. Prepending the
// returned header to the message yields a message that verifies.
func (s *Signer) Sign(message []byte) (string, error) {
	if s.Domain == "" || s.Selector == "" {
		return "", fmt.Errorf("dkim: signer requires domain and selector")
	}
	if s.PrivateKey == nil {
		return "", fmt.Errorf("dkim: signer requires a private key")
	}

	msg, err := ParseMessage(message)
	if err != nil {
		return "", err
	}

	signedHeaders := s.SignedHeaders
	if len(signedHeaders) == 0 {
		signedHeaders = DefaultSignedHeaders
	}

	body := CanonicalBody(msg.Body)
	if s.Length > 0 {
		if s.Length > int64(len(body)) {
			return "", fmt.Errorf("%w: l=%d, canonical body is %d octets",
				ErrInvalidBodyLength, s.Length, len(body))
		}
		body = body[:s.Length]
	}
	bodyHash := sha256.Sum256(body)

	// Header value with an empty b= tag; the b= value is filled in after
	// signing the canonical form of exactly this text.
	w := &headerWriter{}
	w.addf("", "v=%s;", Version)
	w.addf(" ", "a=%s;", Algorithm)
	w.addf(" ", "c=%s;", Canonicalization)
	w.addf(" ", "d=%s;", s.Domain)
	w.addf(" ", "s=%s;", s.Selector)
	w.addf(" ", "t=%d;", timeNow().Unix())
	if s.Length > 0 {
		w.addf(" ", "l=%d;", s.Length)
	}
	w.addf(" ", "bh=%s;", base64.StdEncoding.EncodeToString(bodyHash[:]))
	for i, h := range signedHeaders {
		sep := ""
		if i == 0 {
			h = "h=" + h
			sep = " "
		}
		if i < len(signedHeaders)-1 {
			h += ":"
		} else {
			h += ";"
		}
		w.add(sep, h)
	}
	w.add(" ", "b=")

	value := " " + w.String()
	data := signedHeaderData(msg.Headers, signedHeaders) +
		"dkim-signature:" + canonicalHeaderValueRelaxed(value)
	dataHash := sha256.Sum256([]byte(data))

	sigData, err := rsa.SignPKCS1v15(rand.Reader, s.PrivateKey, crypto.SHA256, dataHash[:])
	if err != nil {
		return "", fmt.Errorf("dkim: signing: %w", err)
	}
	w.addWrap([]byte(base64.StdEncoding.EncodeToString(sigData)))

	return "DKIM-Signature: " + w.String() + "\r\n", nil
}

// headerWriter helps create DKIM-Signature headers with proper folding.
// It tracks line length and folds to the next line when needed (RFC 5322).
type headerWriter struct {
	b        strings.Builder
	lineLen  int
	nonfirst bool
}

// add adds text, potentially folding to a new line if it exceeds maxLen.
func (w *headerWriter) add(sep, text string) {
	const maxLen = 76

	n := len(text)
	if w.nonfirst && w.lineLen > 1 && w.lineLen+len(sep)+n > maxLen {
		w.b.WriteString("\r\n\t")
		w.lineLen = 1
	} else if w.nonfirst && sep != "" {
		w.b.WriteString(sep)
		w.lineLen += len(sep)
	}
	w.b.WriteString(text)
	w.lineLen += len(text)
	w.nonfirst = true
}

// addf formats and adds text.
func (w *headerWriter) addf(sep, format string, args ...any) {
	w.add(sep, fmt.Sprintf(format, args...))
}

// addWrap adds data that can be wrapped at any position (like base64).
func (w *headerWriter) addWrap(data []byte) {
	const maxLen = 76

	for len(data) > 0 {
		n := maxLen - w.lineLen
		if n <= 0 {
			w.b.WriteString("\r\n\t")
			w.lineLen = 1
			n = maxLen - 1
		}
		if n > len(data) {
			n = len(data)
		}
		w.b.Write(data[:n])
		w.lineLen += n
		data = data[n:]
	}
}

// String returns the header content (without trailing CRLF).
func (w *headerWriter) String() string {
	return w.b.String()
}
