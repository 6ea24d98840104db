package dkim

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Signature is one parsed DKIM-Signature header.
//
// A signature is either fully validated and checked against a key record,
// or rejected; partial acceptance is never exposed by the Verifier.
type Signature struct {
	// Domain is the signing domain (d= tag), lowercased.
	Domain string

	// Selector is the key selector (s= tag), lowercased.
	Selector string

	// BodyHash is the decoded body hash (bh= tag).
	BodyHash []byte

	// Signature is the decoded signature data (b= tag).
	Signature []byte

	// SignedHeaders is the h= list in listed order; duplicates allowed.
	SignedHeaders []string

	// Length is the body length limit (l= tag), -1 if not set.
	Length int64

	// Index is the position of this signature among all DKIM-Signature
	// headers in the message, in document order.
	Index int

	// rawValue is the header value exactly as it appeared, folds included.
	// Needed to recompute the signed data with the b= value emptied.
	rawValue string
}

// QueryName returns the DNS name publishing this signature's key record,
// "<selector>._domainkey.<domain>".
func (s *Signature) QueryName() string {
	return s.Selector + "._domainkey." + s.Domain
}

// parseTagList parses a DKIM tag=value list (used by both signature
// headers and key records). Unknown tags are kept; duplicate tags fail.
func parseTagList(value string) (map[string]string, error) {
	tags := make(map[string]string)
	unfolded := strings.NewReplacer("\r\n", " ", "\n", " ").Replace(value)

	for _, part := range strings.Split(unfolded, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx < 0 {
			continue
		}
		tag := strings.TrimSpace(part[:idx])
		if _, ok := tags[tag]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, tag)
		}
		tags[tag] = strings.TrimSpace(part[idx+1:])
	}

	return tags, nil
}

// decodeBase64Tag decodes a base64 tag value, ignoring embedded folding
// whitespace as permitted by RFC 6376.
func decodeBase64Tag(tag, value string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, value)

	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %s= (%v)", ErrInvalidBase64, tag, err)
	}
	return decoded, nil
}

// ParseSignature parses and validates one DKIM-Signature header field.
//
// The returned error classifies why the signature cannot be used:
// unsupported version/algorithm/canonicalization, a missing required tag,
// or undecodable base64. Any error rejects only this signature.
func ParseSignature(field HeaderField, index int) (*Signature, error) {
	tags, err := parseTagList(field.Value)
	if err != nil {
		return nil, err
	}

	if v, ok := tags["v"]; ok && v != Version {
		return nil, fmt.Errorf("%w: v=%s", ErrUnsupportedVersion, v)
	}

	if a := strings.ToLower(tags["a"]); a != Algorithm {
		return nil, fmt.Errorf("%w: a=%s", ErrUnsupportedAlgorithm, tags["a"])
	}

	// Canonicalization must be explicitly relaxed/relaxed; the c= default
	// (simple/simple) is outside the supported profile.
	if c := strings.ToLower(tags["c"]); c != Canonicalization {
		return nil, fmt.Errorf("%w: c=%s", ErrUnsupportedCanonicalization, tags["c"])
	}

	sig := &Signature{
		Domain:   strings.ToLower(tags["d"]),
		Selector: strings.ToLower(tags["s"]),
		Length:   -1,
		Index:    index,
		rawValue: field.Value,
	}
	if sig.Domain == "" {
		return nil, fmt.Errorf("%w: d", ErrMissingTag)
	}
	if sig.Selector == "" {
		return nil, fmt.Errorf("%w: s", ErrMissingTag)
	}

	bh, ok := tags["bh"]
	if !ok || bh == "" {
		return nil, fmt.Errorf("%w: bh", ErrMissingTag)
	}
	if sig.BodyHash, err = decodeBase64Tag("bh", bh); err != nil {
		return nil, err
	}

	b, ok := tags["b"]
	if !ok || b == "" {
		return nil, fmt.Errorf("%w: b", ErrMissingTag)
	}
	if sig.Signature, err = decodeBase64Tag("b", b); err != nil {
		return nil, err
	}

	h, ok := tags["h"]
	if !ok || h == "" {
		return nil, fmt.Errorf("%w: h", ErrMissingTag)
	}
	for _, name := range strings.Split(h, ":") {
		name = strings.TrimSpace(name)
		if name != "" {
			sig.SignedHeaders = append(sig.SignedHeaders, name)
		}
	}
	if len(sig.SignedHeaders) == 0 {
		return nil, fmt.Errorf("%w: h", ErrMissingTag)
	}

	if l, ok := tags["l"]; ok {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: l=%s", ErrInvalidBodyLength, l)
		}
		sig.Length = n
	}

	return sig, nil
}

// canonicalSelf returns the relaxed canonical form of the signature's own
// header with the b= tag value textually emptied, without a trailing CRLF.
// This is the final entry of the signed data.
func (s *Signature) canonicalSelf() string {
	value := emptyBTagValue(s.rawValue)
	return "dkim-signature:" + canonicalHeaderValueRelaxed(value)
}

// emptyBTagValue removes the value of the b= tag from a raw signature
// header value, preserving all other tags and structure. Optional folding
// whitespace around the tag name, the equals sign, and the value is
// tolerated.
func emptyBTagValue(raw string) string {
	i := 0
	for i < len(raw) {
		i = skipFWS(raw, i)
		if i >= len(raw) {
			break
		}

		// Read the tag name at this tag boundary.
		start := i
		for i < len(raw) && raw[i] != '=' && raw[i] != ';' && !isFWS(raw[i]) {
			i++
		}
		name := raw[start:i]

		i = skipFWS(raw, i)
		if i >= len(raw) || raw[i] != '=' {
			// Not a tag=value pair; resynchronize at the next semicolon.
			i = skipPastSemicolon(raw, i)
			continue
		}
		i++ // consume '='

		if name == "b" || name == "B" {
			valueStart := skipFWS(raw, i)
			valueEnd := valueStart
			for valueEnd < len(raw) && raw[valueEnd] != ';' {
				valueEnd++
			}
			return raw[:valueStart] + raw[valueEnd:]
		}

		i = skipPastSemicolon(raw, i)
	}

	return raw
}

func isFWS(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func skipFWS(s string, i int) int {
	for i < len(s) && isFWS(s[i]) {
		i++
	}
	return i
}

func skipPastSemicolon(s string, i int) int {
	for i < len(s) && s[i] != ';' {
		i++
	}
	if i < len(s) {
		i++
	}
	return i
}
