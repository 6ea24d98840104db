package dkim

import (
	"bytes"
	"strings"
)

// HeaderField is a single header field in its physical position.
type HeaderField struct {
	// Name is the field name with original casing, trailing WSP removed.
	Name string

	// Value is the raw field value after the colon, including any folded
	// continuation lines with their line breaks.
	Value string

	// Raw is the complete field as it appeared in the message, including
	// name, colon, folds, and the final line break.
	Raw []byte
}

// Message is a raw message split into its ordered header fields and body.
// Duplicate header fields are preserved in physical order. Concatenating
// the Raw bytes of all fields, the blank separator line, and Body
// reproduces the original message.
type Message struct {
	Headers []HeaderField
	Body    []byte
}

// ParseMessage splits a raw message at the first blank line and parses the
// header block into fields, preserving original bytes. Both CRLF and bare
// LF line endings are tolerated. Returns ErrNoBody when the message has no
// header/body boundary.
func ParseMessage(data []byte) (*Message, error) {
	headerBlock, body, err := splitMessage(data)
	if err != nil {
		return nil, err
	}

	headers, err := parseHeaderBlock(headerBlock)
	if err != nil {
		return nil, err
	}

	return &Message{Headers: headers, Body: body}, nil
}

// splitMessage finds the first blank line and returns the header block
// (without the blank line) and the body.
func splitMessage(data []byte) ([]byte, []byte, error) {
	if idx := bytes.Index(data, []byte("\r\n\r\n")); idx >= 0 {
		return data[:idx+2], data[idx+4:], nil
	}
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		return data[:idx+1], data[idx+2:], nil
	}
	return nil, nil, ErrNoBody
}

// parseHeaderBlock parses header fields, unfolding nothing: continuation
// lines stay attached to their field with the fold intact so that signature
// hashes can be computed over the exact original bytes.
func parseHeaderBlock(block []byte) ([]HeaderField, error) {
	var headers []HeaderField
	var cur *HeaderField

	for len(block) > 0 {
		line := block
		if nl := bytes.IndexByte(block, '\n'); nl >= 0 {
			line = block[:nl+1]
			block = block[nl+1:]
		} else {
			block = nil
		}

		content := trimLineBreak(line)

		// Continuation line: belongs to the previous field.
		if len(content) > 0 && (content[0] == ' ' || content[0] == '\t') {
			if cur == nil {
				return nil, ErrHeaderMalformed
			}
			cur.Value += string(line)
			cur.Raw = append(cur.Raw, line...)
			continue
		}

		if cur != nil {
			headers = append(headers, *cur)
			cur = nil
		}

		if len(content) == 0 {
			// Stray blank line inside the header block; splitMessage
			// should have cut here, but be tolerant.
			break
		}

		colon := bytes.IndexByte(content, ':')
		if colon < 0 {
			return nil, ErrHeaderMalformed
		}

		name := strings.TrimRight(string(content[:colon]), " \t")
		for _, c := range name {
			if c <= ' ' || c >= 0x7f {
				return nil, ErrHeaderMalformed
			}
		}

		cur = &HeaderField{
			Name:  name,
			Value: string(line[colon+1:]),
			Raw:   bytes.Clone(line),
		}
	}

	if cur != nil {
		headers = append(headers, *cur)
	}

	return headers, nil
}

// trimLineBreak removes a trailing CRLF or LF.
func trimLineBreak(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// CanonicalBody returns the relaxed canonicalization of a message body:
// line endings normalized to CRLF, trailing whitespace stripped from each
// line, internal whitespace runs collapsed to a single space, and trailing
// empty lines removed. A non-empty canonical body ends with exactly one
// CRLF; an empty body canonicalizes to an empty byte slice.
func CanonicalBody(body []byte) []byte {
	var lines [][]byte
	for _, raw := range bytes.Split(body, []byte("\n")) {
		line := bytes.TrimSuffix(raw, []byte("\r"))
		line = bytes.TrimRight(line, " \t")
		lines = append(lines, collapseWSP(line))
	}

	// Ignore empty lines at the end of the body.
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// collapseWSP collapses runs of spaces and tabs to a single space.
func collapseWSP(line []byte) []byte {
	var out []byte
	prevWS := false
	for _, b := range line {
		if b == ' ' || b == '\t' {
			if !prevWS {
				out = append(out, ' ')
				prevWS = true
			}
		} else {
			out = append(out, b)
			prevWS = false
		}
	}
	return out
}

// canonicalHeaderValueRelaxed applies relaxed canonicalization to a header
// value: unfold continuation lines, collapse WSP runs, trim leading and
// trailing whitespace.
func canonicalHeaderValueRelaxed(value string) string {
	// Unfold (remove CRLF or LF followed by WSP).
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\t", " ")

	var b strings.Builder
	prevWS := false
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == ' ' {
			if !prevWS {
				b.WriteByte(' ')
				prevWS = true
			}
		} else {
			b.WriteByte(c)
			prevWS = false
		}
	}

	return strings.TrimSpace(b.String())
}

// Header returns the unfolded, whitespace-collapsed value of the first
// header field with the given name (case-insensitive), or "" if the
// message has no such field.
func (m *Message) Header(name string) string {
	for _, hdr := range m.Headers {
		if strings.EqualFold(hdr.Name, name) {
			return canonicalHeaderValueRelaxed(hdr.Value)
		}
	}
	return ""
}

// CanonicalHeaderRelaxed returns the relaxed canonical form of one header
// field as "name:value", without a trailing CRLF. The caller appends CRLF
// for every field except the final entry of a signature's signed data.
func CanonicalHeaderRelaxed(name, value string) string {
	return strings.ToLower(strings.TrimRight(name, " \t")) + ":" + canonicalHeaderValueRelaxed(value)
}

// signedHeaderData assembles the canonical signed-header block for the
// given h= list. For each requested name, field instances are selected
// from the physically last occurrence backward; once the occurrences of a
// name are exhausted, further requests for it are omitted from the signed
// data rather than failing.
func signedHeaderData(headers []HeaderField, signedHeaders []string) string {
	used := make([]bool, len(headers))
	var b strings.Builder

	for _, want := range signedHeaders {
		selected := -1
		for i := len(headers) - 1; i >= 0; i-- {
			if used[i] {
				continue
			}
			if strings.EqualFold(headers[i].Name, want) {
				selected = i
				break
			}
		}
		if selected < 0 {
			continue
		}
		used[selected] = true
		b.WriteString(CanonicalHeaderRelaxed(headers[selected].Name, headers[selected].Value))
		b.WriteString("\r\n")
	}

	return b.String()
}
