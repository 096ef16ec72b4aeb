package signature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// CanonicalBody returns the byte-stable form of a JSON request body that both
// sides sign. Object keys are sorted at every depth, arrays keep their order
// and numbers keep their literal text. Absent, null and empty-container
// bodies canonicalize to the empty string. Strings are emitted the way
// JSON.stringify writes them: U+2028 and U+2029 stay raw, and bodies that are
// not valid UTF-8 are rejected rather than silently repaired.
func CanonicalBody(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}
	if !utf8.Valid(trimmed) {
		return "", errors.New("decode body: invalid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return "", errors.New("decode body: trailing data")
	}

	switch t := v.(type) {
	case nil:
		return "", nil
	case map[string]interface{}:
		if len(t) == 0 {
			return "", nil
		}
	case []interface{}:
		if len(t) == 0 {
			return "", nil
		}
	}

	return encodeCanonical(v)
}

// encodeCanonical relies on encoding/json writing map keys in sorted order.
func encodeCanonical(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unescapeLineSeparators undoes the \u2028 and \u2029 escapes encoding/json
// always writes. Escape pairs are consumed whole so an escaped backslash
// followed by the text "u2028" is left alone.
func unescapeLineSeparators(b []byte) string {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return string(b)
	}
	var out bytes.Buffer
	out.Grow(len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out.WriteByte(b[i])
			continue
		}
		if esc := b[i+1:]; len(esc) >= 5 && esc[0] == 'u' && string(esc[1:4]) == "202" && (esc[4] == '8' || esc[4] == '9') {
			if esc[4] == '8' {
				out.WriteRune('\u2028')
			} else {
				out.WriteRune('\u2029')
			}
			i += 5
			continue
		}
		out.Write(b[i : i+2])
		i++
	}
	return out.String()
}
