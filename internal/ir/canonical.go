package ir

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON. It is the ONLY
// encoding used for digests: block hashes, record content digests and
// contract code references are all computed over its output.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping and no escaping of U+2028/U+2029
//  3. Strings NFC normalized
//  4. Floats use the ECMAScript number serialization; NaN and infinities
//     are errors
//
// Integers are written exactly, including those beyond 2^53. A whole-valued
// IRFloat encodes the same as the equal IRInt, so both hash alike.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, IRNull:
		buf.WriteString("null")
	case IRString:
		writeCanonicalString(buf, string(val))
	case string:
		writeCanonicalString(buf, val)
	case IRInt:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case IRBool:
		writeBool(buf, bool(val))
	case bool:
		writeBool(buf, val)
	case IRArray:
		return writeCanonicalArray(buf, val)
	case IRObject:
		return writeCanonicalObject(buf, val)
	case []any, map[string]any:
		irVal, err := ToIRValue(val)
		if err != nil {
			return err
		}
		return writeCanonical(buf, irVal)
	case IRFloat:
		return writeCanonicalFloat(buf, float64(val))
	case float64:
		return writeCanonicalFloat(buf, val)
	case float32:
		return writeCanonicalFloat(buf, float64(val))
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if !finite(f) {
		return fmt.Errorf("non-finite number in canonical JSON: %v", f)
	}
	buf.Write(appendNumber(buf.AvailableBuffer(), f))
	return nil
}

// appendNumber formats f the way ECMAScript's Number.prototype.toString
// does (RFC 8785 section 3.2.2.3): shortest round-trip digits, plain
// notation for 1e-6 <= |f| < 1e21, otherwise exponent notation without
// leading exponent zeros. Negative zero is written as 0.
func appendNumber(b []byte, f float64) []byte {
	if f == 0 {
		return append(b, '0')
	}
	format := byte('f')
	if abs := math.Abs(f); abs < 1e-6 || abs >= 1e21 {
		format = 'e'
	}
	b = strconv.AppendFloat(b, f, format, -1, 64)
	if format == 'e' {
		// e-07 to e-7
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
		return
	}
	buf.WriteString("false")
}

func writeCanonicalArray(buf *bytes.Buffer, arr IRArray) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj IRObject) error {
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString escapes only what RFC 8785 requires: the quote, the
// backslash and control characters below U+0020. Everything else, including
// <, >, & and U+2028/U+2029, is written literally.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				buf.WriteString("\uFFFD")
			} else {
				buf.WriteString(s[i : i+size])
			}
			i += size
			continue
		}
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
		i++
	}
	buf.WriteByte('"')
}
