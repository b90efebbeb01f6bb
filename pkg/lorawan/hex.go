package lorawan

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const groupSeparators = ".,:"

// ParseHex converts a human-entered hex string into bytes.
//
// Accepted forms are a contiguous even-length digit string, or byte groups
// separated by '.', ',' or ':' where a one-digit group is a single nibble.
// Whitespace is ignored in both forms. A "0x" prefix is accepted at the start
// of the input or of a token; a "0x" anywhere else is malformed.
func ParseHex(s string) ([]byte, error) {
	cleaned, err := stripHexPrefixes(strings.ToLower(s))
	if err != nil {
		return nil, err
	}

	if !strings.ContainsAny(cleaned, groupSeparators) {
		if len(cleaned)%2 != 0 {
			return nil, fmt.Errorf("%w: odd number of digits (%d)", ErrMalformedHex, len(cleaned))
		}
		out, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
		}
		return out, nil
	}

	groups := strings.Split(strings.NewReplacer(",", ".", ":", ".").Replace(cleaned), ".")

	out := make([]byte, 0, len(groups))
	for i, g := range groups {
		if g == "" {
			return nil, fmt.Errorf("%w: empty byte group at %d", ErrMalformedHex, i)
		}
		if len(g) > 2 {
			return nil, fmt.Errorf("%w: group %d %q is longer than one byte", ErrMalformedHex, i, g)
		}
		if len(g) == 1 {
			g = "0" + g
		}
		b, err := hex.DecodeString(g)
		if err != nil {
			return nil, fmt.Errorf("%w: group %d %q", ErrMalformedHex, i, g)
		}
		out = append(out, b[0])
	}
	return out, nil
}

// stripHexPrefixes drops whitespace and token-leading "0x" prefixes.
// Prefixed whitespace-separated tokens must be whole bytes, so "0x0 0x1"
// is rejected rather than joined into one byte.
func stripHexPrefixes(s string) (string, error) {
	var b strings.Builder
	tokenStart := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case unicode.IsSpace(rune(c)):
			tokenStart = true
			continue
		case strings.IndexByte(groupSeparators, c) >= 0:
			b.WriteByte(c)
			tokenStart = true
			continue
		case c == '0' && i+1 < len(s) && s[i+1] == 'x':
			if !tokenStart {
				return "", fmt.Errorf("%w: \"0x\" inside a token at offset %d", ErrMalformedHex, i)
			}
			if n := tokenLen(s[i+2:]); n%2 != 0 && !strings.ContainsAny(s, groupSeparators) {
				return "", fmt.Errorf("%w: prefixed token at offset %d has %d digits", ErrMalformedHex, i, n)
			}
			i++
			tokenStart = false
			continue
		case c == 'x':
			return "", fmt.Errorf("%w: stray 'x' at offset %d", ErrMalformedHex, i)
		}
		b.WriteByte(c)
		tokenStart = false
	}
	return b.String(), nil
}

// tokenLen counts the characters up to the next whitespace or separator
func tokenLen(s string) int {
	for i := 0; i < len(s); i++ {
		if unicode.IsSpace(rune(s[i])) || strings.IndexByte(groupSeparators, s[i]) >= 0 {
			return i
		}
	}
	return len(s)
}

// reverse returns a reversed copy of b
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
