// Package typecode normalises raw product typecodes into ordered tokens.
// "KDC 50-K-25-PNSOK-TSL" becomes ["KDC", "50", "K", "25", "PNSOK", "TSL"].
package typecode

import (
	"strings"
	"unicode"
)

// Wildcard is the placeholder token that matches every code at its level.
const Wildcard = "*"

// Split tokenises a raw typecode. Separators are runs of dashes or
// whitespace, runs of two or more underscores, and a single underscore
// standing between two word characters. Tokens are uppercased; empty
// tokens are dropped.
func Split(raw string) []string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}

	var (
		parts []string
		b     strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
	}

	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]

		if r == '-' || unicode.IsSpace(r) {
			flush()
			i++
			continue
		}

		if r == '_' {
			j := i
			for j < len(rs) && rs[j] == '_' {
				j++
			}
			if j-i >= 2 {
				flush()
			} else {
				// A lone underscore only separates when flanked by
				// word characters; otherwise it belongs to the token.
				prevWord := i > 0 && isWord(rs[i-1])
				nextWord := j < len(rs) && isWord(rs[j])
				if prevWord && nextWord {
					flush()
				} else {
					b.WriteRune('_')
				}
			}
			i = j
			continue
		}

		b.WriteRune(r)
		i++
	}
	flush()

	return parts
}

// Reconstruct renders tokens in the canonical "FAMILY REST-REST-…" form.
// Fewer than two tokens cannot form a full typecode and yield "".
func Reconstruct(parts []string) string {
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + " " + strings.Join(parts[1:], "-")
}

// ContainsWildcard reports whether any token is the wildcard placeholder.
func ContainsWildcard(parts []string) bool {
	for _, p := range parts {
		if p == Wildcard {
			return true
		}
	}
	return false
}

// Position is the 1-based inclusive character span of a token inside the
// canonical typecode string, counting one character per separator.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Positions computes the span of every token in the canonical rendering.
// The family token starts at 1; each following token starts one separator
// past the previous end.
func Positions(parts []string) []Position {
	if len(parts) == 0 {
		return nil
	}
	out := make([]Position, len(parts))
	out[0] = Position{Start: 1, End: len(parts[0])}
	for i := 1; i < len(parts); i++ {
		start := out[i-1].End + 2
		out[i] = Position{Start: start, End: start + len(parts[i]) - 1}
	}
	return out
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
