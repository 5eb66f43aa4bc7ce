package textutil

import "strings"

// SmartQuotes converts straight ASCII quotes to their typographic
// equivalents. A quote opens when it follows the start of the string,
// whitespace, or an opening bracket/quote; otherwise it closes. This also
// turns apostrophes inside words into U+2019.
//
// The function is pure and idempotent: typographic quotes pass through
// untouched, so applying it twice yields the same string.
func SmartQuotes(s string) string {
	if !strings.ContainsAny(s, `'"`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)

	prev := rune(0)
	for i, r := range s {
		switch r {
		case '\'':
			if opensQuote(i, prev) {
				b.WriteRune('‘')
			} else {
				b.WriteRune('’')
			}
		case '"':
			if opensQuote(i, prev) {
				b.WriteRune('“')
			} else {
				b.WriteRune('”')
			}
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

func opensQuote(pos int, prev rune) bool {
	if pos == 0 {
		return true
	}
	switch prev {
	case ' ', '\t', '\n', '\r', '(', '[', '{', '‘', '“':
		return true
	}
	return false
}
