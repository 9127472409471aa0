package publisher

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SegmentSeparator splits alternate encodings of the same cell.
const SegmentSeparator = "; "

// Group is one well-formed bracket group within a segment. Start and End are
// byte offsets of the opening and one past the closing bracket.
type Group struct {
	Start int
	End   int
	Inner string
}

// Token is one key:value entry of a group. A token without a colon has an
// empty Key and the whole token as Value.
type Token struct {
	Key   string
	Value string
}

// FirstSegment returns the text before the first separator. Later separators
// are not considered.
func FirstSegment(s string) string {
	if before, _, found := strings.Cut(s, SegmentSeparator); found {
		return before
	}
	return s
}

// FindGroups returns every well-formed group in s, left to right. A group is
// "[" followed by a word key, ":", one or more characters other than "]", and
// "]". Malformed openings are skipped and scanning resumes after them.
func FindGroups(s string) []Group {
	var groups []Group
	for i := 0; i < len(s); {
		open := strings.IndexByte(s[i:], '[')
		if open < 0 {
			break
		}
		start := i + open
		if end, ok := matchGroup(s, start); ok {
			groups = append(groups, Group{Start: start, End: end, Inner: s[start+1 : end-1]})
			i = end
			continue
		}
		i = start + 1
	}
	return groups
}

// matchGroup tries to match a group whose "[" is at s[start].
func matchGroup(s string, start int) (int, bool) {
	pos := start + 1
	keyStart := pos
	for pos < len(s) {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if !isWordRune(r) {
			break
		}
		pos += size
	}
	if pos == keyStart || pos >= len(s) || s[pos] != ':' {
		return 0, false
	}
	pos++
	closing := strings.IndexByte(s[pos:], ']')
	if closing <= 0 {
		return 0, false
	}
	return pos + closing + 1, true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// SplitTokens splits group content on whitespace and each token on its first
// colon. Trailing "]" characters are stripped from values.
func SplitTokens(inner string) []Token {
	fields := strings.Fields(inner)
	tokens := make([]Token, 0, len(fields))
	for _, field := range fields {
		var tok Token
		if key, value, found := strings.Cut(field, ":"); found {
			tok = Token{Key: key, Value: value}
		} else {
			tok = Token{Value: field}
		}
		tok.Value = strings.TrimRight(tok.Value, "]")
		tokens = append(tokens, tok)
	}
	return tokens
}

// StripGroups removes the given groups from s.
func StripGroups(s string, groups []Group) string {
	if len(groups) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, g := range groups {
		b.WriteString(s[last:g.Start])
		last = g.End
	}
	b.WriteString(s[last:])
	return b.String()
}
