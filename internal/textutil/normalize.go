package textutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidUTF8 is returned for input that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("text is not valid utf-8")

// Normalizer holds the lower-casing and decomposition transformers. It is not
// safe for concurrent use; create one per goroutine.
type Normalizer struct {
	lower cases.Caser
	fold  transform.Transformer
}

// NewNormalizer builds a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		lower: cases.Lower(language.Und),
		fold:  transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(isDroppedMark))),
	}
}

// Normalize returns the comparison form of s.
func (n *Normalizer) Normalize(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	lowered := n.lower.String(strings.TrimSpace(s))
	folded, _, err := transform.String(n.fold, lowered)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", s, err)
	}
	return folded, nil
}

// Normalize is a convenience wrapper that uses a fresh Normalizer.
func Normalize(s string) (string, error) {
	return NewNormalizer().Normalize(s)
}

// isDroppedMark reports combining characters (non-zero canonical combining
// class) that are not punctuation.
func isDroppedMark(r rune) bool {
	if unicode.IsPunct(r) {
		return false
	}
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	return norm.NFD.Properties(buf[:n]).CCC() != 0
}
