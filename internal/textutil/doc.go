// Package textutil canonicalizes publisher literals for comparison.
//
// Normalization trims and lower-cases the text, applies NFKD decomposition,
// and drops runes with a non-zero canonical combining class (diacritics),
// keeping any that are themselves punctuation. The result is only used to
// compare and deduplicate literals; it is never treated as an identifier
// value.
package textutil
