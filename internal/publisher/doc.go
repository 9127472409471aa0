// Package publisher decodes raw publisher cells into structured records.
//
// A raw cell is free text that may carry a bracket group of key:value
// identifier tokens, for example:
//
//	Acme Press [omid:01234 crossref:55]
//
// Decoding runs in three small steps that are exported for testing:
// FirstSegment keeps the text before the first "; " separator, FindGroups
// locates the well-formed bracket groups, and SplitTokens breaks a group into
// key/value tokens. Parser ties them together with textutil normalization.
//
// Identifiers that cannot be recovered are represented by a sentinel bound to
// the row id (see ID) so unrelated rows never compare equal during dedup.
package publisher
