// Package archive streams CSV members out of a tar archive in fixed-size
// batches and projects the publisher column of each member.
//
// Cursor owns the archive file and its decompressor for its whole lifetime
// and makes a single forward pass: member content is read while the stream
// is positioned on the member, so memory is bounded by one batch of members.
// Extractor turns a batch into a Frame of raw records, skipping members that
// cannot be read or parsed.
package archive
