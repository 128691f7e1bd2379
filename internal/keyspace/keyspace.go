// Package keyspace builds the composite storage keys under which the
// evidence ledger persists state.
//
// Key format: U+0000 {tag} U+0000 {component} U+0000 ...
//
// Every segment, the tag included, is terminated by a NUL byte, so distinct
// (tag, components) tuples always map to distinct keys and a key built from
// a leading subset of components is a byte prefix of every key that extends
// it. That makes prefix range scans over an ordered store return exactly the
// logical partition: the events of evidence "E1" never match the prefix of
// "E11" because the terminator differs.
//
// Components are identifiers (evidence ids, transaction ids) and must not
// contain NUL bytes themselves.
package keyspace

import "strings"

// sep separates key segments. U+0000 sorts before every other byte and never
// appears in the identifiers used as components.
const sep = "\x00"

// Tags partition the key space by object type.
const (
	TagEvidence      = "EVIDENCE"       // current evidence records
	TagEvidenceEvent = "EVIDENCE_EVENT" // append-only audit events
)

// Key returns the storage key for tag and the given components.
func Key(tag string, components ...string) string {
	var b strings.Builder
	n := 2 + len(tag)
	for _, c := range components {
		n += len(c) + 1
	}
	b.Grow(n)

	b.WriteString(sep)
	b.WriteString(tag)
	b.WriteString(sep)
	for _, c := range components {
		b.WriteString(c)
		b.WriteString(sep)
	}
	return b.String()
}

// Prefix returns the scan prefix covering every key that extends the given
// leading components under tag. Prefix(tag) covers the whole tag partition.
func Prefix(tag string, components ...string) string {
	return Key(tag, components...)
}
