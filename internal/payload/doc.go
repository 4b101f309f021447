// Package payload locates and rewrites device identifiers embedded in the
// opaque binary columns of the vendor settings store.
//
// The vendor formats are not fully decoded. A codec only knows where
// identifier slots live inside a payload and how wide they are; every other
// byte is treated as opaque and preserved exactly.
//
// # Contract
//
//   - Scan yields every identifier slot as an Occurrence (offset, length,
//     current identifier). The sequence is lazy, finite and restartable:
//     ranging over it twice yields the same occurrences.
//   - Rewrite returns a new payload with the named slots replaced. The input
//     is never mutated and the payload length never changes.
//   - A replacement that does not fit its slot fails with *FormatError.
//   - An offset that Scan did not produce fails with *UnknownOccurrenceError.
//
// # Codecs
//
//   - "tlv": length-prefixed records with NUL-padded identifier slots.
//   - "json": identifier-bearing string fields inside a JSON document,
//     rewritten in place without re-serialising the document.
package payload
