// Package canonical produces deterministic JSON for cart records.
//
// Output follows RFC 8785 ordering rules: object keys are sorted by UTF-16
// code units, strings are NFC normalized and only escaped where JSON
// requires it, and there is no insignificant whitespace. Two records that
// are equal as values always encode to the same bytes, which is what the
// snapshot checksum and the scenario golden files rely on.
package canonical
