// Package snapshot persists the anonymous cart between runs.
//
// The snapshot is a JSON document stored under a single key of a store.KV.
// It carries a format version and a SHA-256 checksum of the canonical item
// encoding. Anything that cannot be decoded, fails the checksum, or comes
// from a newer format reads back as the empty cart; failures are logged and
// never returned to the caller.
package snapshot
