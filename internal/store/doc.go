// Package store provides the durable key-value storage the cart snapshot is
// written to.
//
// Three implementations satisfy KV:
//   - SQLite: the on-device store, a single kv table in a local database file
//   - Redis: a shared store for kiosk and development setups
//   - Memory: a map, for tests and ephemeral sessions
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Values are opaque strings; callers own their encoding.
package store
