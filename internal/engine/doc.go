// Package engine implements the cart sync controller.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// One goroutine (Controller.Run) owns the cart state. Commands from callers
// and completions of remote calls are queued FIFO and processed one at a
// time, so reducer transitions are strictly ordered.
//
// Event Processing Flow:
//  1. An operation enqueues a command and blocks until the loop applies its
//     optimistic reducer action (and mirrors items to the snapshot).
//  2. If a user is signed in, the loop starts the matching remote call in
//     its own goroutine; the caller is already released.
//  3. The call's outcome is enqueued as a completion event.
//  4. On success the loop records SYNC_SUCCESS; on failure it dispatches
//     the compensating action captured at step 1, then SYNC_FAILURE.
//
// Remote completions are not ordered relative to each other. Two mutations
// of the same item race unless WithItemSerialization is set.
//
// Identity Epochs:
// Every identity transition starts a new epoch. Completions of calls issued
// in an earlier epoch are logged and discarded, so a late rollback can never
// put items back into a cart that has since been signed out of.
package engine
