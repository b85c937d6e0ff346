// Package cart holds the pure core of the cart: the canonical item shape,
// the normalizer that maps catalog and server-cart records onto it, the
// totals calculator, and the reducer that drives every state transition.
//
// Nothing in this package performs I/O. Reduce is total over the closed set
// of action kinds: any well-formed action applied to any state produces a new
// state without panicking, and TotalItems/Subtotal are recomputed whenever
// Items changes. Callers never edit State fields directly; they dispatch an
// Action and keep the returned State.
package cart
