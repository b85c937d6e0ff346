// Package harness runs cart scenarios against a real controller.
//
// A scenario is a YAML file describing an initial snapshot and remote carts,
// a list of steps (identity changes, cart operations, injected remote
// failures, pauses) and expectations on the final state. The harness drives
// an engine.Controller wired to a remote.Scripted service and an in-memory
// snapshot store, and records every reducer dispatch and notice in a trace.
//
// Determinism: op ids come from testutil.SequentialOpIDs and trace events
// are stamped by testutil.DeterministicClock. After every step the harness
// waits for in-flight remote calls to settle, unless a remote operation is
// paused; steps taken while paused should not issue other remote calls.
//
// Traces are compared against golden files with goldie:
//
//	go test ./internal/harness -update
package harness
