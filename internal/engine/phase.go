package engine

// Phase is the controller's sync phase for the current identity.
type Phase string

const (
	// PhaseAnonymousLocal: no identity; the cart lives in the snapshot only.
	PhaseAnonymousLocal Phase = "anonymous-local"

	// PhaseHydrating: identity acquired, remote fetch in flight.
	PhaseHydrating Phase = "hydrating"

	// PhaseSynced: local state mirrors the last known remote cart.
	PhaseSynced Phase = "authenticated-synced"

	// PhaseMutating: optimistic changes await remote confirmation.
	PhaseMutating Phase = "mutating"
)
