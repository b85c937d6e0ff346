package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/identity"
)

// Dispatch is one reducer step as seen by an observer.
type Dispatch struct {
	// Seq orders dispatches; assigned from the controller's logical clock.
	Seq    int64
	OpID   string
	Action cart.Action
	State  cart.State
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNotifier sets where operation outcomes are reported. Default: the
// controller logger.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithIdentity sets the identity present at start. An authenticated initial
// identity hydrates from the remote service instead of reading the snapshot.
func WithIdentity(id identity.Identity) Option {
	return func(c *Controller) {
		c.identity = id
	}
}

// WithNow sets the wall clock used for lastSyncTime.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithOpIDs sets the op id generator. Default: UUIDv7Generator.
func WithOpIDs(g OpIDGenerator) Option {
	return func(c *Controller) {
		if g != nil {
			c.opIDs = g
		}
	}
}

// WithClock sets the logical clock used to stamp dispatches.
func WithClock(clock *Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithObserver registers a function called on the loop after every reducer
// dispatch. It must not call back into the controller.
func WithObserver(fn func(Dispatch)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithItemSerialization makes remote calls for the same item run one at a
// time in issue order, so the last-issued mutation is the last one applied
// remotely. Off by default: same-item calls run concurrently and whichever
// completes last wins.
func WithItemSerialization(on bool) Option {
	return func(c *Controller) {
		c.serialize = on
	}
}
