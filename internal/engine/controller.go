package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/remote"
)

// Persister mirrors cart state to durable storage. Implemented by
// snapshot.Adapter. Write and Clear report their own failures.
type Persister interface {
	Read(ctx context.Context) cart.State
	Write(ctx context.Context, state cart.State)
	Clear(ctx context.Context)
}

// Controller is the single owner of one logical cart.
//
// All state transitions happen on the Run loop goroutine. Public operations
// enqueue a command and return once its optimistic reducer dispatch has been
// applied; remote confirmations arrive later as completion events and are
// applied on the same loop.
//
// Thread-safety model:
//   - operations and read-side methods: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Controller struct {
	remote   remote.Service
	persist  Persister
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	opIDs    OpIDGenerator
	clock    *Clock
	observer func(Dispatch)

	serialize bool

	queue   *eventQueue
	running atomic.Bool
	stopped chan struct{}
	stop    sync.Once

	// Loop-owned. Never touched outside Run.
	runCtx     context.Context
	state      cart.State
	identity   identity.Identity
	epoch      uint64
	lines      lineIndex
	inflight   int
	hydrating  int
	mutating   int
	itemQueues map[string][]*request
	queued     int
	flushers   []chan error

	// Read side, published by the loop after every event.
	mu        sync.RWMutex
	view      cart.State
	viewPhase Phase
	viewIdent identity.Identity
}

// New creates a Controller. svc is only called while a user is signed in.
//
// The initial cart is loaded when Run starts: from persist if the initial
// identity (WithIdentity) is anonymous, from svc otherwise.
func New(svc remote.Service, persist Persister, opts ...Option) *Controller {
	c := &Controller{
		remote:     svc,
		persist:    persist,
		logger:     slog.Default(),
		now:        time.Now,
		opIDs:      UUIDv7Generator{},
		clock:      NewClock(),
		queue:      newEventQueue(),
		stopped:    make(chan struct{}),
		state:      cart.Empty(),
		lines:      make(lineIndex),
		itemQueues: make(map[string][]*request),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = logNotifier{logger: c.logger}
	}
	c.view = c.state.Clone()
	c.viewIdent = c.identity
	c.viewPhase = c.phase()

	c.queue.Enqueue(event{kind: evStart})
	return c
}

// AddToCart adds qty of the item described by rec. Quantities below 1 add 1.
//
// Signed in, the add is confirmed remotely; a rejected add is reported
// through the error state but the item stays in the cart.
func (c *Controller) AddToCart(ctx context.Context, rec cart.Record, qty int) error {
	return c.submit(ctx, event{kind: evAdd, record: rec, quantity: qty})
}

// UpdateQuantity sets the quantity of id, clamped to at least 1. Unknown ids
// are ignored. A rejected update restores the previous quantity.
func (c *Controller) UpdateQuantity(ctx context.Context, id string, qty int) error {
	return c.submit(ctx, event{kind: evUpdate, itemID: id, quantity: qty})
}

// RemoveFromCart removes id. Unknown ids are ignored. A rejected remove
// puts the item back.
func (c *Controller) RemoveFromCart(ctx context.Context, id string) error {
	return c.submit(ctx, event{kind: evRemove, itemID: id})
}

// ClearCart empties the cart and its snapshot. A rejected clear puts every
// item back.
func (c *Controller) ClearCart(ctx context.Context) error {
	return c.submit(ctx, event{kind: evClear})
}

// SyncCartWithServer replaces the cart with the remote cart. No-op while
// anonymous.
func (c *Controller) SyncCartWithServer(ctx context.Context) error {
	return c.submit(ctx, event{kind: evSync})
}

// SetIdentity drives an identity transition. Signing in replaces the cart
// with the remote cart; signing out empties the cart and the snapshot.
// Switching users is a sign-out followed by a sign-in.
func (c *Controller) SetIdentity(ctx context.Context, id identity.Identity) error {
	return c.submit(ctx, event{kind: evIdentity, identity: id})
}

// Watch applies src's current identity and then every change it reports,
// until ctx is done or the controller stops.
func (c *Controller) Watch(ctx context.Context, src identity.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := src.Subscribe(ctx)
	if err := c.SetIdentity(ctx, src.Current()); err != nil {
		return err
	}
	for {
		select {
		case id, ok := <-changes:
			if !ok {
				return ctx.Err()
			}
			if err := c.SetIdentity(ctx, id); err != nil {
				return err
			}
		case <-c.stopped:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Flush blocks until no remote call is in flight or queued.
func (c *Controller) Flush(ctx context.Context) error {
	return c.submit(ctx, event{kind: evFlush})
}

// submit enqueues a command and waits for the loop to acknowledge it.
func (c *Controller) submit(ctx context.Context, ev event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.done = make(chan error, 1)
	if !c.queue.Enqueue(ev) {
		return ErrStopped
	}
	select {
	case err := <-ev.done:
		return err
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a copy of the current cart state.
func (c *Controller) State() cart.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Clone()
}

// Items returns a copy of the cart lines in insertion order.
func (c *Controller) Items() []cart.Item {
	return c.State().Items
}

// TotalItems returns the sum of all quantities.
func (c *Controller) TotalItems() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.TotalItems
}

// Subtotal returns the sum of unit price times quantity over all lines.
func (c *Controller) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Subtotal
}

// Loading reports whether a remote cart fetch is in progress.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Loading
}

// Error returns the message of the last failed remote call, cleared by the
// next success.
func (c *Controller) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Error
}

// SyncStatus returns the outcome of the most recent remote confirmation.
func (c *Controller) SyncStatus() cart.SyncStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.SyncStatus
}

// LastSyncTime returns when the last remote confirmation or failure was
// recorded, or the zero time if none was.
func (c *Controller) LastSyncTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.LastSyncTime
}

// ItemQuantity returns the quantity of id, or 0 when it is not in the cart.
func (c *Controller) ItemQuantity(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.QuantityOf(id)
}

// IsInCart reports whether id is in the cart.
func (c *Controller) IsInCart(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Contains(id)
}

// Phase returns the controller lifecycle phase as of the last processed
// event.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewPhase
}

// Identity returns the identity the cart currently belongs to.
func (c *Controller) Identity() identity.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewIdent
}

// Stop closes the event queue, which causes Run to return.
func (c *Controller) Stop() {
	c.queue.Close()
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}
