package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/canonical"
	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/store"
)

// DefaultKey is the storage key of the cart snapshot.
const DefaultKey = "cart_state"

// Version is the snapshot format written by this package.
// Version 0 snapshots (no checksum) are still accepted on read.
const Version = 1

// checksumDomain separates snapshot checksums from other canonical hashes.
const checksumDomain = "cartsync/snapshot/items"

// ErrCorrupt is wrapped by Load when a stored snapshot cannot be used.
var ErrCorrupt = errors.New("corrupt snapshot")

// Snapshot is the persisted form of a cart.
type Snapshot struct {
	Version     int             `json:"version"`
	Items       json.RawMessage `json:"items"`
	TotalItems  int             `json:"totalItems"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Checksum    string          `json:"checksum,omitempty"`
}

// Adapter mirrors cart state into a KV.
type Adapter struct {
	kv     store.KV
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(a *Adapter) {
		if key != "" {
			a.key = key
		}
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithNow sets the wall clock used for lastUpdated.
func WithNow(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Adapter over kv.
func New(kv store.KV, opts ...Option) *Adapter {
	a := &Adapter{
		kv:     kv,
		key:    DefaultKey,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the storage key in use.
func (a *Adapter) Key() string {
	return a.key
}

// Read returns the persisted cart, or cart.Empty() when there is none or it
// cannot be used. Totals are recomputed from the stored items.
func (a *Adapter) Read(ctx context.Context) cart.State {
	snap, ok, err := a.Load(ctx)
	if err != nil {
		a.logger.Warn("snapshot unreadable, starting empty", "key", a.key, "error", err)
		return cart.Empty()
	}
	if !ok {
		return cart.Empty()
	}

	state, err := snap.State()
	if err != nil {
		a.logger.Warn("snapshot items unreadable, starting empty", "key", a.key, "error", err)
		return cart.Empty()
	}
	if state.TotalItems != snap.TotalItems || !state.Subtotal.Equal(snap.Subtotal) {
		a.logger.Debug("snapshot totals recomputed",
			"key", a.key,
			"stored_items", snap.TotalItems,
			"stored_subtotal", snap.Subtotal.String(),
			"items", state.TotalItems,
			"subtotal", state.Subtotal.String())
	}
	return state
}

// Load returns the stored snapshot without converting it to a cart state.
// ok is false when no snapshot is stored. Errors wrap ErrCorrupt when the
// stored value is present but unusable.
func (a *Adapter) Load(ctx context.Context) (Snapshot, bool, error) {
	raw, ok, err := a.kv.Get(ctx, a.key)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read %q: %w", a.key, err)
	}
	if !ok || raw == "" {
		return Snapshot{}, false, nil
	}
	snap, err := Decode([]byte(raw))
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Write persists the item portion of state. Failures are logged.
func (a *Adapter) Write(ctx context.Context, state cart.State) {
	snap, err := Encode(state, a.now())
	if err != nil {
		a.logger.Error("snapshot encode failed", "key", a.key, "error", err)
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		a.logger.Error("snapshot marshal failed", "key", a.key, "error", err)
		return
	}
	if err := a.kv.Set(ctx, a.key, string(data)); err != nil {
		a.logger.Error("snapshot write failed", "key", a.key, "error", err)
		return
	}
	a.logger.Debug("snapshot written", "key", a.key, "items", len(state.Items), "total_items", snap.TotalItems)
}

// Clear removes the persisted snapshot. Failures are logged.
func (a *Adapter) Clear(ctx context.Context) {
	if err := a.kv.Remove(ctx, a.key); err != nil {
		a.logger.Error("snapshot clear failed", "key", a.key, "error", err)
		return
	}
	a.logger.Debug("snapshot cleared", "key", a.key)
}

// Encode builds the snapshot of state's items.
func Encode(state cart.State, at time.Time) (Snapshot, error) {
	records := make([]cart.Record, len(state.Items))
	for i, it := range state.Items {
		records[i] = it.Record()
	}
	items, err := json.Marshal(records)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal items: %w", err)
	}
	sum, err := checksum(items)
	if err != nil {
		return Snapshot{}, err
	}
	total, subtotal := cart.Totals(state.Items)
	return Snapshot{
		Version:     Version,
		Items:       items,
		TotalItems:  total,
		Subtotal:    subtotal,
		LastUpdated: at.UTC(),
		Checksum:    sum,
	}, nil
}

// Decode parses and verifies a stored snapshot.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.Version > Version {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, snap.Version)
	}
	if len(snap.Items) == 0 || bytes.Equal(snap.Items, []byte("null")) {
		snap.Items = json.RawMessage("[]")
	}
	if snap.Version >= 1 {
		sum, err := checksum(snap.Items)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if sum != snap.Checksum {
			return Snapshot{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
	}
	return snap, nil
}

// Records decodes the stored item records.
func (s Snapshot) Records() ([]cart.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(s.Items))
	dec.UseNumber()
	var records []cart.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: items: %v", ErrCorrupt, err)
	}
	return records, nil
}

// State rebuilds a cart state from the stored items.
func (s Snapshot) State() (cart.State, error) {
	records, err := s.Records()
	if err != nil {
		return cart.Empty(), err
	}
	return cart.Reduce(cart.Empty(), cart.LoadRecords(records...)), nil
}

// checksum hashes the canonical form of an items array as it decodes from
// JSON, so that the value is stable across encoders.
func checksum(items []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(items))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode items: %w", err)
	}
	return canonical.Hash(checksumDomain, v)
}
