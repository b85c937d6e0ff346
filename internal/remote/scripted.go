package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/cartapi"
)

// Call records one request made to a Scripted service.
type Call struct {
	Op       Op              `json:"op" yaml:"op"`
	UserID   string          `json:"userId,omitempty" yaml:"user,omitempty"`
	LineID   string          `json:"lineId,omitempty" yaml:"line,omitempty"`
	ItemRef  string          `json:"itemRef,omitempty" yaml:"item,omitempty"`
	Quantity int             `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Price    decimal.Decimal `json:"price" yaml:"-"`
}

// Scripted is an in-process Service over a cartapi.Lines store with
// per-operation failure injection, pausing and call recording.
type Scripted struct {
	lines cartapi.Lines

	mu       sync.Mutex
	calls    []Call
	failNext map[Op][]error
	failAll  map[Op]error
	gates    map[Op]chan struct{}
}

var _ Service = (*Scripted)(nil)

// NewScripted returns a Scripted service. A nil lines store uses an empty
// cartapi.MemoryLines with line ids line-1, line-2, ...
func NewScripted(lines cartapi.Lines) *Scripted {
	if lines == nil {
		n := 0
		var mu sync.Mutex
		lines = cartapi.NewMemoryLines(cartapi.WithLineIDs(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("line-%d", n)
		}))
	}
	return &Scripted{
		lines:    lines,
		failNext: make(map[Op][]error),
		failAll:  make(map[Op]error),
		gates:    make(map[Op]chan struct{}),
	}
}

// Seed adds records to a user's remote cart without recording calls.
func (s *Scripted) Seed(ctx context.Context, userID string, recs ...cart.Record) error {
	for _, rec := range recs {
		it := cart.Normalize(rec)
		_, err := s.lines.Add(ctx, userID, cartapi.AddRequest{
			ProductID: it.ID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
			Name:      it.Name,
			Image:     it.ImageRef,
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", it.ID, err)
		}
	}
	return nil
}

// FailNext makes the next call of op fail with err. Calls queue up: each
// FailNext covers exactly one call. A nil err fails with a 503.
func (s *Scripted) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] = append(s.failNext[op], s.injected(op, err))
}

// FailAlways makes every call of op fail until Recover.
func (s *Scripted) FailAlways(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll[op] = s.injected(op, err)
}

// Recover removes all failures scripted for op.
func (s *Scripted) Recover(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failNext, op)
	delete(s.failAll, op)
}

// Pause holds calls of op after they are recorded until Resume.
func (s *Scripted) Pause(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gates[op]; !ok {
		s.gates[op] = make(chan struct{})
	}
}

// Resume releases every held call of op.
func (s *Scripted) Resume(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gate, ok := s.gates[op]; ok {
		close(gate)
		delete(s.gates, op)
	}
}

// Calls returns the calls made so far, in arrival order.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls of op were made.
func (s *Scripted) CallCount(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Lines returns the user's remote cart lines.
func (s *Scripted) Lines(ctx context.Context, userID string) ([]cartapi.Line, error) {
	return s.lines.List(ctx, userID)
}

func (s *Scripted) FetchCart(ctx context.Context, userID string) ([]cart.Record, error) {
	if err := s.enter(ctx, Call{Op: OpFetchCart, UserID: userID}); err != nil {
		return nil, err
	}
	lines, err := s.lines.List(ctx, userID)
	if err != nil {
		return nil, s.mapErr(OpFetchCart, err)
	}
	recs := make([]cart.Record, len(lines))
	for i, l := range lines {
		recs[i] = l.Record()
	}
	return recs, nil
}

func (s *Scripted) AddItem(ctx context.Context, userID, itemRef string, qty int, price decimal.Decimal) (Ack, error) {
	c := Call{Op: OpAddItem, UserID: userID, ItemRef: itemRef, Quantity: qty, Price: price}
	if err := s.enter(ctx, c); err != nil {
		return Ack{}, err
	}
	line, err := s.lines.Add(ctx, userID, cartapi.AddRequest{ProductID: itemRef, Quantity: qty, Price: price})
	if err != nil {
		return Ack{}, s.mapErr(OpAddItem, err)
	}
	return Ack{LineID: line.ID, Line: line.Record()}, nil
}

func (s *Scripted) UpdateItem(ctx context.Context, lineID string, qty int) (Ack, error) {
	if err := s.enter(ctx, Call{Op: OpUpdateItem, LineID: lineID, Quantity: qty}); err != nil {
		return Ack{}, err
	}
	line, err := s.lines.Update(ctx, lineID, qty)
	if err != nil {
		return Ack{}, s.mapErr(OpUpdateItem, err)
	}
	return Ack{LineID: line.ID, Line: line.Record()}, nil
}

func (s *Scripted) RemoveItem(ctx context.Context, lineID string) (Ack, error) {
	if err := s.enter(ctx, Call{Op: OpRemoveItem, LineID: lineID}); err != nil {
		return Ack{}, err
	}
	if err := s.lines.Remove(ctx, lineID); err != nil {
		return Ack{}, s.mapErr(OpRemoveItem, err)
	}
	return Ack{LineID: lineID}, nil
}

func (s *Scripted) ClearCart(ctx context.Context, userID string) (Ack, error) {
	if err := s.enter(ctx, Call{Op: OpClearCart, UserID: userID}); err != nil {
		return Ack{}, err
	}
	if err := s.lines.Clear(ctx, userID); err != nil {
		return Ack{}, s.mapErr(OpClearCart, err)
	}
	return Ack{}, nil
}

// enter records c, waits while its op is paused and returns any scripted
// failure. The failure is chosen at arrival, before waiting.
func (s *Scripted) enter(ctx context.Context, c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	gate := s.gates[c.Op]
	var err error
	if q := s.failNext[c.Op]; len(q) > 0 {
		err, s.failNext[c.Op] = q[0], q[1:]
	} else if e, ok := s.failAll[c.Op]; ok {
		err = e
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &Error{Op: c.Op, Message: ctx.Err().Error(), Err: ctx.Err()}
		}
	}
	return err
}

func (s *Scripted) injected(op Op, err error) error {
	if err == nil {
		return &Error{Op: op, Status: http.StatusServiceUnavailable, Message: "service unavailable"}
	}
	return err
}

func (s *Scripted) mapErr(op Op, err error) error {
	switch {
	case errors.Is(err, cartapi.ErrNotFound):
		return &Error{Op: op, Status: http.StatusNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, cartapi.ErrInvalid):
		return &Error{Op: op, Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return &Error{Op: op, Message: err.Error(), Err: err}
}
