// Package identity models the signed-in user as seen by the cart.
package identity

import (
	"context"
	"sync"
)

// Identity is the current user. An empty UserID means anonymous.
type Identity struct {
	UserID string `json:"userId,omitempty"`
}

// Anonymous is the identity with no user.
var Anonymous = Identity{}

// User returns the identity of userID.
func User(userID string) Identity {
	return Identity{UserID: userID}
}

// IsAuthenticated reports whether a user is signed in.
func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

func (i Identity) String() string {
	if i.UserID == "" {
		return "anonymous"
	}
	return "user:" + i.UserID
}

// Source exposes the current identity and its changes.
//
// Subscribe returns a channel that receives every identity set after the
// call, in order, and is closed when ctx is done.
type Source interface {
	Current() Identity
	Subscribe(ctx context.Context) <-chan Identity
}

// Holder is an in-process Source. The zero value is anonymous and ready to use.
type Holder struct {
	mu      sync.Mutex
	current Identity
	subs    map[*subscriber]struct{}
}

var _ Source = (*Holder)(nil)

type subscriber struct {
	mu      sync.Mutex
	pending []Identity
	signal  chan struct{}
}

// NewHolder returns a Holder starting at initial.
func NewHolder(initial Identity) *Holder {
	return &Holder{current: initial}
}

// Current implements Source.
func (h *Holder) Current() Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Set changes the identity and notifies subscribers. Setting the identity
// already held is a no-op.
func (h *Holder) Set(id Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == h.current {
		return
	}
	h.current = id
	for s := range h.subs {
		s.push(id)
	}
}

// SignIn is Set(User(userID)).
func (h *Holder) SignIn(userID string) {
	h.Set(User(userID))
}

// SignOut is Set(Anonymous).
func (h *Holder) SignOut() {
	h.Set(Anonymous)
}

// Subscribe implements Source. Delivery never blocks Set: changes are
// buffered per subscriber until read.
func (h *Holder) Subscribe(ctx context.Context) <-chan Identity {
	s := &subscriber{signal: make(chan struct{}, 1)}

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	out := make(chan Identity)
	go func() {
		defer close(out)
		defer func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
		}()
		for {
			for {
				id, ok := s.pop()
				if !ok {
					break
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-s.signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *subscriber) push(id Identity) {
	s.mu.Lock()
	s.pending = append(s.pending, id)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Identity{}, false
	}
	id := s.pending[0]
	s.pending = s.pending[1:]
	return id, true
}
