package cartapi

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLines keeps carts in process memory.
type MemoryLines struct {
	mu     sync.RWMutex
	carts  map[string][]Line // userID -> lines, in insertion order
	owners map[string]string // lineID -> userID
	newID  func() string
}

var _ Lines = (*MemoryLines)(nil)

// MemoryOption configures MemoryLines.
type MemoryOption func(*MemoryLines)

// WithLineIDs sets the line id generator. Defaults to random UUIDs.
func WithLineIDs(gen func() string) MemoryOption {
	return func(m *MemoryLines) {
		if gen != nil {
			m.newID = gen
		}
	}
}

func NewMemoryLines(opts ...MemoryOption) *MemoryLines {
	m := &MemoryLines{
		carts:  make(map[string][]Line),
		owners: make(map[string]string),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryLines) List(_ context.Context, userID string) ([]Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Line, len(m.carts[userID]))
	copy(out, m.carts[userID])
	return out, nil
}

func (m *MemoryLines) Add(_ context.Context, userID string, req AddRequest) (Line, error) {
	if err := req.Validate(); err != nil {
		return Line{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.carts[userID]
	for i := range lines {
		if lines[i].ProductID == req.ProductID {
			lines[i].Quantity += req.Quantity
			return lines[i], nil
		}
	}

	l := Line{
		ID:        m.newID(),
		UserID:    userID,
		ProductID: req.ProductID,
		Name:      req.Name,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Image:     req.Image,
	}
	m.carts[userID] = append(lines, l)
	m.owners[l.ID] = userID
	return l, nil
}

func (m *MemoryLines) Update(_ context.Context, lineID string, qty int) (Line, error) {
	if err := validateQuantity(qty); err != nil {
		return Line{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.carts[m.owners[lineID]]
	for i := range lines {
		if lines[i].ID == lineID {
			lines[i].Quantity = qty
			return lines[i], nil
		}
	}
	return Line{}, ErrNotFound
}

func (m *MemoryLines) Remove(_ context.Context, lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.owners[lineID]
	if !ok {
		return ErrNotFound
	}
	lines := m.carts[userID]
	for i := range lines {
		if lines[i].ID == lineID {
			m.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			break
		}
	}
	delete(m.owners, lineID)
	return nil
}

func (m *MemoryLines) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.carts[userID] {
		delete(m.owners, l.ID)
	}
	delete(m.carts, userID)
	return nil
}
