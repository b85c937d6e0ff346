package cartapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/cart"
)

var (
	// ErrNotFound is returned for unknown line ids.
	ErrNotFound = errors.New("cart line not found")

	// ErrInvalid is wrapped by validation failures.
	ErrInvalid = errors.New("invalid request")
)

// Line is one product entry of a user's server-side cart.
type Line struct {
	ID        string          `json:"cartItemId"`
	UserID    string          `json:"userId"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"displayQuantity"`
	Image     string          `json:"image,omitempty"`
}

// Record renders the line the way it appears on the wire.
func (l Line) Record() cart.Record {
	rec := cart.Record{
		"cartItemId":      l.ID,
		"userId":          l.UserID,
		"productId":       l.ProductID,
		"price":           l.Price.String(),
		"displayQuantity": l.Quantity,
	}
	if l.Name != "" {
		rec["name"] = l.Name
	}
	if l.Image != "" {
		rec["image"] = l.Image
	}
	return rec
}

// AddRequest is the body of an add-to-cart call.
type AddRequest struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// Validate checks the request and trims the product id.
func (r *AddRequest) Validate() error {
	r.ProductID = strings.TrimSpace(r.ProductID)
	switch {
	case r.ProductID == "":
		return fmt.Errorf("%w: productId is required", ErrInvalid)
	case r.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalid)
	case r.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	return nil
}

// Lines stores server-side cart lines.
type Lines interface {
	List(ctx context.Context, userID string) ([]Line, error)
	Add(ctx context.Context, userID string, req AddRequest) (Line, error)
	Update(ctx context.Context, lineID string, qty int) (Line, error)
	Remove(ctx context.Context, lineID string) error
	Clear(ctx context.Context, userID string) error
}

func validateQuantity(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalid)
	}
	return nil
}
