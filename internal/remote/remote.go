// Package remote is the client side of the remote cart service.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/cart"
)

// Op names a remote operation.
type Op string

const (
	OpFetchCart  Op = "fetchCart"
	OpAddItem    Op = "addItem"
	OpUpdateItem Op = "updateItem"
	OpRemoveItem Op = "removeItem"
	OpClearCart  Op = "clearCart"
)

// Service is the authoritative cart service of signed-in users.
//
// FetchCart returns the user's lines as raw records; callers normalize them.
// Line-addressed calls take the service's own line id, which need not equal
// the product id.
type Service interface {
	FetchCart(ctx context.Context, userID string) ([]cart.Record, error)
	AddItem(ctx context.Context, userID, itemRef string, qty int, price decimal.Decimal) (Ack, error)
	UpdateItem(ctx context.Context, lineID string, qty int) (Ack, error)
	RemoveItem(ctx context.Context, lineID string) (Ack, error)
	ClearCart(ctx context.Context, userID string) (Ack, error)
}

// Ack acknowledges a mutation. LineID and Line are set when the service
// returned the affected line.
type Ack struct {
	LineID string
	Line   cart.Record
}

// Error is a failed remote call. Status is the HTTP status, or 0 when the
// request never produced a response.
type Error struct {
	Op      Op
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Status == http.StatusNotFound
	}
	return false
}

// IsValidation reports whether the service rejected the request as invalid.
func IsValidation(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Status == http.StatusBadRequest || re.Status == http.StatusUnprocessableEntity
	}
	return false
}
