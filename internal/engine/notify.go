package engine

import (
	"context"
	"log/slog"
)

// Operation names a public controller operation.
type Operation string

const (
	OpAddToCart      Operation = "addToCart"
	OpUpdateQuantity Operation = "updateQuantity"
	OpRemoveFromCart Operation = "removeFromCart"
	OpClearCart      Operation = "clearCart"
	OpSyncCart       Operation = "syncCart"
)

// NoticeKind is the outcome a Notice reports.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is a human-readable outcome of an operation, for display by a
// toast or banner.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Op      Operation  `json:"op"`
	OpID    string     `json:"opId,omitempty"`
	ItemID  string     `json:"itemId,omitempty"`
	Message string     `json:"message"`

	// Err is the *SyncError behind a failed remote call, nil otherwise.
	Err error `json:"-"`
}

// Notifier receives notices. Notify is called from the controller loop and
// must not block.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// logNotifier writes notices to a logger. Used when no notifier is given.
type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) Notify(n Notice) {
	level := slog.LevelInfo
	if n.Kind == NoticeFailure {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, n.Message, "op", n.Op, "op_id", n.OpID, "item_id", n.ItemID)
}
