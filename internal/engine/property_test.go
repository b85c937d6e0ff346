package engine

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/snapshot"
	"github.com/roach88/cartsync/internal/store"
)

type cartOp struct {
	Kind int
	ID   string
	Qty  int
}

func genCartOp() gopter.Gen {
	return gen.Struct(reflect.TypeOf(cartOp{}), map[string]gopter.Gen{
		"Kind": gen.IntRange(0, 3),
		"ID":   gen.OneConstOf("a", "b", "c"),
		"Qty":  gen.IntRange(-2, 6),
	})
}

// TestController_SnapshotMirrorsState verifies that after any sequence of
// anonymous operations the snapshot holds exactly the published cart and
// the totals match the items.
func TestController_SnapshotMirrorsState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot mirrors anonymous cart", prop.ForAll(
		func(ops []cartOp) bool {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			snap := snapshot.New(store.NewMemory())
			c := New(nil, snap, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			go c.Run(ctx)
			defer func() {
				c.Stop()
				<-c.Done()
			}()

			for _, op := range ops {
				var err error
				switch op.Kind {
				case 0:
					err = c.AddToCart(ctx, cart.Record{"id": op.ID, "unitPrice": "1.25"}, op.Qty)
				case 1:
					err = c.UpdateQuantity(ctx, op.ID, op.Qty)
				case 2:
					err = c.RemoveFromCart(ctx, op.ID)
				case 3:
					err = c.ClearCart(ctx)
				}
				if err != nil {
					return false
				}

				view := c.State()
				total, subtotal := cart.Totals(view.Items)
				if total != view.TotalItems || !subtotal.Equal(view.Subtotal) {
					return false
				}
				for _, it := range view.Items {
					if it.Quantity < 1 {
						return false
					}
				}

				persisted := snap.Read(ctx)
				if len(persisted.Items) != len(view.Items) {
					return false
				}
				for i := range view.Items {
					if persisted.Items[i].ID != view.Items[i].ID || persisted.Items[i].Quantity != view.Items[i].Quantity {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(genCartOp()),
	))

	properties.TestingRun(t)
}
