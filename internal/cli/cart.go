package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/engine"
)

// CartOptions holds flags shared by the cart subcommands.
type CartOptions struct {
	StoreOptions
	User string
}

// NewCartCommand creates the cart command and its subcommands.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CartOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or change the cart",
		Long: `Drive the cart as a storefront client would.

Without --user the cart is anonymous and lives only in the snapshot store.
With --user the remote cart is loaded first, and each change is confirmed
by the remote service before the command exits. A rejected change is
rolled back and the command exits with status 1.

Examples:
  cartsync cart show
  cartsync cart add p1 --name Widget --price 9.99 --quantity 2
  cartsync cart update p1 5 --user u1
  cartsync cart remove p1 --user u1
  cartsync cart sync --user u1 --format json`,
	}

	opts.bindFlags(cmd)
	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "signed-in user id (overrides config)")

	cmd.AddCommand(newCartShowCommand(opts))
	cmd.AddCommand(newCartAddCommand(opts))
	cmd.AddCommand(newCartUpdateCommand(opts))
	cmd.AddCommand(newCartRemoveCommand(opts))
	cmd.AddCommand(newCartClearCommand(opts))
	cmd.AddCommand(newCartSyncCommand(opts))

	return cmd
}

func newCartShowCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, opts, nil)
		},
	}
}

func newCartAddCommand(opts *CartOptions) *cobra.Command {
	var (
		name      string
		price     string
		productID string
		quantity  int
	)
	cmd := &cobra.Command{
		Use:           "add <item-id>",
		Short:         "Add an item",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := decimal.NewFromString(price); err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid price %q", price), err)
			}
			rec := cart.Record{"id": args[0], "unitPrice": price}
			if name != "" {
				rec["name"] = name
			}
			if productID != "" {
				rec["productId"] = productID
			}
			return runCart(cmd, opts, func(ctx context.Context, s *session) error {
				return s.ctrl.AddToCart(ctx, rec, quantity)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&price, "price", "0", "unit price")
	cmd.Flags().StringVar(&productID, "product-id", "", "remote product reference (defaults to the item id)")
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "quantity to add")
	return cmd
}

func newCartUpdateCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "update <item-id> <quantity>",
		Short:         "Set an item's quantity",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid quantity %q", args[1]), err)
			}
			return runCart(cmd, opts, func(ctx context.Context, s *session) error {
				return s.ctrl.UpdateQuantity(ctx, args[0], qty)
			})
		},
	}
}

func newCartRemoveCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <item-id>",
		Short:         "Remove an item",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, opts, func(ctx context.Context, s *session) error {
				return s.ctrl.RemoveFromCart(ctx, args[0])
			})
		},
	}
}

func newCartClearCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Remove every item",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, opts, func(ctx context.Context, s *session) error {
				return s.ctrl.ClearCart(ctx)
			})
		},
	}
}

func newCartSyncCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync",
		Short:         "Reload the cart from the remote service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, opts, func(ctx context.Context, s *session) error {
				return s.ctrl.SyncCartWithServer(ctx)
			})
		},
	}
}

// runCart opens a session, applies op (if any), waits for the remote
// outcome and prints the resulting cart.
func runCart(cmd *cobra.Command, opts *CartOptions, op func(context.Context, *session) error) error {
	ctx := commandContext(cmd)
	out := opts.formatter(cmd)

	s, err := openSession(ctx, &opts.StoreOptions, opts.User, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	notices := s.drain()
	if op != nil {
		if err := op(ctx, s); err != nil {
			return WrapExitError(ExitCommandError, "cart operation failed", err)
		}
		if err := s.settle(ctx); err != nil {
			return err
		}
		notices = append(notices, s.drain()...)
	}

	view := newCartView(s, notices)
	if failed := view.failures(); len(failed) > 0 {
		if err := out.Error(CodeSync, strings.Join(failed, "; "), view); err != nil {
			return err
		}
		return failureExit(notices)
	}
	return out.Success(view)
}

// failureExit picks the exit error for a command whose notices include
// failures. A failure without a remote cause was rejected locally.
func failureExit(notices []engine.Notice) *ExitError {
	has := func(match func(error) bool) bool {
		return slices.ContainsFunc(notices, func(n engine.Notice) bool {
			return n.Kind == engine.NoticeFailure && match(n.Err)
		})
	}
	switch {
	case has(engine.IsHydrateFailure):
		return NewExitError(ExitFailure, "remote cart could not be loaded")
	case has(engine.IsRemoteFailure):
		return NewExitError(ExitFailure, "remote sync failed")
	}
	return NewExitError(ExitCommandError, "cart operation rejected")
}

// CartView is the printed form of a cart.
type CartView struct {
	User         string       `json:"user,omitempty"`
	Phase        engine.Phase `json:"phase"`
	Items        []ItemView   `json:"items"`
	TotalItems   int          `json:"total_items"`
	Subtotal     string       `json:"subtotal"`
	SyncStatus   string       `json:"sync_status"`
	Error        string       `json:"error,omitempty"`
	LastSyncTime *time.Time   `json:"last_sync_time,omitempty"`
	Notices      []NoticeView `json:"notices,omitempty"`
}

// ItemView is one printed cart line.
type ItemView struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// NoticeView is one printed operation outcome.
type NoticeView struct {
	Kind    engine.NoticeKind `json:"kind"`
	Op      engine.Operation  `json:"op"`
	Message string            `json:"message"`
}

func newCartView(s *session, notices []engine.Notice) CartView {
	st := s.ctrl.State()
	v := CartView{
		User:       s.ctrl.Identity().UserID,
		Phase:      s.ctrl.Phase(),
		Items:      make([]ItemView, len(st.Items)),
		TotalItems: st.TotalItems,
		Subtotal:   st.Subtotal.StringFixed(2),
		SyncStatus: string(st.SyncStatus),
		Error:      st.Error,
	}
	if !st.LastSyncTime.IsZero() {
		t := st.LastSyncTime
		v.LastSyncTime = &t
	}
	for i, it := range st.Items {
		v.Items[i] = ItemView{
			ID:        it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		}
	}
	for _, n := range notices {
		v.Notices = append(v.Notices, NoticeView{Kind: n.Kind, Op: n.Op, Message: n.Message})
	}
	return v
}

func (v CartView) failures() []string {
	var out []string
	for _, n := range v.Notices {
		if n.Kind == engine.NoticeFailure {
			out = append(out, n.Message)
		}
	}
	return out
}

// RenderText prints the cart as a table followed by the notices.
func (v CartView) RenderText(w io.Writer) {
	for _, n := range v.Notices {
		mark := "✓"
		if n.Kind == engine.NoticeFailure {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, n.Message)
	}

	who := "anonymous"
	if v.User != "" {
		who = v.User
	}
	fmt.Fprintf(w, "Cart (%s, %s)\n", who, v.Phase)
	if len(v.Items) == 0 {
		fmt.Fprintln(w, "  (empty)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  ID\tNAME\tQTY\tPRICE\tTOTAL")
		for _, it := range v.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Quantity, it.UnitPrice, it.LineTotal)
		}
		tw.Flush()
	}
	fmt.Fprintf(w, "Items: %d  Subtotal: %s  Sync: %s\n", v.TotalItems, v.Subtotal, v.SyncStatus)
	if v.Error != "" {
		fmt.Fprintf(w, "Last error: %s\n", v.Error)
	}
}
