package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/snapshot"
)

// NewSnapshotCommand creates the snapshot command and its subcommands.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or delete the persisted cart snapshot",
		Long: `Inspect or delete the cart snapshot kept on the device.

Examples:
  cartsync snapshot show
  cartsync snapshot show --db ./cart.db --format json
  cartsync snapshot clear`,
	}
	opts.bindFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the stored snapshot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotShow(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Delete the stored snapshot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotClear(cmd, opts)
		},
	})

	return cmd
}

// openAdapter opens the configured store and wraps it in a snapshot
// adapter. The returned func closes the store.
func openAdapter(ctx context.Context, cmd *cobra.Command, opts *StoreOptions) (*snapshot.Adapter, func(), error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	kv, closeKV, err := opts.openKV(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	adapter := snapshot.New(kv,
		snapshot.WithKey(cfg.StorageKey),
		snapshot.WithLogger(opts.logger(cmd.ErrOrStderr())),
	)
	return adapter, closeKV, nil
}

// SnapshotView is the printed form of a stored snapshot.
type SnapshotView struct {
	Key         string     `json:"key"`
	Present     bool       `json:"present"`
	Version     int        `json:"version,omitempty"`
	Checksum    string     `json:"checksum,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Items       []ItemView `json:"items"`
	TotalItems  int        `json:"total_items"`
	Subtotal    string     `json:"subtotal"`
}

// RenderText prints the snapshot header and its items.
func (v SnapshotView) RenderText(w io.Writer) {
	if !v.Present {
		fmt.Fprintf(w, "No snapshot stored under %q\n", v.Key)
		return
	}
	fmt.Fprintf(w, "Snapshot %q (version %d)\n", v.Key, v.Version)
	if v.LastUpdated != nil {
		fmt.Fprintf(w, "  updated:  %s\n", v.LastUpdated.Format(time.RFC3339))
	}
	if v.Checksum != "" {
		fmt.Fprintf(w, "  checksum: %s\n", v.Checksum)
	}
	for _, it := range v.Items {
		fmt.Fprintf(w, "  %s x%d @ %s\n", it.ID, it.Quantity, it.UnitPrice)
	}
	fmt.Fprintf(w, "Items: %d  Subtotal: %s\n", v.TotalItems, v.Subtotal)
}

func runSnapshotShow(cmd *cobra.Command, opts *StoreOptions) error {
	ctx := commandContext(cmd)
	out := opts.formatter(cmd)

	adapter, closeKV, err := openAdapter(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer closeKV()

	view := SnapshotView{Key: adapter.Key(), Items: []ItemView{}, Subtotal: "0.00"}
	snap, present, err := adapter.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrCorrupt):
		if ferr := out.Error(CodeStorage, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "snapshot is unusable", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	case !present:
		return out.Success(view)
	}

	state, err := snap.State()
	if err != nil {
		return WrapExitError(ExitFailure, "snapshot is unusable", err)
	}
	view.Present = true
	view.Version = snap.Version
	view.Checksum = snap.Checksum
	if !snap.LastUpdated.IsZero() {
		t := snap.LastUpdated
		view.LastUpdated = &t
	}
	view.TotalItems = state.TotalItems
	view.Subtotal = state.Subtotal.StringFixed(2)
	for _, it := range state.Items {
		view.Items = append(view.Items, ItemView{
			ID:        it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		})
	}
	return out.Success(view)
}

func runSnapshotClear(cmd *cobra.Command, opts *StoreOptions) error {
	ctx := commandContext(cmd)
	out := opts.formatter(cmd)

	adapter, closeKV, err := openAdapter(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer closeKV()

	adapter.Clear(ctx)
	out.VerboseLog("cleared snapshot %q", adapter.Key())
	return out.Success(fmt.Sprintf("Snapshot %q cleared", adapter.Key()))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
