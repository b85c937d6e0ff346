package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/config"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/remote"
	"github.com/roach88/cartsync/internal/snapshot"
	"github.com/roach88/cartsync/internal/store"
)

// Snapshot store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// StoreOptions selects where the snapshot lives. Shared by the cart and
// snapshot commands.
type StoreOptions struct {
	*RootOptions
	Store string
	Path  string
}

func (o *StoreOptions) bindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.Store, "store", StoreSQLite, "snapshot store (sqlite|redis)")
	cmd.PersistentFlags().StringVar(&o.Path, "db", "", "SQLite snapshot file (overrides config)")
}

// openKV opens the configured snapshot store. The returned func closes it.
func (o *StoreOptions) openKV(ctx context.Context, cfg config.Config) (store.KV, func(), error) {
	switch o.Store {
	case StoreSQLite, "":
		path := cfg.StoragePath
		if o.Path != "" {
			path = o.Path
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open snapshot store", err)
		}
		return db, func() { db.Close() }, nil
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return nil, nil, NewExitError(ExitCommandError, "redis store selected but no Redis address configured")
		}
		r, err := store.NewRedis(cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open snapshot store", err)
		}
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, nil, WrapExitError(ExitCommandError, "failed to reach redis", err)
		}
		return r, func() { r.Close() }, nil
	default:
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown store %q: must be sqlite or redis", o.Store))
	}
}

// session is one controller bound to the device snapshot and the remote
// service for the lifetime of a command.
type session struct {
	ctrl   *engine.Controller
	snap   *snapshot.Adapter
	cfg    config.Config
	logger *slog.Logger

	closeKV func()
	cancel  context.CancelFunc

	mu      sync.Mutex
	notices []engine.Notice
}

func openSession(ctx context.Context, o *StoreOptions, user string, cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if user != "" {
		cfg.UserID = user
	}
	logger := o.logger(cmd.ErrOrStderr())

	kv, closeKV, err := o.openKV(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		snap:    snapshot.New(kv, snapshot.WithKey(cfg.StorageKey), snapshot.WithLogger(logger)),
		cfg:     cfg,
		logger:  logger,
		closeKV: closeKV,
	}

	svc := remote.NewHTTPClient(cfg.RemoteURL,
		remote.WithTimeout(cfg.RemoteTimeout),
		remote.WithRateLimit(cfg.RemoteRPS, cfg.RemoteBurst),
		remote.WithLogger(logger),
	)
	s.ctrl = engine.New(svc, s.snap,
		engine.WithLogger(logger),
		engine.WithIdentity(identity.User(cfg.UserID)),
		engine.WithItemSerialization(cfg.SerializeItems),
		engine.WithNotifier(engine.NotifierFunc(s.record)),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.ctrl.Run(runCtx)

	if err := s.settle(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) record(n engine.Notice) {
	s.logger.Debug("cart notice", "kind", n.Kind, "op", n.Op, "item_id", n.ItemID, "message", n.Message)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

// settle waits for outstanding remote calls. A signed-in start waits for
// the remote cart to load.
func (s *session) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*s.cfg.RemoteTimeout)
	defer cancel()
	if err := s.ctrl.Flush(ctx); err != nil {
		return WrapExitError(ExitFailure, "timed out waiting for the remote cart service", err)
	}
	return nil
}

// drain returns and forgets the notices recorded so far.
func (s *session) drain() []engine.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *session) close() {
	s.ctrl.Stop()
	<-s.ctrl.Done()
	s.cancel()
	s.closeKV()
}
