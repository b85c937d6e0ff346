package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cartsync/internal/cartapi"
	"github.com/roach88/cartsync/internal/telemetry"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Redis  string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the remote cart service",
		Long: `Run the HTTP remote cart service used by signed-in carts.

Cart lines are kept in memory unless a Redis address is configured.
The process stops on SIGINT or SIGTERM.

Examples:
  cartsync serve
  cartsync serve --listen :9090 --redis localhost:6379`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Redis, "redis", "", "Redis address for cart lines (overrides config)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.ListenAddr = opts.Listen
	}
	if opts.Redis != "" {
		cfg.RedisAddr = opts.Redis
	}
	logger := opts.logger(cmd.ErrOrStderr())

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "cartsync-api",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
	}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	lines, closeLines, err := openLines(ctx, cfg.RedisAddr, cfg.RedisPrefix, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cart storage", err)
	}
	defer closeLines()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           cartapi.NewServer(lines, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("cart service listening", "addr", cfg.ListenAddr, "redis", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("cart service shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "cart service stopped", err)
	}
	return nil
}

// openLines returns Redis-backed lines when addr is set, in-memory lines
// otherwise.
func openLines(ctx context.Context, addr, prefix string, logger *slog.Logger) (cartapi.Lines, func(), error) {
	if addr == "" {
		logger.Warn("no Redis address configured; cart lines are kept in memory")
		return cartapi.NewMemoryLines(), func() {}, nil
	}

	redisOpts, err := redis.ParseURL(addr)
	if err != nil {
		redisOpts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return cartapi.NewRedisLines(client, prefix), func() { client.Close() }, nil
}
