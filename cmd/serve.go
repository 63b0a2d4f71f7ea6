// -- cmd/serve.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tabstate/internal/browser"
	"github.com/xkilldash9x/tabstate/internal/observability"
	"github.com/xkilldash9x/tabstate/internal/session"
	"github.com/xkilldash9x/tabstate/internal/store"
)

var sessionID string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one automation session, restoring and persisting its state.",
	Long: `Serve acquires a browser context, reconstructs session bookkeeping from the
snapshot store when a prior snapshot exists for --session-id, and keeps the
session alive until interrupted. On shutdown the session is serialized back
to the store so the next worker can continue it.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&sessionID, "session-id", "", "logical session to restore and persist (default: a fresh session)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer observability.Sync(logger)
	logger.Info("Starting tabstate.", zap.String("version", Version))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var snapshots *store.Store
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to create database pool: %w", err)
		}
		defer pool.Close()
		snapshots, err = store.New(ctx, pool, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("No database configured; session state will not survive this process.")
	}

	factory := browser.NewContextFactory(cfg.Browser, logger)
	bctx, closeFn, ownership, err := factory.CreateContext(ctx)
	if err != nil {
		return err
	}

	sess, err := session.NewContextSession(ctx, bctx, closeFn, ownership, cfg.Session.ConsoleBufferSize, logger)
	if err != nil {
		_ = closeFn(context.Background())
		return err
	}
	if sessionID == "" {
		sessionID = sess.ID()
		logger.Info("Serving fresh session.", zap.String("session_id", sessionID))
	}

	states := session.NewStateManager(logger)
	if snapshots != nil {
		stored, err := snapshots.Load(ctx, sessionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger.Info("No prior snapshot for session.", zap.String("session_id", sessionID))
		case err != nil:
			logger.Error("Snapshot load failed, continuing without restore.", zap.Error(err))
		default:
			if err := states.Hydrate(ctx, bctx, stored, sess); err != nil {
				logger.Error("Hydration failed, continuing with a fresh session.", zap.Error(err))
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Session loop failed.", zap.Error(err))
	}

	// Shutdown: externalize state first, then release the context under the
	// factory's ownership policy.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.DisposeWait)
	defer cancel()

	if snapshots != nil {
		state := states.Serialize(shutdownCtx, sess, cfg.Session.MaxTabsToTrack)
		if err := snapshots.Save(shutdownCtx, sessionID, state); err != nil {
			logger.Error("Failed to persist session state on shutdown.", zap.Error(err))
		}
	}
	if err := sess.Dispose(shutdownCtx); err != nil {
		return fmt.Errorf("failed to dispose session: %w", err)
	}
	logger.Info("Shutdown complete.", zap.String("session_id", sessionID))

	// Exit cleanly on signal-driven shutdown.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
