// internal/browser/factory.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/internal/config"
)

// NewContextFactory picks the factory implied by configuration: a remote
// attachment to a shared browser farm when a websocket URL is configured,
// otherwise a locally launched, exclusively owned browser process.
func NewContextFactory(cfg config.BrowserConfig, logger *zap.Logger) ContextFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RemoteURL != "" {
		return &RemoteFactory{cfg: cfg, logger: logger.Named("remote_factory")}
	}
	return &ExecFactory{cfg: cfg, logger: logger.Named("exec_factory")}
}

// ExecFactory launches a local browser process per context. The resulting
// context is OwnedExclusive: the close function tears down the tab contexts
// and the browser process itself.
type ExecFactory struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func (f *ExecFactory) CreateContext(ctx context.Context) (Context, CloseFunc, Ownership, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !f.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	// Stability flags for container deployments.
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	for _, arg := range f.cfg.ExecArgs {
		name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	bctx, err := newCDPContext(ctx, allocCtx, f.logger)
	if err != nil {
		allocCancel()
		return nil, nil, OwnedExclusive, fmt.Errorf("failed to launch browser context: %w", err)
	}

	f.logger.Info("Launched exclusive browser context.")
	closeFn := func(closeCtx context.Context) error {
		err := bctx.Close(closeCtx)
		allocCancel()
		return err
	}
	return bctx, closeFn, OwnedExclusive, nil
}

// RemoteFactory attaches to an already-running browser over the DevTools
// websocket. The context is SharedKeepAlive: the close function detaches the
// local connection and leaves the remote browser untouched, so other pool
// workers can keep using it.
type RemoteFactory struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func (f *RemoteFactory) CreateContext(ctx context.Context) (Context, CloseFunc, Ownership, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), f.cfg.RemoteURL)

	bctx, err := newCDPContext(ctx, allocCtx, f.logger)
	if err != nil {
		allocCancel()
		return nil, nil, SharedKeepAlive, fmt.Errorf("failed to attach to remote browser at %s: %w", f.cfg.RemoteURL, err)
	}

	f.logger.Info("Attached to shared browser context.", zap.String("remote_url", f.cfg.RemoteURL))
	closeFn := func(context.Context) error {
		// Detach only. The remote browser outlives this session.
		bctx.detach()
		allocCancel()
		return nil
	}
	return bctx, closeFn, SharedKeepAlive, nil
}
