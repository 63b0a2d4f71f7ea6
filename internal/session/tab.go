// internal/session/tab.go
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/api/schemas"
	"github.com/xkilldash9x/tabstate/internal/browser"
)

// Tab tracks one live browser page together with the bookkeeping that makes
// it externalizable: a cached title, a bounded console history, the stack of
// pending modal states and any downloads the page announced.
type Tab struct {
	page   browser.Page
	logger *zap.Logger

	console *ConsoleBuffer

	mu             sync.Mutex
	lastKnownTitle string
	modals         []ModalState
	downloads      []browser.Download
}

// TabSnapshot is a point-in-time structural capture of one tab, produced for
// inclusion in a tool response. Distinct from the persisted session state.
type TabSnapshot struct {
	URL             string
	Title           string
	Aria            string
	ModalStates     []string
	ConsoleMessages []schemas.ConsoleMessage
	Downloads       []browser.Download
}

// NewTab wraps a page and subscribes to its events. consoleCapacity <= 0
// selects the default bound.
func NewTab(page browser.Page, consoleCapacity int, logger *zap.Logger) *Tab {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tab{
		page:    page,
		logger:  logger.With(zap.String("target_id", page.TargetID())),
		console: NewConsoleBuffer(consoleCapacity),
	}
	page.Listen(browser.PageListener{
		OnConsole: t.console.Append,
		OnDialog: func(d browser.Dialog) {
			t.PushModalState(NewDialogModalState(d))
		},
		OnFileChooser: func(fc browser.FileChooser) {
			t.PushModalState(NewFileUploadModalState(fc))
		},
		OnDownload: func(d browser.Download) {
			t.mu.Lock()
			t.downloads = append(t.downloads, d)
			t.mu.Unlock()
			t.logger.Debug("Download began.", zap.String("url", d.URL))
		},
	})
	return t
}

// Page exposes the underlying page handle.
func (t *Tab) Page() browser.Page { return t.page }

// URL reads the page's current URL.
func (t *Tab) URL(ctx context.Context) (string, error) {
	return t.page.URL(ctx)
}

// Title reads the live title, caching it on success. When the page is
// unreachable the last known title is returned instead, so callers degrade
// to stale metadata rather than failing.
func (t *Tab) Title(ctx context.Context) string {
	title, err := t.page.Title(ctx)
	if err != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.lastKnownTitle
	}
	t.mu.Lock()
	t.lastKnownTitle = title
	t.mu.Unlock()
	return title
}

// LastKnownTitle returns the cached title without touching the page.
func (t *Tab) LastKnownTitle() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastKnownTitle
}

// ConsoleTail returns the last n console messages in emission order.
func (t *Tab) ConsoleTail(n int) []schemas.ConsoleMessage {
	return t.console.Tail(n)
}

// RestoreBookkeeping overwrites the cached title and console history from a
// persisted snapshot. It never touches the live page.
func (t *Tab) RestoreBookkeeping(title string, msgs []schemas.ConsoleMessage) {
	t.mu.Lock()
	t.lastKnownTitle = title
	t.mu.Unlock()
	t.console.Replace(msgs)
}

// PushModalState records a pending modal on the tab.
func (t *Tab) PushModalState(m ModalState) {
	t.mu.Lock()
	t.modals = append(t.modals, m)
	t.mu.Unlock()
	t.logger.Debug("Modal state pushed.", zap.String("description", m.Description()))
}

// ModalStates returns the pending modal stack, oldest first.
func (t *Tab) ModalStates() []ModalState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ModalState, len(t.modals))
	copy(out, t.modals)
	return out
}

// RequireNoModalState fails when a modal is pending, naming it, so tool
// handlers direct the caller to resolve it before interacting further.
func (t *Tab) RequireNoModalState() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.modals) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrModalStatePending, t.modals[len(t.modals)-1].Description())
}

// popModalState removes and returns the most recent modal matching the
// predicate, or nil.
func (t *Tab) popModalState(match func(ModalState) bool) ModalState {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.modals) - 1; i >= 0; i-- {
		if match(t.modals[i]) {
			m := t.modals[i]
			t.modals = append(t.modals[:i], t.modals[i+1:]...)
			return m
		}
	}
	return nil
}

// ResolveDialog resolves the most recent pending dialog, accepting or
// dismissing it. The modal is popped only when the browser call succeeds.
func (t *Tab) ResolveDialog(ctx context.Context, accept bool, promptText string) error {
	m := t.popModalState(func(m ModalState) bool {
		_, ok := m.(*DialogModalState)
		return ok
	})
	if m == nil {
		return fmt.Errorf("no pending dialog on this tab")
	}
	dm := m.(*DialogModalState)
	var err error
	if accept {
		err = dm.Dialog.Accept(ctx, promptText)
	} else {
		err = dm.Dialog.Dismiss(ctx)
	}
	if err != nil {
		t.PushModalState(dm)
		return fmt.Errorf("failed to resolve dialog: %w", err)
	}
	return nil
}

// ResolveFileChooser satisfies the most recent pending file chooser with the
// given paths.
func (t *Tab) ResolveFileChooser(ctx context.Context, paths []string) error {
	m := t.popModalState(func(m ModalState) bool {
		_, ok := m.(*FileUploadModalState)
		return ok
	})
	if m == nil {
		return fmt.Errorf("no pending file chooser on this tab")
	}
	fm := m.(*FileUploadModalState)
	if err := fm.Chooser.SetFiles(ctx, paths); err != nil {
		t.PushModalState(fm)
		return fmt.Errorf("failed to set files on chooser: %w", err)
	}
	return nil
}

// PendingDownloads returns the downloads announced on this tab so far.
func (t *Tab) PendingDownloads() []browser.Download {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]browser.Download, len(t.downloads))
	copy(out, t.downloads)
	return out
}

// Snapshot captures the tab's current structure. The accessibility capture
// is best-effort; a failure there leaves Aria empty rather than failing the
// whole snapshot.
func (t *Tab) Snapshot(ctx context.Context) (*TabSnapshot, error) {
	url, err := t.page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tab: %w", err)
	}
	title := t.Title(ctx)

	aria, err := t.page.AriaSnapshot(ctx)
	if err != nil {
		t.logger.Warn("Accessibility capture failed, snapshot continues without it.", zap.Error(err))
		aria = ""
	}

	t.mu.Lock()
	modals := make([]string, 0, len(t.modals))
	for _, m := range t.modals {
		modals = append(modals, m.Description())
	}
	t.mu.Unlock()

	return &TabSnapshot{
		URL:             strings.TrimSpace(url),
		Title:           title,
		Aria:            aria,
		ModalStates:     modals,
		ConsoleMessages: t.console.Tail(0),
		Downloads:       t.PendingDownloads(),
	}, nil
}

func (t *Tab) close(ctx context.Context) error {
	return t.page.Close(ctx)
}
