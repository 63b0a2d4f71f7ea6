// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/internal/browser"
)

// disposePollInterval paces the wait for an in-flight tool during disposal.
const disposePollInterval = 25 * time.Millisecond

// ContextSession is one logical automation context: the ordered set of
// tracked tabs, the current-tab pointer and the single-flight running-tool
// flag. All tab mutation goes through it.
type ContextSession struct {
	id     string
	logger *zap.Logger

	bctx         browser.Context
	closeContext browser.CloseFunc
	ownership    browser.Ownership
	consoleCap   int

	mu          sync.Mutex
	tabs        []*Tab
	current     int
	runningTool string
}

// NewContextSession wraps a browser context, discovering its existing pages
// as tabs in enumeration order. The first discovered tab becomes current;
// with no pages the session starts with no current tab.
func NewContextSession(ctx context.Context, bctx browser.Context, closeFn browser.CloseFunc, ownership browser.Ownership, consoleCapacity int, logger *zap.Logger) (*ContextSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ContextSession{
		id:           uuid.NewString(),
		logger:       logger.Named("session"),
		bctx:         bctx,
		closeContext: closeFn,
		ownership:    ownership,
		consoleCap:   consoleCapacity,
		current:      -1,
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))

	pages, err := bctx.Pages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover existing pages: %w", err)
	}
	for _, p := range pages {
		s.tabs = append(s.tabs, NewTab(p, consoleCapacity, s.logger))
	}
	if len(s.tabs) > 0 {
		s.current = 0
	}

	// Pages opened outside this session (popups, pool-injected pages) are
	// tracked but never steal the current pointer.
	bctx.OnPageCreated(func(p browser.Page) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, t := range s.tabs {
			if t.Page().TargetID() == p.TargetID() {
				return
			}
		}
		s.tabs = append(s.tabs, NewTab(p, s.consoleCap, s.logger))
	})

	s.logger.Info("Session created.",
		zap.Int("discovered_tabs", len(s.tabs)),
		zap.Stringer("ownership", ownership))
	return s, nil
}

// ID returns the session identifier.
func (s *ContextSession) ID() string { return s.id }

// BrowserContext exposes the owning browser context.
func (s *ContextSession) BrowserContext() browser.Context { return s.bctx }

// Ownership reports who may close the underlying context at disposal.
func (s *ContextSession) Ownership() browser.Ownership { return s.ownership }

// Tabs returns the tracked tabs in discovery/creation order.
func (s *ContextSession) Tabs() []*Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tab, len(s.tabs))
	copy(out, s.tabs)
	return out
}

// CurrentTab returns the current tab, or nil when the session has none.
func (s *ContextSession) CurrentTab() *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.tabs) {
		return nil
	}
	return s.tabs[s.current]
}

// CurrentTabIndex returns the current tab's position, or -1 when unset.
func (s *ContextSession) CurrentTabIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// NewTab opens a blank page, appends it to the sequence and makes it current.
func (s *ContextSession) NewTab(ctx context.Context) (*Tab, error) {
	page, err := s.bctx.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open new tab: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tabs {
		// The creation listener may have adopted the page already.
		if t.Page().TargetID() == page.TargetID() {
			s.current = i
			return t, nil
		}
	}
	tab := NewTab(page, s.consoleCap, s.logger)
	s.tabs = append(s.tabs, tab)
	s.current = len(s.tabs) - 1
	return tab, nil
}

// SelectTab makes the tab at index current.
func (s *ContextSession) SelectTab(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.tabs) {
		return fmt.Errorf("%w: %d of %d", ErrTabIndexOutOfRange, index, len(s.tabs))
	}
	s.current = index
	return nil
}

// CloseTab closes the tab at index, or the current tab when index is -1.
// When the closed tab was current, the preceding tab in sequence becomes
// current, or none when the sequence empties.
func (s *ContextSession) CloseTab(ctx context.Context, index int) error {
	s.mu.Lock()
	if index == -1 {
		index = s.current
	}
	if index < 0 || index >= len(s.tabs) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrTabIndexOutOfRange, index, len(s.tabs))
	}
	tab := s.tabs[index]
	s.tabs = append(s.tabs[:index], s.tabs[index+1:]...)
	switch {
	case len(s.tabs) == 0:
		s.current = -1
	case index < s.current:
		s.current--
	case index == s.current:
		if index > 0 {
			s.current = index - 1
		} else {
			s.current = 0
		}
	}
	s.mu.Unlock()

	if err := tab.close(ctx); err != nil {
		return fmt.Errorf("failed to close tab %d: %w", index, err)
	}
	return nil
}

// EnsureTab returns the current tab, opening one first when the session has
// none. Idempotent.
func (s *ContextSession) EnsureTab(ctx context.Context) (*Tab, error) {
	if t := s.CurrentTab(); t != nil {
		return t, nil
	}
	return s.NewTab(ctx)
}

// MarkToolRunning sets the single-flight flag. A second tool starting while
// one runs is rejected without touching the in-flight tool's state.
func (s *ContextSession) MarkToolRunning(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningTool != "" {
		return fmt.Errorf("%w: %q", ErrToolAlreadyRunning, s.runningTool)
	}
	s.runningTool = name
	return nil
}

// RunningTool returns the in-flight tool name, empty when idle.
func (s *ContextSession) RunningTool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningTool
}

// ClearRunningTool releases the single-flight flag.
func (s *ContextSession) ClearRunningTool() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningTool = ""
}

// Dispose waits for any in-flight tool, bounded by ctx, then releases the
// browser context through the factory's close function. Under keep-alive
// ownership the underlying browser survives.
func (s *ContextSession) Dispose(ctx context.Context) error {
	for s.RunningTool() != "" {
		select {
		case <-ctx.Done():
			s.logger.Warn("Disposing with a tool still marked running.",
				zap.String("tool", s.RunningTool()))
			return s.release(ctx)
		case <-time.After(disposePollInterval):
		}
	}
	return s.release(ctx)
}

func (s *ContextSession) release(ctx context.Context) error {
	s.mu.Lock()
	s.tabs = nil
	s.current = -1
	closeFn := s.closeContext
	s.closeContext = nil
	s.mu.Unlock()

	if closeFn == nil {
		return nil
	}
	s.logger.Info("Session disposed.", zap.Stringer("ownership", s.ownership))
	if err := closeFn(ctx); err != nil {
		return fmt.Errorf("failed to release browser context: %w", err)
	}
	return nil
}
