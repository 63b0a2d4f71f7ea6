// internal/session/session_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabstate/internal/browser"
)

func newTestSession(t *testing.T, fc *fakeContext) *ContextSession {
	t.Helper()
	s, err := NewContextSession(context.Background(), fc, fc.Close, browser.OwnedExclusive, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestNewContextSession_DiscoversExistingPages(t *testing.T) {
	fc := newFakeContext(
		newFakePage("p0", "https://a.example", "A"),
		newFakePage("p1", "https://b.example", "B"),
	)
	s := newTestSession(t, fc)

	require.Len(t, s.Tabs(), 2)
	assert.Equal(t, 0, s.CurrentTabIndex())
	assert.Equal(t, "p0", s.CurrentTab().Page().TargetID())
}

func TestNewContextSession_EmptyContextHasNoCurrentTab(t *testing.T) {
	s := newTestSession(t, newFakeContext())
	assert.Empty(t, s.Tabs())
	assert.Equal(t, -1, s.CurrentTabIndex())
	assert.Nil(t, s.CurrentTab())
}

func TestContextSession_NewTabAppendsAndBecomesCurrent(t *testing.T) {
	fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
	s := newTestSession(t, fc)

	tab, err := s.NewTab(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Tabs(), 2)
	assert.Equal(t, 1, s.CurrentTabIndex())
	assert.Same(t, tab, s.CurrentTab())
}

func TestContextSession_ExternallyCreatedPageDoesNotStealCurrent(t *testing.T) {
	fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
	s := newTestSession(t, fc)

	fc.announcePage(newFakePage("popup", "https://pop.example", "Popup"))

	require.Len(t, s.Tabs(), 2)
	assert.Equal(t, 0, s.CurrentTabIndex())
}

func TestContextSession_SelectTab(t *testing.T) {
	fc := newFakeContext(
		newFakePage("p0", "https://a.example", "A"),
		newFakePage("p1", "https://b.example", "B"),
	)
	s := newTestSession(t, fc)

	require.NoError(t, s.SelectTab(1))
	assert.Equal(t, 1, s.CurrentTabIndex())

	err := s.SelectTab(5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTabIndexOutOfRange)
	assert.Equal(t, 1, s.CurrentTabIndex(), "failed select must not move the pointer")

	assert.ErrorIs(t, s.SelectTab(-1), ErrTabIndexOutOfRange)
}

func TestContextSession_CloseTab(t *testing.T) {
	ctx := context.Background()

	t.Run("closing current selects the preceding tab", func(t *testing.T) {
		fc := newFakeContext(
			newFakePage("p0", "https://a.example", "A"),
			newFakePage("p1", "https://b.example", "B"),
			newFakePage("p2", "https://c.example", "C"),
		)
		s := newTestSession(t, fc)
		require.NoError(t, s.SelectTab(2))

		require.NoError(t, s.CloseTab(ctx, 2))
		assert.Len(t, s.Tabs(), 2)
		assert.Equal(t, 1, s.CurrentTabIndex())
	})

	t.Run("closing the first current tab keeps position zero", func(t *testing.T) {
		fc := newFakeContext(
			newFakePage("p0", "https://a.example", "A"),
			newFakePage("p1", "https://b.example", "B"),
		)
		s := newTestSession(t, fc)

		require.NoError(t, s.CloseTab(ctx, 0))
		assert.Equal(t, 0, s.CurrentTabIndex())
		assert.Equal(t, "p1", s.CurrentTab().Page().TargetID())
	})

	t.Run("closing the last tab leaves no current tab", func(t *testing.T) {
		fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
		s := newTestSession(t, fc)

		require.NoError(t, s.CloseTab(ctx, -1))
		assert.Empty(t, s.Tabs())
		assert.Equal(t, -1, s.CurrentTabIndex())
	})

	t.Run("closing before current shifts the pointer left", func(t *testing.T) {
		fc := newFakeContext(
			newFakePage("p0", "https://a.example", "A"),
			newFakePage("p1", "https://b.example", "B"),
			newFakePage("p2", "https://c.example", "C"),
		)
		s := newTestSession(t, fc)
		require.NoError(t, s.SelectTab(2))

		require.NoError(t, s.CloseTab(ctx, 0))
		assert.Equal(t, 1, s.CurrentTabIndex())
		assert.Equal(t, "p2", s.CurrentTab().Page().TargetID())
	})

	t.Run("out of range index fails", func(t *testing.T) {
		fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
		s := newTestSession(t, fc)
		assert.ErrorIs(t, s.CloseTab(ctx, 3), ErrTabIndexOutOfRange)
	})

	t.Run("close on an empty session fails", func(t *testing.T) {
		s := newTestSession(t, newFakeContext())
		assert.ErrorIs(t, s.CloseTab(ctx, -1), ErrTabIndexOutOfRange)
	})
}

func TestContextSession_EnsureTab(t *testing.T) {
	ctx := context.Background()
	fc := newFakeContext()
	s := newTestSession(t, fc)

	first, err := s.EnsureTab(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, fc.newPageCalls)

	second, err := s.EnsureTab(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fc.newPageCalls, "ensure on a live tab must not open pages")
}

func TestContextSession_SingleFlight(t *testing.T) {
	s := newTestSession(t, newFakeContext(newFakePage("p0", "https://a.example", "A")))

	require.NoError(t, s.MarkToolRunning("navigate"))
	assert.Equal(t, "navigate", s.RunningTool())

	err := s.MarkToolRunning("click")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolAlreadyRunning)
	assert.Equal(t, "navigate", s.RunningTool(), "rejection must not alter the in-flight tool")

	s.ClearRunningTool()
	assert.Empty(t, s.RunningTool())
	require.NoError(t, s.MarkToolRunning("click"))
	s.ClearRunningTool()
}

func TestContextSession_DisposeWaitsForRunningTool(t *testing.T) {
	fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
	s := newTestSession(t, fc)
	require.NoError(t, s.MarkToolRunning("navigate"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Dispose(ctx))
	}()

	time.Sleep(60 * time.Millisecond)
	s.ClearRunningTool()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispose did not complete after the tool cleared")
	}
	assert.True(t, fc.closed)
}

func TestContextSession_DisposeIsTimeBounded(t *testing.T) {
	fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
	s := newTestSession(t, fc)
	require.NoError(t, s.MarkToolRunning("stuck-tool"))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Dispose(ctx))
	assert.True(t, fc.closed, "context must be released even when the tool never clears")
}

func TestContextSession_DisposeIsIdempotent(t *testing.T) {
	fc := newFakeContext(newFakePage("p0", "https://a.example", "A"))
	s := newTestSession(t, fc)

	ctx := context.Background()
	require.NoError(t, s.Dispose(ctx))
	require.NoError(t, s.Dispose(ctx))
}
