// internal/response/response_test.go
package response

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabstate/api/schemas"
	"github.com/xkilldash9x/tabstate/internal/browser"
	"github.com/xkilldash9x/tabstate/internal/session"
)

// stubPage is a minimal browser.Page for builder tests.
type stubPage struct {
	mu    sync.Mutex
	id    string
	url   string
	title string
	aria  string
}

func (p *stubPage) TargetID() string                                { return p.id }
func (p *stubPage) URL(ctx context.Context) (string, error)         { return p.url, nil }
func (p *stubPage) Title(ctx context.Context) (string, error)       { return p.title, nil }
func (p *stubPage) AriaSnapshot(ctx context.Context) (string, error) { return p.aria, nil }
func (p *stubPage) Listen(l browser.PageListener)                   {}
func (p *stubPage) Close(ctx context.Context) error                 { return nil }

// stubContext is a minimal browser.Context exposing fixed pages.
type stubContext struct {
	pages []browser.Page
}

func (c *stubContext) Pages(ctx context.Context) ([]browser.Page, error) { return c.pages, nil }
func (c *stubContext) NewPage(ctx context.Context) (browser.Page, error) {
	p := &stubPage{id: "new", url: "about:blank"}
	c.pages = append(c.pages, p)
	return p, nil
}
func (c *stubContext) StorageState(ctx context.Context) (*schemas.BrowserStorageState, error) {
	return &schemas.BrowserStorageState{}, nil
}
func (c *stubContext) OnPageCreated(fn func(browser.Page)) {}
func (c *stubContext) Close(ctx context.Context) error     { return nil }

func newStubSession(t *testing.T, pages ...browser.Page) *session.ContextSession {
	t.Helper()
	sc := &stubContext{pages: pages}
	s, err := session.NewContextSession(context.Background(), sc, sc.Close, browser.OwnedExclusive, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestBuilder_ErrorFlag(t *testing.T) {
	b := NewBuilder(zaptest.NewLogger(t))
	b.AddError("navigation failed")
	require.NoError(t, b.Finish(context.Background(), nil))

	result, err := b.Serialize()
	require.NoError(t, err)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, schemas.ContentTypeText, result.Content[0].Type)
	assert.Contains(t, result.Content[0].Text, "navigation failed")
}

func TestBuilder_AppendsNeverOverwrite(t *testing.T) {
	b := NewBuilder(zaptest.NewLogger(t))
	b.AddResult("first")
	b.AddResult("second")
	b.AddCode(`await page.goto("https://example.com")`)
	require.NoError(t, b.Finish(context.Background(), nil))
	assert.False(t, b.IsError())

	result, err := b.Serialize()
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text := result.Content[0].Text
	assert.Contains(t, text, "first")
	assert.Contains(t, text, "second")
	assert.Contains(t, text, "```")
	assert.Less(t, 0, len(text))
}

func TestBuilder_ImageBlocks(t *testing.T) {
	b := NewBuilder(zaptest.NewLogger(t))
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	b.AddImage(payload, "image/png")
	require.NoError(t, b.Finish(context.Background(), nil))

	result, err := b.Serialize()
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	block := result.Content[0]
	assert.Equal(t, schemas.ContentTypeImage, block.Type)
	assert.Equal(t, "image/png", block.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), block.Data)
}

func TestBuilder_SnapshotIntent(t *testing.T) {
	s := newStubSession(t, &stubPage{id: "p0", url: "https://example.com", title: "Example", aria: `- document "Example"`})

	b := NewBuilder(zaptest.NewLogger(t))
	b.AddResult("Navigated.")
	b.SetIncludeSnapshot()
	require.NoError(t, b.Finish(context.Background(), s))

	result, err := b.Serialize()
	require.NoError(t, err)
	require.Len(t, result.Content, 2)
	snapshot := result.Content[1].Text
	assert.Contains(t, snapshot, "Page URL: https://example.com")
	assert.Contains(t, snapshot, "Page Title: Example")
	assert.Contains(t, snapshot, `- document "Example"`)
}

func TestBuilder_SnapshotIntentWithoutCurrentTab(t *testing.T) {
	s := newStubSession(t)

	b := NewBuilder(zaptest.NewLogger(t))
	b.AddResult("ok")
	b.SetIncludeSnapshot()
	require.NoError(t, b.Finish(context.Background(), s))

	result, err := b.Serialize()
	require.NoError(t, err)
	require.Len(t, result.Content, 1, "no snapshot block without a current tab")
}

func TestBuilder_TabListIntent(t *testing.T) {
	s := newStubSession(t,
		&stubPage{id: "p0", url: "https://a.example", title: "A"},
		&stubPage{id: "p1", url: "https://b.example", title: "B"},
	)
	require.NoError(t, s.SelectTab(1))

	b := NewBuilder(zaptest.NewLogger(t))
	b.SetIncludeTabs()
	require.NoError(t, b.Finish(context.Background(), s))

	result, err := b.Serialize()
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text := result.Content[0].Text
	assert.Contains(t, text, "Open tabs:")
	assert.Contains(t, text, "  0: A (https://a.example)")
	assert.Contains(t, text, "* 1: B (https://b.example)")
}

func TestBuilder_SingleUse(t *testing.T) {
	b := NewBuilder(zaptest.NewLogger(t))
	b.AddResult("once")

	_, err := b.Serialize()
	require.Error(t, err, "serialize before finish must fail")

	require.NoError(t, b.Finish(context.Background(), nil))
	require.Error(t, b.Finish(context.Background(), nil), "finish is single-use")

	_, err = b.Serialize()
	require.NoError(t, err)
	_, err = b.Serialize()
	require.Error(t, err, "serialize is single-use")
}
