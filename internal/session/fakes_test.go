// internal/session/fakes_test.go
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/tabstate/api/schemas"
	"github.com/xkilldash9x/tabstate/internal/browser"
)

// fakePage is an in-memory browser.Page for lifecycle tests.
type fakePage struct {
	mu       sync.Mutex
	id       string
	url      string
	title    string
	aria     string
	urlErr   error
	titleErr error
	closed   bool
	listener browser.PageListener
}

func newFakePage(id, url, title string) *fakePage {
	return &fakePage{id: id, url: url, title: title}
}

func (p *fakePage) TargetID() string { return p.id }

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.urlErr != nil {
		return "", p.urlErr
	}
	return p.url, nil
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.titleErr != nil {
		return "", p.titleErr
	}
	return p.title, nil
}

func (p *fakePage) AriaSnapshot(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aria, nil
}

func (p *fakePage) Listen(l browser.PageListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) emitConsole(msg schemas.ConsoleMessage) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l.OnConsole != nil {
		l.OnConsole(msg)
	}
}

func (p *fakePage) emitDialog(d browser.Dialog) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l.OnDialog != nil {
		l.OnDialog(d)
	}
}

func (p *fakePage) emitFileChooser(fc browser.FileChooser) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l.OnFileChooser != nil {
		l.OnFileChooser(fc)
	}
}

func (p *fakePage) emitDownload(d browser.Download) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l.OnDownload != nil {
		l.OnDownload(d)
	}
}

// fakeContext is an in-memory browser.Context.
type fakeContext struct {
	mu           sync.Mutex
	pages        []*fakePage
	newPageCalls int
	newPageErr   error
	storage      *schemas.BrowserStorageState
	storageErr   error
	onPage       []func(browser.Page)
	closed       bool
}

func newFakeContext(pages ...*fakePage) *fakeContext {
	return &fakeContext{pages: pages}
}

func (c *fakeContext) Pages(ctx context.Context) ([]browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]browser.Page, 0, len(c.pages))
	for _, p := range c.pages {
		if !p.closed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	c.newPageCalls++
	p := newFakePage(fmt.Sprintf("page-%d", len(c.pages)), "about:blank", "")
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *fakeContext) StorageState(ctx context.Context) (*schemas.BrowserStorageState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storageErr != nil {
		return nil, c.storageErr
	}
	if c.storage == nil {
		return &schemas.BrowserStorageState{}, nil
	}
	return c.storage, nil
}

func (c *fakeContext) OnPageCreated(fn func(browser.Page)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPage = append(c.onPage, fn)
}

func (c *fakeContext) announcePage(p *fakePage) {
	c.mu.Lock()
	c.pages = append(c.pages, p)
	callbacks := append([]func(browser.Page){}, c.onPage...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn(p)
	}
}

func (c *fakeContext) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialog records its resolution.
type fakeDialog struct {
	kind      string
	message   string
	accepted  bool
	dismissed bool
	prompt    string
	err       error
}

func (d *fakeDialog) Kind() string    { return d.kind }
func (d *fakeDialog) Message() string { return d.message }

func (d *fakeDialog) Accept(ctx context.Context, promptText string) error {
	if d.err != nil {
		return d.err
	}
	d.accepted = true
	d.prompt = promptText
	return nil
}

func (d *fakeDialog) Dismiss(ctx context.Context) error {
	if d.err != nil {
		return d.err
	}
	d.dismissed = true
	return nil
}

// fakeChooser records the files it was given.
type fakeChooser struct {
	files []string
	err   error
}

func (f *fakeChooser) SetFiles(ctx context.Context, paths []string) error {
	if f.err != nil {
		return f.err
	}
	f.files = paths
	return nil
}
