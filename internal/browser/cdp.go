// internal/browser/cdp.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/accessibility"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/api/schemas"
)

// cdpContext implements Context over a chromedp browser connection.
type cdpContext struct {
	root   context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	pages  map[target.ID]*cdpPage
	order  []target.ID
	onPage []func(Page)
}

var _ Context = (*cdpContext)(nil)

// newCDPContext materializes the browser connection on top of an allocator
// context and starts watching for externally created page targets.
func newCDPContext(ctx context.Context, allocCtx context.Context, logger *zap.Logger) (*cdpContext, error) {
	root, rootCancel := chromedp.NewContext(allocCtx)

	// Running with no actions establishes the connection and the first tab.
	// Target discovery must be on for EventTargetCreated to fire.
	err := chromedp.Run(root, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	}))
	if err != nil {
		rootCancel()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	c := &cdpContext{
		root:   root,
		cancel: rootCancel,
		logger: logger.Named("cdp"),
		pages:  make(map[target.ID]*cdpPage),
	}

	// Surface pages opened outside this process (popups, pool warm pages).
	chromedp.ListenBrowser(root, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetCreated); ok && e.TargetInfo.Type == "page" {
			c.adopt(e.TargetInfo.TargetID, true)
		}
	})

	return c, nil
}

// adopt registers a page target, creating its chromedp context on first
// sight. announce controls whether OnPageCreated callbacks fire.
func (c *cdpContext) adopt(id target.ID, announce bool) *cdpPage {
	c.mu.Lock()
	if p, ok := c.pages[id]; ok {
		c.mu.Unlock()
		return p
	}
	tctx, tcancel := chromedp.NewContext(c.root, chromedp.WithTargetID(id))
	p := newCDPPage(id, tctx, tcancel, c.logger)
	c.pages[id] = p
	c.order = append(c.order, id)
	callbacks := append([]func(Page){}, c.onPage...)
	c.mu.Unlock()

	if announce {
		for _, fn := range callbacks {
			fn(p)
		}
	}
	return p
}

func (c *cdpContext) OnPageCreated(fn func(Page)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPage = append(c.onPage, fn)
}

// Pages enumerates open page targets in adoption order.
func (c *cdpContext) Pages(ctx context.Context) ([]Page, error) {
	infos, err := chromedp.Targets(c.root)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate targets: %w", err)
	}

	alive := make(map[target.ID]bool)
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		alive[info.TargetID] = true
		c.adopt(info.TargetID, false)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pages := make([]Page, 0, len(alive))
	for _, id := range c.order {
		if alive[id] {
			pages = append(pages, c.pages[id])
		}
	}
	return pages, nil
}

func (c *cdpContext) NewPage(ctx context.Context) (Page, error) {
	tctx, tcancel := chromedp.NewContext(c.root)
	if err := chromedp.Run(tctx, chromedp.Navigate("about:blank")); err != nil {
		tcancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	id := chromedp.FromContext(tctx).Target.TargetID

	c.mu.Lock()
	p, known := c.pages[id]
	if !known {
		p = newCDPPage(id, tctx, tcancel, c.logger)
		c.pages[id] = p
		c.order = append(c.order, id)
	} else {
		// The browser listener adopted it first; drop the duplicate context.
		tcancel()
	}
	c.mu.Unlock()

	return p, nil
}

// StorageState reads all cookies plus the current origin's localStorage via
// the first open page. Failures surface to the caller; degradation policy
// belongs to the serializer.
func (c *cdpContext) StorageState(ctx context.Context) (*schemas.BrowserStorageState, error) {
	pages, err := c.Pages(ctx)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no open pages to read storage state from")
	}
	p := pages[0].(*cdpPage)

	var cookies []*network.Cookie
	var local struct {
		Origin  string            `json:"origin"`
		Entries map[string]string `json:"entries"`
	}
	err = p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(`({ origin: location.origin, entries: {...localStorage} })`, &local),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}

	state := &schemas.BrowserStorageState{
		Cookies: make([]schemas.Cookie, 0, len(cookies)),
	}
	for _, ck := range cookies {
		state.Cookies = append(state.Cookies, schemas.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: string(ck.SameSite),
		})
	}
	if local.Origin != "" {
		state.Origins = append(state.Origins, schemas.OriginStorage{
			Origin:  local.Origin,
			Entries: local.Entries,
		})
	}
	return state, nil
}

// detach tears down local page contexts without closing remote targets.
func (c *cdpContext) detach() {
	c.mu.Lock()
	pages := make([]*cdpPage, 0, len(c.pages))
	for _, p := range c.pages {
		pages = append(pages, p)
	}
	c.mu.Unlock()

	for _, p := range pages {
		p.cancel()
	}
	c.cancel()
}

func (c *cdpContext) Close(ctx context.Context) error {
	c.mu.Lock()
	pages := make([]*cdpPage, 0, len(c.pages))
	for _, p := range c.pages {
		pages = append(pages, p)
	}
	c.mu.Unlock()

	for _, p := range pages {
		if err := p.Close(ctx); err != nil {
			c.logger.Debug("Page close during context shutdown failed.", zap.Error(err))
		}
	}
	c.cancel()
	return nil
}

// cdpPage implements Page over a per-target chromedp context.
type cdpPage struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu       sync.Mutex
	listener PageListener
}

var _ Page = (*cdpPage)(nil)

func newCDPPage(id target.ID, tctx context.Context, tcancel context.CancelFunc, logger *zap.Logger) *cdpPage {
	p := &cdpPage{
		id:     id,
		ctx:    tctx,
		cancel: tcancel,
		logger: logger.With(zap.String("target_id", string(id))),
	}
	chromedp.ListenTarget(tctx, p.dispatch)
	return p
}

func (p *cdpPage) TargetID() string { return string(p.id) }

// run executes chromedp actions against this page, honoring both the page
// lifetime and the caller's deadline.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read page URL: %w", err)
	}
	return u, nil
}

func (p *cdpPage) Title(ctx context.Context) (string, error) {
	var t string
	if err := p.run(ctx, chromedp.Title(&t)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return t, nil
}

// AriaSnapshot renders the full accessibility tree as indented "role name"
// lines, skipping ignored and nameless nodes.
func (p *cdpPage) AriaSnapshot(ctx context.Context) (string, error) {
	var nodes []*accessibility.Node
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to capture accessibility tree: %w", err)
	}

	var b strings.Builder
	for _, node := range nodes {
		if node == nil || node.Ignored {
			continue
		}
		role := axValueString(node.Role)
		name := axValueString(node.Name)
		if role == "" && name == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s", role)
		if name != "" {
			fmt.Fprintf(&b, " %q", name)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func axValueString(v *accessibility.Value) string {
	if v == nil {
		return ""
	}
	return strings.Trim(fmt.Sprintf("%s", v.Value), `"`)
}

func (p *cdpPage) Listen(l PageListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()

	if l.OnFileChooser != nil {
		// Interception must be armed or the chooser opens natively and no
		// event is delivered.
		err := p.run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return page.SetInterceptFileChooserDialog(true).Do(ctx)
		}))
		if err != nil {
			p.logger.Warn("Failed to enable file chooser interception.", zap.Error(err))
		}
	}
}

// dispatch routes raw CDP events to the registered listener.
func (p *cdpPage) dispatch(ev interface{}) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()

	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if l.OnConsole == nil {
			return
		}
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			parts = append(parts, formatRemoteObject(arg))
		}
		l.OnConsole(schemas.ConsoleMessage{
			Type: string(e.Type),
			Text: strings.Join(parts, " "),
		})
	case *log.EventEntryAdded:
		if l.OnConsole == nil {
			return
		}
		l.OnConsole(schemas.ConsoleMessage{
			Type: string(e.Entry.Level),
			Text: e.Entry.Text,
		})
	case *page.EventJavascriptDialogOpening:
		if l.OnDialog == nil {
			return
		}
		l.OnDialog(&cdpDialog{page: p, kind: string(e.Type), message: e.Message})
	case *page.EventFileChooserOpened:
		if l.OnFileChooser == nil {
			return
		}
		l.OnFileChooser(&cdpFileChooser{page: p, nodeID: e.BackendNodeID})
	case *cdpbrowser.EventDownloadWillBegin:
		if l.OnDownload == nil {
			return
		}
		l.OnDownload(Download{URL: e.URL, SuggestedFilename: e.SuggestedFilename})
	}
}

func formatRemoteObject(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if obj.Value != nil {
		return strings.Trim(fmt.Sprintf("%s", obj.Value), `"`)
	}
	return obj.Description
}

func (p *cdpPage) Close(ctx context.Context) error {
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Close().Do(ctx)
	}))
	p.cancel()
	if err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

// cdpDialog resolves a pending JavaScript dialog.
type cdpDialog struct {
	page    *cdpPage
	kind    string
	message string
}

func (d *cdpDialog) Kind() string    { return d.kind }
func (d *cdpDialog) Message() string { return d.message }

func (d *cdpDialog) Accept(ctx context.Context, promptText string) error {
	return d.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.HandleJavaScriptDialog(true)
		if promptText != "" {
			params = params.WithPromptText(promptText)
		}
		return params.Do(ctx)
	}))
}

func (d *cdpDialog) Dismiss(ctx context.Context) error {
	return d.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.HandleJavaScriptDialog(false).Do(ctx)
	}))
}

// cdpFileChooser satisfies an intercepted file chooser.
type cdpFileChooser struct {
	page   *cdpPage
	nodeID cdp.BackendNodeID
}

func (f *cdpFileChooser) SetFiles(ctx context.Context, paths []string) error {
	return f.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.SetFileInputFiles(paths).WithBackendNodeID(f.nodeID).Do(ctx)
	}))
}

// combineContext derives a context canceled when either input is canceled,
// preserving the chromedp values carried by primary.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
