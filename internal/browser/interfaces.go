// internal/browser/interfaces.go
package browser

import (
	"context"

	"github.com/xkilldash9x/tabstate/api/schemas"
)

// Ownership states who may close a browser context at session disposal.
// It is carried by the factory result and consulted only when the session
// is disposed, never assumed by the session itself.
type Ownership int

const (
	// OwnedExclusive: the session launched the context and closing the
	// session closes it.
	OwnedExclusive Ownership = iota
	// SharedKeepAlive: the context belongs to a shared pool; closing the
	// session leaves it running.
	SharedKeepAlive
)

func (o Ownership) String() string {
	switch o {
	case SharedKeepAlive:
		return "shared-keep-alive"
	default:
		return "owned-exclusive"
	}
}

// Download records a download the browser announced on a page. Bookkeeping
// only; the payload is not tracked.
type Download struct {
	URL               string
	SuggestedFilename string
}

// Dialog is a pending JavaScript dialog awaiting explicit resolution.
type Dialog interface {
	// Kind is the dialog type: "alert", "confirm", "prompt" or "beforeunload".
	Kind() string
	Message() string
	Accept(ctx context.Context, promptText string) error
	Dismiss(ctx context.Context) error
}

// FileChooser is a pending file-chooser interception awaiting files.
type FileChooser interface {
	SetFiles(ctx context.Context, paths []string) error
}

// PageListener receives page events. Nil callbacks are skipped.
type PageListener struct {
	OnConsole     func(schemas.ConsoleMessage)
	OnDialog      func(Dialog)
	OnFileChooser func(FileChooser)
	OnDownload    func(Download)
}

// Page is one live browser page handle. The handle is owned by the browser
// context; closing the context invalidates it.
type Page interface {
	// TargetID identifies the page within its context.
	TargetID() string
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// AriaSnapshot returns a structural accessibility representation of the
	// page content, suitable for inclusion in a tool response.
	AriaSnapshot(ctx context.Context) (string, error)
	// Listen registers event callbacks for the lifetime of the page.
	Listen(l PageListener)
	Close(ctx context.Context) error
}

// Context is the browser-automation capability this core consumes: page
// enumeration and creation, storage-state read, and close.
type Context interface {
	// Pages enumerates the currently open pages in a stable order.
	Pages(ctx context.Context) ([]Page, error)
	// NewPage opens a blank page.
	NewPage(ctx context.Context) (Page, error)
	// StorageState reads cookies and per-origin localStorage.
	StorageState(ctx context.Context) (*schemas.BrowserStorageState, error)
	// OnPageCreated registers a callback fired when the context reports a
	// page this process did not open (popups, pool-injected pages).
	OnPageCreated(fn func(Page))
	Close(ctx context.Context) error
}

// CloseFunc releases a context according to the factory's policy. Under
// SharedKeepAlive it is a no-op on the underlying browser.
type CloseFunc func(ctx context.Context) error

// ContextFactory supplies browser contexts together with the disposal policy
// that governs them.
type ContextFactory interface {
	CreateContext(ctx context.Context) (Context, CloseFunc, Ownership, error)
}
