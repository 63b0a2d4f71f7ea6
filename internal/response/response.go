// internal/response/response.go
package response

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/api/schemas"
	"github.com/xkilldash9x/tabstate/internal/session"
)

// Image is one binary attachment accumulated on a response.
type Image struct {
	Data     []byte
	MimeType string
}

// Builder accumulates the output of one tool invocation and projects it to
// the protocol's content-block shape. Each instance serves exactly one call:
// Finish once, then Serialize once.
type Builder struct {
	logger *zap.Logger

	mu              sync.Mutex
	result          []string
	errs            []string
	code            []string
	images          []Image
	includeSnapshot bool
	includeTabs     bool

	finished   bool
	serialized bool
	snapshot   *session.TabSnapshot
	tabList    []string
}

// NewBuilder creates an empty response accumulator. The logger may be nil.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.Named("response")}
}

// AddResult appends a result line. Appends never overwrite.
func (b *Builder) AddResult(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = append(b.result, text)
}

// AddError appends an error line and marks the response failed.
func (b *Builder) AddError(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, text)
}

// AddCode appends a line to the code section.
func (b *Builder) AddCode(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code = append(b.code, line)
}

// AddImage attaches binary image content.
func (b *Builder) AddImage(data []byte, mimeType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = append(b.images, Image{Data: data, MimeType: mimeType})
}

// IsError reports whether any error line was recorded.
func (b *Builder) IsError() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.errs) > 0
}

// SetIncludeSnapshot records the intent to attach a snapshot of the current
// tab. Write-once; it cannot be unset.
func (b *Builder) SetIncludeSnapshot() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.includeSnapshot = true
}

// SetIncludeTabs records the intent to attach the open-tab list. Write-once.
func (b *Builder) SetIncludeTabs() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.includeTabs = true
}

// Finish finalizes the accumulator, capturing the current tab's snapshot and
// the tab list when the corresponding intents were set. Calling Finish twice
// is a programming error.
func (b *Builder) Finish(ctx context.Context, s *session.ContextSession) error {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return fmt.Errorf("response already finished")
	}
	b.finished = true
	wantSnapshot := b.includeSnapshot
	wantTabs := b.includeTabs
	b.mu.Unlock()

	if s == nil || (!wantSnapshot && !wantTabs) {
		return nil
	}

	if wantSnapshot {
		if tab := s.CurrentTab(); tab != nil {
			snap, err := tab.Snapshot(ctx)
			if err != nil {
				b.logger.Warn("Snapshot capture failed, response continues without it.", zap.Error(err))
			} else {
				b.mu.Lock()
				b.snapshot = snap
				b.mu.Unlock()
			}
		}
	}

	if wantTabs {
		tabs := s.Tabs()
		current := s.CurrentTabIndex()
		list := make([]string, 0, len(tabs))
		for i, tab := range tabs {
			marker := " "
			if i == current {
				marker = "*"
			}
			url, err := tab.URL(ctx)
			if err != nil {
				url = "<unavailable>"
			}
			list = append(list, fmt.Sprintf("%s %d: %s (%s)", marker, i, tab.Title(ctx), url))
		}
		b.mu.Lock()
		b.tabList = list
		b.mu.Unlock()
	}
	return nil
}

// Serialize projects the finished response to the wire shape. Error lines
// flag the result as a tool failure so the dispatcher does not mistake it
// for a successful call whose text mentions errors. Single-use.
func (b *Builder) Serialize() (*schemas.ToolResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finished {
		return nil, fmt.Errorf("response must be finished before serialization")
	}
	if b.serialized {
		return nil, fmt.Errorf("response already serialized")
	}
	b.serialized = true

	result := &schemas.ToolResult{IsError: len(b.errs) > 0}

	var text strings.Builder
	for _, line := range b.errs {
		text.WriteString(line)
		text.WriteByte('\n')
	}
	for _, line := range b.result {
		text.WriteString(line)
		text.WriteByte('\n')
	}
	if len(b.code) > 0 {
		text.WriteString("```\n")
		for _, line := range b.code {
			text.WriteString(line)
			text.WriteByte('\n')
		}
		text.WriteString("```\n")
	}
	if len(b.tabList) > 0 {
		text.WriteString("Open tabs:\n")
		for _, line := range b.tabList {
			text.WriteString(line)
			text.WriteByte('\n')
		}
	}
	if text.Len() > 0 {
		result.Content = append(result.Content, schemas.ContentBlock{
			Type: schemas.ContentTypeText,
			Text: strings.TrimRight(text.String(), "\n"),
		})
	}

	for _, img := range b.images {
		result.Content = append(result.Content, schemas.ContentBlock{
			Type:     schemas.ContentTypeImage,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
			MimeType: img.MimeType,
		})
	}

	if b.snapshot != nil {
		result.Content = append(result.Content, schemas.ContentBlock{
			Type: schemas.ContentTypeText,
			Text: renderSnapshot(b.snapshot),
		})
	}
	return result, nil
}

// renderSnapshot formats a tab snapshot as the trailing text block of a
// response.
func renderSnapshot(snap *session.TabSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page URL: %s\n", snap.URL)
	fmt.Fprintf(&b, "Page Title: %s\n", snap.Title)
	for _, desc := range snap.ModalStates {
		fmt.Fprintf(&b, "Modal state: %s\n", desc)
	}
	for _, dl := range snap.Downloads {
		fmt.Fprintf(&b, "Download started: %s (%s)\n", dl.SuggestedFilename, dl.URL)
	}
	if snap.Aria != "" {
		b.WriteString("Page Snapshot:\n")
		b.WriteString(snap.Aria)
	}
	return strings.TrimRight(b.String(), "\n")
}
