// internal/session/state.go
package session

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabstate/api/schemas"
	"github.com/xkilldash9x/tabstate/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateManager externalizes a live session into a portable snapshot and
// reconstructs session bookkeeping from one. It is the continuity mechanism
// for stateless pool deployments.
type StateManager struct {
	logger   *zap.Logger
	identity string
}

// NewStateManager builds a StateManager. The logger may be nil.
func NewStateManager(logger *zap.Logger) *StateManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := "tabstate"
	if host, err := os.Hostname(); err == nil {
		identity = "tabstate@" + host
	}
	return &StateManager{
		logger:   logger.Named("state"),
		identity: identity,
	}
}

// Serialize captures the session into a SerializedState. It mutates neither
// the session nor the browser. A positive maxTabsToTrack truncates the tab
// sequence to its leading entries; extras are pool-discovered pages, not
// logical state. A storage-state read failure degrades to null storage and
// never aborts.
func (m *StateManager) Serialize(ctx context.Context, s *ContextSession, maxTabsToTrack int) *schemas.SerializedState {
	tabs := s.Tabs()
	currentIndex := s.CurrentTabIndex()

	if maxTabsToTrack > 0 && len(tabs) > maxTabsToTrack {
		tabs = tabs[:maxTabsToTrack]
	}
	if currentIndex >= len(tabs) {
		currentIndex = -1
	}

	var storage *schemas.BrowserStorageState
	if st, err := s.BrowserContext().StorageState(ctx); err != nil {
		m.logger.Warn("Storage state read failed, serializing without it.", zap.Error(err))
	} else {
		storage = st
	}

	serialized := make([]schemas.SerializedTab, 0, len(tabs))
	for i, tab := range tabs {
		url, err := tab.URL(ctx)
		if err != nil {
			m.logger.Debug("Tab URL read failed during serialization.",
				zap.Int("index", i), zap.Error(err))
			url = ""
		}
		serialized = append(serialized, schemas.SerializedTab{
			URL:                   url,
			Title:                 tab.Title(ctx),
			Index:                 i,
			RecentConsoleMessages: tab.ConsoleTail(schemas.SerializedConsoleTail),
		})
	}

	return &schemas.SerializedState{
		Version:             schemas.CurrentStateVersion,
		BrowserStorageState: storage,
		Tabs:                serialized,
		CurrentTabIndex:     currentIndex,
		Metadata: schemas.StateMetadata{
			LastUpdated:  time.Now().UTC().Format(time.RFC3339),
			SerializedBy: m.identity,
		},
	}
}

// Hydrate restores session bookkeeping from a snapshot onto a live context.
//
// Keep-alive: when the context has zero pages, exactly one blank page is
// created, because some pooled backends terminate the browser when the page
// count reaches zero. Reconciliation: when a session is supplied and the
// snapshot holds at least one tab, stored title and console history are
// matched positionally onto the session's discovered tabs, up to the stored
// count, and the current pointer is set from the snapshot. Hydrate never
// navigates, never closes tabs and never opens beyond the keep-alive page.
// Storage state is assumed applied at context creation, not here.
func (m *StateManager) Hydrate(ctx context.Context, bctx browser.Context, state *schemas.SerializedState, s *ContextSession) error {
	pages, err := bctx.Pages(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate pages for hydration: %w", err)
	}
	if len(pages) == 0 {
		if _, err := bctx.NewPage(ctx); err != nil {
			return fmt.Errorf("failed to create keep-alive page: %w", err)
		}
		m.logger.Debug("Created keep-alive page on empty context.")
	}

	if s == nil || len(state.Tabs) == 0 {
		return nil
	}

	tabs := s.Tabs()
	restored := 0
	for i, stored := range state.Tabs {
		if i >= len(tabs) {
			// Stored positions beyond the discovered tabs are dropped,
			// not failures.
			break
		}
		tabs[i].RestoreBookkeeping(stored.Title, stored.RecentConsoleMessages)
		restored++
	}
	if state.CurrentTabIndex >= 0 && state.CurrentTabIndex < len(tabs) {
		if err := s.SelectTab(state.CurrentTabIndex); err != nil {
			return fmt.Errorf("failed to restore current tab: %w", err)
		}
	}

	m.logger.Info("Session bookkeeping hydrated.",
		zap.Int("stored_tabs", len(state.Tabs)),
		zap.Int("restored_tabs", restored),
		zap.Int("current_tab_index", state.CurrentTabIndex))
	return nil
}

// IsValidState structurally validates an untrusted snapshot. It accepts raw
// JSON bytes or an already-decoded value, returns false on any deviation and
// never panics. It is the sole admission gate before a snapshot may reach
// Hydrate; it never switches on the version value.
func (m *StateManager) IsValidState(raw any) bool {
	var value any
	switch v := raw.(type) {
	case []byte:
		if err := json.Unmarshal(v, &value); err != nil {
			return false
		}
	case string:
		if err := json.Unmarshal([]byte(v), &value); err != nil {
			return false
		}
	default:
		value = raw
	}

	doc, ok := value.(map[string]any)
	if !ok {
		return false
	}
	if !isNumber(doc["version"]) {
		return false
	}
	tabs, ok := doc["tabs"].([]any)
	if !ok {
		return false
	}
	for _, entry := range tabs {
		tab, ok := entry.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := tab["url"].(string); !ok {
			return false
		}
		if _, ok := tab["title"].(string); !ok {
			return false
		}
		if !isNumber(tab["index"]) {
			return false
		}
		if _, ok := tab["recentConsoleMessages"].([]any); !ok {
			return false
		}
	}
	if !isNumber(doc["currentTabIndex"]) {
		return false
	}
	metadata, ok := doc["metadata"].(map[string]any)
	if !ok {
		return false
	}
	if _, ok := metadata["lastUpdated"].(string); !ok {
		return false
	}
	return true
}

// isNumber accepts the numeric shapes a JSON decoder may produce.
func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, stdjson.Number:
		return true
	default:
		return false
	}
}

// Encode renders a snapshot as JSON.
func (m *StateManager) Encode(state *schemas.SerializedState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode serialized state: %w", err)
	}
	return data, nil
}

// Decode parses and validates an untrusted snapshot, gating on IsValidState
// before the typed unmarshal.
func (m *StateManager) Decode(data []byte) (*schemas.SerializedState, error) {
	if !m.IsValidState(data) {
		return nil, ErrInvalidState
	}
	var state schemas.SerializedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &state, nil
}
