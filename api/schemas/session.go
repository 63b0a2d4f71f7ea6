// api/schemas/session.go
package schemas

// CurrentStateVersion is the SerializedState wire version emitted by this
// build. The field is reserved for forward migration; validation is
// structural and never switches on the value.
const CurrentStateVersion = 1

// SerializedConsoleTail is the maximum number of console messages retained
// per tab when a session is externalized.
const SerializedConsoleTail = 50

// ConsoleMessage is a single console emission recorded on a tab.
// Messages are immutable and kept in emission order.
type ConsoleMessage struct {
	// Type is the console severity/level as reported by the browser
	// ("log", "warning", "error", ...). Optional.
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// Cookie mirrors the subset of browser cookie attributes the storage-state
// capture preserves.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginStorage is the localStorage content of a single origin.
type OriginStorage struct {
	Origin  string            `json:"origin"`
	Entries map[string]string `json:"entries"`
}

// BrowserStorageState is the browser-native storage captured alongside a
// session snapshot. It reflects whatever the underlying accessor returned at
// capture time; no durability beyond that is implied.
type BrowserStorageState struct {
	Cookies []Cookie        `json:"cookies"`
	Origins []OriginStorage `json:"origins"`
}

// SerializedTab is the wire-safe projection of one tracked tab. It owns no
// live handles.
type SerializedTab struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	// Index is the tab's position in the session's discovery/creation order.
	Index                 int              `json:"index"`
	RecentConsoleMessages []ConsoleMessage `json:"recentConsoleMessages"`
}

// StateMetadata stamps a snapshot with provenance.
type StateMetadata struct {
	LastUpdated  string `json:"lastUpdated"`
	SerializedBy string `json:"serializedBy"`
}

// SerializedState is the portable whole-session persistence format. It is the
// continuity carrier for stateless pool deployments: the worker handling one
// call externalizes the session here so any other worker can reconstruct it.
type SerializedState struct {
	Version int `json:"version"`
	// BrowserStorageState is null when the storage read failed or was skipped.
	BrowserStorageState *BrowserStorageState `json:"browserStorageState"`
	Tabs                []SerializedTab      `json:"tabs"`
	// CurrentTabIndex is the current tab's position within the retained tab
	// sequence, or -1 when unset or truncated out.
	CurrentTabIndex int           `json:"currentTabIndex"`
	Metadata        StateMetadata `json:"metadata"`
}
