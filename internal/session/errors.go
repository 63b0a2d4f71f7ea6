// internal/session/errors.go
package session

import "errors"

var (
	// ErrTabIndexOutOfRange flags tab selection or closure with an index
	// that references no live tab.
	ErrTabIndexOutOfRange = errors.New("tab index out of range")

	// ErrToolAlreadyRunning flags an attempt to start a tool while one is
	// marked running on the same session.
	ErrToolAlreadyRunning = errors.New("a tool is already running on this session")

	// ErrModalStatePending flags an interaction attempted on a tab whose
	// modal stack is non-empty.
	ErrModalStatePending = errors.New("tab has a pending modal state that must be resolved first")

	// ErrInvalidState flags a persisted snapshot that failed structural
	// validation.
	ErrInvalidState = errors.New("serialized state failed validation")

	// ErrNoCurrentTab flags an operation requiring a current tab on a
	// session with none.
	ErrNoCurrentTab = errors.New("session has no current tab")
)
