// internal/session/modal.go
package session

import (
	"fmt"

	"github.com/xkilldash9x/tabstate/internal/browser"
)

// ModalState is a pending blocking browser prompt on a tab. It is a closed
// union: the only implementations are FileUploadModalState and
// DialogModalState, and resolution sites switch over both exhaustively.
type ModalState interface {
	Description() string
	isModalState()
}

// FileUploadModalState is an intercepted file chooser waiting for files.
type FileUploadModalState struct {
	Desc    string
	Chooser browser.FileChooser
}

func NewFileUploadModalState(chooser browser.FileChooser) *FileUploadModalState {
	return &FileUploadModalState{
		Desc:    "There is a file chooser visible that requires handling",
		Chooser: chooser,
	}
}

func (m *FileUploadModalState) Description() string { return m.Desc }
func (m *FileUploadModalState) isModalState()       {}

// DialogModalState is a JavaScript dialog waiting for accept or dismiss.
type DialogModalState struct {
	Desc   string
	Dialog browser.Dialog
}

func NewDialogModalState(dialog browser.Dialog) *DialogModalState {
	return &DialogModalState{
		Desc:   fmt.Sprintf("%q dialog with message %q is open and requires handling", dialog.Kind(), dialog.Message()),
		Dialog: dialog,
	}
}

func (m *DialogModalState) Description() string { return m.Desc }
func (m *DialogModalState) isModalState()       {}
