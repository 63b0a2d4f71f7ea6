// internal/session/console.go
package session

import (
	"sync"

	"github.com/xkilldash9x/tabstate/api/schemas"
)

// DefaultConsoleCapacity bounds per-tab console history when no capacity is
// configured.
const DefaultConsoleCapacity = 200

// ConsoleBuffer is a bounded, ordered record of a tab's console output.
// Appends past capacity drop the oldest entries.
type ConsoleBuffer struct {
	mu       sync.Mutex
	capacity int
	messages []schemas.ConsoleMessage
}

// NewConsoleBuffer creates a buffer holding at most capacity messages.
// Non-positive capacities fall back to DefaultConsoleCapacity.
func NewConsoleBuffer(capacity int) *ConsoleBuffer {
	if capacity <= 0 {
		capacity = DefaultConsoleCapacity
	}
	return &ConsoleBuffer{capacity: capacity}
}

// Append records a message, evicting from the front once full.
func (b *ConsoleBuffer) Append(msg schemas.ConsoleMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	if len(b.messages) > b.capacity {
		// Shift instead of reslice so the backing array does not pin
		// evicted entries.
		copy(b.messages, b.messages[len(b.messages)-b.capacity:])
		b.messages = b.messages[:b.capacity]
	}
}

// Tail returns the last n messages in emission order. n <= 0 or n >= length
// returns a copy of everything.
func (b *ConsoleBuffer) Tail(n int) []schemas.ConsoleMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if n > 0 && n < len(b.messages) {
		start = len(b.messages) - n
	}
	out := make([]schemas.ConsoleMessage, len(b.messages)-start)
	copy(out, b.messages[start:])
	return out
}

// Len reports the number of retained messages.
func (b *ConsoleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Replace swaps the buffer contents wholesale. Used when restoring
// bookkeeping from a persisted snapshot; the capacity bound still applies.
func (b *ConsoleBuffer) Replace(msgs []schemas.ConsoleMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(msgs) > b.capacity {
		msgs = msgs[len(msgs)-b.capacity:]
	}
	b.messages = make([]schemas.ConsoleMessage, len(msgs))
	copy(b.messages, msgs)
}
