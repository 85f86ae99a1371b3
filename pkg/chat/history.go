// Package chat keeps the scrollback of chat lines shown to a player or
// recorded by the server.
package chat

import (
	"fmt"
	"time"

	"github.com/dbechrd/slimerrt/pkg/history"
	"github.com/dbechrd/slimerrt/pkg/protocol"
)

// DefaultCapacity is the number of lines kept when no capacity is given.
const DefaultCapacity = 128

// Line is one recorded chat message.
type Line = history.Entry[protocol.ChatMessage]

// History is a bounded chat scrollback. Old lines fall off the front as new
// ones arrive.
//
// Like the ring underneath it, History is not safe for concurrent use.
type History struct {
	ring *history.Ring[protocol.ChatMessage]
	now  func() time.Time
}

// NewHistory creates a history of at least capacity lines. now supplies
// timestamps; nil means time.Now.
func NewHistory(capacity int, now func() time.Time) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &History{
		ring: history.NewRing[protocol.ChatMessage](capacity),
		now:  now,
	}
}

// Push records msg and returns its line.
func (h *History) Push(msg protocol.ChatMessage) *Line {
	return h.ring.Push(msg, h.now())
}

// PushSystem records a local-only line, such as a connection status notice.
// System lines are never sent over the network.
func (h *History) PushSystem(text string) *Line {
	return h.Push(protocol.ChatMessage{
		Source: protocol.ChatSourceSystem,
		Text:   protocol.ClampChatText(text),
	})
}

// PushSystemf is PushSystem with formatting.
func (h *History) PushSystemf(format string, args ...any) *Line {
	return h.PushSystem(fmt.Sprintf(format, args...))
}

// Count returns the number of lines held.
func (h *History) Count() int {
	return h.ring.Count()
}

// Cap returns the maximum number of lines held.
func (h *History) Cap() int {
	return h.ring.Cap()
}

// At returns the i-th oldest line, or nil if out of range.
func (h *History) At(i int) *Line {
	return h.ring.At(i)
}

// Newest returns up to n lines, newest first, the order a chat box draws them
// from the bottom up. n <= 0 returns every line.
func (h *History) Newest(n int) []Line {
	count := h.ring.Count()
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Line, 0, n)
	for i := count - 1; i >= count-n; i-- {
		out = append(out, *h.ring.At(i))
	}
	return out
}

// Transcript returns every message, oldest first.
func (h *History) Transcript() []protocol.ChatMessage {
	return h.ring.Values()
}

// Lines returns every line with its timestamp, oldest first.
func (h *History) Lines() []Line {
	out := make([]Line, 0, h.ring.Count())
	h.ring.Each(func(_ int, e *Line) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// Reset clears the history.
func (h *History) Reset() {
	h.ring.Reset()
}

// Format renders a message as a single display line.
func Format(msg protocol.ChatMessage) string {
	switch msg.Source {
	case protocol.ChatSourceSystem:
		return "* " + msg.Text
	case protocol.ChatSourceServer:
		return "[server] " + msg.Text
	default:
		if msg.Username == "" {
			return fmt.Sprintf("<#%d> %s", msg.SenderID, msg.Text)
		}
		return fmt.Sprintf("<%s> %s", msg.Username, msg.Text)
	}
}
