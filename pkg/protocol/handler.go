package protocol

import "fmt"

// Handler receives decoded messages, one method per variant. Adding a
// variant adds a method here, so every handler in the program must be updated
// before it compiles again.
type Handler interface {
	HandleIdentify(*Identify) error
	HandleWelcome(*Welcome) error
	HandleChatMessage(*ChatMessage) error
	HandleInput(*Input) error
	HandleWorldChunk(*WorldChunk) error
	HandleWorldSnapshot(*WorldSnapshot) error
	HandleGlobalEvent(*GlobalEvent) error
	HandleNearbyEvent(*NearbyEvent) error
}

// Dispatch calls the Handler method matching m's variant.
func Dispatch(m Message, h Handler) error {
	switch m := m.(type) {
	case *Identify:
		return h.HandleIdentify(m)
	case *Welcome:
		return h.HandleWelcome(m)
	case *ChatMessage:
		return h.HandleChatMessage(m)
	case *Input:
		return h.HandleInput(m)
	case *WorldChunk:
		return h.HandleWorldChunk(m)
	case *WorldSnapshot:
		return h.HandleWorldSnapshot(m)
	case *GlobalEvent:
		return h.HandleGlobalEvent(m)
	case *NearbyEvent:
		return h.HandleNearbyEvent(m)
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedMessage, m)
	}
}

// Unexpected returns the error a handler reports for a message that is not
// valid in its direction.
func Unexpected(m Message) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedMessage, m.Kind())
}
