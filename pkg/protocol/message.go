package protocol

// Kind identifies a message variant on the wire.
type Kind uint8

const (
	KindUnknown       Kind = 0x0 // Reserved, never valid on the wire
	KindIdentify      Kind = 0x1 // Client → Server login
	KindWelcome       Kind = 0x2 // Server → Client acceptance and world parameters
	KindChatMessage   Kind = 0x3 // Both directions
	KindInput         Kind = 0x4 // Client → Server control samples
	KindWorldChunk    Kind = 0x5 // Server → Client tile data
	KindWorldSnapshot Kind = 0x6 // Server → Client authoritative entity state
	KindGlobalEvent   Kind = 0x7 // Server → Client join/leave
	KindNearbyEvent   Kind = 0x8 // Server → Client spawn/move/attack/despawn
)

// Kinds lists every valid message kind in discriminant order.
var Kinds = []Kind{
	KindIdentify,
	KindWelcome,
	KindChatMessage,
	KindInput,
	KindWorldChunk,
	KindWorldSnapshot,
	KindGlobalEvent,
	KindNearbyEvent,
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindIdentify:
		return "Identify"
	case KindWelcome:
		return "Welcome"
	case KindChatMessage:
		return "ChatMessage"
	case KindInput:
		return "Input"
	case KindWorldChunk:
		return "WorldChunk"
	case KindWorldSnapshot:
		return "WorldSnapshot"
	case KindGlobalEvent:
		return "GlobalEvent"
	case KindNearbyEvent:
		return "NearbyEvent"
	default:
		return "Unknown"
	}
}

// Valid reports whether k names a message variant.
func (k Kind) Valid() bool {
	return newMessage(k) != nil
}

// Message is one of the protocol's message variants. The set is closed: only
// the types in this package implement it.
type Message interface {
	// Kind returns the variant's discriminant.
	Kind() Kind

	// serialize walks the variant's fields in wire order.
	serialize(s stream) error
}

// newMessage returns an empty message for k, or nil for an unknown kind.
func newMessage(k Kind) Message {
	switch k {
	case KindIdentify:
		return &Identify{}
	case KindWelcome:
		return &Welcome{}
	case KindChatMessage:
		return &ChatMessage{}
	case KindInput:
		return &Input{}
	case KindWorldChunk:
		return &WorldChunk{}
	case KindWorldSnapshot:
		return &WorldSnapshot{}
	case KindGlobalEvent:
		return &GlobalEvent{}
	case KindNearbyEvent:
		return &NearbyEvent{}
	default:
		return nil
	}
}
