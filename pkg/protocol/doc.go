// Package protocol implements the bit-packed wire protocol between game
// clients and the game server.
//
// Messages are small and frequent, so every field is packed to the number of
// bits its range needs. Each message kind lists its fields exactly once; the
// same list drives encoding and decoding.
//
// # Design Goals
//
//   - Minimal size: a chat line costs six bytes plus its username and text
//   - Closed taxonomy: unknown kinds are decode errors, never ignored
//   - No silent truncation: oversized fields are rejected on both ends
//   - Untrusted input: decoding never panics and never aliases the packet
//
// # Wire Format
//
// Every message starts with a 4-bit discriminant and an alignment pad:
//
//	┌────────────┬─────────┬─────────────────────────────┬─────────┐
//	│ Kind       │ Pad     │ Variant fields              │ Pad     │
//	│ (4 bits)   │ (zero)  │ (bit-packed, LSB first)     │ (zero)  │
//	└────────────┴─────────┴─────────────────────────────┴─────────┘
//
// Variable-length fields are a fixed-width length, an alignment pad, the raw
// bytes, and another alignment pad:
//
//	[length: N bits][pad][bytes...][pad]
//
// All pads must decode as zero bits. A set pad bit means the packet is
// corrupt.
//
// # Message Kinds
//
//   - Identify (0x1): Client → Server login
//   - Welcome (0x2): Server → Client acceptance, world parameters, roster
//   - ChatMessage (0x3): Both directions, relayed by the server
//   - Input (0x4): Client → Server batched control samples
//   - WorldChunk (0x5): Server → Client tile data
//   - WorldSnapshot (0x6): Server → Client authoritative entity state
//   - GlobalEvent (0x7): Server → Client join/leave
//   - NearbyEvent (0x8): Server → Client spawn/move/attack/despawn
//
// # Field Limits
//
//   - Username: 5-bit length, 0..31 bytes
//   - Password: 6-bit length, 0..63 bytes
//   - Chat text: 9-bit length, 0..511 bytes
//   - Message of the day: 8-bit length, 0..255 bytes
//
// # Usage Example
//
//	data, err := protocol.Serialize(&protocol.ChatMessage{
//	    Source:   protocol.ChatSourceClient,
//	    Username: "Sam",
//	    Text:     "hi",
//	})
//
//	msg, err := protocol.Deserialize(data)
//	if err != nil {
//	    // protocol.IsMalformed(err) is true: drop the packet
//	}
//	protocol.Dispatch(msg, handler)
//
// # File Structure
//
//   - message.go: Kind and the Message interface
//   - stream.go: field walkers shared by encode and decode
//   - codec.go: Serialize, SerializeTo, Deserialize
//   - handler.go: Handler and Dispatch
//   - identify.go, chat.go, input.go, world.go, event.go: message variants
//   - limits.go: field widths and bounds
//   - errors.go: errors and DecodeError
package protocol
