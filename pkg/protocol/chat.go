package protocol

import "unicode/utf8"

// ChatSource classifies who produced a chat line.
type ChatSource uint8

const (
	ChatSourceSystem ChatSource = 0 // Local to this process, never relayed
	ChatSourceServer ChatSource = 1 // Produced by the server
	ChatSourceClient ChatSource = 2 // Typed by a player
)

// String returns the string representation of the source.
func (c ChatSource) String() string {
	switch c {
	case ChatSourceSystem:
		return "System"
	case ChatSourceServer:
		return "Server"
	case ChatSourceClient:
		return "Client"
	default:
		return "Unknown"
	}
}

func validChatSource(c ChatSource) bool {
	return c <= ChatSourceClient
}

// ChatMessage is one line of chat.
//
// Wire format:
//
//	[Source: 2][SenderID: 16]
//	[Username: 5-bit length][align][bytes][align]
//	[Text: 9-bit length][align][bytes][align]
type ChatMessage struct {
	Source   ChatSource
	SenderID uint16
	Username string
	Text     string
}

// Kind returns KindChatMessage.
func (*ChatMessage) Kind() Kind { return KindChatMessage }

func (m *ChatMessage) serialize(s stream) error {
	if err := serializeEnum(s, &m.Source, chatSourceBits, validChatSource); err != nil {
		return err
	}
	if err := serializeUint(s, &m.SenderID, playerIDBits); err != nil {
		return err
	}
	if err := serializeString(s, &m.Username, UsernameLengthBits, MaxUsernameLength); err != nil {
		return err
	}
	return serializeString(s, &m.Text, ChatLengthBits, MaxChatLength)
}

// ClampChatText shortens text to at most MaxChatLength bytes without
// splitting a UTF-8 sequence. This is the only place chat text is truncated;
// the encoder itself rejects oversized text.
func ClampChatText(text string) string {
	return clampUTF8(text, MaxChatLength)
}

// ClampUsername shortens a username to at most MaxUsernameLength bytes.
func ClampUsername(name string) string {
	return clampUTF8(name, MaxUsernameLength)
}

// ClampMotd shortens a message of the day to at most MaxMotdLength bytes.
func ClampMotd(motd string) string {
	return clampUTF8(motd, MaxMotdLength)
}

func clampUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
