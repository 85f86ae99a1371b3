package protocol

// Field widths and bounds. A bound and the width of the length field that
// carries it change together: raising MaxUsernameLength past 31 requires a
// wider UsernameLengthBits.
const (
	// KindBits is the width of the message discriminant.
	KindBits = 4

	// UsernameLengthBits carries usernames of 0..31 bytes.
	UsernameLengthBits = 5
	MaxUsernameLength  = 1<<UsernameLengthBits - 1

	// PasswordLengthBits carries passwords of 0..63 bytes.
	PasswordLengthBits = 6
	MaxPasswordLength  = 1<<PasswordLengthBits - 1

	// ChatLengthBits carries chat text of 0..511 bytes.
	ChatLengthBits = 9
	MaxChatLength  = 1<<ChatLengthBits - 1

	// MotdLengthBits carries the Welcome message of the day.
	MotdLengthBits = 8
	MaxMotdLength  = 1<<MotdLengthBits - 1

	// MaxRosterSize bounds the player roster carried in Welcome.
	MaxRosterSize = 16

	// MaxInputSamples bounds the samples batched into one Input message.
	MaxInputSamples = 8

	// ChunkWidth is the edge length of a square world chunk in tiles.
	ChunkWidth = 16

	// MaxChunkTiles bounds the tile data carried by one WorldChunk.
	MaxChunkTiles = ChunkWidth * ChunkWidth

	// Snapshot entity bounds.
	MaxSnapshotPlayers = 16
	MaxSnapshotNPCs    = 64
	MaxSnapshotItems   = 64

	// MaxPacketSize is the largest encoded message. Every message that passes
	// the bounds above fits.
	MaxPacketSize = 4096
)

// Widths of fixed-size and count fields.
const (
	chatSourceBits  = 2
	playerIDBits    = 16
	tickBits        = 32
	entityIDBits    = 32
	hitPointBits    = 16
	directionBits   = 3
	buttonBits      = 8
	npcTypeBits     = 8
	itemCatalogBits = 16
	itemCountBits   = 8
	globalEventBits = 2
	nearbyEventBits = 3
	entityKindBits  = 2
	worldSizeBits   = 16
	seedBits        = 32
	damageBits      = 16
	float32Bits     = 32
	rosterCountBits = 5
	sampleCountBits = 4
	tileCountBits   = 9
	playerCountBits = 5
	npcCountBits    = 7
	itemsCountBits  = 7
)
