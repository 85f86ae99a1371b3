package protocol

// WorldChunk carries the tiles of one ChunkWidth×ChunkWidth region, row-major.
//
// Wire format:
//
//	[X: 16 signed][Y: 16 signed][Tiles: 9-bit length][align][bytes][align]
type WorldChunk struct {
	X     int16
	Y     int16
	Tiles []byte
}

// Kind returns KindWorldChunk.
func (*WorldChunk) Kind() Kind { return KindWorldChunk }

func (m *WorldChunk) serialize(s stream) error {
	if err := serializeInt16(s, &m.X); err != nil {
		return err
	}
	if err := serializeInt16(s, &m.Y); err != nil {
		return err
	}
	return serializeBlob(s, &m.Tiles, tileCountBits, MaxChunkTiles)
}

// PlayerState is a player's authoritative state at a tick.
type PlayerState struct {
	ID        uint16
	X, Y      float32
	Facing    Direction
	HP        uint16
	Moving    bool
	Attacking bool
}

func serializePlayerState(s stream, p *PlayerState) error {
	if err := serializeUint(s, &p.ID, playerIDBits); err != nil {
		return err
	}
	if err := serializeFloat32(s, &p.X); err != nil {
		return err
	}
	if err := serializeFloat32(s, &p.Y); err != nil {
		return err
	}
	if err := serializeUint(s, &p.Facing, directionBits); err != nil {
		return err
	}
	if err := serializeUint(s, &p.HP, hitPointBits); err != nil {
		return err
	}
	if err := serializeBool(s, &p.Moving); err != nil {
		return err
	}
	return serializeBool(s, &p.Attacking)
}

// NPCState is a non-player character's authoritative state at a tick.
type NPCState struct {
	ID   uint32
	Type uint8
	X, Y float32
	HP   uint16
}

func serializeNPCState(s stream, n *NPCState) error {
	if err := serializeUint(s, &n.ID, entityIDBits); err != nil {
		return err
	}
	if err := serializeUint(s, &n.Type, npcTypeBits); err != nil {
		return err
	}
	if err := serializeFloat32(s, &n.X); err != nil {
		return err
	}
	if err := serializeFloat32(s, &n.Y); err != nil {
		return err
	}
	return serializeUint(s, &n.HP, hitPointBits)
}

// ItemState is a dropped item's authoritative state at a tick.
type ItemState struct {
	ID      uint32
	Catalog uint16
	Count   uint8
	X, Y    float32
}

func serializeItemState(s stream, it *ItemState) error {
	if err := serializeUint(s, &it.ID, entityIDBits); err != nil {
		return err
	}
	if err := serializeUint(s, &it.Catalog, itemCatalogBits); err != nil {
		return err
	}
	if err := serializeUint(s, &it.Count, itemCountBits); err != nil {
		return err
	}
	if err := serializeFloat32(s, &it.X); err != nil {
		return err
	}
	return serializeFloat32(s, &it.Y)
}

// WorldSnapshot is the authoritative state of every entity near a client at
// one server tick. InputAck is the newest input tick the server has applied
// for the receiving client; anything newer is still predicted locally.
//
// Wire format:
//
//	[Tick: 32][InputAck: 32]
//	[Players: 5-bit count][...][NPCs: 7-bit count][...][Items: 7-bit count][...]
type WorldSnapshot struct {
	Tick     uint32
	InputAck uint32
	Players  []PlayerState
	NPCs     []NPCState
	Items    []ItemState
}

// Kind returns KindWorldSnapshot.
func (*WorldSnapshot) Kind() Kind { return KindWorldSnapshot }

func (m *WorldSnapshot) serialize(s stream) error {
	if err := serializeUint(s, &m.Tick, tickBits); err != nil {
		return err
	}
	if err := serializeUint(s, &m.InputAck, tickBits); err != nil {
		return err
	}
	if err := serializeList(s, &m.Players, playerCountBits, MaxSnapshotPlayers, serializePlayerState); err != nil {
		return err
	}
	if err := serializeList(s, &m.NPCs, npcCountBits, MaxSnapshotNPCs, serializeNPCState); err != nil {
		return err
	}
	return serializeList(s, &m.Items, itemsCountBits, MaxSnapshotItems, serializeItemState)
}
