package protocol

// GlobalEventType identifies a world-wide notification.
type GlobalEventType uint8

const (
	GlobalEventJoin  GlobalEventType = 1
	GlobalEventLeave GlobalEventType = 2
)

// String returns the string representation of the event type.
func (t GlobalEventType) String() string {
	switch t {
	case GlobalEventJoin:
		return "Join"
	case GlobalEventLeave:
		return "Leave"
	default:
		return "Unknown"
	}
}

func validGlobalEvent(t GlobalEventType) bool {
	return t == GlobalEventJoin || t == GlobalEventLeave
}

// GlobalEvent announces a player joining or leaving.
//
// Wire format:
//
//	[Type: 2][PlayerID: 16][Username: 5-bit length][align][bytes][align]
type GlobalEvent struct {
	Type     GlobalEventType
	PlayerID uint16
	Username string
}

// Kind returns KindGlobalEvent.
func (*GlobalEvent) Kind() Kind { return KindGlobalEvent }

func (m *GlobalEvent) serialize(s stream) error {
	if err := serializeEnum(s, &m.Type, globalEventBits, validGlobalEvent); err != nil {
		return err
	}
	if err := serializeUint(s, &m.PlayerID, playerIDBits); err != nil {
		return err
	}
	return serializeString(s, &m.Username, UsernameLengthBits, MaxUsernameLength)
}

// NearbyEventType identifies a spatially scoped notification.
type NearbyEventType uint8

const (
	NearbySpawn   NearbyEventType = 1
	NearbyMove    NearbyEventType = 2
	NearbyAttack  NearbyEventType = 3
	NearbyDespawn NearbyEventType = 4
)

// String returns the string representation of the event type.
func (t NearbyEventType) String() string {
	switch t {
	case NearbySpawn:
		return "Spawn"
	case NearbyMove:
		return "Move"
	case NearbyAttack:
		return "Attack"
	case NearbyDespawn:
		return "Despawn"
	default:
		return "Unknown"
	}
}

func validNearbyEvent(t NearbyEventType) bool {
	return t >= NearbySpawn && t <= NearbyDespawn
}

// EntityKind identifies the class of entity an event refers to.
type EntityKind uint8

const (
	EntityPlayer EntityKind = 1
	EntityNPC    EntityKind = 2
	EntityItem   EntityKind = 3
)

// String returns the string representation of the entity kind.
func (k EntityKind) String() string {
	switch k {
	case EntityPlayer:
		return "Player"
	case EntityNPC:
		return "NPC"
	case EntityItem:
		return "Item"
	default:
		return "Unknown"
	}
}

func validEntityKind(k EntityKind) bool {
	return k >= EntityPlayer && k <= EntityItem
}

// NearbyEvent notifies clients close to an entity that something happened to
// it. Which fields are present depends on Type:
//
//	Spawn, Move:  [Type: 3][Entity: 2][EntityID: 32][X: 32][Y: 32]
//	Attack:       [Type: 3][Entity: 2][EntityID: 32][TargetID: 32][Damage: 16]
//	Despawn:      [Type: 3][Entity: 2][EntityID: 32]
//
// Fields not carried by the event type are ignored on encode and left zero on
// decode.
type NearbyEvent struct {
	Type     NearbyEventType
	Entity   EntityKind
	EntityID uint32
	X, Y     float32
	TargetID uint32
	Damage   uint16
}

// Kind returns KindNearbyEvent.
func (*NearbyEvent) Kind() Kind { return KindNearbyEvent }

func (m *NearbyEvent) serialize(s stream) error {
	if err := serializeEnum(s, &m.Type, nearbyEventBits, validNearbyEvent); err != nil {
		return err
	}
	if err := serializeEnum(s, &m.Entity, entityKindBits, validEntityKind); err != nil {
		return err
	}
	if err := serializeUint(s, &m.EntityID, entityIDBits); err != nil {
		return err
	}

	switch m.Type {
	case NearbySpawn, NearbyMove:
		if err := serializeFloat32(s, &m.X); err != nil {
			return err
		}
		return serializeFloat32(s, &m.Y)
	case NearbyAttack:
		if err := serializeUint(s, &m.TargetID, entityIDBits); err != nil {
			return err
		}
		return serializeUint(s, &m.Damage, damageBits)
	}
	return nil
}
