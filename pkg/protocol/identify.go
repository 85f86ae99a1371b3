package protocol

// Identify is sent by a client once its transport connects.
//
// Wire format:
//
//	[Username: 5-bit length][align][bytes][align]
//	[Password: 6-bit length][align][bytes][align]
type Identify struct {
	Username string
	Password []byte // Cleared by the sender once the message is encoded
}

// Kind returns KindIdentify.
func (*Identify) Kind() Kind { return KindIdentify }

func (m *Identify) serialize(s stream) error {
	if err := serializeString(s, &m.Username, UsernameLengthBits, MaxUsernameLength); err != nil {
		return err
	}
	return serializeBlob(s, &m.Password, PasswordLengthBits, MaxPasswordLength)
}

// RosterEntry names one connected player.
type RosterEntry struct {
	PlayerID uint16
	Username string
}

func serializeRosterEntry(s stream, e *RosterEntry) error {
	if err := serializeUint(s, &e.PlayerID, playerIDBits); err != nil {
		return err
	}
	return serializeString(s, &e.Username, UsernameLengthBits, MaxUsernameLength)
}

// Welcome accepts a client and carries the parameters it needs to build its
// local view of the world.
//
// Wire format:
//
//	[PlayerID: 16][WorldWidth: 16][WorldHeight: 16][Seed: 32][Tick: 32]
//	[Motd: 8-bit length][align][bytes][align]
//	[Roster count: 5] then per entry [PlayerID: 16][Username]
type Welcome struct {
	PlayerID    uint16
	WorldWidth  uint16
	WorldHeight uint16
	Seed        uint32
	Tick        uint32
	Motd        string
	Roster      []RosterEntry
}

// Kind returns KindWelcome.
func (*Welcome) Kind() Kind { return KindWelcome }

func (m *Welcome) serialize(s stream) error {
	if err := serializeUint(s, &m.PlayerID, playerIDBits); err != nil {
		return err
	}
	if err := serializeUint(s, &m.WorldWidth, worldSizeBits); err != nil {
		return err
	}
	if err := serializeUint(s, &m.WorldHeight, worldSizeBits); err != nil {
		return err
	}
	if err := serializeUint(s, &m.Seed, seedBits); err != nil {
		return err
	}
	if err := serializeUint(s, &m.Tick, tickBits); err != nil {
		return err
	}
	if err := serializeString(s, &m.Motd, MotdLengthBits, MaxMotdLength); err != nil {
		return err
	}
	return serializeList(s, &m.Roster, rosterCountBits, MaxRosterSize, serializeRosterEntry)
}
