// Package world keeps a client's local view of the game world, built from
// the messages the server sends.
package world

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dbechrd/slimerrt/pkg/history"
	"github.com/dbechrd/slimerrt/pkg/protocol"
)

var (
	// ErrNotWelcomed is returned for world data that arrives before Welcome.
	ErrNotWelcomed = errors.New("world: no welcome received")

	// ErrStaleSnapshot is returned for a snapshot no newer than the latest one.
	ErrStaleSnapshot = errors.New("world: stale snapshot")

	// ErrBadChunk is returned for a chunk with the wrong tile count or
	// coordinates outside the world.
	ErrBadChunk = errors.New("world: malformed chunk")
)

// ChunkCoord addresses a chunk in chunk units.
type ChunkCoord struct {
	X, Y int16
}

// Player is a roster entry together with its latest known state.
type Player struct {
	ID       uint16
	Username string
	State    protocol.PlayerState
	Seen     bool // State has been set by a snapshot or nearby event
}

// Config sizes the history rings.
type Config struct {
	// SnapshotHistory is the number of snapshots kept for interpolation.
	// Default: 32.
	SnapshotHistory int

	// InputHistory is the number of local input samples kept for
	// reconciliation.
	// Default: 64.
	InputHistory int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotHistory: 32,
		InputHistory:    64,
		Now:             time.Now,
	}
}

// State is a client's view of the world. It is not safe for concurrent use;
// the goroutine that drives the connection owns it.
type State struct {
	now func() time.Time

	welcomed bool
	playerID uint16
	width    uint16
	height   uint16
	seed     uint32
	tick     uint32
	motd     string
	inputAck uint32

	players map[uint16]*Player
	chunks  map[ChunkCoord][]byte
	npcs    map[uint32]protocol.NPCState
	items   map[uint32]protocol.ItemState

	snapshots *history.Ring[protocol.WorldSnapshot]
	inputs    *history.Ring[protocol.InputSample]
}

// New creates an empty world.
func New(cfg Config) *State {
	d := DefaultConfig()
	if cfg.SnapshotHistory <= 0 {
		cfg.SnapshotHistory = d.SnapshotHistory
	}
	if cfg.InputHistory <= 0 {
		cfg.InputHistory = d.InputHistory
	}
	if cfg.Now == nil {
		cfg.Now = d.Now
	}
	s := &State{
		now:       cfg.Now,
		snapshots: history.NewRing[protocol.WorldSnapshot](cfg.SnapshotHistory),
		inputs:    history.NewRing[protocol.InputSample](cfg.InputHistory),
	}
	s.clear()
	return s
}

func (s *State) clear() {
	s.welcomed = false
	s.playerID, s.width, s.height = 0, 0, 0
	s.seed, s.tick, s.inputAck = 0, 0, 0
	s.motd = ""
	s.players = make(map[uint16]*Player)
	s.chunks = make(map[ChunkCoord][]byte)
	s.npcs = make(map[uint32]protocol.NPCState)
	s.items = make(map[uint32]protocol.ItemState)
	s.snapshots.Reset()
	s.inputs.Reset()
}

// Reset forgets everything, as after a disconnect.
func (s *State) Reset() { s.clear() }

// ApplyWelcome replaces the world with the parameters and roster in m.
func (s *State) ApplyWelcome(m *protocol.Welcome) error {
	s.clear()
	s.welcomed = true
	s.playerID = m.PlayerID
	s.width = m.WorldWidth
	s.height = m.WorldHeight
	s.seed = m.Seed
	s.tick = m.Tick
	s.motd = m.Motd
	for _, e := range m.Roster {
		s.players[e.PlayerID] = &Player{ID: e.PlayerID, Username: e.Username}
	}
	return nil
}

// ApplyChunk stores the tiles of one chunk, replacing any earlier copy.
func (s *State) ApplyChunk(m *protocol.WorldChunk) error {
	if !s.welcomed {
		return ErrNotWelcomed
	}
	if len(m.Tiles) != protocol.MaxChunkTiles {
		return fmt.Errorf("%w: %d tiles, want %d", ErrBadChunk, len(m.Tiles), protocol.MaxChunkTiles)
	}
	if !s.chunkInBounds(m.X, m.Y) {
		return fmt.Errorf("%w: chunk (%d,%d) outside %dx%d world", ErrBadChunk, m.X, m.Y, s.width, s.height)
	}
	s.chunks[ChunkCoord{m.X, m.Y}] = slices.Clone(m.Tiles)
	return nil
}

func (s *State) chunkInBounds(x, y int16) bool {
	if x < 0 || y < 0 {
		return false
	}
	return int(x)*protocol.ChunkWidth < int(s.width) && int(y)*protocol.ChunkWidth < int(s.height)
}

// ApplySnapshot records an authoritative snapshot. Snapshots must arrive
// with strictly increasing ticks; older ones are rejected with
// ErrStaleSnapshot and change nothing.
func (s *State) ApplySnapshot(m *protocol.WorldSnapshot) error {
	if !s.welcomed {
		return ErrNotWelcomed
	}
	if latest := s.snapshots.Newest(); latest != nil && m.Tick <= latest.Value.Tick {
		return fmt.Errorf("%w: tick %d, have %d", ErrStaleSnapshot, m.Tick, latest.Value.Tick)
	}

	snap := protocol.WorldSnapshot{
		Tick:     m.Tick,
		InputAck: m.InputAck,
		Players:  slices.Clone(m.Players),
		NPCs:     slices.Clone(m.NPCs),
		Items:    slices.Clone(m.Items),
	}
	s.snapshots.Push(snap, s.now())

	s.tick = m.Tick
	if m.InputAck > s.inputAck {
		s.inputAck = m.InputAck
	}
	for _, ps := range m.Players {
		p := s.player(ps.ID)
		p.State = ps
		p.Seen = true
	}
	clear(s.npcs)
	for _, n := range m.NPCs {
		s.npcs[n.ID] = n
	}
	clear(s.items)
	for _, it := range m.Items {
		s.items[it.ID] = it
	}
	return nil
}

// ApplyGlobalEvent adds or removes a roster entry.
func (s *State) ApplyGlobalEvent(m *protocol.GlobalEvent) error {
	switch m.Type {
	case protocol.GlobalEventJoin:
		s.player(m.PlayerID).Username = m.Username
	case protocol.GlobalEventLeave:
		delete(s.players, m.PlayerID)
	default:
		return fmt.Errorf("world: unknown global event %d", m.Type)
	}
	return nil
}

// ApplyNearbyEvent updates one entity between snapshots.
func (s *State) ApplyNearbyEvent(m *protocol.NearbyEvent) error {
	if !s.welcomed {
		return ErrNotWelcomed
	}
	switch m.Type {
	case protocol.NearbySpawn, protocol.NearbyMove:
		s.place(m)
	case protocol.NearbyAttack:
		s.damage(m.TargetID, m.Damage)
		if m.Entity == protocol.EntityPlayer {
			if p, ok := s.players[uint16(m.EntityID)]; ok {
				p.State.Attacking = true
			}
		}
	case protocol.NearbyDespawn:
		switch m.Entity {
		case protocol.EntityPlayer:
			if p, ok := s.players[uint16(m.EntityID)]; ok {
				p.Seen = false
			}
		case protocol.EntityNPC:
			delete(s.npcs, m.EntityID)
		case protocol.EntityItem:
			delete(s.items, m.EntityID)
		}
	default:
		return fmt.Errorf("world: unknown nearby event %d", m.Type)
	}
	return nil
}

func (s *State) place(m *protocol.NearbyEvent) {
	switch m.Entity {
	case protocol.EntityPlayer:
		p := s.player(uint16(m.EntityID))
		p.State.ID = p.ID
		p.State.X, p.State.Y = m.X, m.Y
		p.State.Moving = m.Type == protocol.NearbyMove
		p.Seen = true
	case protocol.EntityNPC:
		n := s.npcs[m.EntityID]
		n.ID, n.X, n.Y = m.EntityID, m.X, m.Y
		s.npcs[m.EntityID] = n
	case protocol.EntityItem:
		it := s.items[m.EntityID]
		it.ID, it.X, it.Y = m.EntityID, m.X, m.Y
		s.items[m.EntityID] = it
	}
}

// damage lowers the hit points of whatever target has, saturating at zero.
// Targets are looked up among NPCs first, then players.
func (s *State) damage(target uint32, amount uint16) {
	if n, ok := s.npcs[target]; ok {
		n.HP = saturatingSub(n.HP, amount)
		s.npcs[target] = n
		return
	}
	if target <= 0xFFFF {
		if p, ok := s.players[uint16(target)]; ok {
			p.State.HP = saturatingSub(p.State.HP, amount)
		}
	}
}

func saturatingSub(a, b uint16) uint16 {
	if b >= a {
		return 0
	}
	return a - b
}

func (s *State) player(id uint16) *Player {
	p, ok := s.players[id]
	if !ok {
		p = &Player{ID: id}
		s.players[id] = p
	}
	return p
}

// RecordInput keeps a locally applied input sample until the server
// acknowledges it.
func (s *State) RecordInput(sample protocol.InputSample) {
	s.inputs.Push(sample, s.now())
}

// PendingInputs returns the recorded samples newer than the last input tick
// the server acknowledged, oldest first. A client replays these on top of
// each snapshot.
func (s *State) PendingInputs() []protocol.InputSample {
	var out []protocol.InputSample
	s.inputs.Each(func(_ int, e *history.Entry[protocol.InputSample]) bool {
		if e.Value.Tick > s.inputAck {
			out = append(out, e.Value)
		}
		return true
	})
	return out
}

// Welcomed reports whether a Welcome has been applied.
func (s *State) Welcomed() bool { return s.welcomed }

// PlayerID returns the id the server assigned to this client.
func (s *State) PlayerID() uint16 { return s.playerID }

// Size returns the world dimensions in tiles.
func (s *State) Size() (width, height uint16) { return s.width, s.height }

// Seed returns the world generation seed.
func (s *State) Seed() uint32 { return s.seed }

// Tick returns the newest server tick seen.
func (s *State) Tick() uint32 { return s.tick }

// InputAck returns the newest input tick the server has acknowledged.
func (s *State) InputAck() uint32 { return s.inputAck }

// Motd returns the server's message of the day.
func (s *State) Motd() string { return s.motd }

// Player returns a copy of the player with the given id.
func (s *State) Player(id uint16) (Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Players returns every known player ordered by id.
func (s *State) Players() []Player {
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Player) int { return int(a.ID) - int(b.ID) })
	return out
}

// Username returns the name of the player with the given id, if known.
func (s *State) Username(id uint16) (string, bool) {
	p, ok := s.players[id]
	if !ok || p.Username == "" {
		return "", false
	}
	return p.Username, true
}

// NPC returns the state of an NPC.
func (s *State) NPC(id uint32) (protocol.NPCState, bool) {
	n, ok := s.npcs[id]
	return n, ok
}

// Item returns the state of a dropped item.
func (s *State) Item(id uint32) (protocol.ItemState, bool) {
	it, ok := s.items[id]
	return it, ok
}

// Chunk returns the tiles of a chunk. The slice must not be modified.
func (s *State) Chunk(x, y int16) ([]byte, bool) {
	tiles, ok := s.chunks[ChunkCoord{x, y}]
	return tiles, ok
}

// Tile returns the tile at world tile coordinates, if its chunk is loaded.
func (s *State) Tile(x, y int) (byte, bool) {
	if x < 0 || y < 0 || x >= int(s.width) || y >= int(s.height) {
		return 0, false
	}
	cx, cy := x/protocol.ChunkWidth, y/protocol.ChunkWidth
	tiles, ok := s.chunks[ChunkCoord{int16(cx), int16(cy)}]
	if !ok {
		return 0, false
	}
	return tiles[(y%protocol.ChunkWidth)*protocol.ChunkWidth+x%protocol.ChunkWidth], true
}

// Snapshots returns the number of buffered snapshots.
func (s *State) Snapshots() int { return s.snapshots.Count() }

// Snapshot returns the i-th oldest buffered snapshot and when it arrived.
func (s *State) Snapshot(i int) (protocol.WorldSnapshot, time.Time, bool) {
	e := s.snapshots.At(i)
	if e == nil {
		return protocol.WorldSnapshot{}, time.Time{}, false
	}
	return e.Value, e.Timestamp, true
}

// Interpolate returns a player's position between the two newest snapshots
// that contain it. alpha 0 is the older snapshot and 1 the newer; values
// outside [0,1] are clamped. ok is false when fewer than two snapshots
// contain the player.
func (s *State) Interpolate(id uint16, alpha float32) (x, y float32, ok bool) {
	alpha = min(max(alpha, 0), 1)

	var found []protocol.PlayerState
	for i := s.snapshots.Count() - 1; i >= 0 && len(found) < 2; i-- {
		for _, ps := range s.snapshots.At(i).Value.Players {
			if ps.ID == id {
				found = append(found, ps)
				break
			}
		}
	}
	if len(found) < 2 {
		return 0, 0, false
	}
	newer, older := found[0], found[1]
	x = older.X + (newer.X-older.X)*alpha
	y = older.Y + (newer.Y-older.Y)*alpha
	return x, y, true
}
