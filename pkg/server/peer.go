package server

import (
	"fmt"
	"slices"
	"time"

	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/dbechrd/slimerrt/pkg/transport"
)

// peer is the server's record of one connected address. id, addr, conn and
// firstSeen never change; the rest is written under Server.mu by the Listen
// goroutine.
type peer struct {
	conn      transport.Peer
	addr      string
	id        uint16
	firstSeen time.Time

	username   string
	lastActive time.Time
	lastInput  protocol.Input
	welcomed   bool
}

// displayName is the name used in server chat lines.
func (p *peer) displayName() string {
	if p.username != "" {
		return p.username
	}
	return fmt.Sprintf("Player #%d", p.id)
}

func (p *peer) info() PeerInfo {
	return PeerInfo{
		Addr:       p.addr,
		PlayerID:   p.id,
		Username:   p.username,
		FirstSeen:  p.firstSeen,
		LastActive: p.lastActive,
		LastInput:  slices.Clone(p.lastInput.Samples),
	}
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	Addr       string                 `json:"addr"`
	PlayerID   uint16                 `json:"player_id"`
	Username   string                 `json:"username,omitempty"`
	FirstSeen  time.Time              `json:"first_seen"`
	LastActive time.Time              `json:"last_active"`
	LastInput  []protocol.InputSample `json:"last_input,omitempty"`
}

// ReceivedPacket is a raw packet as it arrived from a peer.
type ReceivedPacket struct {
	Addr string
	Data []byte
}
