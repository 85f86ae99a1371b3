package server

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time summary of server activity. Prometheus metrics
// carry the same counters when Config.Metrics is set; Stats is always
// available.
type Stats struct {
	// Peers
	Peers      int    `json:"peers"`
	PeakPeers  int    `json:"peak_peers"`
	TotalPeers uint64 `json:"total_peers"`
	Refused    uint64 `json:"refused"`

	// Traffic
	PacketsReceived uint64 `json:"packets_received"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	BytesSent       uint64 `json:"bytes_sent"`

	// Errors
	DecodeErrors  uint64 `json:"decode_errors"`
	HandlerErrors uint64 `json:"handler_errors"`
	SendErrors    uint64 `json:"send_errors"`

	// Chat
	ChatRelayed uint64 `json:"chat_relayed"`
	ChatLines   int    `json:"chat_lines"`

	// Timestamps
	StartedAt   time.Time `json:"started_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// counters are updated from the Listen goroutine and read by Stats.
type counters struct {
	totalPeers      atomic.Uint64
	refused         atomic.Uint64
	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	packetsSent     atomic.Uint64
	bytesSent       atomic.Uint64
	decodeErrors    atomic.Uint64
	handlerErrors   atomic.Uint64
	sendErrors      atomic.Uint64
	chatRelayed     atomic.Uint64
}

func (c *counters) received(n int) {
	c.packetsReceived.Add(1)
	c.bytesReceived.Add(uint64(n))
}

func (c *counters) sent(n int) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
}

// Stats collects and returns server statistics.
func (s *Server) Stats() Stats {
	s.mu.RLock()
	peers, peak, lines := len(s.peers), s.peakPeers, s.chat.Count()
	s.mu.RUnlock()

	c := &s.counters
	return Stats{
		Peers:           peers,
		PeakPeers:       peak,
		TotalPeers:      c.totalPeers.Load(),
		Refused:         c.refused.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		PacketsSent:     c.packetsSent.Load(),
		BytesSent:       c.bytesSent.Load(),
		DecodeErrors:    c.decodeErrors.Load(),
		HandlerErrors:   c.handlerErrors.Load(),
		SendErrors:      c.sendErrors.Load(),
		ChatRelayed:     c.chatRelayed.Load(),
		ChatLines:       lines,
		StartedAt:       s.started,
		CollectedAt:     s.now(),
	}
}
