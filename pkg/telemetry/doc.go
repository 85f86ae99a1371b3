// Package telemetry records Prometheus metrics and OpenTelemetry spans for
// the game client and server.
//
// Both types are optional. A nil *Metrics or *Tracer is valid and records
// nothing, so callers never need to guard their instrumentation.
//
//	reg := prometheus.NewRegistry()
//	m := telemetry.NewMetrics(telemetry.WithRegistry(reg))
//	m.PacketReceived(len(data))
//
// Metrics collected (namespace "slimerrt" by default):
//   - packets_received_total, packets_sent_total
//   - packet_bytes_received_total, packet_bytes_sent_total
//   - messages_received_total, messages_sent_total: by message kind
//   - decode_errors_total: by reason
//   - send_errors_total
//   - connection_events_total: by event type
//   - peers: connected peer count
//   - chat_relayed_total
//   - broadcast_duration_seconds
package telemetry
