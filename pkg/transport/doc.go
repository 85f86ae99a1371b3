// Package transport moves opaque packets between peers.
//
// The game protocol sits on top of a session layer that knows how to connect,
// deliver a packet, keep a connection alive and notice when it dies. This
// package defines that layer as three small interfaces and ships three
// implementations:
//
//   - Loopback: in-process, deterministic; for tests and local play
//   - UDPNetwork: datagrams with connect/accept/keep-alive control packets
//   - WebSocketNetwork: binary WebSocket frames; reliable and ordered
//
// A Host is driven by polling. Service returns the next event (connect,
// receive, disconnect or timeout) or EventNone when nothing arrived within the
// timeout. A zero timeout never blocks, which lets a game client drain events
// once per frame.
//
//	host, _ := network.Dial()
//	peer, _ := host.Connect(ctx, "127.0.0.1:4040")
//	for {
//	    ev, err := host.Service(0)
//	    if err != nil || ev.Type == transport.EventNone {
//	        break
//	    }
//	    switch ev.Type {
//	    case transport.EventConnect:
//	        peer.Send(hello, transport.SendReliable)
//	    case transport.EventReceive:
//	        handle(ev.Peer, ev.Data)
//	    }
//	}
//
// Retransmission, congestion control and encryption are not provided by the
// UDP implementation; sends are best effort.
package transport
