// Package server provides the game server's connection layer.
//
// The server accepts player connections over a transport.Network, keeps one
// record per connected address and relays chat between players. It does not
// simulate the world itself; inputs are handed to a Simulation hook and the
// simulation pushes world state back out with Send and BroadcastMsg.
//
// # Architecture
//
//   - Server: owns the transport host and the peer records
//   - Peer records: player id, username, activity times, last input batch
//   - Chat history: every relayed line, archived on shutdown
//   - AdminRouter: read-only HTTP view of peers, chat and metrics
//
// # Connection Lifecycle
//
//  1. The transport accepts the connection; a player id is assigned
//  2. The first packet triggers the welcome basket: a Welcome to the new
//     peer and a server chat line announcing the join to everyone
//  3. Identify sets the username and is announced with GlobalEvent Join
//  4. ChatMessage is stamped with the sender's identity and rebroadcast
//  5. Disconnect or timeout removes the record and announces the leave
//
// # Example Usage
//
//	srv := server.New(server.DefaultConfig().
//	    WithNetwork(transport.NewUDPNetwork(nil)).
//	    WithMaxPeers(8))
//	if err := srv.OpenTransport(4040); err != nil {
//	    return err
//	}
//	go http.ListenAndServe(":8080", srv.AdminRouter())
//	err := srv.Listen(ctx) // until ctx is done
//	srv.CloseSocket()
//
// # Thread Safety
//
// Listen must be called from a single goroutine. Peers, ChatTranscript,
// Stats and the broadcast methods are safe to call from any goroutine while
// Listen runs.
package server
