// Package client implements the game client's connection to a server.
//
// A Client owns one outbound connection. It is driven by polling: the game
// loop calls Receive once per frame, which drains every pending transport
// event without blocking, decodes packets and hands the messages to the chat
// history and the World collaborator.
//
//	c := client.New(client.DefaultConfig().WithNetwork(transport.NewUDPNetwork(nil)))
//	if err := c.OpenTransport(); err != nil {
//	    return err
//	}
//	if err := c.Connect(ctx, "127.0.0.1", 4040, "Sam", password); err != nil {
//	    return err
//	}
//	for running {
//	    c.Receive()
//	    render(c.Chat().Newest(10))
//	}
//
// # Connection States
//
//	Disconnected ──Connect──▶ Connecting ──transport connect──▶ Connected
//	     ▲                        │                                │
//	     │                    deadline                       Disconnect
//	     │                        ▼                                ▼
//	     └──────────────────── TimedOut              Disconnecting ──▶ Disconnected
//
// Identify is sent as soon as the transport reports the connection, and the
// password is wiped right after it is encoded.
//
// A Client is not safe for concurrent use. Its chat and packet histories
// belong to the goroutine that calls Receive.
package client
