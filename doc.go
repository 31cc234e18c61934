/*
Package signalr implements the client side of the SignalR protocol: an
application-level RPC/streaming protocol layered on top of a transport
(WebSocket, Server-Sent Events or Long Polling) and a JSON hub message
framing.

Basics

The SignalR Protocol is a protocol for two-way RPC over any message-based
transport. Either party may invoke procedures on the other, and procedures
can return zero or more results or an error.

This package covers the core plumbing: negotiating with a server, selecting
and driving a transport, framing and parsing hub messages, and serialising
outgoing frames onto a single ordered send path. It intentionally does not
implement a "HubConnection" facade with invoke/on/stream semantics - that is
a consumer of this core, built on top of Connection.

Connecting

Call NewConnection with the server's base URL and functional options
(WithTransports, WithAccessTokenProvider, WithHeaders, ...), then call
Start. Start negotiates a connection token and transport with the server,
establishes the transport, and returns once the connection reaches the
Connected state - or returns an error and leaves the connection
Disconnected.

Sending and receiving

Send enqueues a hub message frame on the connection's send queue; it
returns once the frame has reached the transport. Inbound frames are
delivered to the OnReceive callback in network order; OnClose fires at most
once, when the transport closes or Stop is called.
*/
package signalr
