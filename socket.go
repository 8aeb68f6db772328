package livesync

// Socket is the capability surface the connection manager needs from an open
// (or opening) transport connection. Implementations wrap a real WebSocket;
// tests substitute an in-memory fake.
type Socket interface {
	// Send writes one text frame. Implementations must be safe for
	// concurrent senders.
	Send(data []byte) error

	// Close tears the connection down. Further callbacks may still be in
	// flight; the manager discards them by generation.
	Close() error
}

// SocketHandler receives the socket's lifecycle callbacks. For a given
// socket the callbacks are serialized: OnOpen happens first, OnMessage calls
// arrive in frame order, and OnClose is final.
type SocketHandler interface {
	// OnOpen signals a successful open acknowledgment from the transport
	OnOpen()

	// OnMessage delivers one inbound text frame
	OnMessage(data []byte)

	// OnClose signals the connection is gone. err is nil for a clean
	// close and non-nil for a transport error (including dial failure).
	OnClose(err error)
}

// Dialer opens sockets. Dial must not block: it returns a Socket handle
// immediately and reports the outcome through h. A dial that never reaches
// OnOpen ends with OnClose carrying the dial error.
type Dialer interface {
	Dial(url string, h SocketHandler) Socket
}
