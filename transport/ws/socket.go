// Package ws implements the livesync Socket and Dialer interfaces over a
// real WebSocket connection using gorilla/websocket.
package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	livesync "github.com/knovault/go-live-sync"
	kiterr "github.com/knovault/go-live-sync/errors"
	"github.com/knovault/go-live-sync/logging"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Options tunes the dialer. Zero values select the defaults above.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *logging.Logger
}

// Dialer opens WebSocket connections. It satisfies livesync.Dialer: Dial
// returns immediately and the handshake completes on a background goroutine.
type Dialer struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	logger           *logging.Logger
}

var _ livesync.Dialer = (*Dialer)(nil)

func NewDialer(opts Options) *Dialer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Dialer{
		handshakeTimeout: opts.HandshakeTimeout,
		writeTimeout:     opts.WriteTimeout,
		logger:           opts.Logger,
	}
}

func (d *Dialer) Dial(url string, h livesync.SocketHandler) livesync.Socket {
	s := &socket{
		handler:      h,
		writeTimeout: d.writeTimeout,
		logger:       d.logger,
	}
	go s.run(url, d.handshakeTimeout)
	return s
}

// socket wraps one gorilla connection. The write mutex serializes Send
// against the close path; gorilla allows one concurrent writer only.
type socket struct {
	handler      livesync.SocketHandler
	writeTimeout time.Duration
	logger       *logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	closeOnce sync.Once
}

// run performs the handshake and then pumps inbound frames until the
// connection dies. All handler callbacks for this socket happen on this
// goroutine, which keeps them serialized.
func (s *socket) run(url string, handshakeTimeout time.Duration) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		s.finish(kiterr.NewTransportError(kiterr.OpConnect, fmt.Errorf("dial %s: %w", url, err)))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		s.finish(nil)
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Debug("websocket open", "url", url)
	s.handler.OnOpen()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.finish(s.closeCause(err))
			return
		}
		s.handler.OnMessage(data)
	}
}

// closeCause maps a read error to the OnClose argument: nil for a clean or
// locally initiated close, a transport error otherwise.
func (s *socket) closeCause(err error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return kiterr.NewTransportError(kiterr.OpConnect, err)
}

func (s *socket) finish(cause error) {
	s.closeOnce.Do(func() {
		s.handler.OnClose(cause)
	})
}

func (s *socket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn == nil {
		return kiterr.NewTransportError(kiterr.OpSend, fmt.Errorf("socket is not open"))
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return kiterr.NewTransportError(kiterr.OpSend, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return kiterr.NewTransportError(kiterr.OpSend, err)
	}
	return nil
}

func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		// Dial still in flight; run discards the connection when it lands.
		return nil
	}

	// Best-effort close handshake before dropping the connection.
	deadline := time.Now().Add(s.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug("close handshake skipped", "error", err)
	}
	return conn.Close()
}
