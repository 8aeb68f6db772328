// Package livesync keeps a client's view of a remote knowledge store in sync
// over a single WebSocket connection: it owns the connection lifecycle with
// automatic reconnection, decodes the inbound event protocol, records detected
// conflicts, and relays user resolution decisions upstream.
package livesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	kiterr "github.com/knovault/go-live-sync/errors"
	"github.com/knovault/go-live-sync/logging"
	"github.com/knovault/go-live-sync/wire"
)

// Status is the connection state exposed to consumers. Exactly one value at
// any instant.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// ErrManagerClosed is returned by operations on a closed manager.
var ErrManagerClosed = errors.New("manager is closed")

// Options configures a Manager. All fields are fixed at construction.
type Options struct {
	// URL of the sync endpoint. Resolved through ResolveURL when empty.
	URL string

	// Reconnect policy for this connection instance
	Reconnect ReconnectPolicy

	// OutboxLimit bounds the queued-command buffer (default 64)
	OutboxLimit int

	// Logger defaults to the package logger with a manager component
	Logger *logging.Logger
}

// Manager owns the socket lifecycle: one logical connection per instance,
// driven by socket callbacks and reconnect timers. All callbacks for a
// connection carry its generation number; callbacks from an older generation
// are ignored, so a stale socket or timer can never revive torn-down state.
type Manager struct {
	dialer Dialer
	store  ConflictStore
	url    string
	policy ReconnectPolicy
	logger *logging.Logger

	mu        sync.Mutex
	status    Status
	gen       uint64
	sock      Socket
	attempts  int // consecutive failed attempts in the current outage
	backoff   BackoffStrategy
	retry     *ScheduledTask
	lastEvent wire.Event
	lastError error
	closed    bool

	statusSubs []func(Status)
	eventSubs  []func(wire.Event)

	outbox *outbox
}

// NewManager creates a connection manager. store may be nil when the caller
// handles conflict_detected events itself.
func NewManager(dialer Dialer, store ConflictStore, opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default().WithComponent(logging.Component("manager"))
	}
	policy := opts.Reconnect
	url := opts.URL
	if url == "" {
		url = ResolveURL("")
	}

	return &Manager{
		dialer:  dialer,
		store:   store,
		url:     url,
		policy:  policy,
		logger:  logger,
		status:  StatusDisconnected,
		backoff: policy.backoff(),
		outbox:  newOutbox(opts.OutboxLimit),
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastEvent returns the most recently decoded inbound event, or nil.
func (m *Manager) LastEvent() wire.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEvent
}

// LastError returns the most recent transport or exhaustion error, or nil.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// QueuedCommands reports how many outbound commands await delivery.
func (m *Manager) QueuedCommands() int {
	return m.outbox.len()
}

// OnStatusChange registers a callback invoked after every status transition.
// Callbacks run outside the manager lock, in transition order.
func (m *Manager) OnStatusChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusSubs = append(m.statusSubs, fn)
}

// OnEvent registers a callback for every decoded inbound event.
func (m *Manager) OnEvent(fn func(wire.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventSubs = append(m.eventSubs, fn)
}

// Connect idempotently ensures a connection attempt is in flight. Calling it
// while connecting, connected, or waiting on a reconnect timer is a no-op.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return kiterr.New(kiterr.OpConnect, ErrManagerClosed)
	}
	switch m.status {
	case StatusConnecting, StatusConnected, StatusReconnecting:
		m.mu.Unlock()
		return nil
	}
	// Fresh explicit connect starts the backoff cycle over.
	m.attempts = 0
	m.backoff.Reset()
	notify := m.startDialLocked()
	m.mu.Unlock()
	notify()
	return nil
}

// Disconnect forcibly closes the socket, cancels any pending reconnection
// timer, and moves to disconnected. This is the only sanctioned way to
// permanently stop retries short of Close.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	sock, notify := m.teardownLocked()
	m.mu.Unlock()

	var err error
	if sock != nil {
		err = sock.Close()
	}
	notify()
	if err != nil {
		m.logger.LogError(context.Background(), err, "socket close failed")
	}
	return nil
}

// Close disposes the manager: the socket is closed, pending timers are
// cancelled, and every later socket or timer callback is ignored.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sock, notify := m.teardownLocked()
	m.mu.Unlock()

	var err error
	if sock != nil {
		err = sock.Close()
	}
	notify()
	if err != nil {
		return kiterr.NewWithComponent(kiterr.OpClose, "manager", err)
	}
	return nil
}

// Send writes one command frame upstream. It is rejected unless the status
// is connected.
func (m *Manager) Send(cmd wire.Command) error {
	frame, err := wire.Encode(cmd)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return kiterr.New(kiterr.OpSend, ErrManagerClosed)
	}
	if m.status != StatusConnected || m.sock == nil {
		status := m.status
		m.mu.Unlock()
		return kiterr.NewSendRejected(string(status))
	}
	sock := m.sock
	m.mu.Unlock()

	if err := sock.Send(frame); err != nil {
		return kiterr.NewTransportError(kiterr.OpSend, err)
	}
	return nil
}

// SendOrQueue attempts Send and, when the connection is unavailable or the
// write fails, queues the encoded command for delivery after the next
// successful connect. The only errors it returns are encode failures and a
// closed manager.
func (m *Manager) SendOrQueue(cmd wire.Command) error {
	frame, err := wire.Encode(cmd)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return kiterr.New(kiterr.OpSend, ErrManagerClosed)
	}
	connected := m.status == StatusConnected && m.sock != nil
	sock := m.sock
	m.mu.Unlock()

	if connected {
		err := sock.Send(frame)
		if err == nil {
			return nil
		}
		m.logger.LogError(context.Background(), kiterr.NewTransportError(kiterr.OpSend, err),
			"send failed, queuing command for redelivery")
	}

	if dropped := m.outbox.add(frame); dropped > 0 {
		m.logger.Warn("outbox full, dropped oldest queued commands",
			slog.Int("dropped", dropped))
	}
	return nil
}

// startDialLocked begins a new connection attempt under the manager lock and
// returns the status notifier to run after unlocking.
func (m *Manager) startDialLocked() func() {
	m.gen++
	gen := m.gen
	notify := m.setStatusLocked(StatusConnecting)
	m.sock = m.dialer.Dial(m.url, &socketCallbacks{m: m, gen: gen})
	return notify
}

// teardownLocked invalidates all outstanding callbacks and timers and moves
// to disconnected. Returns the socket to close outside the lock.
func (m *Manager) teardownLocked() (Socket, func()) {
	if m.retry != nil {
		m.retry.Cancel()
		m.retry = nil
	}
	m.gen++ // stale socket callbacks bounce off this
	sock := m.sock
	m.sock = nil
	notify := m.setStatusLocked(StatusDisconnected)
	return sock, notify
}

// setStatusLocked records the transition and returns a function that invokes
// the status subscribers outside the lock.
func (m *Manager) setStatusLocked(s Status) func() {
	if m.status == s {
		return func() {}
	}
	m.status = s
	subs := make([]func(Status), len(m.statusSubs))
	copy(subs, m.statusSubs)
	return func() {
		for _, fn := range subs {
			fn(s)
		}
	}
}

type socketCallbacks struct {
	m   *Manager
	gen uint64
}

func (c *socketCallbacks) OnOpen()               { c.m.handleOpen(c.gen) }
func (c *socketCallbacks) OnMessage(data []byte) { c.m.handleMessage(c.gen, data) }
func (c *socketCallbacks) OnClose(err error)     { c.m.handleClose(c.gen, err) }

func (m *Manager) handleOpen(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.backoff.Reset()
	m.lastError = nil
	sock := m.sock
	notify := m.setStatusLocked(StatusConnected)
	m.mu.Unlock()

	m.logger.Info("connected", slog.String("url", m.url))
	notify()
	m.flushOutbox(sock)
}

func (m *Manager) flushOutbox(sock Socket) {
	queued := m.outbox.drain()
	for i, frame := range queued {
		if err := sock.Send(frame); err != nil {
			m.logger.LogError(context.Background(), kiterr.NewTransportError(kiterr.OpSend, err),
				"outbox flush interrupted, re-queuing remainder",
				slog.Int("remaining", len(queued)-i))
			m.outbox.requeue(queued[i:])
			return
		}
	}
	if len(queued) > 0 {
		m.logger.Info("outbox flushed", slog.Int("commands", len(queued)))
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ev, err := wire.Decode(data)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownType) {
			// Forward compatibility: newer servers may emit types this
			// client does not know yet.
			m.logger.Debug("ignoring unknown event type",
				slog.String("frame", wire.TruncateForLog(data)))
			return
		}
		m.logger.LogError(context.Background(), err, "dropping malformed frame",
			slog.String("frame", wire.TruncateForLog(data)))
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.lastEvent = ev
	subs := make([]func(wire.Event), len(m.eventSubs))
	copy(subs, m.eventSubs)
	m.mu.Unlock()

	if cd, ok := ev.(wire.ConflictDetected); ok && m.store != nil {
		if err := m.store.Record(context.Background(), ConflictFromEvent(cd)); err != nil {
			m.logger.LogError(context.Background(), err, "failed to record detected conflict",
				slog.String("conflict_id", cd.ID))
		}
	}

	for _, fn := range subs {
		fn(ev)
	}
}

func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.sock = nil

	var notifies []func()
	if cause != nil {
		m.lastError = kiterr.NewTransportError(kiterr.OpConnect, cause)
		notifies = append(notifies, m.setStatusLocked(StatusError))
	}

	var logAfter func()
	switch {
	case !m.policy.Enabled:
		notifies = append(notifies, m.setStatusLocked(StatusDisconnected))
		logAfter = func() {
			m.logger.Info("connection closed, reconnection disabled")
		}
	case m.policy.MaxAttempts > 0 && m.attempts >= m.policy.MaxAttempts:
		exhausted := kiterr.NewReconnectExhausted(m.attempts)
		m.lastError = exhausted
		notifies = append(notifies, m.setStatusLocked(StatusDisconnected))
		logAfter = func() {
			m.logger.LogError(context.Background(), exhausted, "reconnect attempts exhausted")
		}
	default:
		delay := m.backoff.NextDelay(m.attempts)
		m.attempts++
		attempt := m.attempts
		timerGen := m.gen
		m.retry = schedule(delay, func() { m.redial(timerGen) })
		notifies = append(notifies, m.setStatusLocked(StatusReconnecting))
		logAfter = func() {
			m.logger.Info("reconnect scheduled",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
		}
	}
	m.mu.Unlock()

	if cause != nil {
		m.logger.LogError(context.Background(), kiterr.NewTransportError(kiterr.OpConnect, cause),
			"connection lost")
	}
	for _, n := range notifies {
		n()
	}
	logAfter()
}

// redial runs when a reconnect timer fires. The generation check makes a
// timer that lost the race with Disconnect or Close a no-op.
func (m *Manager) redial(expectedGen uint64) {
	m.mu.Lock()
	if m.closed || expectedGen != m.gen || m.status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	notify := m.startDialLocked()
	m.mu.Unlock()
	notify()
}
