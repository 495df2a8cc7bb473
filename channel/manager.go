// Package channel owns the task-scoped websocket connection to the
// course-generation backend: establishment, keepalive, teardown and a
// bounded reconnect policy. Decoded events flow one way to the
// registered callbacks; the package itself keeps no task state beyond
// what the connection lifecycle needs.
package channel

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"coursegen/config"
	"coursegen/event"
)

// State describes where the channel is in its connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Callbacks receive decoded events for the bound task. They are invoked
// sequentially from the connection's read loop, in transport order.
// Dispose must not be called from inside a callback.
type Callbacks struct {
	OnProgress   func(event.Progress)
	OnCompletion func(event.Completion)
	OnError      func(event.Error)
}

// Manager drives one websocket channel for exactly one task. It is not
// restartable for a different task; construct a fresh Manager instead.
type Manager struct {
	cfg     *config.Config
	taskID  string
	enabled bool
	cb      Callbacks
	url     string

	mu       sync.Mutex
	conn     *websocket.Conn
	open     bool
	dialing  bool
	disposed bool
	// finished marks the end of the channel's involvement with the task:
	// a delivered completion event or a normal closure from either side.
	finished  bool
	attempts  int
	retry     backoff.BackOff
	reconnect *time.Timer
	done      chan struct{}

	// cbMu serializes callback delivery so Dispose can wait out an
	// in-flight callback before returning.
	cbMu sync.Mutex
}

// EndpointURL derives the task-scoped websocket address from the HTTP
// API base: http becomes ws, https becomes wss.
func EndpointURL(apiBase, taskID string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("invalid API base %q: %w", apiBase, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/ws/course-generation/" + taskID
	return u.String(), nil
}

// NewManager builds a manager bound to taskID. A disabled manager (or
// one with an empty task id) treats Start as a no-op, which lets the
// caller wire the manager unconditionally and flip one switch.
func NewManager(cfg *config.Config, taskID string, enabled bool, cb Callbacks) (*Manager, error) {
	endpoint := ""
	if taskID != "" {
		var err error
		endpoint, err = EndpointURL(cfg.APIBase, taskID)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{
		cfg:     cfg,
		taskID:  taskID,
		enabled: enabled,
		cb:      cb,
		url:     endpoint,
		retry:   backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ReconnectDelay), cfg.MaxReconnectAttempts),
		done:    make(chan struct{}),
	}, nil
}

// IsOpen reports whether the channel currently has an open connection.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// State reports the channel's position in its lifecycle. Closed is
// final: it covers disposal, a completed task and a normal closure.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.disposed || m.finished:
		return StateClosed
	case m.open:
		return StateOpen
	case m.reconnect != nil:
		return StateReconnecting
	case m.dialing:
		return StateConnecting
	default:
		return StateDisconnected
	}
}

// Start opens the channel. A dial failure is handled like an abnormal
// close: it consumes one reconnect attempt and the manager keeps trying
// on its own until the budget runs out, at which point a synthesized
// error event is delivered.
func (m *Manager) Start() {
	if !m.enabled || m.taskID == "" {
		return
	}
	m.connect()
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.disposed || m.finished || m.dialing || m.conn != nil {
		m.mu.Unlock()
		return
	}
	m.dialing = true
	m.reconnect = nil
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(m.url, nil)
	if err != nil {
		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()
		log.Printf("channel: dial failed for task %s: %v", m.taskID, err)
		m.scheduleReconnect()
		return
	}
	conn.SetReadLimit(m.cfg.MaxFrameSize)

	m.mu.Lock()
	m.dialing = false
	if m.disposed {
		// Dispose raced the dial; shut the fresh connection down again.
		m.mu.Unlock()
		m.closeConn(conn)
		return
	}
	m.conn = conn
	m.open = true
	m.mu.Unlock()

	log.Printf("channel: connected for task %s", m.taskID)
	go m.readLoop(conn)
	go m.keepalive(conn)
}

// readLoop processes inbound frames in transport order until the
// connection dies, then decides whether to reconnect.
func (m *Manager) readLoop(conn *websocket.Conn) {
	proved := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}

		// The reconnect budget replenishes only once the link proves
		// live. A server that accepts the upgrade and drops it right
		// away keeps burning attempts rather than flapping forever.
		if !proved {
			proved = true
			m.mu.Lock()
			m.attempts = 0
			m.retry.Reset()
			m.mu.Unlock()
		}

		if string(data) == event.Pong {
			continue // keepalive acknowledgement, not an event
		}

		ev, ok := event.Decode(m.taskID, data)
		if !ok {
			log.Printf("channel: ignoring unrecognized frame for task %s: %.120s", m.taskID, data)
			continue
		}

		switch ev := ev.(type) {
		case event.Progress:
			m.deliverProgress(ev)
		case event.Completion:
			m.deliverCompletion(ev)
			// A completed or failed task needs no further traffic;
			// close our side with a normal-closure code.
			m.finish(conn)
		case event.Error:
			m.deliverError(ev)
		}
	}
}

// keepalive probes the link with a literal ping at a fixed interval for
// as long as this connection is the manager's current one. A failed
// send only stops the probe; reconnection is driven by the close event.
func (m *Manager) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		stale := m.conn != conn || !m.open
		m.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(event.Ping)); err != nil {
			log.Printf("channel: keepalive send failed for task %s: %v", m.taskID, err)
			return
		}
	}
}

// finish marks the task done and closes the connection with code 1000.
func (m *Manager) finish(conn *websocket.Conn) {
	m.mu.Lock()
	m.finished = true
	if m.conn == conn {
		m.conn = nil
		m.open = false
	}
	m.mu.Unlock()
	m.closeConn(conn)
}

// handleClose runs exactly once per connection, after its read loop
// ends. Normal closures (either side) end the channel's involvement;
// anything else feeds the reconnect policy.
func (m *Manager) handleClose(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// Already detached by finish or Dispose.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.open = false
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		// A normal closure from the peer ends our involvement the same
		// way a completion does.
		m.finished = true
	}
	stop := m.disposed || m.finished || !m.enabled
	m.mu.Unlock()

	_ = conn.Close()
	if stop {
		return
	}

	log.Printf("channel: connection lost for task %s: %v", m.taskID, err)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.disposed || m.finished {
		m.mu.Unlock()
		return
	}
	delay := m.retry.NextBackOff()
	if delay == backoff.Stop {
		attempts := m.attempts
		m.reconnect = nil
		m.mu.Unlock()
		log.Printf("channel: giving up on task %s after %d reconnect attempts", m.taskID, attempts)
		m.deliverError(event.Error{
			Type:    event.TypeError,
			TaskID:  m.taskID,
			Message: "connection lost: reconnect attempts exhausted",
		})
		return
	}
	m.attempts++
	attempt := m.attempts
	m.reconnect = time.AfterFunc(delay, m.connect)
	m.mu.Unlock()

	log.Printf("channel: scheduling reconnect %d for task %s in %s", attempt, m.taskID, delay)
}

// Dispose makes the manager inert: it cancels any pending reconnect,
// stops the keepalive, and closes an open connection with a normal
// closure code. After Dispose returns no further callbacks fire. It is
// safe to call repeatedly and from any state.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	close(m.done)
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	conn := m.conn
	m.conn = nil
	m.open = false
	m.mu.Unlock()

	if conn != nil {
		m.closeConn(conn)
	}

	// Wait out any callback already in flight.
	m.cbMu.Lock()
	m.cbMu.Unlock() //nolint:staticcheck // empty critical section is the point
}

// closeConn sends a normal-closure frame and tears the connection down.
// Best effort on both counts; the peer may already be gone.
func (m *Manager) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (m *Manager) deliverProgress(ev event.Progress) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	if m.dead() || m.cb.OnProgress == nil {
		return
	}
	m.cb.OnProgress(ev)
}

func (m *Manager) deliverCompletion(ev event.Completion) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	if m.dead() || m.cb.OnCompletion == nil {
		return
	}
	m.cb.OnCompletion(ev)
}

func (m *Manager) deliverError(ev event.Error) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	if m.dead() || m.cb.OnError == nil {
		return
	}
	m.cb.OnError(ev)
}

func (m *Manager) dead() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}
