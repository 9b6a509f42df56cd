// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Timing constants for the websocket session.
const (
	dialTimeout = 10 * time.Second
	pingPeriod  = 30 * time.Second
	sendBuffer  = 64
)

// defaultBackoff is the reconnection delay schedule. The first retry is
// immediate; later retries back off up to the last entry, which repeats
// until either success or an explicit Stop.
var defaultBackoff = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// =============================================================================
// CONNECTION STATE
// =============================================================================

// State is the lifecycle state of a hub connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Identity is carried as connection-establishment parameters on the dial
// URL. The hub associates the session with this user.
type Identity struct {
	Email string
	Name  string
}

// =============================================================================
// WIRE ABSTRACTION
// =============================================================================

// Conn is the minimal surface of an established wire connection. The
// production implementation is *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes wire connections to a hub endpoint.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

type wsDialer struct {
	dialer *websocket.Dialer
}

func (d wsDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// EventHandler receives the raw payload of a server-pushed event.
// Handlers run synchronously on the read loop in registration order and
// must not block.
type EventHandler func(data json.RawMessage)

// =============================================================================
// SESSION
// =============================================================================

// session is one established wire connection with its pumps. A Connection
// holds at most one live session at a time.
type session struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// =============================================================================
// CONNECTION
// =============================================================================

// Connection owns exactly one logical real-time session to a hub endpoint.
// It exposes typed event subscription, a request/response invoke surface
// and connection-state observability. Transient mid-session losses trigger
// automatic reconnection with a capped backoff schedule; Stop is terminal
// until the next Start.
type Connection struct {
	endpoint string
	dialer   Dialer
	backoff  []time.Duration
	logger   *log.Logger

	// sleep waits for the given delay during reconnection and reports
	// whether the connection was stopped meanwhile. Replaced in tests.
	sleep func(d time.Duration) (stopped bool)

	mu       sync.Mutex
	state    State
	sess     *session
	identity Identity
	stopped  bool
	stopCh   chan struct{}
	gen      uint64

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler

	pendingMu sync.Mutex
	pending   map[string]chan *Envelope

	subsMu    sync.Mutex
	stateSubs []func(State)
}

// NewConnection creates a connection for the given hub endpoint URL
// (ws:// or wss://). The connection starts disconnected.
func NewConnection(endpoint string) *Connection {
	c := &Connection{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		dialer:   wsDialer{dialer: websocket.DefaultDialer},
		backoff:  defaultBackoff,
		logger:   log.Default(),
		stopped:  true,
		handlers: make(map[string][]EventHandler),
		pending:  make(map[string]chan *Envelope),
	}
	c.sleep = c.waitDelay
	return c
}

// WithDialer sets a custom dialer. Used by tests and tunneled transports.
func (c *Connection) WithDialer(d Dialer) *Connection {
	c.dialer = d
	return c
}

// WithBackoff sets a custom reconnection delay schedule. The schedule must
// be non-decreasing; the last entry repeats indefinitely.
func (c *Connection) WithBackoff(schedule []time.Duration) *Connection {
	if len(schedule) > 0 {
		c.backoff = schedule
	}
	return c
}

// WithLogger sets the logger used for transport diagnostics.
func (c *Connection) WithLogger(l *log.Logger) *Connection {
	if l != nil {
		c.logger = l
	}
	return c
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a callback invoked on every state transition.
// Callbacks run on their own goroutine and must not assume ordering
// relative to in-flight events.
func (c *Connection) OnStateChange(f func(State)) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.stateSubs = append(c.stateSubs, f)
}

// On registers a handler for a named server-pushed event. Multiple
// handlers per event are permitted; delivery order follows registration
// order.
func (c *Connection) On(event string, h EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start establishes the session, carrying the identity as query parameters
// on the dial URL. If the connection is already connected, Start is a
// no-op and returns nil. On failure the state settles at Disconnected and
// a ConnectError is returned; Start itself is never retried automatically.
func (c *Connection) Start(ctx context.Context, identity Identity) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.identity = identity
	c.stopped = false
	c.stopCh = make(chan struct{})
	c.gen++
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx, c.dialURL(identity))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.setStateLocked(StateDisconnected)
		return &ConnectError{Endpoint: c.endpoint, Err: err}
	}
	if c.stopped {
		_ = conn.Close()
		c.setStateLocked(StateDisconnected)
		return ErrStopped
	}
	c.installLocked(conn)
	return nil
}

// Stop tears down the session unconditionally and transitions to
// Disconnected. Safe to call when already disconnected; halts any
// reconnection in progress.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.stopCh != nil {
		close(c.stopCh)
	}
	sess := c.sess
	c.sess = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if sess != nil {
		sess.close()
	}
	c.failPending()
}

// installLocked swaps in a freshly dialed connection and starts its pumps.
// Caller holds c.mu.
func (c *Connection) installLocked(conn Conn) {
	sess := &session{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	c.sess = sess
	c.setStateLocked(StateConnected)
	go c.readPump(sess)
	go c.writePump(sess)
}

func (c *Connection) dialURL(identity Identity) string {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return c.endpoint
	}
	q := u.Query()
	q.Set("email", identity.Email)
	if identity.Name != "" {
		q.Set("name", identity.Name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// setStateLocked updates the state and notifies subscribers. Caller holds
// c.mu. Subscribers run on a separate goroutine so they can call back
// into the connection.
func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.subsMu.Lock()
	subs := make([]func(State), len(c.stateSubs))
	copy(subs, c.stateSubs)
	c.subsMu.Unlock()
	if len(subs) == 0 {
		return
	}
	go func() {
		for _, f := range subs {
			f(s)
		}
	}()
}

// =============================================================================
// PUMPS
// =============================================================================

func (c *Connection) readPump(sess *session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			sess.close()
			c.sessionEnded(sess)
			return
		}
		env, perr := ParseEnvelope(data)
		if perr != nil {
			c.logger.Printf("hub: dropping unparseable frame: %v", perr)
			continue
		}
		c.dispatch(sess, env)
	}
}

func (c *Connection) writePump(sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sess.close()
	}()

	for {
		select {
		case data := <-sess.send:
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			ping, _ := json.Marshal(&Envelope{Type: TypePing})
			if err := sess.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

// dispatch routes one inbound frame. Events are delivered synchronously on
// the read loop, so arrival order is preserved per connection.
func (c *Connection) dispatch(sess *session, env *Envelope) {
	switch env.Type {
	case TypeCompletion:
		c.pendingMu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- env
		}
	case TypeEvent:
		c.handlersMu.RLock()
		handlers := c.handlers[env.Target]
		c.handlersMu.RUnlock()
		for _, h := range handlers {
			h(env.Data)
		}
	case TypePing:
		pong, _ := json.Marshal(&Envelope{Type: TypePong})
		select {
		case sess.send <- pong:
		default:
		}
	case TypePong:
		// keepalive reply, nothing to do
	default:
		c.logger.Printf("hub: ignoring frame type %q", env.Type)
	}
}

// sessionEnded handles the end of a session's read loop: either a clean
// Stop or a transient loss that triggers reconnection.
func (c *Connection) sessionEnded(sess *session) {
	c.mu.Lock()
	if c.sess != sess {
		// Already superseded or torn down.
		c.mu.Unlock()
		return
	}
	c.sess = nil
	if c.stopped {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.failPending()
		return
	}
	c.setStateLocked(StateReconnecting)
	gen := c.gen
	c.mu.Unlock()

	c.failPending()
	c.logger.Printf("hub: session to %s lost, reconnecting", c.endpoint)
	go c.reconnectLoop(gen)
}

// reconnectLoop redials with the backoff schedule until success or Stop.
// gen pins the loop to the Start generation it was spawned under: a loop
// that wakes up after a Stop/Start cycle is superseded and must exit
// without touching state, or it would stamp Disconnected over the new
// live session.
func (c *Connection) reconnectLoop(gen uint64) {
	for attempt := 0; ; attempt++ {
		idx := attempt
		if idx >= len(c.backoff) {
			idx = len(c.backoff) - 1
		}
		if c.sleep(c.backoff[idx]) {
			c.mu.Lock()
			if c.gen == gen {
				c.setStateLocked(StateDisconnected)
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		if c.stopped {
			c.setStateLocked(StateDisconnected)
			c.mu.Unlock()
			return
		}
		identity := c.identity
		c.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := c.dialer.Dial(dialCtx, c.dialURL(identity))
		cancel()
		if err != nil {
			c.logger.Printf("hub: reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		c.mu.Lock()
		if c.gen != gen || c.stopped {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.installLocked(conn)
		c.mu.Unlock()
		c.logger.Printf("hub: reconnected to %s", c.endpoint)
		return
	}
}

// waitDelay blocks for d or until Stop, whichever comes first.
func (c *Connection) waitDelay(d time.Duration) bool {
	c.mu.Lock()
	stopCh := c.stopCh
	c.mu.Unlock()
	if d <= 0 {
		select {
		case <-stopCh:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-stopCh:
		return true
	}
}

// failPending drops every in-flight invocation; waiters observe the
// session's done channel and fail with ErrNotConnected.
func (c *Connection) failPending() {
	c.pendingMu.Lock()
	for id := range c.pending {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// =============================================================================
// INVOKE
// =============================================================================

// Invoke sends a request for the named hub method and waits for the server
// reply. If result is non-nil the reply payload is decoded into it. Fails
// with ErrNotConnected when no live session exists; the call is a
// precondition failure, never queued.
func (c *Connection) Invoke(ctx context.Context, target string, result any, args ...any) error {
	c.mu.Lock()
	sess := c.sess
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || sess == nil {
		return ErrNotConnected
	}

	id := uuid.NewString()
	env, err := NewInvocation(id, target, args)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	reply := make(chan *Envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()
	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	select {
	case sess.send <- data:
	case <-sess.done:
		cleanup()
		return ErrNotConnected
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	}

	select {
	case resp := <-reply:
		if resp.Error != "" {
			return &InvokeError{Target: target, Message: resp.Error}
		}
		if result != nil && len(resp.Result) > 0 {
			if uerr := json.Unmarshal(resp.Result, result); uerr != nil {
				return &InvokeError{Target: target, Message: "decode result: " + uerr.Error()}
			}
		}
		return nil
	case <-sess.done:
		cleanup()
		return ErrNotConnected
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	}
}
