// Package realtime is the client-side adapter for the lucky draw
// websocket channel, shared by the admin and presenter surfaces. It keeps
// at most one live connection, reconnects with capped backoff, and queues
// outbound commands while disconnected so user actions survive transient
// connection loss.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Message is the wire envelope, mirroring the server's.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives every event delivered to the adapter, including the
// locally synthesized CONNECTED and DISCONNECTED.
type Handler func(Message)

// Locally synthesized event types. CONNECTED also arrives from the server
// on a fresh connection; handlers treat both the same way.
const (
	TypeConnected    = "CONNECTED"
	TypeDisconnected = "DISCONNECTED"
	TypePing         = "PING"
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateOpen
	stateClosing
)

// Config tunes the reconnect and queue behavior. Zero fields take the
// defaults below, which match the presenter's tolerances: quick first
// retry, 2.5s worst case between attempts.
type Config struct {
	BackoffBase time.Duration // first reconnect delay
	BackoffStep time.Duration // added per failed attempt
	BackoffCap  time.Duration // upper bound on the delay
	MaxRetries  int           // retry counter cap (bounds the delay growth, not the attempts)
	MaxQueue    int           // outbound queue bound; oldest entries are evicted first
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = 250 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 2500 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 8
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 80
	}
	return c
}

// Client maintains the realtime connection. Safe for use from multiple
// goroutines; all shared state is guarded by one mutex and handlers are
// invoked outside of it.
type Client struct {
	url    string
	config Config
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu              sync.Mutex
	conn            *websocket.Conn
	state           connState
	queue           [][]byte
	retry           int
	reconnectTimer  clockwork.Timer
	shouldReconnect bool

	handlerMu sync.Mutex
	handlers  map[int]Handler
	nextID    int
}

// NewClient creates an adapter for the given websocket URL. A nil clock
// uses the real clock.
func NewClient(url string, config Config, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		url:      url,
		config:   config.withDefaults(),
		dialer:   websocket.DefaultDialer,
		clock:    clock,
		handlers: make(map[int]Handler),
	}
}

// On registers a handler for delivered events and returns an unsubscribe
// function.
func (c *Client) On(fn Handler) func() {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	return func() {
		c.handlerMu.Lock()
		defer c.handlerMu.Unlock()
		delete(c.handlers, id)
	}
}

// Connect establishes the connection. A call while already connecting or
// connected is a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == stateConnecting || c.state == stateOpen {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.shouldReconnect = true
	c.mu.Unlock()

	go c.dial()
}

// Disconnect closes the connection and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = stateClosing
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.mu.Lock()
	c.state = stateDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.emit(Message{Type: TypeDisconnected})
	}
}

// Send delivers a command to the server, or queues it when the connection
// is not open. Commands are never silently dropped on disconnect; only
// sustained queue overflow evicts, oldest first.
func (c *Client) Send(msgType string, payload any) {
	frame, err := encode(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to encode outbound message")
		return
	}

	c.mu.Lock()
	if c.state == stateDisconnected {
		c.state = stateConnecting
		c.shouldReconnect = true
		go c.dial()
	}

	if c.state != stateOpen || c.conn == nil {
		c.enqueueLocked(frame)
		c.mu.Unlock()
		return
	}

	conn := c.conn
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		// Queue it and let the reconnect flush deliver it.
		c.enqueueLocked(frame)
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.mu.Unlock()
}

func (c *Client) enqueueLocked(frame []byte) {
	c.queue = append(c.queue, frame)
	if over := len(c.queue) - c.config.MaxQueue; over > 0 {
		c.queue = c.queue[over:]
	}
}

// QueueLen returns the number of queued outbound frames.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) dial() {
	conn, resp, err := c.dialer.Dial(c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Debug().Err(err).Str("url", c.url).Msg("websocket dial failed")
		c.handleClosed()
		return
	}

	c.mu.Lock()
	if !c.shouldReconnect {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = stateOpen
	c.retry = 0
	c.mu.Unlock()

	c.emit(Message{Type: TypeConnected})
	c.Send(TypePing, map[string]int64{"t": c.clock.Now().UnixMilli()})
	c.flushQueue()

	go c.readLoop(conn)
}

// flushQueue sends queued frames in FIFO order. A failure mid-flush puts
// the unsent remainder back at the head and aborts; the next successful
// open retries.
func (c *Client) flushQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen || c.conn == nil || len(c.queue) == 0 {
		return
	}

	pending := c.queue
	c.queue = nil
	for i, frame := range pending {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Debug().Err(err).Int("remaining", len(pending)-i).Msg("flush aborted, re-queueing")
			c.queue = append(pending[i:], c.queue...)
			return
		}
	}
	log.Debug().Int("flushed", len(pending)).Msg("flushed queued messages")
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			continue
		}
		c.emit(msg)
	}

	c.mu.Lock()
	if c.conn != conn {
		// A newer connection superseded this one; nothing to do.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
	c.handleClosed()
}

// handleClosed records the disconnect, notifies handlers, and schedules
// the next attempt with capped backoff.
func (c *Client) handleClosed() {
	c.mu.Lock()
	c.state = stateDisconnected
	if !c.shouldReconnect {
		c.mu.Unlock()
		c.emit(Message{Type: TypeDisconnected})
		return
	}

	delay := c.config.BackoffBase + time.Duration(c.retry)*c.config.BackoffStep
	if delay > c.config.BackoffCap {
		delay = c.config.BackoffCap
	}
	if c.retry < c.config.MaxRetries {
		c.retry++
	}

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = c.clock.AfterFunc(delay, c.Connect)
	c.mu.Unlock()

	log.Debug().Dur("delay", delay).Msg("websocket closed, reconnect scheduled")
	c.emit(Message{Type: TypeDisconnected})
}

// NextDelay reports the delay the next reconnect attempt would use, given
// the current retry counter.
func (c *Client) NextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	delay := c.config.BackoffBase + time.Duration(c.retry)*c.config.BackoffStep
	if delay > c.config.BackoffCap {
		delay = c.config.BackoffCap
	}
	return delay
}

func (c *Client) emit(msg Message) {
	c.handlerMu.Lock()
	fns := make([]Handler, 0, len(c.handlers))
	for _, fn := range c.handlers {
		fns = append(fns, fn)
	}
	c.handlerMu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}
