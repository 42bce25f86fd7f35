package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/luckydraw/go/internal/draw"
	"github.com/rs/zerolog/log"
)

// Hub manages the realtime websocket connections and owns the draw state
// machine. All inbound commands are funneled through a single channel and
// consumed by one goroutine, so state transitions never interleave; the
// machine has exactly one writer by construction.
type Hub struct {
	machine *draw.Machine
	clock   clockwork.Clock

	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	commands chan command
}

// command is one unit of work for the hub loop: either an inbound frame
// from a client or a join notification for a new connection.
type command struct {
	conn *Connection
	msg  Message
	join bool
}

// Connection represents one websocket client, admin or presenter alike.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // prize rows carry image URLs, keep headroom
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewHub creates a hub around the given state machine.
func NewHub(machine *draw.Machine, config ConnectionConfig, clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		machine:     machine,
		clock:       clock,
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		commands: make(chan command, 256),
	}
}

// Run consumes commands until ctx is cancelled. It is the only goroutine
// that touches the state machine.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub shutting down")
			return
		case cmd := <-h.commands:
			h.handleCommand(ctx, cmd)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket connection and
// registers it with the hub.
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	// Handshake (CONNECTED + STATE) goes through the command loop so the
	// snapshot is consistent with in-flight transitions.
	h.commands <- command{conn: connection, join: true}

	log.Info().Str("connection_id", connection.ID).Msg("websocket connection established")
	return nil
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = true
	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(h.connections)).
		Msg("connection registered")
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.connections[conn]; exists {
		delete(h.connections, conn)
		close(conn.Send)
		log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
	}
}

// handleCommand dispatches one inbound command to the state machine and
// broadcasts the outcome.
func (h *Hub) handleCommand(ctx context.Context, cmd command) {
	if cmd.join {
		h.sendTo(cmd.conn, TypeConnected, timePayload{T: h.clock.Now().UnixMilli()})
		h.sendTo(cmd.conn, TypeState, h.machine.Snapshot())
		return
	}

	switch cmd.msg.Type {
	case TypePing:
		// Liveness probe: reply to the sender only, no broadcast.
		h.sendTo(cmd.conn, TypePong, timePayload{T: h.clock.Now().UnixMilli()})
		return

	case TypeSetMode:
		var p SetModePayload
		unmarshalPayload(cmd.msg.Payload, &p)
		h.broadcastEvent(h.machine.SetMode(p.Mode))

	case TypeSetPrize:
		var p SetPrizePayload
		unmarshalPayload(cmd.msg.Payload, &p)
		h.broadcastEvent(h.machine.SetPrize(p.Prize))

	case TypeSetUI:
		var p SetUIPayload
		unmarshalPayload(cmd.msg.Payload, &p)
		h.broadcastEvent(h.machine.SetUI(p.UI))

	case TypeStartSpin:
		h.broadcastEvent(h.machine.StartSpin())

	case TypeStopSpin:
		var p StopSpinPayload
		unmarshalPayload(cmd.msg.Payload, &p)
		h.broadcastEvent(h.machine.StopSpin(ctx, p.Mapping, p.Operator))

	case TypeReset:
		h.broadcastEvent(h.machine.Reset())

	default:
		// Unrecognized command types are dropped, connection stays open.
		log.Debug().
			Str("connection_id", cmd.conn.ID).
			Str("type", cmd.msg.Type).
			Msg("dropping unrecognized command")
	}
}

// unmarshalPayload decodes a command payload, tolerating absent or
// malformed payloads: the zero value then stands in, matching the
// drop-don't-crash contract.
func unmarshalPayload(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Debug().Err(err).Msg("ignoring malformed command payload")
	}
}

// sendTo queues a frame for a single connection.
func (h *Hub) sendTo(conn *Connection, msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to encode message")
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
		h.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// broadcastEvent sends a state event to every connected client,
// best-effort. A client that misses a broadcast resyncs from the STATE
// snapshot on its next connect.
func (h *Hub) broadcastEvent(ev draw.Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode event for broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for conn := range h.connections {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
			h.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// writePump handles sending messages to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the websocket connection.
// Non-JSON frames and frames without a type are dropped silently; the
// connection stays open.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
			log.Debug().Str("connection_id", c.ID).Msg("dropping malformed frame")
			continue
		}

		c.hub.commands <- command{conn: c, msg: msg}
	}
}
