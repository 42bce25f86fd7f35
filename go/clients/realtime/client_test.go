package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// commandServer is a minimal hub stand-in: it accepts websocket upgrades
// and records every inbound frame.
type commandServer struct {
	srv      *httptest.Server
	received chan Message

	mu      sync.Mutex
	conns   int
	wsConns []*websocket.Conn
}

func newCommandServer(t *testing.T) *commandServer {
	t.Helper()
	cs := &commandServer{received: make(chan Message, 64)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.mu.Lock()
		cs.conns++
		cs.wsConns = append(cs.wsConns, conn)
		cs.mu.Unlock()
		go func() {
			defer conn.Close()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg Message
				if json.Unmarshal(data, &msg) == nil {
					cs.received <- msg
				}
			}
		}()
	})

	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *commandServer) url() string {
	return "ws" + strings.TrimPrefix(cs.srv.URL, "http") + "/ws"
}

// closeClientConnections drops every upgraded websocket connection.
// httptest's CloseClientConnections stops tracking hijacked connections,
// so the server has to close them itself.
func (cs *commandServer) closeClientConnections() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, conn := range cs.wsConns {
		conn.Close()
	}
	cs.wsConns = nil
}

func (cs *commandServer) connections() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.conns
}

// next returns the next received command, skipping the adapter's PING.
func (cs *commandServer) next(t *testing.T) Message {
	t.Helper()
	for {
		select {
		case msg := <-cs.received:
			if msg.Type == TypePing {
				continue
			}
			return msg
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a command")
		}
	}
}

func waitForEvent(t *testing.T, events chan Message, msgType string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-events:
			if msg.Type == msgType {
				return
			}
		case <-deadline:
			t.Fatalf("never received %s", msgType)
		}
	}
}

func TestClientQueueAndFlush(t *testing.T) {
	cs := newCommandServer(t)
	c := NewClient(cs.url(), Config{}, nil)

	events := make(chan Message, 16)
	defer c.On(func(m Message) { events <- m })()

	// Queue three commands while disconnected. The first Send kicks off
	// the connect; all three must arrive in order, exactly once.
	c.Send("SET_MODE", map[string]string{"mode": "repeat"})
	c.Send("SET_PRIZE", map[string]string{"prize_id": "P1"})
	c.Send("START_SPIN", nil)

	waitForEvent(t, events, TypeConnected)

	for i, want := range []string{"SET_MODE", "SET_PRIZE", "START_SPIN"} {
		msg := cs.next(t)
		if msg.Type != want {
			t.Fatalf("command %d: expected %s, got %s", i, want, msg.Type)
		}
	}

	select {
	case msg := <-cs.received:
		if msg.Type != TypePing {
			t.Errorf("unexpected extra command %s", msg.Type)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClientConnectIsIdempotent(t *testing.T) {
	cs := newCommandServer(t)
	c := NewClient(cs.url(), Config{}, nil)

	events := make(chan Message, 16)
	defer c.On(func(m Message) { events <- m })()

	c.Connect()
	c.Connect()
	c.Connect()
	waitForEvent(t, events, TypeConnected)

	// Give any spurious second dial a moment to land.
	time.Sleep(200 * time.Millisecond)
	if n := cs.connections(); n != 1 {
		t.Errorf("expected a single connection, got %d", n)
	}
}

func TestClientBackoffCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	// Nothing listens on this port; every dial fails fast.
	c := NewClient("ws://127.0.0.1:1/ws", Config{}, clock)

	events := make(chan Message, 64)
	defer c.On(func(m Message) { events <- m })()

	c.Connect()
	maxDelay := c.config.BackoffCap
	for i := 0; i < 10; i++ {
		waitForEvent(t, events, TypeDisconnected)
		if d := c.NextDelay(); d > maxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", i, d, maxDelay)
		}
		clock.Advance(maxDelay) // fire the reconnect timer
	}

	if d := c.NextDelay(); d != maxDelay {
		t.Errorf("expected delay pinned at cap %v after 10 failures, got %v", maxDelay, d)
	}
}

func TestClientQueueBound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewClient("ws://127.0.0.1:1/ws", Config{MaxQueue: 3}, clock)

	for i := 0; i < 6; i++ {
		c.Send("SET_UI", map[string]int{"n": i})
	}

	if n := c.QueueLen(); n != 3 {
		t.Errorf("expected queue capped at 3, got %d", n)
	}
}

func TestClientReconnectRedelivers(t *testing.T) {
	cs := newCommandServer(t)
	c := NewClient(cs.url(), Config{
		BackoffBase: 10 * time.Millisecond,
		BackoffStep: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
	}, nil)

	events := make(chan Message, 64)
	defer c.On(func(m Message) { events <- m })()

	c.Connect()
	waitForEvent(t, events, TypeConnected)
	c.Send("RESET", nil)
	if msg := cs.next(t); msg.Type != "RESET" {
		t.Fatalf("expected RESET, got %s", msg.Type)
	}

	// Drop every server-side connection; the adapter must notice, queue
	// the next command, reconnect, and deliver it.
	cs.closeClientConnections()
	waitForEvent(t, events, TypeDisconnected)

	c.Send("START_SPIN", nil)
	waitForEvent(t, events, TypeConnected)
	if msg := cs.next(t); msg.Type != "START_SPIN" {
		t.Fatalf("expected START_SPIN after reconnect, got %s", msg.Type)
	}
}

func TestClientDisconnectStopsReconnect(t *testing.T) {
	cs := newCommandServer(t)
	c := NewClient(cs.url(), Config{}, nil)

	events := make(chan Message, 16)
	defer c.On(func(m Message) { events <- m })()

	c.Connect()
	waitForEvent(t, events, TypeConnected)
	before := cs.connections()

	c.Disconnect()
	waitForEvent(t, events, TypeDisconnected)

	time.Sleep(200 * time.Millisecond)
	if n := cs.connections(); n != before {
		t.Errorf("expected no reconnect after Disconnect, got %d connections", n)
	}
}
