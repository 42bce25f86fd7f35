package gateway

import (
	"encoding/json"

	"github.com/mcdev12/luckydraw/go/internal/draw"
	"github.com/mcdev12/luckydraw/go/internal/roster"
)

// Message is the realtime wire envelope, both directions: a type tag plus
// an opaque payload, as a UTF-8 JSON text frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound command types.
const (
	TypePing      = "PING"
	TypeSetMode   = "SET_MODE"
	TypeSetPrize  = "SET_PRIZE"
	TypeSetUI     = "SET_UI"
	TypeStartSpin = "START_SPIN"
	TypeStopSpin  = "STOP_SPIN"
	TypeReset     = "RESET"
)

// Outbound event types. STATE/STARTED/STOPPING carry the full state
// snapshot; clients never need to merge diffs.
const (
	TypeConnected = "CONNECTED"
	TypePong      = "PONG"
	TypeState     = "STATE"
	TypeStarted   = "STARTED"
	TypeStopping  = "STOPPING"
)

// SetModePayload is the SET_MODE command payload.
type SetModePayload struct {
	Mode string `json:"mode"`
}

// SetPrizePayload is the SET_PRIZE command payload.
type SetPrizePayload struct {
	Prize roster.Row `json:"prize"`
}

// SetUIPayload is the SET_UI command payload.
type SetUIPayload struct {
	UI draw.UIPatch `json:"ui"`
}

// StopSpinPayload is the STOP_SPIN command payload.
type StopSpinPayload struct {
	Mapping  roster.Mapping `json:"mapping"`
	Operator string         `json:"operator"`
}

// timePayload carries a server timestamp, used by CONNECTED and PONG.
type timePayload struct {
	T int64 `json:"t"`
}

// stoppingPayload is the STOPPING event payload: the state snapshot with
// the selected winner alongside it.
type stoppingPayload struct {
	draw.State
	Winner *draw.Winner `json:"winner"`
}

// encodeMessage marshals an outbound envelope. Payload marshal failures
// cannot happen for our own event types; the error return keeps callers
// honest anyway.
func encodeMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// encodeEvent converts a state machine event into its wire frame.
func encodeEvent(ev draw.Event) ([]byte, error) {
	switch ev.Type {
	case draw.EventStopping:
		return encodeMessage(TypeStopping, stoppingPayload{State: ev.State, Winner: ev.Winner})
	case draw.EventStarted:
		return encodeMessage(TypeStarted, ev.State)
	default:
		return encodeMessage(TypeState, ev.State)
	}
}
