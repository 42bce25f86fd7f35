package draw

import (
	"github.com/mcdev12/luckydraw/go/internal/roster"
)

// Mode controls whether past winners stay eligible for future draws.
type Mode string

const (
	// ModeExclude removes past winners from eligibility.
	ModeExclude Mode = "exclude"
	// ModeRepeat keeps past winners eligible.
	ModeRepeat Mode = "repeat"
)

// ParseMode coerces an arbitrary value to a valid mode. Anything other
// than "repeat" is exclude.
func ParseMode(v string) Mode {
	if v == string(ModeRepeat) {
		return ModeRepeat
	}
	return ModeExclude
}

// Winner is the selected participant, carrying the full source row so the
// winners log can record whatever extra columns the sheet had.
type Winner struct {
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name"`
	Team          string     `json:"team"`
	Department    string     `json:"department"`
	Raw           roster.Row `json:"raw"`
}

// UIState is advisory presenter display state. It is merged shallowly on
// update and is not part of the draw's authoritative record.
type UIState struct {
	ShowPrizePreview   bool   `json:"showPrizePreview"`
	SelectedPrizeIndex *int   `json:"selectedPrizeIndex,omitempty"`
	PreviewHint        string `json:"previewHint"`
}

// UIPatch is a partial UIState; only fields present in the payload
// overwrite the current value.
type UIPatch struct {
	ShowPrizePreview   *bool   `json:"showPrizePreview,omitempty"`
	SelectedPrizeIndex *int    `json:"selectedPrizeIndex,omitempty"`
	PreviewHint        *string `json:"previewHint,omitempty"`
}

// State is the shared draw state. One instance exists per server process;
// it is mutated only by the Machine and broadcast as a full snapshot after
// every transition.
type State struct {
	Mode       Mode       `json:"mode"`
	Prize      roster.Row `json:"prize"`
	Spinning   bool       `json:"spinning"`
	Countdown  int        `json:"countdown"`
	LastWinner *Winner    `json:"lastWinner"`
	UI         UIState    `json:"ui"`
}

// EventType tags an outbound realtime event.
type EventType string

const (
	// EventState is the full state snapshot sent after most transitions
	// and to every newly connected client.
	EventState EventType = "STATE"
	// EventStarted is the snapshot emitted by START_SPIN.
	EventStarted EventType = "STARTED"
	// EventStopping is the snapshot emitted by STOP_SPIN, carrying the
	// selected winner explicitly alongside the state.
	EventStopping EventType = "STOPPING"
)

// Event is the broadcastable outcome of a state transition.
type Event struct {
	Type   EventType
	State  State
	Winner *Winner // set for EventStopping, may still be nil on exhaustion
}
