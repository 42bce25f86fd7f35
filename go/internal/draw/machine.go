package draw

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/luckydraw/go/internal/roster"
	"github.com/rs/zerolog/log"
)

// RosterSource provides the cached sheet collections the selector reads.
type RosterSource interface {
	Get(ctx context.Context, c roster.Collection) (roster.Table, error)
	Invalidate(c roster.Collection)
}

// WinnerLogRow is the row appended to the external winners log after a
// successful draw.
type WinnerLogRow struct {
	TS            string `json:"ts"`
	PrizeID       string `json:"prize_id"`
	PrizeName     string `json:"prize_name"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Mode          string `json:"mode"`
	Operator      string `json:"operator"`
}

// WinnerLog records draw results in external storage. Appends are
// best-effort; failures must not affect the draw.
type WinnerLog interface {
	Append(ctx context.Context, row WinnerLogRow) error
}

// Machine owns the single draw state and implements its legal transitions.
// It has exactly one writer: the gateway's command loop calls transition
// methods sequentially, so the methods themselves take no locks. Every
// transition returns the event to broadcast.
type Machine struct {
	state    State
	source   RosterSource
	winners  WinnerLog
	selector Selector
	clock    clockwork.Clock

	// appendTimeout bounds the detached winners-log append.
	appendTimeout time.Duration
}

// NewMachine creates a machine with idle initial state.
func NewMachine(source RosterSource, winners WinnerLog, selector Selector, clock clockwork.Clock) *Machine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Machine{
		state: State{
			Mode:      ModeExclude,
			Countdown: 3,
		},
		source:        source,
		winners:       winners,
		selector:      selector,
		clock:         clock,
		appendTimeout: 15 * time.Second,
	}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	return m.state
}

// SetMode sets the draw mode. Unknown values coerce to exclude; the
// transition is legal in any state.
func (m *Machine) SetMode(mode string) Event {
	m.state.Mode = ParseMode(mode)
	return Event{Type: EventState, State: m.state}
}

// SetPrize replaces the selected prize unconditionally.
func (m *Machine) SetPrize(prize roster.Row) Event {
	m.state.Prize = prize
	return Event{Type: EventState, State: m.state}
}

// SetUI shallow-merges a partial UI payload into the advisory UI state.
func (m *Machine) SetUI(patch UIPatch) Event {
	if patch.ShowPrizePreview != nil {
		m.state.UI.ShowPrizePreview = *patch.ShowPrizePreview
	}
	if patch.SelectedPrizeIndex != nil {
		m.state.UI.SelectedPrizeIndex = patch.SelectedPrizeIndex
	}
	if patch.PreviewHint != nil {
		m.state.UI.PreviewHint = *patch.PreviewHint
	}
	return Event{Type: EventState, State: m.state}
}

// StartSpin begins a spin. Idempotent while already spinning. The prize
// preview is force-closed so it cannot cover the presenter screen.
func (m *Machine) StartSpin() Event {
	m.state.UI.ShowPrizePreview = false
	m.state.Spinning = true
	m.state.LastWinner = nil
	return Event{Type: EventStarted, State: m.state}
}

// StopSpin ends the spin and selects a winner synchronously. A selection
// failure (upstream roster unreachable) or an exhausted pool both leave
// LastWinner nil; neither blocks the broadcast. When a winner and a prize
// are both present the winners-log append runs detached from the broadcast
// path and the winners cache is invalidated afterwards.
//
// There is deliberately no requirement that a spin is in progress; a
// STOP_SPIN without a prior START_SPIN still selects.
func (m *Machine) StopSpin(ctx context.Context, mapping roster.Mapping, operator string) Event {
	m.state.Spinning = false

	winner, err := m.computeWinner(ctx, mapping)
	if err != nil {
		log.Error().Err(err).Msg("winner selection failed")
		winner = nil
	}
	m.state.LastWinner = winner

	if winner != nil && m.state.Prize != nil {
		row := WinnerLogRow{
			TS:            m.clock.Now().UTC().Format(time.RFC3339),
			PrizeID:       m.state.Prize.First("prize_id", "id"),
			PrizeName:     m.state.Prize.First("prize_name", "name"),
			ParticipantID: winner.ParticipantID,
			Name:          winner.Name,
			Mode:          string(m.state.Mode),
			Operator:      operator,
		}
		go m.appendWinnerLog(row)
	}

	return Event{Type: EventStopping, State: m.state, Winner: winner}
}

// Reset clears the spin result and preview hints. Prize and mode persist.
func (m *Machine) Reset() Event {
	m.state.Spinning = false
	m.state.LastWinner = nil
	m.state.UI.ShowPrizePreview = false
	m.state.UI.PreviewHint = ""
	return Event{Type: EventState, State: m.state}
}

func (m *Machine) computeWinner(ctx context.Context, mapping roster.Mapping) (*Winner, error) {
	if mapping.IDKey == "" {
		mapping.IDKey = "id"
	}
	if mapping.NameKey == "" {
		mapping.NameKey = "name"
	}

	participants, err := m.source.Get(ctx, roster.CollectionParticipants)
	if err != nil {
		return nil, err
	}
	winnersLog, err := m.source.Get(ctx, roster.CollectionWinners)
	if err != nil {
		return nil, err
	}

	return m.selector.Select(participants.Rows, winnersLog.Rows, m.state.Mode, mapping)
}

// appendWinnerLog is the detached best-effort log write. Failure is logged
// and swallowed; the winners cache is invalidated either way so the next
// selection refetches.
func (m *Machine) appendWinnerLog(row WinnerLogRow) {
	ctx, cancel := context.WithTimeout(context.Background(), m.appendTimeout)
	defer cancel()

	if err := m.winners.Append(ctx, row); err != nil {
		log.Warn().Err(err).Str("participant_id", row.ParticipantID).Msg("winners log append failed")
	}
	m.source.Invalidate(roster.CollectionWinners)
}
