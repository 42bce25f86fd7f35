package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/luckydraw/go/clients/writeback"
	"github.com/mcdev12/luckydraw/go/internal/draw"
	"github.com/mcdev12/luckydraw/go/internal/roster"
	"github.com/rs/zerolog/log"
)

// Service is the lucky-draw gateway: the realtime hub plus the REST
// surface over the roster cache and write-back webhook.
type Service struct {
	hub           *Hub
	wsHandler     *WebSocketHandler
	sheetsHandler *SheetsHandler
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	RNGSalt          string
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// NewService wires the state machine, hub and handlers together.
func NewService(config Config, cache *roster.Cache, wb *writeback.Client, clock clockwork.Clock) *Service {
	selector := draw.Selector{Salt: config.RNGSalt, Clock: clock}
	machine := draw.NewMachine(cache, winnerLogAppender{wb}, selector, clock)
	hub := NewHub(machine, config.ConnectionConfig, clock)

	return &Service{
		hub:           hub,
		wsHandler:     NewWebSocketHandler(hub),
		sheetsHandler: NewSheetsHandler(cache, wb),
	}
}

// Hub exposes the hub, used by tests.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Start runs the hub command loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting lucky draw gateway service")
	s.hub.Run(ctx)
	return nil
}

// RegisterRoutes registers websocket and REST routes on the mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.wsHandler.HandleConnection)
	mux.HandleFunc("/ws/stats", s.wsHandler.HandleConnectionStats)

	mux.HandleFunc("/api/health", s.sheetsHandler.HandleHealth)
	mux.HandleFunc("/api/sheets/participants", s.sheetsHandler.HandleSheet(roster.CollectionParticipants))
	mux.HandleFunc("/api/sheets/prizes", s.sheetsHandler.HandleSheet(roster.CollectionPrizes))
	mux.HandleFunc("/api/sheets/winners", s.sheetsHandler.HandleSheet(roster.CollectionWinners))
	mux.HandleFunc("/api/mapping/guess", s.sheetsHandler.HandleGuessMapping)
	mux.HandleFunc("/api/write/add-prize", s.sheetsHandler.HandleWrite(writeback.ActionAddPrize))
	mux.HandleFunc("/api/write/append-winner", s.sheetsHandler.HandleWrite(writeback.ActionAppendWinner))
}

// winnerLogAppender adapts the write-back client to the machine's
// best-effort winners log.
type winnerLogAppender struct {
	wb *writeback.Client
}

func (a winnerLogAppender) Append(ctx context.Context, row draw.WinnerLogRow) error {
	out := a.wb.Write(ctx, writeback.ActionAppendWinner, map[string]any{"row": row})
	if !out.Ok {
		if out.Status != 0 {
			return fmt.Errorf("write-back rejected winners log append: HTTP %d", out.Status)
		}
		return fmt.Errorf("write-back rejected winners log append: %s", out.Reason)
	}
	return nil
}
