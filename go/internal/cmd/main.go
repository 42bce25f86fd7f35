package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/luckydraw/go/clients/gviz"
	"github.com/mcdev12/luckydraw/go/clients/writeback"
	"github.com/mcdev12/luckydraw/go/internal/gateway"
	"github.com/mcdev12/luckydraw/go/internal/roster"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if config.SheetID == "" {
		log.Fatal().Msg("SHEET_ID is required")
	}

	log.Info().
		Str("port", config.Port).
		Str("sheet_id", config.SheetID).
		Strs("allowed_origins", config.allowedOrigins()).
		Bool("write_webapp_configured", config.WriteWebAppURL != "").
		Msg("starting lucky draw server")

	clock := clockwork.NewRealClock()

	// Roster source: GViz public reads behind the TTL cache.
	sheetClient := gviz.NewClient(config.SheetID)
	sheetNames := map[roster.Collection]string{
		roster.CollectionParticipants: config.Sheets.Participants,
		roster.CollectionPrizes:       config.Sheets.Prizes,
		roster.CollectionWinners:      config.Sheets.Winners,
	}
	cache := roster.NewCache(func(ctx context.Context, c roster.Collection) (roster.Table, error) {
		return sheetClient.FetchSheet(ctx, sheetNames[c])
	}, config.CacheTTL, clock)

	wb := writeback.NewClient(config.WriteWebAppURL)

	gatewayConfig := gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		RNGSalt:          config.RNGSalt,
	}
	service := gateway.NewService(gatewayConfig, cache, wb, clock)

	server := setupServer(config, service)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the hub command loop
	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	log.Info().Msg("lucky draw server shutdown complete")
}
