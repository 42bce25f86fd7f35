package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/luckydraw/go/internal/gateway"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(config *Config, service *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	// Register websocket and REST routes
	service.RegisterRoutes(mux)

	// Add health check endpoint for the platform probe
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Browser clients come from the admin and presenter origins; requests
	// without an Origin header (server-to-server) pass through rs/cors
	// untouched.
	c := cors.New(cors.Options{
		AllowedOrigins: config.allowedOrigins(),
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(mux)

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", config.Port),
		Handler:      h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket writes manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}
}
