package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mcdev12/luckydraw/go/clients/writeback"
	"github.com/mcdev12/luckydraw/go/internal/roster"
	"github.com/rs/zerolog/log"
)

// SheetsHandler serves the REST surface backed by the roster cache and the
// optional write-back webhook.
type SheetsHandler struct {
	cache     *roster.Cache
	writeback *writeback.Client
}

// NewSheetsHandler creates a handler over the given cache and write-back
// client.
func NewSheetsHandler(cache *roster.Cache, wb *writeback.Client) *SheetsHandler {
	return &SheetsHandler{cache: cache, writeback: wb}
}

// HandleHealth reports liveness.
func (h *SheetsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":  true,
		"now": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleSheet serves one cached collection as {ok, columns, rows}. An
// upstream failure surfaces as a structured 500, never a crash.
func (h *SheetsHandler) HandleSheet(c roster.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, err := h.cache.Get(r.Context(), c)
		if err != nil {
			log.Error().Err(err).Str("collection", string(c)).Msg("sheet fetch failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"columns": table.Columns,
			"rows":    table.Rows,
		})
	}
}

// HandleGuessMapping reconciles a client's persisted column mapping with
// the live participant schema. The client passes its current mapping as
// query parameters and gets back the corrected one plus the columns.
func (h *SheetsHandler) HandleGuessMapping(w http.ResponseWriter, r *http.Request) {
	table, err := h.cache.Get(r.Context(), roster.CollectionParticipants)
	if err != nil {
		log.Error().Err(err).Msg("participant fetch failed for mapping guess")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	q := r.URL.Query()
	prev := roster.Mapping{
		IDKey:       q.Get("idKey"),
		NameKey:     q.Get("nameKey"),
		TeamKey:     q.Get("teamKey"),
		DeptKey:     q.Get("deptKey"),
		EligibleKey: q.Get("eligibleKey"),
	}
	if prev.IDKey == "" && prev.NameKey == "" {
		prev = roster.DefaultMapping()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"mapping": roster.GuessMapping(prev, table.Columns),
		"columns": table.Columns,
	})
}

// HandleWrite forwards the request body to the write-back webhook under
// the given action. Unconfigured or failing webhooks surface as 400 with
// the structured result; the caller decides whether that matters.
func (h *SheetsHandler) HandleWrite(action writeback.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok":     false,
				"reason": "unreadable request body",
			})
			return
		}

		var payload any
		if len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"ok":     false,
					"reason": "request body is not JSON",
				})
				return
			}
		} else {
			payload = map[string]any{}
		}

		out := h.writeback.Write(r.Context(), action, payload)
		status := http.StatusOK
		if !out.Ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
