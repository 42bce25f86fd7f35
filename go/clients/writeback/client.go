package writeback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Action names an operation understood by the Apps Script web app.
type Action string

const (
	ActionAddPrize     Action = "add_prize"
	ActionAppendWinner Action = "append_winner"
)

// Result is the structured outcome of a write-back call. Ok is false both
// for an unconfigured client and for an upstream rejection; Reason and
// Status distinguish the two.
type Result struct {
	Ok     bool            `json:"ok"`
	Reason string          `json:"reason,omitempty"`
	Status int             `json:"status,omitempty"`
	JSON   json.RawMessage `json:"json,omitempty"`
}

// Client posts rows back to the spreadsheet through an Apps Script web app.
// The web app URL is optional; an empty URL makes every call report
// unconfigured without reaching the network.
type Client struct {
	webAppURL string
	client    *http.Client
}

// NewClient creates a write-back client. webAppURL may be empty.
func NewClient(webAppURL string) *Client {
	return &Client{
		webAppURL: webAppURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Configured reports whether a web app URL is set.
func (c *Client) Configured() bool {
	return c.webAppURL != ""
}

// Write posts payload to the web app under the given action and returns
// the structured outcome. Network and decode failures are folded into the
// Result rather than returned, since callers treat the write as
// best-effort either way.
func (c *Client) Write(ctx context.Context, action Action, payload any) Result {
	if c.webAppURL == "" {
		return Result{Ok: false, Reason: "WRITE_WEBAPP_URL not set"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Ok: false, Reason: fmt.Sprintf("marshal payload: %v", err)}
	}

	u := fmt.Sprintf("%s?action=%s", c.webAppURL, url.QueryEscape(string(action)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Result{Ok: false, Reason: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Ok: false, Reason: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var raw json.RawMessage
	if json.Valid(respBody) {
		raw = respBody
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Ok: false, Status: resp.StatusCode, JSON: raw}
	}
	return Result{Ok: true, JSON: raw}
}
