package gviz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mcdev12/luckydraw/go/internal/roster"
)

const userAgent = "led-lucky-draw-server"

// Client reads public Google Sheets tabs through the GViz query endpoint.
// No credentials are involved; the sheet must be link-readable.
type Client struct {
	sheetID string
	baseURL string
	client  *http.Client
}

// NewClient creates a GViz client for the given spreadsheet ID.
func NewClient(sheetID string) *Client {
	return &Client{
		sheetID: sheetID,
		baseURL: "https://docs.google.com",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the Google endpoint, used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// setResponse wrapper: google.visualization.Query.setResponse({...});
var setResponseRe = regexp.MustCompile(`(?s)setResponse\((.*)\);?\s*$`)

// FetchSheet fetches one named tab and decodes it into columns and rows.
func (c *Client) FetchSheet(ctx context.Context, sheetName string) (roster.Table, error) {
	u := fmt.Sprintf("%s/spreadsheets/d/%s/gviz/tq?tqx=out:json&sheet=%s",
		c.baseURL, url.PathEscape(c.sheetID), url.QueryEscape(sheetName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return roster.Table{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return roster.Table{}, fmt.Errorf("failed to fetch sheet %s: %w", sheetName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return roster.Table{}, fmt.Errorf("gviz HTTP %d for sheet=%s", resp.StatusCode, sheetName)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return roster.Table{}, fmt.Errorf("failed to read response body: %w", err)
	}

	return ParseResponse(body)
}

// ParseResponse strips the setResponse(...) envelope and converts the GViz
// table into a roster.Table.
func ParseResponse(body []byte) (roster.Table, error) {
	m := setResponseRe.FindSubmatch(body)
	if m == nil {
		return roster.Table{}, fmt.Errorf("invalid gviz response")
	}

	var payload struct {
		Table struct {
			Cols []struct {
				ID    string `json:"id"`
				Label string `json:"label"`
			} `json:"cols"`
			Rows []struct {
				C []*struct {
					V any `json:"v"`
				} `json:"c"`
			} `json:"rows"`
		} `json:"table"`
	}
	if err := json.Unmarshal(m[1], &payload); err != nil {
		return roster.Table{}, fmt.Errorf("failed to decode gviz table: %w", err)
	}

	cols := make([]string, len(payload.Table.Cols))
	for i, col := range payload.Table.Cols {
		label := strings.TrimSpace(col.Label)
		if label == "" {
			label = strings.TrimSpace(col.ID)
		}
		cols[i] = label
	}

	rows := make([]roster.Row, 0, len(payload.Table.Rows))
	for _, r := range payload.Table.Rows {
		obj := make(roster.Row, len(r.C))
		for i, cell := range r.C {
			key := ""
			if i < len(cols) {
				key = cols[i]
			}
			if key == "" {
				key = fmt.Sprintf("col_%d", i)
			}
			var v any = ""
			if cell != nil && cell.V != nil {
				v = cell.V
			}
			obj[key] = v
		}
		rows = append(rows, obj)
	}

	return roster.Table{Columns: cols, Rows: rows}, nil
}
