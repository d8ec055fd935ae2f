// Package tooldispatch adapts an external agent's structured tool calls onto
// the search API and the relational source. It is a thin request/response
// boundary: validate the call, run it, and map the outcome to text.
package tooldispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// ToolSearchGuides forwards a natural-language query to the downstream
	// search API and returns its textual context.
	ToolSearchGuides = "search_guides"
	// ToolQuerySource executes a read-only SQL query against the
	// relational source.
	ToolQuerySource = "query_source"

	defaultTopK = 5
)

// ErrUnknownTool is returned for a tool name the dispatcher does not serve.
var ErrUnknownTool = errors.New("unknown tool")

// ErrNotSelect is returned for a query_source call that is not a SELECT.
var ErrNotSelect = errors.New("only SELECT statements are allowed")

// Call is one structured tool invocation.
type Call struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool describes one dispatchable tool for discovery.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SourceQuerier is the slice of the relational source the dispatcher needs.
// *source.Source satisfies this.
type SourceQuerier interface {
	QueryRows(ctx context.Context, query string, limit int) ([]string, [][]string, error)
}

// Dispatcher routes tool calls to their backends.
type Dispatcher struct {
	searchAPIURL string
	client       *http.Client
	source       SourceQuerier
	rowCap       int
}

// Config configures a Dispatcher.
type Config struct {
	SearchAPIURL string
	Source       SourceQuerier
	RowCap       int // max rows returned by query_source
	Timeout      time.Duration
}

func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rowCap := cfg.RowCap
	if rowCap <= 0 {
		rowCap = 100
	}
	return &Dispatcher{
		searchAPIURL: cfg.SearchAPIURL,
		client:       &http.Client{Timeout: timeout},
		source:       cfg.Source,
		rowCap:       rowCap,
	}
}

// Tools lists the dispatchable tools.
func (d *Dispatcher) Tools() []Tool {
	return []Tool{
		{
			Name:        ToolSearchGuides,
			Description: "Searches consultation guides for a natural-language query and returns matching context.",
		},
		{
			Name:        ToolQuerySource,
			Description: "Executes a read-only SQL query (SELECT only) against the guide source and returns rows as text.",
		},
	}
}

// Dispatch runs one tool call and returns its textual result.
func (d *Dispatcher) Dispatch(ctx context.Context, call *Call) (string, error) {
	switch call.ToolName {
	case ToolSearchGuides:
		return d.searchGuides(ctx, call.Arguments)
	case ToolQuerySource:
		return d.querySource(ctx, call.Arguments)
	default:
		return "", errors.Wrap(ErrUnknownTool, call.ToolName)
	}
}

type searchForwardRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchForwardResponse struct {
	Context string `json:"context"`
}

// searchGuides forwards the query string to the downstream search API.
func (d *Dispatcher) searchGuides(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", errors.New("query argument is required")
	}
	topK := intArg(args, "top_k", defaultTopK)

	slog.Info("dispatching guide search", "query", query, "top_k", topK)

	body, err := json.Marshal(searchForwardRequest{Query: query, TopK: topK})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.searchAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "search API unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed searchForwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "failed to decode search response")
	}
	return parsed.Context, nil
}

// querySource runs a read-only query against the relational source.
// Only SELECT statements pass the guard, and the result is capped.
func (d *Dispatcher) querySource(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(stringArg(args, "sql"))
	if query == "" {
		return "", errors.New("sql argument is required")
	}
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return "", ErrNotSelect
	}

	limit := intArg(args, "limit", d.rowCap)
	if limit > d.rowCap {
		limit = d.rowCap
	}

	slog.Info("dispatching source query", "limit", limit)

	columns, rows, err := d.source.QueryRows(ctx, query, limit)
	if err != nil {
		return "", err
	}

	return formatRows(columns, rows), nil
}

// formatRows renders a result set as a pipe-separated text table.
func formatRows(columns []string, rows [][]string) string {
	if len(rows) == 0 {
		return "no rows returned"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d rows returned\n\n", len(rows))
	sb.WriteString("columns: " + strings.Join(columns, " | ") + "\n")
	sb.WriteString(strings.Repeat("-", 80) + "\n")
	for _, row := range rows {
		sb.WriteString(strings.Join(row, " | ") + "\n")
	}
	return sb.String()
}

func stringArg(args map[string]any, key string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch value := args[key].(type) {
	case float64:
		// JSON numbers decode as float64.
		if value > 0 {
			return int(value)
		}
	case int:
		if value > 0 {
			return value
		}
	}
	return fallback
}
