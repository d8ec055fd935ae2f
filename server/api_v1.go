package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/guidesearch/search"
	"github.com/hrygo/guidesearch/store"
	"github.com/hrygo/guidesearch/tooldispatch"
)

// SearchEngine is the slice of the search engine the API serves.
// *search.Engine satisfies this.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	TextSearch(ctx context.Context, query string, limit int) ([]*store.GuideDocument, error)
}

type apiV1Service struct {
	engine     SearchEngine
	dispatcher *tooldispatch.Dispatcher
}

func (s *apiV1Service) register(g *echo.Group) {
	g.POST("/guides/search", s.searchGuides)
	g.GET("/guides/search", s.searchGuides)
	g.GET("/guides/search/text", s.textSearchGuides)
	if s.dispatcher != nil {
		g.GET("/tools", s.listTools)
		g.POST("/tools/dispatch", s.dispatchTool)
	}
}

type searchRequest struct {
	Query          string  `json:"query" query:"query"`
	K              int     `json:"k" query:"k"`
	NumCandidates  int     `json:"num_candidates" query:"num_candidates"`
	UseFlag        *string `json:"use_yn" query:"use_yn"`
	MinBrowseCount *int    `json:"min_browse_count" query:"min_browse_count"`
}

type searchHit struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	BrowseCount int     `json:"browse_count"`
	FullText    string  `json:"full_text"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Total   int         `json:"total"`
	Results []searchHit `json:"results"`
	Context string      `json:"context"`
}

func (s *apiV1Service) searchGuides(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}

	results, err := s.engine.Search(c.Request().Context(), req.Query, search.Options{
		K:              req.K,
		NumCandidates:  req.NumCandidates,
		UseFlag:        req.UseFlag,
		MinBrowseCount: req.MinBrowseCount,
	})
	if err != nil {
		return searchError(err)
	}

	return c.JSON(http.StatusOK, buildSearchResponse(req.Query, results))
}

func (s *apiV1Service) textSearchGuides(c echo.Context) error {
	query := c.QueryParam("query")
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
	}

	docs, err := s.engine.TextSearch(c.Request().Context(), query, limit)
	if err != nil {
		return searchError(err)
	}

	hits := make([]searchHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, searchHit{
			ID:          doc.ID,
			Name:        doc.Name,
			BrowseCount: doc.BrowseCount,
			FullText:    doc.FullText,
		})
	}
	return c.JSON(http.StatusOK, searchResponse{Query: query, Total: len(hits), Results: hits})
}

func (s *apiV1Service) listTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"tools": s.dispatcher.Tools()})
}

func (s *apiV1Service) dispatchTool(c echo.Context) error {
	var call tooldispatch.Call
	if err := c.Bind(&call); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed tool call").SetInternal(err)
	}
	if call.ToolName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tool_name is required")
	}

	result, err := s.dispatcher.Dispatch(c.Request().Context(), &call)
	if err != nil {
		switch {
		case errors.Is(err, tooldispatch.ErrUnknownTool), errors.Is(err, tooldispatch.ErrNotSelect):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "tool dispatch failed").SetInternal(err)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"result": result})
}

// buildSearchResponse renders hits plus a joined context block suitable for
// feeding to a language model.
func buildSearchResponse(query string, results []search.Result) searchResponse {
	hits := make([]searchHit, 0, len(results))
	var context strings.Builder
	for i, result := range results {
		hits = append(hits, searchHit{
			ID:          result.Document.ID,
			Name:        result.Document.Name,
			Score:       result.Score,
			BrowseCount: result.Document.BrowseCount,
			FullText:    result.Document.FullText,
		})
		if i > 0 {
			context.WriteString("\n\n")
		}
		fmt.Fprintf(&context, "[%d] %s (score %.4f)\n%s", i+1, result.Document.Name, result.Score, result.Document.FullText)
	}
	return searchResponse{
		Query:   query,
		Total:   len(hits),
		Results: hits,
		Context: context.String(),
	}
}

func searchError(err error) error {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, "query must not be empty")
	case errors.Is(err, search.ErrEmbeddingUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "embedding backend unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed").SetInternal(err)
	}
}
