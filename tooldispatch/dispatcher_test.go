package tooldispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	columns  []string
	rows     [][]string
	err      error
	sawQuery string
	sawLimit int
}

func (s *stubSource) QueryRows(_ context.Context, query string, limit int) ([]string, [][]string, error) {
	s.sawQuery = query
	s.sawLimit = limit
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.columns, s.rows, nil
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(Config{Source: &stubSource{}})

	_, err := d.Dispatch(context.Background(), &Call{ToolName: "delete_everything"})

	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestQuerySourceRejectsNonSelect(t *testing.T) {
	src := &stubSource{}
	d := NewDispatcher(Config{Source: src})

	for _, sql := range []string{
		"DROP TABLE guide",
		"UPDATE guide SET use_yn = 'N'",
		"insert into guide values (1)",
	} {
		_, err := d.Dispatch(context.Background(), &Call{
			ToolName:  ToolQuerySource,
			Arguments: map[string]any{"sql": sql},
		})
		assert.True(t, errors.Is(err, ErrNotSelect), "expected rejection of %q", sql)
	}
	assert.Empty(t, src.sawQuery, "rejected statements must never reach the source")
}

func TestQuerySourceFormatsRows(t *testing.T) {
	src := &stubSource{
		columns: []string{"guide_id", "guide_nm"},
		rows: [][]string{
			{"G001", "환불 안내"},
			{"G002", "NULL"},
		},
	}
	d := NewDispatcher(Config{Source: src})

	out, err := d.Dispatch(context.Background(), &Call{
		ToolName:  ToolQuerySource,
		Arguments: map[string]any{"sql": "select guide_id, guide_nm from guide"},
	})

	require.NoError(t, err)
	assert.Contains(t, out, "2 rows returned")
	assert.Contains(t, out, "guide_id | guide_nm")
	assert.Contains(t, out, "G001 | 환불 안내")
	assert.Contains(t, out, "G002 | NULL")
}

func TestQuerySourceCapsLimit(t *testing.T) {
	src := &stubSource{columns: []string{"n"}, rows: [][]string{{"1"}}}
	d := NewDispatcher(Config{Source: src, RowCap: 100})

	_, err := d.Dispatch(context.Background(), &Call{
		ToolName:  ToolQuerySource,
		Arguments: map[string]any{"sql": "SELECT 1", "limit": float64(5000)},
	})

	require.NoError(t, err)
	assert.Equal(t, 100, src.sawLimit)
}

func TestQuerySourceEmptyResult(t *testing.T) {
	src := &stubSource{columns: []string{"n"}}
	d := NewDispatcher(Config{Source: src})

	out, err := d.Dispatch(context.Background(), &Call{
		ToolName:  ToolQuerySource,
		Arguments: map[string]any{"sql": "SELECT 1 WHERE false"},
	})

	require.NoError(t, err)
	assert.Equal(t, "no rows returned", out)
}

func TestSearchGuidesForwardsToAPI(t *testing.T) {
	var got searchForwardRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(searchForwardResponse{Context: "[1] 환불 안내"})
	}))
	defer srv.Close()

	d := NewDispatcher(Config{SearchAPIURL: srv.URL, Source: &stubSource{}})

	out, err := d.Dispatch(context.Background(), &Call{
		ToolName:  ToolSearchGuides,
		Arguments: map[string]any{"query": "환불", "top_k": float64(3)},
	})

	require.NoError(t, err)
	assert.Equal(t, "환불", got.Query)
	assert.Equal(t, 3, got.TopK)
	assert.Equal(t, "[1] 환불 안내", out)
}

func TestSearchGuidesRequiresQuery(t *testing.T) {
	d := NewDispatcher(Config{Source: &stubSource{}})

	_, err := d.Dispatch(context.Background(), &Call{
		ToolName:  ToolSearchGuides,
		Arguments: map[string]any{},
	})

	assert.Error(t, err)
}

func TestSearchGuidesSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{SearchAPIURL: srv.URL, Source: &stubSource{}})

	_, err := d.Dispatch(context.Background(), &Call{
		ToolName:  ToolSearchGuides,
		Arguments: map[string]any{"query": "환불"},
	})

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))
}
