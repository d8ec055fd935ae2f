package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterExposesMetrics(t *testing.T) {
	e := NewExporter(DefaultConfig())

	e.ObserveRun(2*time.Second, true)
	e.AddDocumentsIndexed(42)
	e.AddGuideSkipped("invalid_input")
	e.AddWriteFailures(1)
	e.AddEmbeddingRetry()
	e.ObserveSearch("vector", 150*time.Millisecond, nil)
	e.ObserveSearch("text", 20*time.Millisecond, errors.New("boom"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	e.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "guidesearch_index_documents_total 42")
	assert.Contains(t, body, `guidesearch_index_runs_total{status="ok"} 1`)
	assert.Contains(t, body, `guidesearch_index_guides_skipped_total{reason="invalid_input"} 1`)
	assert.Contains(t, body, "guidesearch_embedding_retries_total 1")
	assert.Contains(t, body, `guidesearch_search_requests_total{kind="vector",status="ok"} 1`)
	assert.Contains(t, body, `guidesearch_search_requests_total{kind="text",status="error"} 1`)
}

func TestExporterNilSafe(t *testing.T) {
	var e *Exporter

	assert.NotPanics(t, func() {
		e.ObserveRun(time.Second, false)
		e.AddDocumentsIndexed(1)
		e.AddGuideSkipped("service")
		e.AddWriteFailures(1)
		e.AddEmbeddingRetry()
		e.ObserveSearch("vector", time.Second, nil)
	})
}
