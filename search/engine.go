// Package search serves similarity and keyword queries over the guide
// document store. It shares the embedding contract with the indexing
// pipeline: a query is embedded by the same service that embedded the
// documents, so both sides live in the same vector space.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/guidesearch/embedding"
	"github.com/hrygo/guidesearch/metrics"
	"github.com/hrygo/guidesearch/store"
)

const (
	defaultK             = 5
	defaultNumCandidates = 100
)

// ErrInvalidQuery is returned for an empty or whitespace-only query.
var ErrInvalidQuery = errors.New("search: query text is empty")

// ErrEmbeddingUnavailable is returned when the query could not be embedded.
// There is no keyword fallback on the vector path; the query fails whole.
var ErrEmbeddingUnavailable = errors.New("search: embedding unavailable")

// DocumentSearcher is the slice of the document store the engine needs.
// *store.Store satisfies this.
type DocumentSearcher interface {
	VectorSearchGuideDocuments(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.GuideDocumentWithScore, error)
	ListGuideDocuments(ctx context.Context, find *store.FindGuideDocument) ([]*store.GuideDocument, error)
}

// Options tunes one vector search call. NumCandidates controls the
// approximate candidate pool gathered before re-ranking down to K; raising
// it trades latency for recall.
type Options struct {
	K             int
	NumCandidates int

	UseFlag        *string
	MinBrowseCount *int
}

// Result is one search hit, ordered by descending cosine similarity.
type Result struct {
	Document *store.GuideDocument
	Score    float64
}

// Engine answers queries over the indexed guide documents.
type Engine struct {
	embedder embedding.Service
	store    DocumentSearcher
	metrics  *metrics.Exporter
}

func NewEngine(embedder embedding.Service, store DocumentSearcher, exporter *metrics.Exporter) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		metrics:  exporter,
	}
}

// Search embeds the query text and runs an approximate nearest-neighbor
// search. Results come back ordered by similarity descending with ties
// broken by document id ascending.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()
	results, err := e.search(ctx, query, opts)
	e.metrics.ObserveSearch("vector", time.Since(start), err)
	return results, err
}

func (e *Engine) search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	k := opts.K
	if k <= 0 {
		k = defaultK
	}
	numCandidates := opts.NumCandidates
	if numCandidates <= 0 {
		numCandidates = defaultNumCandidates
	}
	if numCandidates < k {
		numCandidates = k
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if embedding.IsInvalidInput(err) {
			return nil, errors.Wrap(ErrInvalidQuery, err.Error())
		}
		return nil, errors.Wrap(ErrEmbeddingUnavailable, err.Error())
	}

	hits, err := e.store.VectorSearchGuideDocuments(ctx, &store.VectorSearchOptions{
		Vector:         vector,
		K:              k,
		NumCandidates:  numCandidates,
		UseFlag:        opts.UseFlag,
		MinBrowseCount: opts.MinBrowseCount,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vector search failed")
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{Document: hit.GuideDocument, Score: hit.Score})
	}
	return results, nil
}

// TextSearch runs a plain keyword query against guide names and full text,
// ordered by browse count. It never touches the embedding service.
func (e *Engine) TextSearch(ctx context.Context, query string, limit int) ([]*store.GuideDocument, error) {
	start := time.Now()
	docs, err := e.textSearch(ctx, query, limit)
	e.metrics.ObserveSearch("text", time.Since(start), err)
	return docs, err
}

func (e *Engine) textSearch(ctx context.Context, query string, limit int) ([]*store.GuideDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if limit <= 0 {
		limit = defaultK
	}

	docs, err := e.store.ListGuideDocuments(ctx, &store.FindGuideDocument{
		TextContains:       &query,
		OrderByBrowseCount: true,
		Limit:              limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "text search failed")
	}
	return docs, nil
}
