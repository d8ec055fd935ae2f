// Package index builds guide documents from aggregated guides and drives
// full indexing runs against the document store.
package index

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/guidesearch/embedding"
	"github.com/hrygo/guidesearch/internal/textnorm"
	"github.com/hrygo/guidesearch/metrics"
	"github.com/hrygo/guidesearch/source"
	"github.com/hrygo/guidesearch/store"
)

// GuideSource yields aggregated guides. Next returns io.EOF at end of stream.
// *source.Aggregator satisfies this.
type GuideSource interface {
	Next() (*source.Guide, error)
}

// SkippedGuide records one guide dropped during assembly and why.
type SkippedGuide struct {
	ID     string
	Reason string
}

// AssemblerConfig configures document assembly.
type AssemblerConfig struct {
	// Workers bounds the number of concurrent embedding calls.
	Workers int
	// Retry bounds the per-guide retry behavior on transient embedding failures.
	Retry embedding.RetryConfig
	// Metrics receives skip and retry counters, may be nil.
	Metrics *metrics.Exporter
}

// Assembler turns aggregated guides into indexable documents: it normalizes
// property content, builds the full text, and embeds it once per guide.
type Assembler struct {
	embedder embedding.Service
	workers  int
	metrics  *metrics.Exporter
	now      func() time.Time
}

// NewAssembler creates an Assembler. The embedding service is wrapped with
// bounded retries so transient provider failures only drop a guide after the
// attempt budget is spent.
func NewAssembler(embedder embedding.Service, cfg AssemblerConfig) *Assembler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Assembler{
		embedder: embedding.WithRetry(embedder, cfg.Retry, cfg.Metrics.AddEmbeddingRetry),
		workers:  workers,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// Assemble consumes guides until io.EOF and returns the documents whose
// embedding succeeded plus the skipped guides with causes. Embedding calls
// run concurrently; each result is keyed by guide id, and the output is
// sorted by id so a run is deterministic regardless of completion order.
// A source read error or context cancellation aborts assembly; per-guide
// failures never do.
func (a *Assembler) Assemble(ctx context.Context, guides GuideSource) ([]*store.GuideDocument, []SkippedGuide, error) {
	var (
		mu      sync.Mutex
		docs    []*store.GuideDocument
		skipped []SkippedGuide
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.workers)

	var readErr error
	for {
		guide, err := guides.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			doc, err := a.assembleOne(groupCtx, guide)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				reason := failureReason(err)
				a.metrics.AddGuideSkipped(reason)
				skipped = append(skipped, SkippedGuide{ID: guide.ID, Reason: err.Error()})
				return nil
			}
			docs = append(docs, doc)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	if readErr != nil {
		return nil, nil, readErr
	}
	// A canceled run must not look like a successful run over fewer guides.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].ID < skipped[j].ID })
	return docs, skipped, nil
}

// assembleOne builds the document for a single guide.
func (a *Assembler) assembleOne(ctx context.Context, guide *source.Guide) (*store.GuideDocument, error) {
	parts := make([]string, 0, len(guide.Properties)+1)
	if guide.Name != "" {
		parts = append(parts, guide.Name)
	}

	properties := make([]store.GuideProperty, 0, len(guide.Properties))
	for _, prop := range guide.Properties {
		content := textnorm.Clean(prop.Content)
		if content == "" {
			continue
		}
		parts = append(parts, content)
		properties = append(properties, store.GuideProperty{
			ID:       prop.ID,
			TypeCode: prop.TypeCode,
			Seq:      prop.Seq,
			Content:  content,
		})
	}

	fullText := strings.Join(parts, " ")

	vector, err := a.embedder.Embed(ctx, fullText)
	if err != nil {
		return nil, err
	}

	return &store.GuideDocument{
		ID:           guide.ID,
		Name:         guide.Name,
		BrowseCount:  guide.BrowseCount,
		UseFlag:      guide.UseFlag,
		RegisteredAt: guide.RegisteredAt,
		Properties:   properties,
		FullText:     fullText,
		Embedding:    vector,
		IndexedAt:    a.now().UTC(),
	}, nil
}

func failureReason(err error) string {
	switch {
	case embedding.IsInvalidInput(err):
		return "invalid_input"
	case embedding.IsTransient(err):
		return "transient"
	default:
		return "service"
	}
}
