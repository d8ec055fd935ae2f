package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/guidesearch/embedding"
	"github.com/hrygo/guidesearch/internal/profile"
	"github.com/hrygo/guidesearch/metrics"
	"github.com/hrygo/guidesearch/source"
	"github.com/hrygo/guidesearch/store"
	"github.com/hrygo/guidesearch/store/db/postgres"
)

// maxReportedFailures bounds the failure detail in logs; totals stay exact.
const maxReportedFailures = 5

// DocumentWriter is the slice of the document store a run needs.
// *store.Store satisfies this.
type DocumentWriter interface {
	BulkUpsertGuideDocuments(ctx context.Context, docs []*store.GuideDocument) *store.BulkResult
	ListGuideDocuments(ctx context.Context, find *store.FindGuideDocument) ([]*store.GuideDocument, error)
	CountGuideDocuments(ctx context.Context) (int, error)
}

// RunSummary reports one indexing run: totals plus per-item failures.
// Nothing is silently dropped; every aggregated guide is accounted for as
// indexed, skipped or failed.
type RunSummary struct {
	RunID            string
	StartedAt        time.Time
	Duration         time.Duration
	GuidesAggregated int
	DocumentsIndexed int
	Skipped          []SkippedGuide
	WriteFailures    []store.BulkFailure
}

// Runner executes full indexing runs. The relational source connection and
// the document store client are acquired at run start and released on every
// exit path; no state survives between runs, so a run is safely repeatable.
type Runner struct {
	profile  *profile.Profile
	embedder embedding.Service
	metrics  *metrics.Exporter
}

func NewRunner(profile *profile.Profile, embedder embedding.Service, exporter *metrics.Exporter) *Runner {
	return &Runner{
		profile:  profile,
		embedder: embedder,
		metrics:  exporter,
	}
}

// Run performs one full reindex: query, aggregate, assemble, bulk write.
// Connection failures abort the run before any write; per-guide and
// per-document failures are collected into the summary instead.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	runID := uuid.NewString()
	startedAt := time.Now()
	logger := slog.With("run_id", runID)
	logger.Info("starting indexing run",
		"driver", r.profile.Driver,
		"workers", r.profile.IndexWorkers,
		"dimensions", r.profile.EmbeddingDimensions)

	src, err := source.Open(ctx, r.profile.Driver, r.profile.SourceDSN)
	if err != nil {
		r.metrics.ObserveRun(time.Since(startedAt), false)
		return nil, errors.Wrap(err, "indexing run aborted")
	}
	defer src.Close()

	driver, err := postgres.NewDB(ctx, r.profile)
	if err != nil {
		r.metrics.ObserveRun(time.Since(startedAt), false)
		return nil, errors.Wrap(err, "indexing run aborted")
	}
	docStore := store.New(driver, r.profile)
	defer docStore.Close()

	guides, err := src.Guides(ctx)
	if err != nil {
		r.metrics.ObserveRun(time.Since(startedAt), false)
		return nil, errors.Wrap(err, "indexing run aborted")
	}
	defer guides.Close()

	summary, err := r.run(ctx, runID, startedAt, guides, docStore)
	r.metrics.ObserveRun(time.Since(startedAt), err == nil)
	if err != nil {
		return nil, err
	}

	r.verify(ctx, docStore, logger)
	return summary, nil
}

// run is the transport-free core of Run, driven by tests directly.
func (r *Runner) run(ctx context.Context, runID string, startedAt time.Time, guides GuideSource, docStore DocumentWriter) (*RunSummary, error) {
	logger := slog.With("run_id", runID)

	assembler := NewAssembler(r.embedder, AssemblerConfig{
		Workers: r.profile.IndexWorkers,
		Retry: embedding.RetryConfig{
			MaxAttempts: r.profile.EmbeddingRetries,
		},
		Metrics: r.metrics,
	})

	docs, skipped, err := assembler.Assemble(ctx, guides)
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble guide documents")
	}
	logger.Info("assembled guide documents", "documents", len(docs), "skipped", len(skipped))

	result := docStore.BulkUpsertGuideDocuments(ctx, docs)
	r.metrics.AddDocumentsIndexed(result.Succeeded)
	r.metrics.AddWriteFailures(len(result.Failures))

	summary := &RunSummary{
		RunID:            runID,
		StartedAt:        startedAt,
		Duration:         time.Since(startedAt),
		GuidesAggregated: len(docs) + len(skipped),
		DocumentsIndexed: result.Succeeded,
		Skipped:          skipped,
		WriteFailures:    result.Failures,
	}
	summary.log(logger)
	return summary, nil
}

// verify mirrors the post-run check of the original pipeline: log the total
// document count and the most browsed guides.
func (r *Runner) verify(ctx context.Context, docStore DocumentWriter, logger *slog.Logger) {
	count, err := docStore.CountGuideDocuments(ctx)
	if err != nil {
		logger.Warn("failed to verify document count", "error", err)
		return
	}
	logger.Info("document store verified", "documents", count)

	top, err := docStore.ListGuideDocuments(ctx, &store.FindGuideDocument{
		OrderByBrowseCount: true,
		Limit:              3,
	})
	if err != nil {
		logger.Warn("failed to list top guides", "error", err)
		return
	}
	for _, doc := range top {
		logger.Info("top guide",
			"id", doc.ID,
			"name", doc.Name,
			"browse_count", doc.BrowseCount,
			"properties", len(doc.Properties))
	}
}

func (s *RunSummary) log(logger *slog.Logger) {
	logger.Info("indexing run finished",
		"duration", s.Duration,
		"guides", s.GuidesAggregated,
		"indexed", s.DocumentsIndexed,
		"skipped", len(s.Skipped),
		"write_failures", len(s.WriteFailures))

	for i, skip := range s.Skipped {
		if i >= maxReportedFailures {
			logger.Warn("more guides skipped", "omitted", len(s.Skipped)-maxReportedFailures)
			break
		}
		logger.Warn("guide skipped", "id", skip.ID, "reason", skip.Reason)
	}
	for i, failure := range s.WriteFailures {
		if i >= maxReportedFailures {
			logger.Warn("more write failures", "omitted", len(s.WriteFailures)-maxReportedFailures)
			break
		}
		logger.Warn("document write failed", "id", failure.ID, "reason", failure.Reason)
	}
}
