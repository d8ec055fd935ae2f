package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/guidesearch/internal/profile"
)

// Store provides access to the guide document store.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) Migrate(ctx context.Context, recreate bool) error {
	return s.driver.Migrate(ctx, recreate)
}

func (s *Store) UpsertGuideDocument(ctx context.Context, doc *GuideDocument) error {
	if err := s.validateGuideDocument(doc); err != nil {
		return err
	}
	return s.driver.UpsertGuideDocument(ctx, doc)
}

// BulkUpsertGuideDocuments writes every document keyed by its id, isolating
// per-document failures: one rejected document becomes one named failure and
// the remaining documents are still written.
func (s *Store) BulkUpsertGuideDocuments(ctx context.Context, docs []*GuideDocument) *BulkResult {
	result := &BulkResult{}
	for _, doc := range docs {
		if err := s.UpsertGuideDocument(ctx, doc); err != nil {
			slog.Error("failed to upsert guide document", "id", doc.ID, "error", err)
			result.Failures = append(result.Failures, BulkFailure{ID: doc.ID, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result
}

func (s *Store) VectorSearchGuideDocuments(ctx context.Context, opts *VectorSearchOptions) ([]*GuideDocumentWithScore, error) {
	if len(opts.Vector) != s.profile.EmbeddingDimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, store expects %d",
			len(opts.Vector), s.profile.EmbeddingDimensions)
	}
	return s.driver.VectorSearchGuideDocuments(ctx, opts)
}

func (s *Store) ListGuideDocuments(ctx context.Context, find *FindGuideDocument) ([]*GuideDocument, error) {
	return s.driver.ListGuideDocuments(ctx, find)
}

func (s *Store) CountGuideDocuments(ctx context.Context) (int, error) {
	return s.driver.CountGuideDocuments(ctx)
}

// validateGuideDocument rejects documents the store schema cannot hold.
// The dimension check keeps the embedding column invariant: a document with
// a missing or mis-sized vector is never written.
func (s *Store) validateGuideDocument(doc *GuideDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("guide document has empty id")
	}
	if len(doc.Embedding) != s.profile.EmbeddingDimensions {
		return fmt.Errorf("guide document %s has %d-dimension embedding, store expects %d",
			doc.ID, len(doc.Embedding), s.profile.EmbeddingDimensions)
	}
	return nil
}
