package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for the document store driver.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the document schema: the guide_document table, its
	// vector column sized to the configured embedding dimension, and the
	// cosine ANN index. With recreate, the existing table is dropped first.
	Migrate(ctx context.Context, recreate bool) error

	UpsertGuideDocument(ctx context.Context, doc *GuideDocument) error
	VectorSearchGuideDocuments(ctx context.Context, opts *VectorSearchOptions) ([]*GuideDocumentWithScore, error)
	ListGuideDocuments(ctx context.Context, find *FindGuideDocument) ([]*GuideDocument, error)
	CountGuideDocuments(ctx context.Context) (int, error)
}
