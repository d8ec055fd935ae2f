// Package postgres implements the document store driver on PostgreSQL with
// the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/guidesearch/internal/profile"
	"github.com/hrygo/guidesearch/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the document store database and verifies the connection.
func NewDB(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	if profile.StoreDSN == "" {
		return nil, errors.New("store dsn required")
	}

	db, err := sql.Open("postgres", profile.StoreDSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open document store")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to document store")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the pgvector extension, the guide_document table and the
// cosine HNSW index. The vector column width comes from the configured
// embedding dimension and must match the embedding provider's output.
func (d *DB) Migrate(ctx context.Context, recreate bool) error {
	if _, err := d.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.Wrap(err, "failed to create vector extension")
	}

	if recreate {
		if _, err := d.db.ExecContext(ctx, `DROP TABLE IF EXISTS guide_document`); err != nil {
			return errors.Wrap(err, "failed to drop guide_document table")
		}
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS guide_document (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			browse_count INTEGER NOT NULL DEFAULT 0,
			use_yn TEXT NOT NULL DEFAULT 'Y',
			reg_dts TIMESTAMPTZ,
			properties JSONB NOT NULL DEFAULT '[]',
			full_text TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			indexed_at TIMESTAMPTZ NOT NULL
		)
	`, d.profile.EmbeddingDimensions)
	if _, err := d.db.ExecContext(ctx, createTable); err != nil {
		return errors.Wrap(err, "failed to create guide_document table")
	}

	createIndex := `
		CREATE INDEX IF NOT EXISTS idx_guide_document_embedding
		ON guide_document USING hnsw (embedding vector_cosine_ops)
	`
	if _, err := d.db.ExecContext(ctx, createIndex); err != nil {
		return errors.Wrap(err, "failed to create embedding index")
	}

	if _, err := d.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_guide_document_browse_count
		ON guide_document (browse_count DESC)
	`); err != nil {
		return errors.Wrap(err, "failed to create browse_count index")
	}

	return nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func placeholders(n int) string {
	list := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			list += ", "
		}
		list += placeholder(i)
	}
	return list
}
