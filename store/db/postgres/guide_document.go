package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/guidesearch/store"
)

// UpsertGuideDocument inserts or overwrites one guide document by id.
func (d *DB) UpsertGuideDocument(ctx context.Context, doc *store.GuideDocument) error {
	properties, err := json.Marshal(doc.Properties)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal properties of guide document %s", doc.ID)
	}

	stmt := `
		INSERT INTO guide_document (id, name, browse_count, use_yn, reg_dts, properties, full_text, embedding, indexed_at)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			browse_count = EXCLUDED.browse_count,
			use_yn = EXCLUDED.use_yn,
			reg_dts = EXCLUDED.reg_dts,
			properties = EXCLUDED.properties,
			full_text = EXCLUDED.full_text,
			embedding = EXCLUDED.embedding,
			indexed_at = EXCLUDED.indexed_at
	`

	var registeredAt sql.NullTime
	if doc.RegisteredAt != nil {
		registeredAt = sql.NullTime{Time: *doc.RegisteredAt, Valid: true}
	}

	_, err = d.db.ExecContext(ctx, stmt,
		doc.ID,
		doc.Name,
		doc.BrowseCount,
		doc.UseFlag,
		registeredAt,
		properties,
		doc.FullText,
		pgvector.NewVector(doc.Embedding),
		doc.IndexedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert guide document %s", doc.ID)
	}

	return nil
}

// VectorSearchGuideDocuments performs the two-stage approximate search:
// gather NumCandidates nearest neighbors by cosine distance, then re-rank
// by similarity descending with ties broken by id ascending and keep K.
func (d *DB) VectorSearchGuideDocuments(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.GuideDocumentWithScore, error) {
	k := opts.K
	if k <= 0 {
		k = 5
	}
	numCandidates := opts.NumCandidates
	if numCandidates < k {
		numCandidates = k
	}

	where, args := []string{"1 = 1"}, []any{}
	if opts.UseFlag != nil {
		where, args = append(where, "use_yn = "+placeholder(len(args)+1)), append(args, *opts.UseFlag)
	}
	if opts.MinBrowseCount != nil {
		where, args = append(where, "browse_count >= "+placeholder(len(args)+1)), append(args, *opts.MinBrowseCount)
	}

	// The <=> operator computes cosine distance (1 - cosine_similarity),
	// so the candidate stage orders by distance ascending.
	vector := pgvector.NewVector(opts.Vector)
	scoreArg := placeholder(len(args) + 1)
	orderArg := placeholder(len(args) + 2)
	candidatesArg := placeholder(len(args) + 3)
	limitArg := placeholder(len(args) + 4)
	args = append(args, vector, vector, numCandidates, k)

	query := `
		SELECT id, name, browse_count, use_yn, reg_dts, properties, full_text, indexed_at, score
		FROM (
			SELECT
				id, name, browse_count, use_yn, reg_dts, properties, full_text, indexed_at,
				1 - (embedding <=> ` + scoreArg + `) AS score
			FROM guide_document
			WHERE ` + strings.Join(where, " AND ") + `
			ORDER BY embedding <=> ` + orderArg + `
			LIMIT ` + candidatesArg + `
		) candidates
		ORDER BY score DESC, id ASC
		LIMIT ` + limitArg

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search guide documents")
	}
	defer rows.Close()

	results := []*store.GuideDocumentWithScore{}
	for rows.Next() {
		var result store.GuideDocumentWithScore
		doc, err := scanGuideDocument(rows, &result.Score)
		if err != nil {
			return nil, err
		}
		result.GuideDocument = doc
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate vector search results")
	}

	return results, nil
}

// ListGuideDocuments runs a plain filtered/sorted query without vectors.
func (d *DB) ListGuideDocuments(ctx context.Context, find *store.FindGuideDocument) ([]*store.GuideDocument, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UseFlag != nil {
		where, args = append(where, "use_yn = "+placeholder(len(args)+1)), append(args, *find.UseFlag)
	}
	if find.TextContains != nil {
		pattern := "%" + *find.TextContains + "%"
		where = append(where, "(name ILIKE "+placeholder(len(args)+1)+" OR full_text ILIKE "+placeholder(len(args)+2)+")")
		args = append(args, pattern, pattern)
	}

	orderBy := "id ASC"
	if find.OrderByBrowseCount {
		orderBy = "browse_count DESC, id ASC"
	}

	query := `
		SELECT id, name, browse_count, use_yn, reg_dts, properties, full_text, indexed_at
		FROM guide_document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy

	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list guide documents")
	}
	defer rows.Close()

	list := []*store.GuideDocument{}
	for rows.Next() {
		doc, err := scanGuideDocument(rows, nil)
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate guide documents")
	}

	return list, nil
}

func (d *DB) CountGuideDocuments(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guide_document`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count guide documents")
	}
	return count, nil
}

// scanGuideDocument scans one result row; score is scanned last when non-nil.
func scanGuideDocument(rows *sql.Rows, score *float64) (*store.GuideDocument, error) {
	var doc store.GuideDocument
	var registeredAt sql.NullTime
	var properties []byte

	dest := []any{
		&doc.ID,
		&doc.Name,
		&doc.BrowseCount,
		&doc.UseFlag,
		&registeredAt,
		&properties,
		&doc.FullText,
		&doc.IndexedAt,
	}
	if score != nil {
		dest = append(dest, score)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "failed to scan guide document")
	}

	if registeredAt.Valid {
		t := registeredAt.Time
		doc.RegisteredAt = &t
	}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &doc.Properties); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal properties of guide document %s", doc.ID)
		}
	}

	return &doc, nil
}
