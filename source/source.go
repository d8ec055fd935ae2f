// Package source reads consultation guide rows from the relational source
// and reconstructs the guide/property hierarchy from the flat join stream.
package source

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/pkg/errors"

	// Import the relational source drivers.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// guideRowQuery is the multi-table join producing the flat guide row stream.
// The ORDER BY clause is load-bearing: the aggregator depends on rows for the
// same guide being contiguous and properties arriving in sequence order.
const guideRowQuery = `
	SELECT
		g.guide_id,
		g.guide_name,
		g.browse_count,
		g.use_yn,
		g.reg_dts,
		p.prop_id,
		p.prop_type_cd,
		c.prop_seq,
		c.content
	FROM guide g
	LEFT JOIN guide_prop p ON g.guide_id = p.guide_id
	LEFT JOIN guide_prop_content c ON p.prop_id = c.prop_id
	WHERE g.use_yn = 'Y'
	ORDER BY g.guide_id, p.prop_id, c.prop_seq
`

// GuideRow is one flat row of the guide join. Property columns carry
// outer-join semantics: a guide without properties still yields one row
// with every property column null.
type GuideRow struct {
	GuideID      string
	GuideName    string
	BrowseCount  sql.NullInt64
	UseFlag      string
	RegisteredAt sql.NullTime
	PropID       sql.NullString
	PropTypeCode sql.NullString
	PropSeq      sql.NullInt64
	Content      sql.NullString
}

// RowReader yields ordered guide rows. Next returns io.EOF at end of stream.
type RowReader interface {
	Next() (*GuideRow, error)
}

// Source is a short-lived connection to the relational guide source,
// scoped to a single run.
type Source struct {
	db *sql.DB
}

// Open connects to the relational source and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Source, error) {
	if dsn == "" {
		return nil, errors.New("source dsn required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open source database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to source database")
	}

	return &Source{db: db}, nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

// Ping verifies the source connection is still alive.
func (s *Source) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "source ping failed")
}

// Guides executes the guide join query and returns a streaming aggregator
// over the resulting row cursor. The caller must Close the aggregator.
func (s *Source) Guides(ctx context.Context) (*Aggregator, error) {
	rows, err := s.db.QueryContext(ctx, guideRowQuery)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query guide rows")
	}
	return NewAggregator(&sqlRowReader{rows: rows}), nil
}

// QueryRows runs an arbitrary read-only query and renders every value as a
// string, capped at limit rows. Used by the tool-dispatch boundary; the
// SELECT-only guard lives there, not here.
func (s *Source) QueryRows(ctx context.Context, query string, limit int) ([]string, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read result columns")
	}

	var result [][]string
	for rows.Next() {
		if limit > 0 && len(result) >= limit {
			break
		}

		values := make([]sql.NullString, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, errors.Wrap(err, "failed to scan result row")
		}

		rendered := make([]string, len(columns))
		for i, v := range values {
			if v.Valid {
				rendered[i] = v.String
			} else {
				rendered[i] = "NULL"
			}
		}
		result = append(result, rendered)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to iterate result rows")
	}

	return columns, result, nil
}

// sqlRowReader adapts *sql.Rows to RowReader.
type sqlRowReader struct {
	rows *sql.Rows
}

func (r *sqlRowReader) Next() (*GuideRow, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read guide row")
		}
		return nil, io.EOF
	}

	var row GuideRow
	err := r.rows.Scan(
		&row.GuideID,
		&row.GuideName,
		&row.BrowseCount,
		&row.UseFlag,
		&row.RegisteredAt,
		&row.PropID,
		&row.PropTypeCode,
		&row.PropSeq,
		&row.Content,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan guide row")
	}
	return &row, nil
}

func (r *sqlRowReader) Close() error {
	return r.rows.Close()
}
