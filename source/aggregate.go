package source

import (
	"io"
	"time"
)

// GuideProperty is one ordered property of a guide, carrying the raw
// (not yet normalized) content from the source.
type GuideProperty struct {
	ID       string
	TypeCode string
	Seq      int
	Content  string
}

// Guide is one aggregated guide entity: the parent row's scalar attributes
// plus its ordered property sequence.
type Guide struct {
	ID           string
	Name         string
	BrowseCount  int
	UseFlag      string
	RegisteredAt *time.Time
	Properties   []GuideProperty
}

// Aggregator folds a sorted flat row stream into one Guide per contiguous
// guide_id run. It holds a single accumulator plus one row of lookahead,
// so memory stays constant regardless of row count.
//
// The sort invariant belongs to the query producing the rows: a guide_id
// appearing in two non-contiguous runs yields two separate Guides for the
// same id. The aggregator does not detect or merge such fragments.
type Aggregator struct {
	reader  RowReader
	pending *GuideRow
	done    bool
}

// NewAggregator wraps an ordered row stream.
func NewAggregator(reader RowReader) *Aggregator {
	return &Aggregator{reader: reader}
}

// Next returns the next aggregated guide, or io.EOF when the stream is
// exhausted. Any row read error ends the stream.
func (a *Aggregator) Next() (*Guide, error) {
	if a.done {
		return nil, io.EOF
	}

	first := a.pending
	a.pending = nil
	if first == nil {
		row, err := a.reader.Next()
		if err != nil {
			a.done = true
			return nil, err
		}
		first = row
	}

	guide := newGuide(first)
	appendProperty(guide, first)

	for {
		row, err := a.reader.Next()
		if err == io.EOF {
			a.done = true
			return guide, nil
		}
		if err != nil {
			a.done = true
			return nil, err
		}

		if row.GuideID != guide.ID {
			// Run boundary: keep the row for the next call.
			a.pending = row
			return guide, nil
		}
		appendProperty(guide, row)
	}
}

// Close releases the underlying row cursor if it holds one.
func (a *Aggregator) Close() error {
	a.done = true
	if closer, ok := a.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func newGuide(row *GuideRow) *Guide {
	guide := &Guide{
		ID:      row.GuideID,
		Name:    row.GuideName,
		UseFlag: row.UseFlag,
	}
	if row.BrowseCount.Valid {
		guide.BrowseCount = int(row.BrowseCount.Int64)
	}
	if row.RegisteredAt.Valid {
		registeredAt := row.RegisteredAt.Time
		guide.RegisteredAt = &registeredAt
	}
	return guide
}

// appendProperty admits a property only when the row carries both a property
// id and non-empty content. Outer-join rows without a property, and property
// rows with empty content, contribute nothing.
func appendProperty(guide *Guide, row *GuideRow) {
	if !row.PropID.Valid || !row.Content.Valid || row.Content.String == "" {
		return
	}

	property := GuideProperty{
		ID:      row.PropID.String,
		Content: row.Content.String,
	}
	if row.PropTypeCode.Valid {
		property.TypeCode = row.PropTypeCode.String
	}
	if row.PropSeq.Valid {
		property.Seq = int(row.PropSeq.Int64)
	}
	guide.Properties = append(guide.Properties, property)
}
