package source

import (
	"database/sql"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceRowReader replays a fixed row slice, optionally failing at the end.
type sliceRowReader struct {
	rows   []*GuideRow
	pos    int
	err    error
	closed bool
}

func (r *sliceRowReader) Next() (*GuideRow, error) {
	if r.pos >= len(r.rows) {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *sliceRowReader) Close() error {
	r.closed = true
	return nil
}

func row(guideID, name string, propID, content string, seq int) *GuideRow {
	r := &GuideRow{
		GuideID:     guideID,
		GuideName:   name,
		UseFlag:     "Y",
		BrowseCount: sql.NullInt64{Int64: 10, Valid: true},
	}
	if propID != "" {
		r.PropID = sql.NullString{String: propID, Valid: true}
		r.PropTypeCode = sql.NullString{String: "10", Valid: true}
		r.PropSeq = sql.NullInt64{Int64: int64(seq), Valid: true}
		r.Content = sql.NullString{String: content, Valid: content != ""}
	}
	return r
}

func collect(t *testing.T, a *Aggregator) []*Guide {
	t.Helper()
	var guides []*Guide
	for {
		guide, err := a.Next()
		if err == io.EOF {
			return guides
		}
		require.NoError(t, err)
		guides = append(guides, guide)
	}
}

func TestAggregatorGroupsContiguousRuns(t *testing.T) {
	reader := &sliceRowReader{rows: []*GuideRow{
		row("A", "guide a", "p1", "one", 1),
		row("A", "guide a", "p2", "two", 2),
		row("A", "guide a", "p3", "three", 3),
		row("B", "guide b", "p4", "four", 1),
		row("B", "guide b", "p5", "five", 2),
		row("C", "guide c", "p6", "six", 1),
	}}

	guides := collect(t, NewAggregator(reader))

	require.Len(t, guides, 3)
	assert.Equal(t, "A", guides[0].ID)
	assert.Equal(t, "B", guides[1].ID)
	assert.Equal(t, "C", guides[2].ID)
	assert.Len(t, guides[0].Properties, 3)
	assert.Len(t, guides[1].Properties, 2)
	assert.Len(t, guides[2].Properties, 1)
	assert.Equal(t, []GuideProperty{
		{ID: "p1", TypeCode: "10", Seq: 1, Content: "one"},
		{ID: "p2", TypeCode: "10", Seq: 2, Content: "two"},
		{ID: "p3", TypeCode: "10", Seq: 3, Content: "three"},
	}, guides[0].Properties)
}

func TestAggregatorPropertyAdmission(t *testing.T) {
	nullContent := row("A", "guide a", "p1", "", 0)
	nullContent.Content = sql.NullString{}

	emptyContent := row("A", "guide a", "p2", "", 2)
	emptyContent.Content = sql.NullString{String: "", Valid: true}

	reader := &sliceRowReader{rows: []*GuideRow{
		nullContent,
		emptyContent,
		row("A", "guide a", "p3", "kept", 3),
	}}

	guides := collect(t, NewAggregator(reader))

	require.Len(t, guides, 1)
	require.Len(t, guides[0].Properties, 1)
	assert.Equal(t, "p3", guides[0].Properties[0].ID)
}

func TestAggregatorOuterJoinGuideWithoutProperties(t *testing.T) {
	reader := &sliceRowReader{rows: []*GuideRow{
		row("A", "orphan guide", "", "", 0),
	}}

	guides := collect(t, NewAggregator(reader))

	require.Len(t, guides, 1)
	assert.Equal(t, "A", guides[0].ID)
	assert.Equal(t, "orphan guide", guides[0].Name)
	assert.Empty(t, guides[0].Properties)
	assert.Equal(t, 10, guides[0].BrowseCount)
}

func TestAggregatorEmptyStream(t *testing.T) {
	a := NewAggregator(&sliceRowReader{})

	_, err := a.Next()
	assert.Equal(t, io.EOF, err)

	// Subsequent calls keep returning EOF.
	_, err = a.Next()
	assert.Equal(t, io.EOF, err)
}

func TestAggregatorNonContiguousRunsStaySplit(t *testing.T) {
	// Violating the sort invariant is the caller's responsibility; the
	// aggregator emits one guide per contiguous run without merging.
	reader := &sliceRowReader{rows: []*GuideRow{
		row("A", "guide a", "p1", "one", 1),
		row("B", "guide b", "p2", "two", 1),
		row("A", "guide a", "p3", "three", 1),
	}}

	guides := collect(t, NewAggregator(reader))

	require.Len(t, guides, 3)
	assert.Equal(t, "A", guides[0].ID)
	assert.Equal(t, "B", guides[1].ID)
	assert.Equal(t, "A", guides[2].ID)
}

func TestAggregatorPropagatesReadError(t *testing.T) {
	readErr := errors.New("cursor gone")
	reader := &sliceRowReader{
		rows: []*GuideRow{row("A", "guide a", "p1", "one", 1)},
		err:  readErr,
	}

	a := NewAggregator(reader)
	_, err := a.Next()
	assert.ErrorIs(t, err, readErr)

	// The stream is dead after an error.
	_, err = a.Next()
	assert.Equal(t, io.EOF, err)
}

func TestAggregatorCloseReleasesReader(t *testing.T) {
	reader := &sliceRowReader{}
	a := NewAggregator(reader)

	require.NoError(t, a.Close())
	assert.True(t, reader.closed)

	_, err := a.Next()
	assert.Equal(t, io.EOF, err)
}
