package store

import (
	"time"
)

// GuideProperty is one property of an indexed guide document. Content here
// is already normalized plain text.
type GuideProperty struct {
	ID       string `json:"prop_id"`
	TypeCode string `json:"prop_type_cd"`
	Seq      int    `json:"prop_seq"`
	Content  string `json:"content"`
}

// GuideDocument is the unit persisted to the document store. ID doubles as
// the store document identifier, so a reindex overwrites in place.
type GuideDocument struct {
	ID           string
	Name         string
	BrowseCount  int
	UseFlag      string
	RegisteredAt *time.Time
	Properties   []GuideProperty
	FullText     string
	Embedding    []float32
	IndexedAt    time.Time
}

// GuideDocumentWithScore is a search hit with its cosine similarity score.
type GuideDocumentWithScore struct {
	*GuideDocument
	Score float64
}

// VectorSearchOptions drives an approximate nearest-neighbor query.
// The store gathers NumCandidates approximate neighbors first and returns
// the top K by similarity; NumCandidates trades recall against latency.
type VectorSearchOptions struct {
	Vector        []float32
	K             int
	NumCandidates int

	// Optional metadata filters.
	UseFlag        *string
	MinBrowseCount *int
}

// FindGuideDocument filters a plain (non-vector) document query.
type FindGuideDocument struct {
	ID           *string
	UseFlag      *string
	TextContains *string // matches name or full text

	OrderByBrowseCount bool
	Limit              int
}

// BulkFailure names one document that could not be written.
type BulkFailure struct {
	ID     string
	Reason string
}

// BulkResult reports the outcome of a bulk write. Failures never abort the
// batch; every document is accounted for on exactly one side.
type BulkResult struct {
	Succeeded int
	Failures  []BulkFailure
}
