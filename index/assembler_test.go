package index

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guidesearch/embedding"
	"github.com/hrygo/guidesearch/source"
)

// sliceGuideSource replays a fixed guide slice.
type sliceGuideSource struct {
	guides []*source.Guide
	pos    int
	err    error
}

func (s *sliceGuideSource) Next() (*source.Guide, error) {
	if s.pos >= len(s.guides) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	guide := s.guides[s.pos]
	s.pos++
	return guide, nil
}

// fakeEmbedder returns fixed-size vectors and scripted failures per text.
type fakeEmbedder struct {
	mu        sync.Mutex
	dims      int
	failWith  map[string]error // keyed by substring of the input text
	failTimes map[string]int   // how often the failure fires before success
	seen      []string
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{
		dims:      dims,
		failWith:  make(map[string]error),
		failTimes: make(map[string]int),
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, text)

	if strings.TrimSpace(text) == "" {
		return nil, &embedding.Error{Kind: embedding.FailureInvalidInput, Op: "embed", Err: errors.New("input text is empty")}
	}
	for key, err := range f.failWith {
		if strings.Contains(text, key) {
			if remaining, bounded := f.failTimes[key]; bounded {
				if remaining == 0 {
					continue
				}
				f.failTimes[key] = remaining - 1
			}
			return nil, err
		}
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func guide(id, name string, contents ...string) *source.Guide {
	g := &source.Guide{ID: id, Name: name, UseFlag: "Y", BrowseCount: 7}
	for i, content := range contents {
		g.Properties = append(g.Properties, source.GuideProperty{
			ID:      id + "-p" + string(rune('1'+i)),
			Seq:     i + 1,
			Content: content,
		})
	}
	return g
}

func fastAssembler(embedder embedding.Service, workers int) *Assembler {
	return NewAssembler(embedder, AssemblerConfig{
		Workers: workers,
		Retry:   embedding.RetryConfig{MaxAttempts: 3, BaseDelay: 1},
	})
}

func TestAssembleBuildsFullTextFromNormalizedContent(t *testing.T) {
	embedder := newFakeEmbedder(768)
	a := fastAssembler(embedder, 1)

	guides := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "A", "<b>환불</b> 안내", "영업일&nbsp;기준"),
	}}

	docs, skipped, err := a.Assemble(context.Background(), guides)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "1", doc.ID)
	assert.Equal(t, "A 환불 안내 영업일 기준", doc.FullText)
	assert.Len(t, doc.Embedding, 768)
	require.Len(t, doc.Properties, 2)
	assert.Equal(t, "환불 안내", doc.Properties[0].Content)
	assert.Equal(t, "영업일 기준", doc.Properties[1].Content)
	assert.False(t, doc.IndexedAt.IsZero())
}

func TestAssembleDropsEmptyNormalizedProperties(t *testing.T) {
	embedder := newFakeEmbedder(8)
	a := fastAssembler(embedder, 1)

	guides := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "A", "<br/> <p></p>", "내용"),
	}}

	docs, _, err := a.Assemble(context.Background(), guides)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A 내용", docs[0].FullText)
	require.Len(t, docs[0].Properties, 1)
	assert.Equal(t, "내용", docs[0].Properties[0].Content)
}

func TestAssembleSkipsGuideWithNothingToEmbed(t *testing.T) {
	embedder := newFakeEmbedder(8)
	a := fastAssembler(embedder, 1)

	guides := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "", "<br/>"),
		guide("2", "B", "정상 내용"),
	}}

	docs, skipped, err := a.Assemble(context.Background(), guides)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, "1", skipped[0].ID)
}

func TestAssembleRetriesTransientFailure(t *testing.T) {
	embedder := newFakeEmbedder(8)
	embedder.failWith["flaky"] = &embedding.Error{Kind: embedding.FailureTransient, Op: "embed", Err: errors.New("timeout")}
	embedder.failTimes["flaky"] = 2
	a := fastAssembler(embedder, 1)

	guides := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "flaky guide", "내용"),
	}}

	docs, skipped, err := a.Assemble(context.Background(), guides)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID)
}

func TestAssembleDropsGuideAfterRetryBudget(t *testing.T) {
	embedder := newFakeEmbedder(8)
	embedder.failWith["dead"] = &embedding.Error{Kind: embedding.FailureTransient, Op: "embed", Err: errors.New("timeout")}
	a := fastAssembler(embedder, 1)

	guides := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "dead guide", "내용"),
		guide("2", "alive guide", "내용"),
	}}

	docs, skipped, err := a.Assemble(context.Background(), guides)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, "1", skipped[0].ID)
	assert.Contains(t, skipped[0].Reason, "timeout")
}

func TestAssembleDropsGuideOnServiceFailure(t *testing.T) {
	embedder := newFakeEmbedder(8)
	embedder.failWith["broken"] = &embedding.Error{Kind: embedding.FailureService, Op: "embed", Err: errors.New("model rejected input")}
	a := fastAssembler(embedder, 1)

	guides := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "broken guide", "내용"),
	}}

	docs, skipped, err := a.Assemble(context.Background(), guides)
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Reason, "model rejected")
}

func TestAssembleConcurrentWorkersKeepDeterministicOrder(t *testing.T) {
	embedder := newFakeEmbedder(8)
	a := fastAssembler(embedder, 4)

	var guides []*source.Guide
	ids := []string{"g07", "g03", "g01", "g09", "g05", "g02", "g08", "g04", "g06"}
	for _, id := range ids {
		guides = append(guides, guide(id, "guide "+id, "내용 "+id))
	}
	// The source itself is ordered; completion order is not.
	src := &sliceGuideSource{guides: guides}

	docs, skipped, err := a.Assemble(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, docs, len(ids))
	for i := 1; i < len(docs); i++ {
		assert.Less(t, docs[i-1].ID, docs[i].ID)
	}

	// Every document in a run carries the same vector width.
	for _, doc := range docs {
		assert.Len(t, doc.Embedding, 8)
	}
}

func TestAssemblePropagatesSourceError(t *testing.T) {
	embedder := newFakeEmbedder(8)
	a := fastAssembler(embedder, 2)

	readErr := errors.New("cursor lost")
	src := &sliceGuideSource{
		guides: []*source.Guide{guide("1", "A", "내용")},
		err:    readErr,
	}

	_, _, err := a.Assemble(context.Background(), src)
	assert.ErrorIs(t, err, readErr)
}

func TestAssembleCanceledContextIsNotSuccess(t *testing.T) {
	embedder := newFakeEmbedder(8)
	a := fastAssembler(embedder, 2)

	src := &sliceGuideSource{guides: []*source.Guide{
		guide("1", "A", "내용"),
		guide("2", "B", "내용"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs, skipped, err := a.Assemble(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, docs)
	assert.Nil(t, skipped)
}
