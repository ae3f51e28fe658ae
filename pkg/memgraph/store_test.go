package memgraph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/query"
)

func ids(rs []graph.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestAddBlockCID(t *testing.T) {
	s := New()

	cid, err := s.AddBlock("doc1", []float32{0.5, -1.25}, "doc", map[string]any{"title": "a"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cid, "bafyrei"), cid)
	assert.Len(t, cid, 59)
	assert.Equal(t, query.GraphIPLD, query.DetectGraphType(query.Query{Filter: cid}))

	// Same content, same CID; different content, different CID.
	again, err := s.AddBlock("doc2", []float32{0.5, -1.25}, "doc", map[string]any{"title": "a"})
	require.NoError(t, err)
	assert.Equal(t, cid, again)
	other, err := s.AddBlock("doc3", []float32{0.5, -1.25}, "doc", map[string]any{"title": "b"})
	require.NoError(t, err)
	assert.NotEqual(t, cid, other)

	id, ok := s.ResolveCID(cid)
	assert.True(t, ok)
	assert.Equal(t, "doc1", id)

	vec, props, err := s.Block(cid)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1.25}, vec)
	assert.Equal(t, map[string]any{"title": "a"}, props)

	_, _, err = s.Block("bafyreinothere")
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)
}

func TestReplacingBlockMovesCID(t *testing.T) {
	s := New()
	cid, err := s.AddBlock("a", []float32{1}, "", nil)
	require.NoError(t, err)
	_, err = s.AddBlock("b", []float32{1}, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.AddNode("a", []float32{1}, "", nil))
	id, ok := s.ResolveCID(cid)
	assert.True(t, ok)
	assert.Equal(t, "b", id)
}

func TestDecodeBlockRejectsTruncated(t *testing.T) {
	_, err := decodeBlockVector([]byte{1})
	assert.Error(t, err)
	_, err = decodeBlockVector([]byte{4, 0, 0, 0, 1, 2})
	assert.Error(t, err)
}

func searchFixture(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(opts...)
	require.NoError(t, s.AddNode("a", []float32{1, 0}, "doc", map[string]any{"lang": "en"}))
	require.NoError(t, s.AddNode("b", []float32{0.6, 0.8}, "doc", map[string]any{"lang": "it"}))
	require.NoError(t, s.AddNode("c", []float32{0, 1}, "note", map[string]any{"lang": "en"}))
	require.NoError(t, s.AddNode("nov", nil, "tag", nil))
	_, err := s.AddBlock("blk", []float32{0.8, 0.6}, "doc", map[string]any{"lang": "en", "year": 2024})
	require.NoError(t, err)
	return s
}

func TestVectorSearch(t *testing.T) {
	ctx := context.Background()
	s := searchFixture(t)

	res, err := s.VectorSearch(ctx, []float32{1, 0}, 3, graph.VectorSearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, "blk", res[1].ID)
	assert.InDelta(t, 0.8, res[1].Score, 1e-3)
	assert.NotEmpty(t, res[1].CID)
	assert.Equal(t, "b", res[2].ID)
	assert.Equal(t, "doc", res[0].Metadata["type"])

	t.Run("filter", func(t *testing.T) {
		res, err := s.VectorSearch(ctx, []float32{1, 0}, 10, graph.VectorSearchOptions{Filter: "lang = 'en' AND type = doc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "blk"}, []string{res[0].ID, res[1].ID})
		assert.Len(t, res, 2)

		res, err = s.VectorSearch(ctx, []float32{1, 0}, 10, graph.VectorSearchOptions{Filter: `year = "2024"`})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "blk", res[0].ID)
	})

	t.Run("bare cid filter", func(t *testing.T) {
		all, err := s.VectorSearch(ctx, []float32{1, 0}, 10, graph.VectorSearchOptions{})
		require.NoError(t, err)
		var cid string
		for _, r := range all {
			if r.ID == "blk" {
				cid = r.CID
			}
		}
		res, err := s.VectorSearch(ctx, []float32{1, 0}, 10, graph.VectorSearchOptions{Filter: cid})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "blk", res[0].ID)
	})

	t.Run("cid bucket", func(t *testing.T) {
		res, err := s.VectorSearch(ctx, []float32{1, 0}, 10, graph.VectorSearchOptions{UseCIDBucketOptimization: true})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "blk", res[0].ID)
	})

	t.Run("block batch loading gives same answer", func(t *testing.T) {
		plain, err := s.VectorSearch(ctx, []float32{0.3, 0.7}, 10, graph.VectorSearchOptions{})
		require.NoError(t, err)
		batched, err := s.VectorSearch(ctx, []float32{0.3, 0.7}, 10, graph.VectorSearchOptions{EnableBlockBatchLoading: true})
		require.NoError(t, err)
		assert.Equal(t, plain, batched)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := s.VectorSearch(ctx, []float32{1, 0}, 0, graph.VectorSearchOptions{})
		assert.Error(t, err)
		_, err = s.VectorSearch(ctx, nil, 1, graph.VectorSearchOptions{})
		assert.Error(t, err)
		_, err = s.VectorSearch(ctx, []float32{1, 0}, 1, graph.VectorSearchOptions{Filter: "lang > 3"})
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("dimension mismatch skipped", func(t *testing.T) {
		res, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, graph.VectorSearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestVectorSearchDimensionalityReduction(t *testing.T) {
	ctx := context.Background()
	s := New(WithReducedDimensions(2))
	require.NoError(t, s.AddNode("x", []float32{1, 0, 5, 5}, "", nil))
	require.NoError(t, s.AddNode("y", []float32{0.9, 0.1, 0, 0}, "", nil))

	full, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 1, graph.VectorSearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "y", full[0].ID)

	reduced, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 1, graph.VectorSearchOptions{UseDimensionalityReduction: true})
	require.NoError(t, err)
	assert.Equal(t, "x", reduced[0].ID)
}

func TestVectorSearchCancelled(t *testing.T) {
	s := searchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.VectorSearch(ctx, []float32{1, 0}, 1, graph.VectorSearchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimilarityKernelsAgree(t *testing.T) {
	a := []float32{0.1, -0.4, 2.5, 3, 0, 1}
	b := []float32{1.5, 0.2, -0.7, 0.3, 9, 1}
	assert.InDelta(t, float64(dotGo(a, b)), float64(dotGonum(a, b)), 1e-5)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
	assert.InDelta(t, 1.0, cosine([]float32{2, 2}, []float32{1, 1}), 1e-6)
}

func TestLinksAndEntityInfo(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, id := range []string{"hub", "x", "y", "z"} {
		require.NoError(t, s.AddNode(id, nil, "entity", map[string]any{"name": id}))
	}
	require.NoError(t, s.Link("hub", "x", "mentions", 0))
	require.NoError(t, s.Link("hub", "y", "mentions", 0.5))
	require.NoError(t, s.Link("hub", "z", "cites", 1))
	require.NoError(t, s.Link("x", "hub", "cites", 1))
	require.NoError(t, s.Link("hub", "x", "mentions", 0.25)) // updates weight

	out, err := s.Links("hub", "mentions")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "x", out[0].TargetID)
	assert.Equal(t, 0.25, out[0].Weight)

	in, err := s.Incoming("x", "mentions")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "hub", in[0].TargetID)

	info, err := s.EntityInfo(ctx, "hub")
	require.NoError(t, err)
	assert.Equal(t, "entity", info.Type)
	assert.Len(t, info.Outbound, 3)
	assert.Len(t, info.Inbound, 1)
	assert.Equal(t, graph.Connection{ID: "z", Relationship: "cites", Weight: 1}, info.Outbound[0])

	_, err = s.EntityInfo(ctx, "ghost")
	assert.True(t, errors.Is(err, graph.ErrEntityNotFound))
	assert.ErrorIs(t, s.Link("hub", "ghost", "mentions", 1), graph.ErrEntityNotFound)
	assert.Error(t, s.Link("hub", "x", "", 1))

	removed, err := s.Unlink("hub", "z", "cites")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Unlink("hub", "z", "cites")
	require.NoError(t, err)
	assert.False(t, removed)

	info, err = s.EntityInfo(ctx, "hub")
	require.NoError(t, err)
	assert.Len(t, info.Outbound, 2)
	zInfo, err := s.EntityInfo(ctx, "z")
	require.NoError(t, err)
	assert.Empty(t, zInfo.Inbound)
}

func TestFilterParsing(t *testing.T) {
	f, err := parseFilter(`lang = 'en' and kind = "a b" AND n = 3`)
	require.NoError(t, err)
	assert.Equal(t, filter{{"lang", "en"}, {"kind", "a b"}, {"n", "3"}}, f)

	f, err = parseFilter("   ")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = parseFilter("lang != 'en'")
	assert.Error(t, err)
}
