package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
)

func TestPath(t *testing.T) {
	idx := chainIndex("related", "A", "B", "C")
	tr := NewTraverser(idx, ontology.Default())

	t.Run("found", func(t *testing.T) {
		res, err := tr.Path(context.Background(), "A", "C", DefaultOptions())
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.Equal(t, 2, res.Hops)
		assert.InDelta(t, 3.0, float64(res.Cost), 1e-9)

		ids := make([]string, len(res.Notes))
		for i, n := range res.Notes {
			ids[i] = n.ID
		}
		assert.Equal(t, []string{"A", "B", "C"}, ids)
		assert.Equal(t, []TreeLink{
			{From: "A", To: "B", Type: "related", Source: index.SourceTyped},
			{From: "B", To: "C", Type: "related", Source: index.SourceTyped},
		}, res.Links)
	})

	t.Run("direction matters", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Direction = Out
		res, err := tr.Path(context.Background(), "C", "A", opts)
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Empty(t, res.Notes)
	})

	t.Run("same note", func(t *testing.T) {
		res, err := tr.Path(context.Background(), "B", "B", DefaultOptions())
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Len(t, res.Notes, 1)
		assert.Equal(t, 0, res.Hops)
	})

	t.Run("budget limits reach", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxHops = 1
		opts.Unweighted = true
		res, err := tr.Path(context.Background(), "A", "C", opts)
		require.NoError(t, err)
		assert.False(t, res.Found)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		_, err := tr.Path(context.Background(), "A", "nope", DefaultOptions())
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestPathPrefersCheaperRoute(t *testing.T) {
	ns := nodes("S", "M", "T")
	ns[1].Value = 100
	ns[2].Value = 0
	idx := index.Build(ns, []index.Edge{
		edge("S", "T", "contradicts"),
		edge("S", "M", "part-of"),
		edge("M", "T", "part-of"),
	})
	tr := NewTraverser(idx, ontology.Default())

	opts := DefaultOptions()
	opts.Direction = Out
	res, err := tr.Path(context.Background(), "S", "T", opts)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, 2, res.Hops, "two part-of hops are cheaper than one contradicts hop")

	opts.Unweighted = true
	res, err = tr.Path(context.Background(), "S", "T", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Hops)
}

func TestNeighbors(t *testing.T) {
	idx := index.Build(nodes("A", "B", "C"), []index.Edge{
		edge("A", "B", "supports"),
		edge("B", "C", "related"),
		edge("C", "B", "related"),
		{From: "B", To: "C", Type: "related", Source: index.SourceInline},
		edge("B", "ghost", "part-of"),
	})
	tr := NewTraverser(idx, ontology.Default())

	t.Run("inversion on", func(t *testing.T) {
		got, err := tr.Neighbors("B", DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []LinkEntry{
			{Direction: "in", ID: "C", Title: "Note C", Type: "related", Source: index.SourceTyped},
			{Direction: "out", ID: "ghost", Type: "part-of", Source: index.SourceTyped},
			{Direction: "out", ID: "C", Title: "Note C", Type: "related", Source: index.SourceTyped},
			{Direction: "out", ID: "A", Title: "Note A", Type: "supported-by", Source: index.SourceTyped, Virtual: true},
		}, got)
	})

	t.Run("inversion off", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SemanticInversion = false
		opts.Direction = In
		got, err := tr.Neighbors("B", opts)
		require.NoError(t, err)
		assert.Equal(t, []LinkEntry{
			{Direction: "in", ID: "C", Title: "Note C", Type: "related", Source: index.SourceTyped},
			{Direction: "in", ID: "A", Title: "Note A", Type: "supports", Source: index.SourceTyped},
		}, got)
	})

	t.Run("min value drops dangling targets", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MinValue = 40
		got, err := tr.Neighbors("B", opts)
		require.NoError(t, err)
		assert.Equal(t, []LinkEntry{
			{Direction: "in", ID: "C", Title: "Note C", Type: "related", Source: index.SourceTyped},
			{Direction: "out", ID: "C", Title: "Note C", Type: "related", Source: index.SourceTyped},
			{Direction: "out", ID: "A", Title: "Note A", Type: "supported-by", Source: index.SourceTyped, Virtual: true},
		}, got)
	})

	t.Run("inline only", func(t *testing.T) {
		opts := DefaultOptions()
		opts.InlineOnly = true
		got, err := tr.Neighbors("B", opts)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, index.SourceInline, got[0].Source)
	})

	t.Run("compaction folds ids", func(t *testing.T) {
		tr := NewTraverser(idx, ontology.Default(), WithCompaction(fakeCompaction{"C": "A"}))
		got, err := tr.Neighbors("A", DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []LinkEntry{
			{Direction: "in", ID: "B", Title: "Note B", Type: "related", Source: index.SourceTyped},
			{Direction: "out", ID: "B", Title: "Note B", Type: "related", Source: index.SourceTyped},
			{Direction: "out", ID: "B", Title: "Note B", Type: "supports", Source: index.SourceTyped},
		}, got)
	})

	t.Run("unknown note", func(t *testing.T) {
		_, err := tr.Neighbors("nope", DefaultOptions())
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}
