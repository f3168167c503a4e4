package compaction

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

func mk(id string, compacts ...string) *note.Note {
	n := note.New(id, "Note "+id)
	n.Compacts = compacts
	return n
}

func TestCanon(t *testing.T) {
	notes := []*note.Note{
		mk("qp-1"), mk("qp-2"), mk("qp-3"),
		mk("qp-d1", "qp-1", "qp-2"),
		mk("qp-d2", "qp-d1", "qp-3"),
	}
	ctx := Build(notes)

	assert.Equal(t, "qp-d2", ctx.Canon("qp-1"))
	assert.Equal(t, "qp-d2", ctx.Canon("qp-d1"))
	assert.Equal(t, "qp-d2", ctx.Canon("qp-d2"))
	assert.Equal(t, "qp-x", ctx.Canon("qp-x"), "unknown ids are their own canon")

	d, ok := ctx.Compactor("qp-1")
	require.True(t, ok)
	assert.Equal(t, "qp-d1", d)
	_, ok = ctx.Compactor("qp-d2")
	assert.False(t, ok)

	assert.True(t, ctx.IsCompacted("qp-d1"))
	assert.False(t, ctx.IsCompacted("qp-d2"))
	assert.True(t, ctx.IsDigest("qp-d1"))
	assert.False(t, ctx.IsDigest("qp-1"))
	assert.Equal(t, []string{"qp-d1", "qp-d2"}, ctx.Digests())
	assert.Equal(t, 2, ctx.CompactsCount("qp-d2"))
	assert.Equal(t, 0, ctx.CompactsCount("qp-1"))
	assert.Equal(t, []string{"qp-d1", "qp-3"}, ctx.CompactedNotes("qp-d2"))
	assert.Nil(t, ctx.CompactedNotes("qp-1"))

	assert.Equal(t, []string{"qp-1", "qp-2", "qp-3", "qp-d1", "qp-d2"}, ctx.Equivalents("qp-d2"))
	assert.Equal(t, []string{"qp-x"}, ctx.Equivalents("qp-x"))
	assert.Equal(t, map[string][]string{
		"qp-d2": {"qp-1", "qp-2", "qp-3", "qp-d1", "qp-d2"},
	}, ctx.EquivalenceMap())
	assert.Empty(t, ctx.Validate(notes))
}

func TestCanonIsIdempotent(t *testing.T) {
	notes := []*note.Note{
		mk("qp-a", "qp-b"), mk("qp-b", "qp-c"), mk("qp-c", "qp-a"),
		mk("qp-d", "qp-e"), mk("qp-e"), mk("qp-f", "qp-f"),
	}
	ctx := Build(notes)
	for _, n := range notes {
		c := ctx.Canon(n.ID)
		assert.Equal(t, c, ctx.Canon(c), "canon(canon(%s))", n.ID)
	}
}

func TestCanonTerminatesOnCycle(t *testing.T) {
	ctx := Build([]*note.Note{mk("qp-a", "qp-b"), mk("qp-b", "qp-a")})
	assert.Equal(t, "qp-a", ctx.Canon("qp-a"))
	assert.Equal(t, "qp-b", ctx.Canon("qp-b"))
}

func TestBuildCollectsConflicts(t *testing.T) {
	notes := []*note.Note{
		mk("qp-1"),
		mk("qp-d2", "qp-1"),
		mk("qp-d1", "qp-1"),
		mk("qp-d3", "qp-1"),
	}
	ctx := Build(notes)

	d, _ := ctx.Compactor("qp-1")
	assert.Equal(t, "qp-d1", d, "lowest digest id claims first")
	assert.Equal(t, []string{
		"note qp-1 has multiple compactors: qp-d1 and qp-d2",
		"note qp-1 has multiple compactors: qp-d1 and qp-d3",
	}, ctx.Conflicts())
	assert.Equal(t, ctx.Conflicts(), ctx.Validate(notes))

	assert.Equal(t, []string{"qp-1"}, ctx.CompactedNotes("qp-d1"))
	assert.Nil(t, ctx.CompactedNotes("qp-d2"))
	assert.Zero(t, ctx.CompactsCount("qp-d3"))
	ids, truncated := ctx.CompactedIDs("qp-d2", 1, 0)
	assert.Empty(t, ids)
	assert.False(t, truncated)
	assert.Equal(t, []string{"qp-d1"}, ctx.Digests())
}

func TestValidate(t *testing.T) {
	t.Run("dangling claim", func(t *testing.T) {
		notes := []*note.Note{mk("qp-d", "qp-gone")}
		assert.Equal(t, []string{"note qp-d compacts unknown note: qp-gone"}, Build(notes).Validate(notes))
	})

	t.Run("self compaction", func(t *testing.T) {
		notes := []*note.Note{mk("qp-d", "qp-d")}
		assert.Equal(t, []string{"note qp-d compacts itself (self-compaction not allowed)"}, Build(notes).Validate(notes))
	})

	t.Run("cycle reported once", func(t *testing.T) {
		notes := []*note.Note{mk("qp-a", "qp-b"), mk("qp-b", "qp-c"), mk("qp-c", "qp-a")}
		assert.Equal(t, []string{"compaction cycle detected: qp-a -> qp-b -> qp-c"}, Build(notes).Validate(notes))
	})

	t.Run("digest missing from corpus", func(t *testing.T) {
		ctx := Build([]*note.Note{mk("qp-d", "qp-1"), mk("qp-1")})
		v := ctx.Validate([]*note.Note{mk("qp-1")})
		assert.Equal(t, []string{"compaction references unknown digest note: qp-d"}, v)
	})
}

func TestCompactedIDs(t *testing.T) {
	notes := []*note.Note{
		mk("qp-top", "qp-m2", "qp-m1"),
		mk("qp-m1", "qp-z", "qp-a"),
		mk("qp-m2", "qp-b", "qp-top"),
		mk("qp-a"), mk("qp-b"), mk("qp-z"),
	}
	ctx := Build(notes)

	ids, truncated := ctx.CompactedIDs("qp-top", 1, 0)
	assert.Equal(t, []string{"qp-m1", "qp-m2"}, ids)
	assert.False(t, truncated)

	ids, truncated = ctx.CompactedIDs("qp-top", 5, 0)
	assert.Equal(t, []string{"qp-m1", "qp-m2", "qp-a", "qp-b", "qp-z"}, ids, "levels sorted, digest excluded")
	assert.False(t, truncated)

	ids, truncated = ctx.CompactedIDs("qp-top", 5, 3)
	assert.Equal(t, []string{"qp-m1", "qp-m2", "qp-a"}, ids)
	assert.True(t, truncated)

	ids, truncated = ctx.CompactedIDs("qp-top", 5, 5)
	assert.Len(t, ids, 5)
	assert.False(t, truncated, "exactly at the cap is not truncated")

	ids, _ = ctx.CompactedIDs("qp-a", 3, 0)
	assert.Empty(t, ids)

	ids, _ = ctx.CompactedIDs("qp-top", 0, 0)
	assert.Empty(t, ids)
}

func TestCompactedIDsNeverExceedsCap(t *testing.T) {
	var notes []*note.Note
	var leaves []string
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("qp-n%02d", i)
		leaves = append(leaves, id)
		notes = append(notes, mk(id))
	}
	notes = append(notes, mk("qp-d", leaves...))
	ctx := Build(notes)

	for max := 1; max <= 25; max++ {
		ids, truncated := ctx.CompactedIDs("qp-d", 2, max)
		assert.LessOrEqual(t, len(ids), max)
		assert.Equal(t, max < 20, truncated, "max=%d", max)
	}
}

func TestExpandNotesAndPercent(t *testing.T) {
	s1 := mk("qp-1")
	s1.Body = "0123456789012345678901234567890123456789"
	s2 := mk("qp-2")
	s2.Body = "0123456789012345678901234567890123456789"
	d := mk("qp-d", "qp-1", "qp-2", "qp-missing")
	d.Summary = "short"
	notes := []*note.Note{s1, s2, d}
	ctx := Build(notes)
	byID := NoteMap(notes)

	expanded, truncated := ctx.ExpandNotes("qp-d", 1, 0, byID)
	assert.False(t, truncated)
	require.Len(t, expanded, 2)
	assert.Equal(t, "qp-1", expanded[0].ID)

	pct, ok := ctx.Percent(d, byID)
	require.True(t, ok)
	want := 100 * (1 - float64(len("Note qp-d")+5)/float64(2*(len("Note qp-1")+40)))
	assert.InDelta(t, want, pct, 1e-9)

	_, ok = ctx.Percent(s1, byID)
	assert.False(t, ok)
}

func TestApply(t *testing.T) {
	base := func() []*note.Note {
		return []*note.Note{mk("qp-1"), mk("qp-2"), mk("qp-3"), mk("qp-d", "qp-3"), mk("qp-e")}
	}

	t.Run("merges and sorts", func(t *testing.T) {
		notes := base()
		got, err := Apply(notes, "qp-d", []string{"qp-2", "qp-1", "qp-2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"qp-1", "qp-2", "qp-3"}, got.Compacts)
		assert.Equal(t, []string{"qp-3"}, notes[3].Compacts, "input untouched")
	})

	t.Run("idempotent", func(t *testing.T) {
		got, err := Apply(base(), "qp-d", []string{"qp-3"})
		require.NoError(t, err)
		assert.Equal(t, []string{"qp-3"}, got.Compacts)
	})

	t.Run("conflict rejected", func(t *testing.T) {
		_, err := Apply(base(), "qp-e", []string{"qp-3"})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Violations, 1)
		assert.Contains(t, verr.Error(), "multiple compactors")
	})

	t.Run("dangling rejected", func(t *testing.T) {
		_, err := Apply(base(), "qp-d", []string{"qp-nope"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"note qp-d compacts unknown note: qp-nope"}, verr.Violations)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		_, err := Apply(base(), "qp-3", []string{"qp-d"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Violations[0], "cycle")
	})

	t.Run("missing digest", func(t *testing.T) {
		_, err := Apply(base(), "qp-zz", []string{"qp-1"})
		assert.ErrorIs(t, err, ErrDigestNotFound)
	})

	t.Run("no sources", func(t *testing.T) {
		_, err := Apply(base(), "qp-d", nil)
		assert.ErrorIs(t, err, ErrNoSources)
	})
}

func TestReport(t *testing.T) {
	at := func(n *note.Note, ts time.Time) *note.Note {
		n.Updated = &ts
		return n
	}
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s1 := at(mk("qp-s1"), day)
	s1.Body = strings.Repeat("a", 90)
	s1.Links = []note.TypedLink{{Type: "related", ID: "qp-s2"}, {Type: "supports", ID: "qp-x"}}
	s2 := at(mk("qp-s2"), day.Add(48*time.Hour))
	s2.Body = strings.Repeat("b", 90)
	s2.Links = []note.TypedLink{{Type: "related", ID: "qp-s1"}}
	d := at(mk("qp-d", "qp-s1", "qp-s2"), day.Add(24*time.Hour))
	d.Summary = strings.Repeat("c", 50-len(d.Title))

	notes := []*note.Note{s1, s2, d, mk("qp-x")}
	ctx := Build(notes)

	r, err := ctx.Report("qp-d", notes, index.FromNotes(notes))
	require.NoError(t, err)
	assert.Equal(t, 2, r.DirectCount)
	assert.InDelta(t, 75.0, r.Percent, 1e-9)
	assert.Equal(t, 2, r.InternalEdges)
	assert.Equal(t, 1, r.BoundaryEdges)
	assert.InDelta(t, 1.0/3.0, r.BoundaryRatio, 1e-9)
	assert.Equal(t, []string{"qp-s2"}, r.StaleSources)
	assert.True(t, r.Stale())
	assert.True(t, r.Valid())
	assert.Empty(t, r.Violations)

	t.Run("violations", func(t *testing.T) {
		bad := append(notes, mk("qp-e", "qp-s1"))
		r, err := Build(bad).Report("qp-d", bad, index.FromNotes(bad))
		require.NoError(t, err)
		assert.False(t, r.Valid())
		assert.Equal(t, []string{"note qp-s1 has multiple compactors: qp-d and qp-e"}, r.Violations)
	})

	t.Run("not a digest", func(t *testing.T) {
		_, err := ctx.Report("qp-s1", notes, index.FromNotes(notes))
		assert.ErrorIs(t, err, ErrNotDigest)
	})

	t.Run("unknown digest", func(t *testing.T) {
		_, err := ctx.Report("qp-nope", notes, index.FromNotes(notes))
		assert.ErrorIs(t, err, ErrDigestNotFound)
	})
}
