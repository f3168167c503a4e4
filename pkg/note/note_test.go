package note

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNote = `---
id: qp-a1b2
title: Zettelkasten basics
type: permanent
tags:
  - method
  - notes
links:
  - type: supports
    id: qp-c3d4
compacts:
  - qp-old1
value: 80
---

Body with [[qp-e5f6]] inside.
`

func TestParse(t *testing.T) {
	n, err := Parse([]byte(sampleNote), "notes/qp-a1b2-zettelkasten-basics.md")
	require.NoError(t, err)

	assert.Equal(t, "qp-a1b2", n.ID)
	assert.Equal(t, "Zettelkasten basics", n.Title)
	assert.Equal(t, "permanent", n.NoteType())
	assert.Equal(t, []string{"method", "notes"}, n.Tags)
	assert.Equal(t, []TypedLink{{Type: "supports", ID: "qp-c3d4"}}, n.Links)
	assert.Equal(t, []string{"qp-old1"}, n.Compacts)
	assert.Equal(t, 80, n.ImportanceValue())
	assert.True(t, n.IsDigest())
	assert.Equal(t, "Body with [[qp-e5f6]] inside.\n", n.Body)
	assert.Equal(t, "notes/qp-a1b2-zettelkasten-basics.md", n.Path)
}

func TestParseDefaults(t *testing.T) {
	n, err := Parse([]byte("---\nid: qp-1\ntitle: Bare\n---\n"), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultType, n.NoteType())
	assert.Equal(t, DefaultValue, n.ImportanceValue())
	assert.False(t, n.IsDigest())
	assert.Empty(t, n.Body)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"no frontmatter", "just text", ErrMissingFrontmatter},
		{"unterminated", "---\nid: qp-1\n", ErrMissingFrontmatter},
		{"missing id", "---\ntitle: x\n---\nbody", ErrMissingID},
		{"value too high", "---\nid: qp-1\nvalue: 101\n---\n", ErrInvalidValue},
		{"value negative", "---\nid: qp-1\nvalue: -1\n---\n", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := Parse([]byte("---\nid: [unclosed\n---\n"), "")
	assert.Error(t, err)
}

func TestParseCRLF(t *testing.T) {
	n, err := Parse([]byte("---\r\nid: qp-1\r\ntitle: Windows\r\n---\r\n\r\nline\r\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "Windows", n.Title)
	assert.Equal(t, "line\n", n.Body)
}

func TestRenderRoundTrip(t *testing.T) {
	n := New("qp-a1b2", "Round trip")
	n.Type = "literature"
	n.Tags = []string{"x"}
	n.Links = []TypedLink{{Type: "part-of", ID: "qp-moc1"}}
	require.NoError(t, n.SetValue(90))
	n.Body = "Some text.\n"

	data, err := n.Render()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "---\nid: qp-a1b2\n"))

	back, err := Parse(data, "")
	require.NoError(t, err)
	assert.Equal(t, n.Frontmatter.ID, back.ID)
	assert.Equal(t, n.Links, back.Links)
	assert.Equal(t, 90, back.ImportanceValue())
	assert.Equal(t, n.Body, back.Body)
	assert.True(t, n.Created.Equal(*back.Created))
}

func TestSetValue(t *testing.T) {
	n := New("qp-1", "v")
	assert.Error(t, n.SetValue(-1))
	assert.Error(t, n.SetValue(101))
	require.NoError(t, n.SetValue(0))
	assert.Equal(t, 0, n.ImportanceValue())
}

func TestClone(t *testing.T) {
	n := New("qp-1", "orig")
	n.Tags = []string{"a"}
	n.Compacts = []string{"qp-2"}

	c := n.Clone()
	c.Tags[0] = "changed"
	c.Compacts = append(c.Compacts, "qp-3")
	*c.Created = time.Time{}

	assert.Equal(t, []string{"a"}, n.Tags)
	assert.Equal(t, []string{"qp-2"}, n.Compacts)
	assert.False(t, n.Created.IsZero())
}

func TestHasLink(t *testing.T) {
	n := New("qp-1", "links")
	n.Links = []TypedLink{{Type: "supports", ID: "qp-2"}}

	assert.True(t, n.HasLink("SUPPORTS", "qp-2"))
	assert.False(t, n.HasLink("related", "qp-2"))
	assert.False(t, n.HasLink("supports", "qp-3"))
}

func TestExtractInlineLinks(t *testing.T) {
	body := `See [[qp-aaaa]] and [[ qp-bbbb | the B note ]].
Also [c](qp-cccc), [d](./notes/qp-dddd-some-title.md), [ext](https://example.com/qp-eeee),
[anchor](#qp-ffff), a repeat [[qp-aaaa]] and [plain](other.md).`

	assert.Equal(t, []string{"qp-aaaa", "qp-bbbb", "qp-cccc", "qp-dddd"}, ExtractInlineLinks(body))
	assert.Empty(t, ExtractInlineLinks("no links here"))
}

func TestGenerateID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("hash grows on collision", func(t *testing.T) {
		first, err := GenerateID(SchemeHash, "Title", now, nil)
		require.NoError(t, err)
		require.NoError(t, ValidateID(first))
		assert.Len(t, first, len(IDPrefix)+minHashLen)

		taken := map[string]bool{first: true}
		second, err := GenerateID(SchemeHash, "Title", now, func(id string) bool { return taken[id] })
		require.NoError(t, err)
		assert.Len(t, second, len(IDPrefix)+minHashLen+1)
		assert.True(t, strings.HasPrefix(second, first))
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		a, _ := GenerateID(SchemeHash, "Same", now, nil)
		b, _ := GenerateID(SchemeHash, "Same", now, nil)
		assert.Equal(t, a, b)
	})

	t.Run("uuid", func(t *testing.T) {
		id, err := GenerateID(SchemeUUID, "x", now, nil)
		require.NoError(t, err)
		require.NoError(t, ValidateID(id))
		assert.Len(t, id, len(IDPrefix)+32)
	})

	t.Run("timestamp skips taken ids", func(t *testing.T) {
		first, err := GenerateID(SchemeTimestamp, "x", now, nil)
		require.NoError(t, err)
		require.NoError(t, ValidateID(first))

		second, err := GenerateID(SchemeTimestamp, "x", now, func(id string) bool { return id == first })
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := GenerateID(IDScheme("ulid"), "x", now, nil)
		assert.Error(t, err)
	})
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("qp-a1b2"))
	assert.ErrorIs(t, ValidateID("a1b2"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("qp-a1-b2"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("qp-"), ErrInvalidID)
}

func TestParseIDScheme(t *testing.T) {
	s, err := ParseIDScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeHash, s)

	s, err = ParseIDScheme("UUID")
	require.NoError(t, err)
	assert.Equal(t, SchemeUUID, s)

	_, err = ParseIDScheme("ulid")
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "qp-a1b2-hello-world.md", Filename("qp-a1b2", "Hello, World!"))
	assert.Equal(t, "qp-a1b2.md", Filename("qp-a1b2", "!!!"))
	assert.Equal(t, "a-b", Slug("  A -- b  "))
}
