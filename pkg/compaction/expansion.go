package compaction

import (
	"sort"

	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// CompactedIDs expands the absorption tree below digest level by level, up
// to depth levels. Each level is sorted before the next one is expanded and
// the digest itself is never included. A maxNodes of 0 means no cap;
// otherwise the result holds at most maxNodes ids and truncated reports
// whether the full tree was larger.
func (c *Context) CompactedIDs(digest string, depth, maxNodes int) (ids []string, truncated bool) {
	visited := map[string]bool{digest: true}
	level := []string{digest}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []string
		for _, id := range level {
			for _, child := range c.compactedBy[id] {
				if visited[child] {
					continue
				}
				visited[child] = true
				next = append(next, child)
			}
		}
		sort.Strings(next)
		ids = append(ids, next...)
		level = next
	}
	if maxNodes > 0 && len(ids) > maxNodes {
		return ids[:maxNodes:maxNodes], true
	}
	return ids, false
}

// ExpandNotes resolves CompactedIDs against a corpus. Ids missing from the
// corpus are dropped.
func (c *Context) ExpandNotes(digest string, depth, maxNodes int, notes map[string]*note.Note) ([]*note.Note, bool) {
	ids, truncated := c.CompactedIDs(digest, depth, maxNodes)
	out := make([]*note.Note, 0, len(ids))
	for _, id := range ids {
		if n, ok := notes[id]; ok {
			out = append(out, n)
		}
	}
	return out, truncated
}

// NoteMap indexes notes by id.
func NoteMap(notes []*note.Note) map[string]*note.Note {
	m := make(map[string]*note.Note, len(notes))
	for _, n := range notes {
		if n != nil {
			m[n.ID] = n
		}
	}
	return m
}

// Percent estimates how much smaller a digest is than the notes it directly
// absorbs: 100 * (1 - digest size / summed source size). ok is false when
// the note is not a digest. Sources missing from notes count as empty, and
// an empty source total yields 0.
func (c *Context) Percent(digest *note.Note, notes map[string]*note.Note) (pct float64, ok bool) {
	sources := c.compactedBy[digest.ID]
	if len(sources) == 0 {
		return 0, false
	}
	expanded := 0
	for _, id := range sources {
		if n, found := notes[id]; found {
			expanded += noteSize(n)
		}
	}
	if expanded == 0 {
		return 0, true
	}
	return 100 * (1 - float64(noteSize(digest))/float64(expanded)), true
}

// noteSize approximates the rendered size of a note. A digest is read
// through its summary when it has one.
func noteSize(n *note.Note) int {
	size := len(n.Title)
	if n.Summary != "" {
		return size + len(n.Summary)
	}
	return size + len(n.Body)
}
