// Package compaction resolves digest notes to the notes they absorb.
//
// A digest declares the ids it absorbs in its `compacts` frontmatter list.
// Context turns those declarations into two maps (absorbed id to digest and
// digest to absorbed ids) and answers canonicalisation queries against them.
// Build never fails: conflicting claims, cycles and dangling claims are kept
// aside and reported by Validate so a caller can show every problem at once.
//
// Example:
//
//	ctx := compaction.Build(notes)
//	if v := ctx.Validate(notes); len(v) > 0 {
//		return &compaction.ValidationError{Violations: v}
//	}
//	canonical := ctx.Canon("qp-a1b2")
package compaction

import (
	"fmt"
	"sort"

	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// Context is an immutable view of the compaction claims in a corpus.
type Context struct {
	compactorOf map[string]string
	compactedBy map[string][]string
	equivalents map[string][]string
	conflicts   []string
}

// Build derives a context from every note's compacts list. Notes are
// processed in id order; when two digests claim the same note the first
// claim is kept and the second is recorded as a conflict and dropped from
// the losing digest's list.
func Build(notes []*note.Note) *Context {
	sorted := make([]*note.Note, 0, len(notes))
	for _, n := range notes {
		if n != nil {
			sorted = append(sorted, n)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c := &Context{
		compactorOf: make(map[string]string),
		compactedBy: make(map[string][]string),
	}
	for _, n := range sorted {
		if len(n.Compacts) == 0 {
			continue
		}
		seen := make(map[string]bool, len(n.Compacts))
		var claimed []string
		for _, id := range n.Compacts {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if prev, ok := c.compactorOf[id]; ok && prev != n.ID {
				c.conflicts = append(c.conflicts,
					fmt.Sprintf("note %s has multiple compactors: %s and %s", id, prev, n.ID))
				continue
			}
			c.compactorOf[id] = n.ID
			claimed = append(claimed, id)
		}
		if len(claimed) > 0 {
			c.compactedBy[n.ID] = append(c.compactedBy[n.ID], claimed...)
		}
	}

	known := make(map[string]bool)
	for _, n := range sorted {
		known[n.ID] = true
	}
	for id, digest := range c.compactorOf {
		known[id] = true
		known[digest] = true
	}
	c.equivalents = make(map[string][]string)
	for id := range known {
		root := c.Canon(id)
		c.equivalents[root] = append(c.equivalents[root], id)
	}
	for _, ids := range c.equivalents {
		sort.Strings(ids)
	}
	return c
}

// Canon follows compaction claims from id to the topmost digest. A cycle is
// broken at the first repeated id, which is returned.
func (c *Context) Canon(id string) string {
	current := id
	visited := map[string]bool{current: true}
	for {
		next, ok := c.compactorOf[current]
		if !ok {
			return current
		}
		if visited[next] {
			return next
		}
		visited[next] = true
		current = next
	}
}

// Compactor returns the digest that directly absorbs id.
func (c *Context) Compactor(id string) (string, bool) {
	d, ok := c.compactorOf[id]
	return d, ok
}

// IsCompacted reports whether some digest absorbs id.
func (c *Context) IsCompacted(id string) bool {
	_, ok := c.compactorOf[id]
	return ok
}

// IsDigest reports whether id holds the claim on any absorbed note.
func (c *Context) IsDigest(id string) bool {
	return len(c.compactedBy[id]) > 0
}

// CompactedNotes returns the ids id directly absorbs, in declaration order.
// Claims lost to another digest are not included.
func (c *Context) CompactedNotes(id string) []string {
	ids := c.compactedBy[id]
	if len(ids) == 0 {
		return nil
	}
	return append([]string(nil), ids...)
}

// CompactsCount is the number of ids a digest directly absorbs.
func (c *Context) CompactsCount(id string) int {
	return len(c.compactedBy[id])
}

// Digests returns every digest id, sorted.
func (c *Context) Digests() []string {
	out := make([]string, 0, len(c.compactedBy))
	for id := range c.compactedBy {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Equivalents returns the ids that resolve to id, including id itself,
// sorted. An id nothing resolves to is its own only equivalent.
func (c *Context) Equivalents(id string) []string {
	ids, ok := c.equivalents[id]
	if !ok {
		return []string{id}
	}
	return append([]string(nil), ids...)
}

// EquivalenceMap returns canonical id to the sorted ids resolving to it.
func (c *Context) EquivalenceMap() map[string][]string {
	out := make(map[string][]string, len(c.equivalents))
	for k, v := range c.equivalents {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Conflicts returns the rejected duplicate claims found during Build.
func (c *Context) Conflicts() []string {
	return append([]string(nil), c.conflicts...)
}
