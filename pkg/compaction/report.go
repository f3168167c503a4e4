package compaction

import (
	"errors"
	"fmt"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// ErrNotDigest is returned by Report for a note that absorbs nothing.
var ErrNotDigest = errors.New("note does not compact any notes")

// Report describes how well a digest stands in for the notes it absorbs.
type Report struct {
	DigestID    string `json:"digest_id"`
	DirectCount int    `json:"compacts_direct_count"`
	// Percent is the size reduction estimated by Context.Percent.
	Percent float64 `json:"compaction_pct"`

	// InternalEdges link one direct source to another; BoundaryEdges leave
	// the absorbed set. Only outbound edges of the sources are counted.
	InternalEdges int     `json:"internal_edges"`
	BoundaryEdges int     `json:"boundary_edges"`
	BoundaryRatio float64 `json:"boundary_ratio"`

	// StaleSources were updated after the digest, in declaration order.
	StaleSources []string `json:"stale_sources"`
	// Violations are the corpus-wide Validate results.
	Violations []string `json:"violations"`
}

// Stale reports whether any source changed after the digest.
func (r *Report) Stale() bool { return len(r.StaleSources) > 0 }

// Valid reports whether the corpus has no compaction violations.
func (r *Report) Valid() bool { return len(r.Violations) == 0 }

// Report measures digestID against the corpus it was built from. idx must
// be a snapshot of the same corpus; its edges decide the internal and
// boundary counts and its node timestamps decide staleness.
func (c *Context) Report(digestID string, notes []*note.Note, idx *index.Index) (*Report, error) {
	byID := NoteMap(notes)
	digest, ok := byID[digestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDigestNotFound, digestID)
	}
	sources := c.compactedBy[digestID]
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotDigest, digestID)
	}

	r := &Report{
		DigestID:     digestID,
		DirectCount:  len(sources),
		StaleSources: []string{},
		Violations:   []string{},
	}
	r.Percent, _ = c.Percent(digest, byID)

	inSet := make(map[string]bool, len(sources))
	for _, id := range sources {
		inSet[id] = true
	}
	for _, id := range sources {
		for _, e := range idx.Outbound(id) {
			if inSet[e.To] {
				r.InternalEdges++
			} else {
				r.BoundaryEdges++
			}
		}
	}
	if total := r.InternalEdges + r.BoundaryEdges; total > 0 {
		r.BoundaryRatio = float64(r.BoundaryEdges) / float64(total)
	}

	if d, ok := idx.Node(digestID); ok && !d.Updated.IsZero() {
		for _, id := range sources {
			if s, ok := idx.Node(id); ok && s.Updated.After(d.Updated) {
				r.StaleSources = append(r.StaleSources, id)
			}
		}
	}

	r.Violations = append(r.Violations, c.Validate(notes)...)
	return r, nil
}
