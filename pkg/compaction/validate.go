package compaction

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

var (
	// ErrDigestNotFound is returned by Apply when the digest is not in the
	// corpus.
	ErrDigestNotFound = errors.New("digest note not found")
	// ErrNoSources is returned by Apply when no source ids are given.
	ErrNoSources = errors.New("no source note ids provided")
)

// ValidationError carries every invariant violation found in a corpus.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "compaction invariant violated: " + e.Violations[0]
	}
	return fmt.Sprintf("compaction invariants violated (%d): %s",
		len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validate checks the context against the corpus it was built from and
// returns one message per violation: duplicate claims, self-compaction,
// claims on ids missing from the corpus, and absorption cycles. An empty
// result means the corpus is consistent.
func (c *Context) Validate(notes []*note.Note) []string {
	violations := c.Conflicts()

	present := make(map[string]bool, len(notes))
	for _, n := range notes {
		if n != nil {
			present[n.ID] = true
		}
	}

	for _, digest := range c.Digests() {
		if !present[digest] {
			violations = append(violations,
				fmt.Sprintf("compaction references unknown digest note: %s", digest))
		}
		for _, id := range c.compactedBy[digest] {
			switch {
			case id == digest:
				violations = append(violations,
					fmt.Sprintf("note %s compacts itself (self-compaction not allowed)", id))
			case !present[id]:
				violations = append(violations,
					fmt.Sprintf("note %s compacts unknown note: %s", digest, id))
			}
		}
	}

	return append(violations, c.cycles()...)
}

// cycles reports each absorption cycle once, named by its members in
// sorted order. Self-compaction is reported separately.
func (c *Context) cycles() []string {
	starts := make([]string, 0, len(c.compactorOf))
	for id := range c.compactorOf {
		starts = append(starts, id)
	}
	sort.Strings(starts)

	reported := make(map[string]bool)
	var out []string
	for _, start := range starts {
		pos := map[string]int{}
		var path []string
		current := start
		for {
			if i, seen := pos[current]; seen {
				members := append([]string(nil), path[i:]...)
				if len(members) > 1 {
					sort.Strings(members)
					key := strings.Join(members, " ")
					if !reported[key] {
						reported[key] = true
						out = append(out, fmt.Sprintf("compaction cycle detected: %s", strings.Join(members, " -> ")))
					}
				}
				break
			}
			pos[current] = len(path)
			path = append(path, current)
			next, ok := c.compactorOf[current]
			if !ok {
				break
			}
			current = next
		}
	}
	return out
}

// Apply records that digestID absorbs sources and validates the resulting
// corpus. The returned note is an updated copy of the digest with a sorted,
// deduplicated compacts list; notes is not modified. Any violation in the
// candidate corpus is returned as a *ValidationError and no note is
// returned.
func Apply(notes []*note.Note, digestID string, sources []string) (*note.Note, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	var digest *note.Note
	for _, n := range notes {
		if n != nil && n.ID == digestID {
			digest = n.Clone()
			break
		}
	}
	if digest == nil {
		return nil, fmt.Errorf("%w: %s", ErrDigestNotFound, digestID)
	}

	merged := make(map[string]bool, len(digest.Compacts)+len(sources))
	for _, id := range digest.Compacts {
		merged[id] = true
	}
	for _, id := range sources {
		if id = strings.TrimSpace(id); id != "" {
			merged[id] = true
		}
	}
	digest.Compacts = digest.Compacts[:0]
	for id := range merged {
		digest.Compacts = append(digest.Compacts, id)
	}
	sort.Strings(digest.Compacts)

	candidate := make([]*note.Note, 0, len(notes))
	for _, n := range notes {
		if n != nil && n.ID == digestID {
			candidate = append(candidate, digest)
			continue
		}
		candidate = append(candidate, n)
	}

	if v := Build(candidate).Validate(candidate); len(v) > 0 {
		return nil, &ValidationError{Violations: v}
	}
	return digest, nil
}
