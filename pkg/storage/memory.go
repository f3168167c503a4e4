package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// MemoryEngine is a thread-safe in-memory Engine.
//
// Use Cases:
//   - Unit testing (no disk I/O, fast cleanup)
//   - Read-only tooling over a parsed corpus
//
// Features:
//   - Thread-safe: All operations use RWMutex for concurrent access
//   - Indexed: Maintains tag, outgoing and incoming indexes
//   - Deep copies: Returns copies to prevent external mutation
type MemoryEngine struct {
	mu sync.RWMutex

	notes map[string]*note.Note
	// outgoing holds each note's derived edges keyed by edge id.
	outgoing map[string]map[string]index.Edge
	// incoming mirrors outgoing by link target.
	incoming map[string]map[string]index.Edge
	tags     map[string]map[string]struct{}

	closed bool
}

// NewMemoryEngine creates an empty engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		notes:    make(map[string]*note.Note),
		outgoing: make(map[string]map[string]index.Edge),
		incoming: make(map[string]map[string]index.Edge),
		tags:     make(map[string]map[string]struct{}),
	}
}

// PutNote stores a copy of n and replaces its derived edges.
func (m *MemoryEngine) PutNote(n *note.Note) error {
	if err := validateNote(n); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if old, ok := m.notes[n.ID]; ok {
		m.unlinkUnlocked(old)
	}

	c := n.Clone()
	m.notes[c.ID] = c
	for _, tag := range c.Tags {
		t := normalizeTag(tag)
		if t == "" {
			continue
		}
		if m.tags[t] == nil {
			m.tags[t] = make(map[string]struct{})
		}
		m.tags[t][c.ID] = struct{}{}
	}
	for _, e := range index.LinksFromNote(c) {
		id := edgeID(e)
		if m.outgoing[e.From] == nil {
			m.outgoing[e.From] = make(map[string]index.Edge)
		}
		if m.incoming[e.To] == nil {
			m.incoming[e.To] = make(map[string]index.Edge)
		}
		m.outgoing[e.From][id] = e
		m.incoming[e.To][id] = e
	}
	return nil
}

func (m *MemoryEngine) unlinkUnlocked(old *note.Note) {
	for _, tag := range old.Tags {
		t := normalizeTag(tag)
		delete(m.tags[t], old.ID)
		if len(m.tags[t]) == 0 {
			delete(m.tags, t)
		}
	}
	for id, e := range m.outgoing[old.ID] {
		delete(m.incoming[e.To], id)
		if len(m.incoming[e.To]) == 0 {
			delete(m.incoming, e.To)
		}
	}
	delete(m.outgoing, old.ID)
}

// GetNote returns a copy of the note.
func (m *MemoryEngine) GetNote(id string) (*note.Note, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

// DeleteNote removes a note and its outbound edges.
func (m *MemoryEngine) DeleteNote(id string) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	n, ok := m.notes[id]
	if !ok {
		return ErrNotFound
	}
	m.unlinkUnlocked(n)
	delete(m.notes, id)
	return nil
}

// ListNotes returns copies of all notes ordered by id.
func (m *MemoryEngine) ListNotes() ([]*note.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]*note.Note, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StreamNotes calls fn for each note in id order over a snapshot taken at
// the start of the call.
func (m *MemoryEngine) StreamNotes(ctx context.Context, fn func(*note.Note) error) error {
	notes, err := m.ListNotes()
	if err != nil {
		return err
	}
	for _, n := range notes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(n); err != nil {
			if errors.Is(err, ErrIterationStopped) {
				return nil
			}
			return err
		}
	}
	return nil
}

// NotesByTag returns ids of notes carrying tag, sorted.
func (m *MemoryEngine) NotesByTag(tag string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	set := m.tags[normalizeTag(tag)]
	if len(set) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// OutboundEdges returns the edges declared by id.
func (m *MemoryEngine) OutboundEdges(id string) ([]index.Edge, error) {
	return m.edges(m.outgoing, id)
}

// InboundEdges returns the edges pointing at id.
func (m *MemoryEngine) InboundEdges(id string) ([]index.Edge, error) {
	return m.edges(m.incoming, id)
}

func (m *MemoryEngine) edges(byID map[string]map[string]index.Edge, id string) ([]index.Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	set := byID[id]
	if len(set) == 0 {
		return nil, nil
	}
	out := make([]index.Edge, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sortEdges(out)
	return out, nil
}

// AllEdges returns every edge.
func (m *MemoryEngine) AllEdges() ([]index.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	var out []index.Edge
	for _, set := range m.outgoing {
		for _, e := range set {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// NoteCount returns the number of notes.
func (m *MemoryEngine) NoteCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.notes)), nil
}

// Clear removes all data.
func (m *MemoryEngine) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	m.notes = make(map[string]*note.Note)
	m.outgoing = make(map[string]map[string]index.Edge)
	m.incoming = make(map[string]map[string]index.Edge)
	m.tags = make(map[string]map[string]struct{})
	return nil
}

// Close releases the engine. Further calls return ErrStorageClosed.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.notes = nil
	m.outgoing = nil
	m.incoming = nil
	m.tags = nil
	return nil
}

var _ Engine = (*MemoryEngine)(nil)
