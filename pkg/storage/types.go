// Package storage provides the persistent note store behind a qipu
// repository.
//
// Markdown files under notes/ and mocs/ are the source of truth. The
// storage engine is a derived cache of those files: parsed notes plus the
// typed and inline links they declare, indexed by source and target so
// that a command can build a graph snapshot without re-reading every file.
//
// Two engines implement Engine:
//   - BadgerEngine: on-disk BadgerDB at .qipu/qipu.db
//   - MemoryEngine: maps guarded by a RWMutex, for tests and tooling
//
// Edges are never written directly. PutNote derives them from the note
// content with index.LinksFromNote, so the edge set always matches the
// stored notes.
//
// Example Usage:
//
//	engine, err := storage.NewBadgerEngine(".qipu/qipu.db")
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	if err := engine.PutNote(n); err != nil {
//		return err
//	}
//	out, _ := engine.OutboundEdges(n.ID)
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// Common errors
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidData      = errors.New("invalid data")
	ErrStorageClosed    = errors.New("storage closed")
	ErrIterationStopped = errors.New("iteration stopped") // Sentinel to stop streaming early
)

// Engine stores notes and the edges derived from them.
//
// Notes and edges returned by an Engine are copies; callers may modify
// them freely. Lists are ordered: notes by id, edges by (from, to, type,
// source).
type Engine interface {
	// PutNote inserts or replaces a note and rewrites its outbound edges
	// and tag entries.
	PutNote(n *note.Note) error
	GetNote(id string) (*note.Note, error)
	// DeleteNote removes a note and its outbound edges. Edges other notes
	// declare toward it are kept and become dangling.
	DeleteNote(id string) error
	ListNotes() ([]*note.Note, error)
	// StreamNotes calls fn for every note in id order. Returning
	// ErrIterationStopped from fn ends the walk without error.
	StreamNotes(ctx context.Context, fn func(*note.Note) error) error
	NotesByTag(tag string) ([]string, error)

	OutboundEdges(id string) ([]index.Edge, error)
	InboundEdges(id string) ([]index.Edge, error)
	AllEdges() ([]index.Edge, error)

	NoteCount() (int64, error)
	// Clear removes every note and edge.
	Clear() error
	Close() error
}

// edgeID identifies an edge within its source note. LinksFromNote never
// emits two edges with the same target and type, so the id is unique.
func edgeID(e index.Edge) string {
	return strings.Join([]string{e.From, e.To, strings.ToLower(e.Type), e.Source.String()}, "\x00")
}

func sortEdges(edges []index.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Source < b.Source
	})
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func validateNote(n *note.Note) error {
	if n == nil {
		return ErrInvalidData
	}
	if n.ID == "" {
		return ErrInvalidID
	}
	return nil
}
