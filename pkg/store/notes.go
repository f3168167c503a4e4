package store

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mwaldstein/qipu-sub002/pkg/compaction"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
	"github.com/mwaldstein/qipu-sub002/pkg/storage"
)

// CreateOptions describe a new note. Zero values fall back to the store
// defaults.
type CreateOptions struct {
	ID    string
	Type  string
	Tags  []string
	Body  string
	Value *int
}

// CreateNote writes a new note file and caches it.
func (s *Store) CreateNote(title string, opts CreateOptions) (*note.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", note.ErrInvalidValue)
	}

	noteType := strings.ToLower(opts.Type)
	if noteType == "" {
		noteType = s.cfg.DefaultNoteType
	}
	if err := s.ont.ValidateNoteType(noteType); err != nil {
		return nil, err
	}

	id := opts.ID
	if id != "" {
		if err := note.ValidateID(id); err != nil {
			return nil, err
		}
		if s.hasNote(id) {
			return nil, fmt.Errorf("%w: %s", ErrNoteExists, id)
		}
	} else {
		scheme, err := note.ParseIDScheme(s.cfg.IDScheme)
		if err != nil {
			return nil, err
		}
		id, err = note.GenerateID(scheme, title, s.now(), s.hasNote)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC().Truncate(time.Second)
	n := &note.Note{
		Frontmatter: note.Frontmatter{
			ID:      id,
			Title:   title,
			Type:    noteType,
			Created: &now,
			Updated: &now,
			Tags:    append([]string(nil), opts.Tags...),
		},
		Body: opts.Body,
	}
	if opts.Value != nil {
		if err := n.SetValue(*opts.Value); err != nil {
			return nil, err
		}
	}

	dir := NotesDir
	if noteType == ontology.NoteMOC {
		dir = MocsDir
	}
	n.Path = filepath.Join(dir, note.Filename(id, title))

	if err := s.write(n); err != nil {
		return nil, err
	}
	if err := s.engine.PutNote(n); err != nil {
		return nil, fmt.Errorf("caching note %s: %w", id, err)
	}
	s.log.Debug("created note", zap.String("id", id), zap.String("path", n.Path))
	return n, nil
}

// SaveNote stamps the updated time, rewrites the note file when its
// content changed and refreshes the cache.
func (s *Store) SaveNote(n *note.Note) error {
	if n == nil || n.ID == "" {
		return note.ErrMissingID
	}
	if n.Path == "" {
		n.Path = filepath.Join(NotesDir, note.Filename(n.ID, n.Title))
	}
	now := s.now().UTC().Truncate(time.Second)
	n.Updated = &now

	if err := s.write(n); err != nil {
		return err
	}
	if err := s.engine.PutNote(n); err != nil {
		return fmt.Errorf("caching note %s: %w", n.ID, err)
	}
	return nil
}

// write renders n to its path, skipping the write when the file already
// holds the same bytes.
func (s *Store) write(n *note.Note) error {
	data, err := n.Render()
	if err != nil {
		return fmt.Errorf("rendering note %s: %w", n.ID, err)
	}
	path := filepath.Join(s.root, n.Path)
	if existing, err := afero.ReadFile(s.fs, path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing note %s: %w", n.ID, err)
	}
	return nil
}

// GetNote returns a note by id.
func (s *Store) GetNote(id string) (*note.Note, error) {
	n, err := s.engine.GetNote(id)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	return n, err
}

// ListNotes returns every note ordered by id.
func (s *Store) ListNotes() ([]*note.Note, error) {
	return s.engine.ListNotes()
}

// NotesByTag returns the notes carrying tag, ordered by id.
func (s *Store) NotesByTag(tag string) ([]*note.Note, error) {
	ids, err := s.engine.NotesByTag(tag)
	if err != nil {
		return nil, err
	}
	out := make([]*note.Note, 0, len(ids))
	for _, id := range ids {
		n, err := s.engine.GetNote(id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// DeleteNote removes the note file and its cache entry. Links other notes
// declare toward it are left in place and become dangling.
func (s *Store) DeleteNote(id string) error {
	n, err := s.GetNote(id)
	if err != nil {
		return err
	}
	if n.Path != "" {
		if err := s.fs.Remove(filepath.Join(s.root, n.Path)); err != nil && s.exists(filepath.Join(s.root, n.Path)) {
			return fmt.Errorf("removing %s: %w", n.Path, err)
		}
	}
	return s.engine.DeleteNote(id)
}

// AddLink records a typed link from one note to another. Both notes must
// exist and the type must be part of the ontology. It reports whether the
// link was new.
func (s *Store) AddLink(from, to, linkType string) (bool, error) {
	linkType = strings.ToLower(strings.TrimSpace(linkType))
	if err := s.ont.ValidateLinkType(linkType); err != nil {
		return false, err
	}
	src, err := s.GetNote(from)
	if err != nil {
		return false, err
	}
	if _, err := s.GetNote(to); err != nil {
		return false, err
	}
	if src.HasLink(linkType, to) {
		return false, nil
	}
	src.Links = append(src.Links, note.TypedLink{Type: linkType, ID: to})
	if err := s.SaveNote(src); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveLink deletes a typed link. It reports whether a link was removed.
func (s *Store) RemoveLink(from, to, linkType string) (bool, error) {
	src, err := s.GetNote(from)
	if err != nil {
		return false, err
	}
	kept := src.Links[:0]
	removed := false
	for _, l := range src.Links {
		if l.ID == to && strings.EqualFold(l.Type, linkType) {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	if !removed {
		return false, nil
	}
	src.Links = kept
	return true, s.SaveNote(src)
}

// ApplyCompaction makes digestID absorb sources after validating the
// resulting corpus. Nothing is written when validation fails.
func (s *Store) ApplyCompaction(digestID string, sources []string) (*note.Note, error) {
	notes, err := s.engine.ListNotes()
	if err != nil {
		return nil, err
	}
	digest, err := compaction.Apply(notes, digestID, sources)
	if err != nil {
		return nil, err
	}
	if err := s.SaveNote(digest); err != nil {
		return nil, err
	}
	s.log.Debug("applied compaction", zap.String("digest", digestID), zap.Strings("sources", sources))
	return digest, nil
}

func (s *Store) hasNote(id string) bool {
	_, err := s.engine.GetNote(id)
	return err == nil
}
