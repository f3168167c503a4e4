package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// RebuildStats summarises a Rebuild.
type RebuildStats struct {
	Files    int           `json:"files"`
	Notes    int           `json:"notes"`
	Edges    int           `json:"edges"`
	Skipped  []FileError   `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// FileError is a note file that could not be loaded.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Rebuild re-reads every markdown file under notes/ and mocs/ and replaces
// the cache contents. Unparsable files and duplicate ids are skipped and
// reported; for a duplicate id the file with the smallest path wins.
func (s *Store) Rebuild(ctx context.Context) (*RebuildStats, error) {
	start := time.Now()
	paths, err := s.noteFiles()
	if err != nil {
		return nil, err
	}

	type parsed struct {
		n   *note.Note
		err error
	}
	results := make([]parsed, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := afero.ReadFile(s.fs, filepath.Join(s.root, rel))
			if err != nil {
				results[i] = parsed{err: err}
				return nil
			}
			n, err := note.Parse(data, filepath.ToSlash(rel))
			results[i] = parsed{n: n, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &RebuildStats{Files: len(paths)}
	seen := make(map[string]string, len(paths))
	var notes []*note.Note
	for i, r := range results {
		if r.err != nil {
			stats.Skipped = append(stats.Skipped, FileError{Path: paths[i], Err: r.err.Error()})
			s.log.Warn("skipping unreadable note", zap.String("path", paths[i]), zap.Error(r.err))
			continue
		}
		if first, dup := seen[r.n.ID]; dup {
			stats.Skipped = append(stats.Skipped, FileError{
				Path: paths[i],
				Err:  fmt.Sprintf("duplicate id %s (already loaded from %s)", r.n.ID, first),
			})
			continue
		}
		seen[r.n.ID] = paths[i]
		notes = append(notes, r.n)
	}

	if err := s.engine.Clear(); err != nil {
		return nil, fmt.Errorf("clearing cache: %w", err)
	}
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.engine.PutNote(n); err != nil {
			return nil, fmt.Errorf("caching %s: %w", n.Path, err)
		}
	}

	edges, err := s.engine.AllEdges()
	if err != nil {
		return nil, err
	}
	stats.Notes = len(notes)
	stats.Edges = len(edges)
	stats.Duration = time.Since(start)
	s.log.Debug("rebuilt cache",
		zap.Int("files", stats.Files),
		zap.Int("notes", stats.Notes),
		zap.Int("edges", stats.Edges),
		zap.Int("skipped", len(stats.Skipped)),
		zap.Duration("took", stats.Duration))
	return stats, nil
}

// noteFiles lists markdown files under notes/ and mocs/, relative to the
// store root and sorted.
func (s *Store) noteFiles() ([]string, error) {
	var paths []string
	for _, dir := range []string{NotesDir, MocsDir} {
		base := filepath.Join(s.root, dir)
		ok, err := afero.DirExists(s.fs, base)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		err = afero.Walk(s.fs, base, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
				return nil
			}
			rel, err := filepath.Rel(s.root, path)
			if err != nil {
				return err
			}
			paths = append(paths, rel)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
