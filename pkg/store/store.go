// Package store manages a qipu repository on disk.
//
// A store is a directory, normally .qipu/ at a project root:
//
//	.qipu/
//	  config.yaml   store configuration
//	  notes/        markdown notes
//	  mocs/         map-of-content notes
//	  qipu.db/      BadgerDB cache of parsed notes and links
//
// The markdown files are authoritative. The database is a cache that
// Rebuild regenerates from them; Open rebuilds it automatically when it is
// empty. File access goes through afero so tests run on an in-memory
// filesystem.
//
// Example:
//
//	root, err := store.Discover(afero.NewOsFs(), cwd)
//	if err != nil {
//		return err
//	}
//	s, err := store.Open(root, store.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	tr, err := s.Traverser(true)
//	res, err := tr.Tree(ctx, "qp-a1b2", s.TraversalDefaults())
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mwaldstein/qipu-sub002/pkg/compaction"
	"github.com/mwaldstein/qipu-sub002/pkg/config"
	"github.com/mwaldstein/qipu-sub002/pkg/graph"
	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
	"github.com/mwaldstein/qipu-sub002/pkg/storage"
)

// Layout names.
const (
	StoreDir        = ".qipu"
	VisibleStoreDir = "qipu"
	NotesDir        = "notes"
	MocsDir         = "mocs"
	ConfigFile      = "config.yaml"
	DatabaseDir     = "qipu.db"
)

var (
	ErrStoreNotFound = errors.New("no qipu store found")
	ErrNotAStore     = errors.New("not a qipu store")
	ErrNoteExists    = errors.New("note already exists")
	ErrNoteNotFound  = errors.New("note not found")
)

// Options configure Init and Open.
type Options struct {
	// Fs is the filesystem holding the store. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// Engine overrides the note cache. By default a BadgerEngine is opened
	// under the store on the OS filesystem and a MemoryEngine is used on
	// any other filesystem.
	Engine storage.Engine
	Logger *zap.Logger
	// Visible makes Init create qipu/ instead of .qipu/.
	Visible bool
	// Config is written by Init when the store has no configuration yet.
	Config *config.Config
	// Now overrides the clock used for ids and timestamps.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Store is an open qipu repository. It is not safe for concurrent writers.
type Store struct {
	root   string
	fs     afero.Fs
	cfg    *config.Config
	ont    *ontology.Ontology
	engine storage.Engine
	log    *zap.Logger
	now    func() time.Time
}

// Init creates a store under projectRoot, or reuses an existing one. An
// existing configuration file is kept as is.
func Init(projectRoot string, opts Options) (*Store, error) {
	opts.defaults()
	name := StoreDir
	if opts.Visible {
		name = VisibleStoreDir
	}
	root := filepath.Join(projectRoot, name)

	for _, dir := range []string{root, filepath.Join(root, NotesDir), filepath.Join(root, MocsDir)} {
		if err := opts.Fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	cfgPath := filepath.Join(root, ConfigFile)
	exists, err := afero.Exists(opts.Fs, cfgPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		cfg := opts.Config
		if cfg == nil {
			cfg = config.Default()
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := cfg.Save(opts.Fs, cfgPath); err != nil {
			return nil, fmt.Errorf("writing config: %w", err)
		}
	}

	opts.Logger.Debug("initialised store", zap.String("root", root))
	return Open(root, opts)
}

// Open opens the store rooted at root.
func Open(root string, opts Options) (*Store, error) {
	opts.defaults()

	ok, err := afero.DirExists(opts.Fs, filepath.Join(root, NotesDir))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAStore, root)
	}

	cfg, err := config.Load(opts.Fs, filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := opts.Engine
	if engine == nil {
		if _, onDisk := opts.Fs.(*afero.OsFs); onDisk {
			engine, err = storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
				DataDir:   filepath.Join(root, DatabaseDir),
				LowMemory: true,
				Logger:    opts.Logger,
			})
			if err != nil {
				return nil, err
			}
		} else {
			engine = storage.NewMemoryEngine()
		}
	}

	s := &Store{
		root:   root,
		fs:     opts.Fs,
		cfg:    cfg,
		ont:    cfg.BuildOntology(),
		engine: engine,
		log:    opts.Logger.Named("store"),
		now:    opts.Now,
	}

	count, err := engine.NoteCount()
	if err != nil {
		engine.Close()
		return nil, err
	}
	if count == 0 {
		if _, err := s.Rebuild(context.Background()); err != nil {
			engine.Close()
			return nil, err
		}
	}
	return s, nil
}

// Discover walks up from start looking for .qipu/ or qipu/. The search
// stops at the first directory that looks like a project root.
func Discover(fs afero.Fs, start string) (string, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range []string{StoreDir, VisibleStoreDir} {
			candidate := filepath.Join(current, name)
			if ok, _ := afero.DirExists(fs, filepath.Join(candidate, NotesDir)); ok {
				return candidate, nil
			}
		}
		if isProjectRoot(fs, current) {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("%w (searched from %s)", ErrStoreNotFound, start)
}

var projectMarkers = []string{".git", ".hg", ".svn", "go.mod", "Cargo.toml", "package.json", "pyproject.toml"}

func isProjectRoot(fs afero.Fs, dir string) bool {
	for _, m := range projectMarkers {
		if _, err := fs.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Config returns the loaded configuration.
func (s *Store) Config() *config.Config { return s.cfg }

// Ontology returns the resolved type universe.
func (s *Store) Ontology() *ontology.Ontology { return s.ont }

// Engine returns the note cache.
func (s *Store) Engine() storage.Engine { return s.engine }

// Close releases the note cache and flushes the logger. Sync errors are
// ignored: stderr is not syncable on every platform.
func (s *Store) Close() error {
	err := s.engine.Close()
	_ = s.log.Sync()
	return err
}

// Index builds a graph snapshot from the cache.
func (s *Store) Index() (*index.Index, error) {
	notes, err := s.engine.ListNotes()
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	edges, err := s.engine.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	nodes := make([]index.Node, 0, len(notes))
	for _, n := range notes {
		nodes = append(nodes, index.NodeFromNote(n))
	}
	return index.Build(nodes, edges), nil
}

// Compaction builds the compaction context for the current corpus.
func (s *Store) Compaction() (*compaction.Context, error) {
	notes, err := s.engine.ListNotes()
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return compaction.Build(notes), nil
}

// CompactionReport measures a digest against the current corpus.
func (s *Store) CompactionReport(digestID string) (*compaction.Report, error) {
	notes, err := s.engine.ListNotes()
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	return compaction.Build(notes).Report(digestID, notes, idx)
}

// Traverser binds a traverser to fresh index and compaction snapshots.
// With resolveCompaction false, absorbed notes are traversed as ordinary
// notes.
func (s *Store) Traverser(resolveCompaction bool) (*graph.Traverser, error) {
	idx, err := s.Index()
	if err != nil {
		return nil, err
	}
	opts := []graph.Option{graph.WithLogger(s.log.Named("graph"))}
	if resolveCompaction {
		ctx, err := s.Compaction()
		if err != nil {
			return nil, err
		}
		opts = append(opts, graph.WithCompaction(ctx))
	}
	return graph.NewTraverser(idx, s.ont, opts...), nil
}

// TraversalDefaults returns graph.DefaultOptions adjusted by the store
// configuration.
func (s *Store) TraversalDefaults() graph.Options {
	opts := graph.DefaultOptions()
	opts.MaxHops = graph.HopCost(s.cfg.Traversal.MaxHops)
	opts.SemanticInversion = s.cfg.Traversal.SemanticInversion
	return opts
}

func (s *Store) exists(path string) bool {
	_, err := s.fs.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
