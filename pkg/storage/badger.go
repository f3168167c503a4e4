package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNote          = byte(0x01) // notes:noteID -> Note
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixTagIndex      = byte(0x03) // tag:tag:noteID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:noteID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:noteID:edgeID -> []byte{}
)

// BadgerEngine stores notes in BadgerDB.
//
// Key Structure:
//   - Notes: 0x01 + noteID -> JSON(Note)
//   - Edges: 0x02 + edgeID -> JSON(Edge)
//   - Tag Index: 0x03 + tag + 0x00 + noteID -> empty
//   - Outgoing Index: 0x04 + noteID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + noteID + 0x00 + edgeID -> empty
//
// The incoming index is keyed by link target, which need not be a stored
// note. Every PutNote runs in a single transaction.
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil silences it.
	Logger *zap.Logger

	// LowMemory shrinks memtables and caches. A note store is small, so
	// qipu enables this by default.
	LowMemory bool
}

// NewBadgerEngine opens a persistent engine in dataDir with low-memory
// settings.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir:   dataDir,
		LowMemory: true,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
//
// Example:
//
//	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
//		DataDir:    ".qipu/qipu.db",
//		SyncWrites: true,
//		Logger:     logger,
//	})
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory required", ErrInvalidData)
	}

	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(NewBadgerLogger(opts.Logger))
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(16 << 20).     // 16MB instead of 64MB
			WithValueLogFileSize(64 << 20). // 64MB instead of 1GB
			WithNumMemtables(2).            // 2 instead of 5
			WithNumLevelZeroTables(2).      // 2 instead of 5
			WithNumLevelZeroTablesStall(4). // 4 instead of 15
			WithValueThreshold(1024).       // Store values > 1KB in value log
			WithBlockCacheSize(32 << 20).   // 32MB block cache
			WithIndexCacheSize(16 << 20)    // 16MB index cache
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerEngine{db: db}, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory:  true,
		LowMemory: true,
	})
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func noteKey(id string) []byte {
	return append([]byte{prefixNote}, id...)
}

func edgeKey(id string) []byte {
	return append([]byte{prefixEdge}, id...)
}

// indexKey builds prefix + owner + 0x00 + member, the layout shared by the
// tag, outgoing and incoming indexes.
func indexKey(prefix byte, owner, member string) []byte {
	key := make([]byte, 0, 1+len(owner)+1+len(member))
	key = append(key, prefix)
	key = append(key, owner...)
	key = append(key, 0x00)
	key = append(key, member...)
	return key
}

func indexPrefix(prefix byte, owner string) []byte {
	key := make([]byte, 0, 1+len(owner)+1)
	key = append(key, prefix)
	key = append(key, owner...)
	key = append(key, 0x00)
	return key
}

// memberFromIndexKey extracts the part after the first separator.
func memberFromIndexKey(key []byte) string {
	if i := bytes.IndexByte(key[1:], 0x00); i >= 0 {
		return string(key[1+i+1:])
	}
	return ""
}

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

func checkID(id string) error {
	if id == "" || strings.IndexByte(id, 0x00) >= 0 {
		return ErrInvalidID
	}
	return nil
}

// ============================================================================
// Note Operations
// ============================================================================

// PutNote stores n and replaces its derived edges and tag entries.
func (b *BadgerEngine) PutNote(n *note.Note) error {
	if err := validateNote(n); err != nil {
		return err
	}
	if err := checkID(n.ID); err != nil {
		return err
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := encodeNote(n)
	if err != nil {
		return err
	}
	edges := index.LinksFromNote(n)

	return b.db.Update(func(txn *badger.Txn) error {
		old, err := getNoteInTxn(txn, n.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if old != nil {
			if err := b.unlinkNoteInTxn(txn, old); err != nil {
				return err
			}
		}

		if err := txn.Set(noteKey(n.ID), data); err != nil {
			return err
		}
		for _, tag := range n.Tags {
			if t := normalizeTag(tag); t != "" {
				if err := txn.Set(indexKey(prefixTagIndex, t, n.ID), []byte{}); err != nil {
					return err
				}
			}
		}
		for _, e := range edges {
			if err := putEdgeInTxn(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNote returns the note with the given id or ErrNotFound.
func (b *BadgerEngine) GetNote(id string) (*note.Note, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var n *note.Note
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = getNoteInTxn(txn, id)
		return err
	})
	return n, err
}

// DeleteNote removes a note, its tag entries and its outbound edges.
func (b *BadgerEngine) DeleteNote(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		old, err := getNoteInTxn(txn, id)
		if err != nil {
			return err
		}
		if err := b.unlinkNoteInTxn(txn, old); err != nil {
			return err
		}
		return txn.Delete(noteKey(id))
	})
}

// ListNotes returns every note ordered by id.
func (b *BadgerEngine) ListNotes() ([]*note.Note, error) {
	var notes []*note.Note
	err := b.StreamNotes(context.Background(), func(n *note.Note) error {
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// StreamNotes iterates notes in key order, which is id order.
func (b *BadgerEngine) StreamNotes(ctx context.Context, fn func(*note.Note) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixNote}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var n *note.Note
			if err := it.Item().Value(func(val []byte) error {
				var decErr error
				n, decErr = decodeNote(val)
				return decErr
			}); err != nil {
				return err
			}
			if err := fn(n); err != nil {
				if errors.Is(err, ErrIterationStopped) {
					return nil
				}
				return err
			}
		}
		return nil
	})
}

// NotesByTag returns the ids of notes carrying tag, ordered by id.
// Matching is case-insensitive.
func (b *BadgerEngine) NotesByTag(tag string) ([]string, error) {
	t := normalizeTag(tag)
	if t == "" {
		return nil, nil
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := indexPrefix(prefixTagIndex, t)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

// NoteCount returns the number of stored notes.
func (b *BadgerEngine) NoteCount() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixNote}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func getNoteInTxn(txn *badger.Txn, id string) (*note.Note, error) {
	item, err := txn.Get(noteKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var n *note.Note
	err = item.Value(func(val []byte) error {
		var decErr error
		n, decErr = decodeNote(val)
		return decErr
	})
	return n, err
}

// unlinkNoteInTxn drops the tag entries and outbound edges owned by n.
func (b *BadgerEngine) unlinkNoteInTxn(txn *badger.Txn, n *note.Note) error {
	for _, tag := range n.Tags {
		if t := normalizeTag(tag); t != "" {
			if err := txn.Delete(indexKey(prefixTagIndex, t, n.ID)); err != nil {
				return err
			}
		}
	}

	prefix := indexPrefix(prefixOutgoingIndex, n.ID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, memberFromIndexKey(it.Item().KeyCopy(nil)))
	}
	it.Close()

	for _, id := range ids {
		if err := deleteEdgeInTxn(txn, id); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// ============================================================================
// Edge Operations
// ============================================================================

func putEdgeInTxn(txn *badger.Txn, e index.Edge) error {
	data, err := encodeEdge(e)
	if err != nil {
		return err
	}
	id := edgeID(e)
	if err := txn.Set(edgeKey(id), data); err != nil {
		return err
	}
	if err := txn.Set(indexKey(prefixOutgoingIndex, e.From, id), []byte{}); err != nil {
		return err
	}
	return txn.Set(indexKey(prefixIncomingIndex, e.To, id), []byte{})
}

func deleteEdgeInTxn(txn *badger.Txn, id string) error {
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var e index.Edge
	if err := item.Value(func(val []byte) error {
		var decErr error
		e, decErr = decodeEdge(val)
		return decErr
	}); err != nil {
		return err
	}

	if err := txn.Delete(indexKey(prefixOutgoingIndex, e.From, id)); err != nil {
		return err
	}
	if err := txn.Delete(indexKey(prefixIncomingIndex, e.To, id)); err != nil {
		return err
	}
	return txn.Delete(edgeKey(id))
}

// OutboundEdges returns the edges declared by id.
func (b *BadgerEngine) OutboundEdges(id string) ([]index.Edge, error) {
	return b.edgesByIndex(prefixOutgoingIndex, id)
}

// InboundEdges returns the edges pointing at id, whether or not id is a
// stored note.
func (b *BadgerEngine) InboundEdges(id string) ([]index.Edge, error) {
	return b.edgesByIndex(prefixIncomingIndex, id)
}

func (b *BadgerEngine) edgesByIndex(prefixByte byte, id string) ([]index.Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edges []index.Edge
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := indexPrefix(prefixByte, id)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			eid := string(it.Item().Key()[len(prefix):])
			item, err := txn.Get(edgeKey(eid))
			if err != nil {
				continue
			}
			var e index.Edge
			if err := item.Value(func(val []byte) error {
				var decErr error
				e, decErr = decodeEdge(val)
				return decErr
			}); err != nil {
				continue
			}
			edges = append(edges, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEdges(edges)
	return edges, nil
}

// AllEdges returns every stored edge.
func (b *BadgerEngine) AllEdges() ([]index.Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edges []index.Edge
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixEdge}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e index.Edge
			if err := it.Item().Value(func(val []byte) error {
				var decErr error
				e, decErr = decodeEdge(val)
				return decErr
			}); err != nil {
				return err
			}
			edges = append(edges, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEdges(edges)
	return edges, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Clear drops all data.
func (b *BadgerEngine) Clear() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.DropAll()
}

// Sync flushes pending writes to disk.
func (b *BadgerEngine) Sync() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.Sync()
}

// Close closes the database. Closing twice is a no-op.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.db.Close()
}

// badgerLogger routes BadgerDB's log output to zap. Badger reports routine
// compaction progress at info level, which is demoted to debug.
type badgerLogger struct {
	s *zap.SugaredLogger
}

// NewBadgerLogger adapts a zap logger to badger.Logger.
func NewBadgerLogger(l *zap.Logger) badger.Logger {
	return &badgerLogger{s: l.Named("badger").Sugar()}
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(strings.TrimSpace(f), v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(strings.TrimSpace(f), v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(strings.TrimSpace(f), v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(strings.TrimSpace(f), v...) }

var _ Engine = (*BadgerEngine)(nil)
