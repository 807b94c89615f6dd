// Package fs persists the shared document on the local filesystem.
//
// The primary file is always replaced through a temp file and a rename, and a
// backup copy of the last known-good document is kept next to it. Load walks
// the recovery chain primary -> backup -> empty document.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/shelf/pkg/core"
)

const (
	DefaultPrimaryName  = "state.json"
	DefaultBackupName   = "state.backup.json"
	DefaultSaveInterval = time.Second
)

// Load sources reported by State().
const (
	SourceNone    = ""
	SourcePrimary = "primary"
	SourceBackup  = "backup"
	SourceEmpty   = "empty"
)

// Config holds the configuration for the filesystem store.
type Config struct {
	Dir          string
	PrimaryName  string        // defaults to state.json
	BackupName   string        // defaults to state.backup.json
	SaveInterval time.Duration // minimum spacing between physical writes
	Logger       *slog.Logger
	ErrorHandler func(error) // called for every persistence failure, after logging
}

// Store keeps the durable copy of the document.
// Save requests are coalesced and throttled by a single saver goroutine;
// Flush bypasses the throttle.
type Store struct {
	config  Config
	primary string
	backup  string

	mu          sync.RWMutex
	current     core.Document
	pending     *core.Document
	ownWrites   [2][]byte // canonical bytes of the two newest documents sent to disk
	lastWriteAt time.Time
	loadedFrom  string
	writes      int
	failures    int
	watching    bool

	// writeMu serializes physical writes between the saver and Flush.
	writeMu sync.Mutex
	wake    chan struct{}
	started bool
}

// NewStore creates a store rooted at config.Dir.
func NewStore(config Config) *Store {
	if config.PrimaryName == "" {
		config.PrimaryName = DefaultPrimaryName
	}
	if config.BackupName == "" {
		config.BackupName = DefaultBackupName
	}
	if config.SaveInterval <= 0 {
		config.SaveInterval = DefaultSaveInterval
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		config:  config,
		primary: filepath.Join(config.Dir, config.PrimaryName),
		backup:  filepath.Join(config.Dir, config.BackupName),
		current: core.Empty(),
		wake:    make(chan struct{}, 1),
	}
}

// PrimaryPath returns the path of the primary state file.
func (s *Store) PrimaryPath() string { return s.primary }

// BackupPath returns the path of the backup state file.
func (s *Store) BackupPath() string { return s.backup }

// Initialize creates the data directory.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Load recovers the document from disk. It never fails: a missing primary
// yields an empty document, a corrupt primary falls back to the backup (and
// repairs the primary), and a corrupt backup falls back to an empty document.
// Whatever was loaded from disk is immediately copied to the backup.
func (s *Store) Load(ctx context.Context) core.Document {
	s.removeStaleTemps()

	doc, err := readDocument(s.primary)
	switch {
	case err == nil:
		s.adopt(doc, SourcePrimary)
		s.writeCopy(s.backup, doc, "backup")
		s.config.Logger.Info("loaded state", "path", s.primary, "items", len(doc.Items), "folders", len(doc.Folders))
		return doc
	case errors.Is(err, os.ErrNotExist):
		s.adopt(core.Empty(), SourceEmpty)
		s.config.Logger.Info("no saved state, starting empty", "path", s.primary)
		return core.Empty()
	}
	s.fail(fmt.Errorf("primary state unreadable: %w", err))

	doc, err = readDocument(s.backup)
	if err == nil {
		s.adopt(doc, SourceBackup)
		s.writeCopy(s.primary, doc, "primary")
		s.config.Logger.Warn("recovered state from backup", "path", s.backup, "items", len(doc.Items))
		return doc
	}
	s.fail(fmt.Errorf("backup state unreadable: %w", err))

	s.adopt(core.Empty(), SourceEmpty)
	s.config.Logger.Error("saved state lost, starting empty", "primary", s.primary, "backup", s.backup)
	return core.Empty()
}

func readDocument(path string) (core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Document{}, err
	}
	return core.DecodeDocument(data)
}

func (s *Store) adopt(doc core.Document, source string) {
	if err := doc.Check(); err != nil {
		s.config.Logger.Warn("loaded state violates invariants", "source", source, "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = doc
	s.loadedFrom = source
	if source != SourceEmpty {
		s.recordOwnWrite(doc.Canonical())
	}
}

// removeStaleTemps deletes temp files left behind by a crash mid-write.
func (s *Store) removeStaleTemps() {
	matches, err := doublestar.Glob(os.DirFS(s.config.Dir), TempFilePrefix+"*")
	if err != nil {
		s.config.Logger.Debug("temp file scan failed", "error", err)
		return
	}
	for _, name := range matches {
		path := filepath.Join(s.config.Dir, filepath.FromSlash(name))
		if err := os.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			s.config.Logger.Warn("failed to remove stale temp file", "path", path, "error", err)
			continue
		}
		s.config.Logger.Info("removed stale temp file", "path", path)
	}
}

// Current returns the newest document handed to the store.
func (s *Store) Current() core.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Save requests a throttled write of doc. It returns immediately; bursts are
// coalesced so only the newest document is written, at most once per
// SaveInterval. Without a running saver (see Start) the request stays pending
// until Flush.
func (s *Store) Save(doc core.Document) {
	doc = doc.Clone()
	s.mu.Lock()
	s.current = doc
	s.pending = &doc
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the saver goroutine. It stops when ctx is cancelled; callers
// should Flush afterwards to write any trailing request.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("store saver already started")
	}
	s.started = true
	s.mu.Unlock()

	lifecycle.Go(ctx, s.runSaver, lifecycle.WithErrorHandler(func(err error) {
		s.fail(fmt.Errorf("saver panic: %w", err))
	}))
	return nil
}

func (s *Store) runSaver(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}

		s.mu.RLock()
		wait := s.config.SaveInterval - time.Since(s.lastWriteAt)
		s.mu.RUnlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}

		s.writePending()
	}
}

// Flush writes any pending document immediately, ignoring the throttle. It
// gives up waiting when ctx is done; the write itself still completes in the
// background.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.writePending() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("flush did not complete: %w", ctx.Err())
	}
}

// Dirty reports whether a save request has not reached the disk yet.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending != nil
}

func (s *Store) writePending() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil
	}
	doc := *s.pending
	s.pending = nil
	// Recorded before the rename so the watcher never sees the write as foreign.
	previous := s.ownWrites
	s.recordOwnWrite(doc.Canonical())
	s.lastWriteAt = time.Now()
	s.mu.Unlock()

	if err := s.writeDocument(s.primary, doc); err != nil {
		s.mu.Lock()
		s.ownWrites = previous
		if s.pending == nil {
			// Keep the document queued so the next save or Flush retries it.
			s.pending = &doc
		}
		s.mu.Unlock()
		s.fail(err)
		return err
	}
	s.writeCopy(s.backup, doc, "backup")

	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	s.config.Logger.Debug("state saved", "path", s.primary, "items", len(doc.Items))
	return nil
}

// writeCopy writes doc to path, logging failures. Used for the backup and for
// repairing the primary; neither is fatal.
func (s *Store) writeCopy(path string, doc core.Document, label string) {
	if err := s.writeDocument(path, doc); err != nil {
		s.fail(fmt.Errorf("failed to write %s: %w", label, err))
	}
}

func (s *Store) writeDocument(path string, doc core.Document) error {
	data, err := doc.MarshalIndent()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return writeFileAtomic(path, data, 0644)
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	s.config.Logger.Error("persistence failure", "error", err)
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
	}
}

// recordOwnWrite must be called with mu held.
func (s *Store) recordOwnWrite(canonical []byte) {
	s.ownWrites[0], s.ownWrites[1] = s.ownWrites[1], canonical
}

// isOwnWrite reports whether doc is one of the last two documents the store
// wrote. Two back-to-back writes can both land inside one watcher debounce.
func (s *Store) isOwnWrite(doc core.Document) bool {
	canonical := doc.Canonical()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bytes.Equal(s.ownWrites[1], canonical) || bytes.Equal(s.ownWrites[0], canonical)
}

// acceptExternal makes a document that appeared on disk without going through
// Save the current state. Queued saves are older than the edit and are
// dropped. A save that was already in flight is waited for, and the edit is
// written back if that save replaced it on disk. A newer hand edit found on
// disk is left for the watcher to report.
func (s *Store) acceptExternal(doc core.Document) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	canonical := doc.Canonical()
	onDisk, readErr := readDocument(s.primary)
	clobbered := readErr == nil && !bytes.Equal(onDisk.Canonical(), canonical) && s.isOwnWrite(onDisk)

	s.mu.Lock()
	s.current = doc
	s.pending = nil
	s.recordOwnWrite(canonical)
	s.mu.Unlock()

	if !clobbered {
		return
	}
	s.config.Logger.Warn("state file was overwritten by a stale save, restoring external edit", "path", s.primary)
	if err := s.writeDocument(s.primary, doc); err != nil {
		s.fail(fmt.Errorf("failed to restore external edit: %w", err))
		return
	}
	s.mu.Lock()
	s.lastWriteAt = time.Now()
	s.writes++
	s.mu.Unlock()
}
