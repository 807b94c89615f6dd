package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/shelf/pkg/core"
)

const watchDebounce = 50 * time.Millisecond

// watchWorker follows the primary state file and reports documents written
// by someone other than the store (an operator editing the file by hand).
type watchWorker struct {
	*worker.BaseWorker
	store   *Store
	pattern string
	events  chan<- core.Document
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
}

func newWatchWorker(store *Store, events chan<- core.Document) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("state-watcher"),
		store:      store,
		pattern:    store.config.PrimaryName,
		events:     events,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: atomic renames replace the inode of the file itself.
	if err := watcher.Add(w.store.config.Dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.store.config.Dir, err)
	}

	w.watcher = watcher
	w.store.setWatching(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"file":              w.pattern,
		}
	})
}

// matches reports whether a filesystem event concerns the primary file.
func (w *watchWorker) matches(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.Base(event.Name))
	return err == nil && ok
}

// schedule debounces bursts of events (editors often write in several steps).
func (w *watchWorker) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, func() { w.reload(ctx) })
}

func (w *watchWorker) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// reload reads the primary file and forwards it when it differs from what the
// store wrote. Unparsable intermediate states are ignored; the next write
// event retries.
func (w *watchWorker) reload(ctx context.Context) {
	doc, err := readDocument(w.store.primary)
	if err != nil {
		w.store.config.Logger.Debug("ignoring unreadable state file change", "error", err)
		return
	}
	if w.store.isOwnWrite(doc) {
		return
	}
	w.store.acceptExternal(doc)
	w.store.writeCopy(w.store.backup, doc, "backup")
	w.store.config.Logger.Info("state file changed on disk", "path", w.store.primary, "items", len(doc.Items))

	defer func() {
		// The events channel may be closed while shutting down.
		_ = recover()
	}()
	select {
	case w.events <- doc:
	case <-ctx.Done():
	}
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)
			if w.store.config.Logger.Enabled(ctx, slog.LevelDebug) {
				w.store.config.Logger.Error("watcher panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				w.store.config.Logger.Error("watcher panic", "error", panicErr)
			}
			err = panicErr
		}
	}()
	defer w.store.setWatching(false)
	defer w.watcher.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if w.matches(event) {
				w.schedule(ctx)
			}

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.store.config.Logger.Error("fsnotify error", "error", wErr)
			if w.store.config.ErrorHandler != nil {
				w.store.config.ErrorHandler(wErr)
			}
		}
	}
}

// watchBackoff paces restarts of a failed watcher.
var watchBackoff = supervisor.Backoff{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	Multiplier:      2,
	ResetDuration:   30 * time.Second,
	MaxRestarts:     5,
	MaxDuration:     time.Minute,
}

// Watch starts following the primary file for external edits. The watcher
// runs under a supervisor that restarts it when fsnotify fails. The returned
// channel receives every externally written document; it is never closed by
// the store, the watcher simply stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context) (<-chan core.Document, error) {
	if _, err := os.Stat(s.config.Dir); err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", s.config.Dir, err)
	}

	events := make(chan core.Document, 1)
	spec := supervisor.Spec{
		Name: "state-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newWatchWorker(s, events), nil
		},
		Backoff:       watchBackoff,
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("store-watch", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return sup.Stop(stopCtx)
	}, lifecycle.WithErrorHandler(func(err error) {
		s.config.Logger.Debug("watcher shutdown", "error", err)
	}))
	return events, nil
}

func (s *Store) setWatching(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watching = active
}
