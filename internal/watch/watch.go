// Package watch re-scans a project when its files change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pbaille/codecontext/internal/scanner"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before a batch of changes is handled
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher
type Options struct {
	Debounce     time.Duration
	MaxBatchSize int
	Logger       zerolog.Logger
}

// ChangeFunc handles one debounced batch. Paths are slash separated and
// relative to the project root.
type ChangeFunc func(ctx context.Context, changes []Event) error

// Watcher follows every non-excluded directory under the scanner root
type Watcher struct {
	sc        *scanner.Scanner
	logger    zerolog.Logger
	onChange  ChangeFunc
	fsWatcher *fsnotify.Watcher
	fsMu      sync.Mutex
	debouncer *Debouncer

	// serializes onChange calls; flushes fire on timer goroutines
	changeMu sync.Mutex
	// content hash per tracked file, guarded by changeMu
	hashes map[string]string

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(sc *scanner.Scanner, opts Options, onChange ChangeFunc) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	w := &Watcher{
		sc:        sc,
		logger:    opts.Logger,
		onChange:  onChange,
		fsWatcher: fsWatcher,
		hashes:    map[string]string{},
	}
	w.debouncer = NewDebouncer(opts.Debounce, opts.MaxBatchSize, w.onFlush)
	return w, nil
}

// Start registers the directory tree and begins handling events. It returns
// once every directory is watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.addTree(w.sc.Root(), true); err != nil {
		return err
	}

	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.handleEvents()

	w.logger.Info().Str("root", w.sc.Root()).Msg("watching for changes")
	return nil
}

// Stop flushes pending changes and releases the fs watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.debouncer.Stop()

	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Close()
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// addTree watches every non-excluded directory under root. With seed it
// also records the hash of each tracked file so unchanged rewrites are
// ignored later.
func (w *Watcher) addTree(root string, seed bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug().Err(err).Str("path", path).Msg("skipping directory")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, ok := w.rel(path)
		if !d.IsDir() {
			if seed && ok && !w.sc.Excluded(rel, false) {
				w.seed(path, rel)
			}
			return nil
		}
		if ok && w.sc.Excluded(rel, true) {
			return filepath.SkipDir
		}

		w.fsMu.Lock()
		addErr := w.fsWatcher.Add(path)
		w.fsMu.Unlock()
		if addErr != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", path, addErr)
			}
			w.logger.Debug().Err(addErr).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) handleEvents() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.sc.Excluded(rel, isDir) {
		return
	}

	if isDir {
		if err := w.addTree(event.Name, false); err != nil {
			w.logger.Debug().Err(err).Str("path", rel).Msg("failed to watch new directory")
		}
		// files moved in with the directory produce no events of their own
		w.debouncer.Add(Event{Path: rel, Op: fsnotify.Create, At: time.Now()})
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if scanner.Language(event.Name) == "" {
		return
	}

	w.logger.Debug().Str("file", rel).Str("op", event.Op.String()).Msg("file change detected")
	w.debouncer.Add(Event{Path: rel, Op: event.Op, At: time.Now()})
}

func (w *Watcher) onFlush(events []Event) {
	w.changeMu.Lock()
	defer w.changeMu.Unlock()

	changes := make([]Event, 0, len(events))
	for _, e := range events {
		if w.changed(e) {
			changes = append(changes, e)
		}
	}
	if len(changes) == 0 {
		w.logger.Debug().Int("events", len(events)).Msg("no content changes")
		return
	}

	ctx := w.ctx
	if ctx == nil || ctx.Err() != nil {
		// flushed by Stop; the parent context may already be gone
		ctx = context.Background()
	}

	w.logger.Info().Int("count", len(changes)).Msg("changes detected, rescanning")
	if err := w.onChange(ctx, changes); err != nil {
		w.logger.Error().Err(err).Msg("rescan failed")
	}
}

// changed reports whether e alters what a scan would record. Must be called
// with changeMu held.
func (w *Watcher) changed(e Event) bool {
	path := filepath.Join(w.sc.Root(), filepath.FromSlash(e.Path))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		delete(w.hashes, e.Path)
		// removed files and new directories always count
		return e.Gone() || err == nil
	}

	rec, err := w.sc.ScanFile(path)
	if err != nil {
		w.logger.Debug().Err(err).Str("file", e.Path).Msg("cannot read changed file")
		return false
	}
	prev, known := w.hashes[e.Path]
	if rec == nil {
		// binary or oversized now; only matters if it used to be tracked
		delete(w.hashes, e.Path)
		return known
	}
	w.hashes[e.Path] = rec.Hash
	return !known || prev != rec.Hash || e.Gone()
}

func (w *Watcher) seed(path, rel string) {
	rec, err := w.sc.ScanFile(path)
	if err != nil || rec == nil {
		return
	}
	w.changeMu.Lock()
	w.hashes[rel] = rec.Hash
	w.changeMu.Unlock()
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.sc.Root(), path)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
