// Package inotify watches media folders and queues a refresh for every media
// file that is created or finishes being written.
package inotify

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

// Queuer accepts refresh requests. *processor.Processor implements it.
type Queuer interface {
	Queue(req processor.Request) (bool, error)
}

// Config selects what is watched.
type Config struct {
	Paths      []string
	Extensions []string      // lower-case with leading dot; empty accepts every file
	Debounce   time.Duration // quiet period after the last write before queueing
}

// Watcher watches filesystem paths for changes and queues refreshes
type Watcher struct {
	queue      Queuer
	watcher    *fsnotify.Watcher
	roots      []string
	extensions []string
	debounce   time.Duration

	watched map[string]struct{}
	mu      sync.RWMutex

	// Debounce tracking
	pending   map[string]*pendingRefresh
	pendingMu sync.Mutex

	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// pendingRefresh is one debounce timer. fire compares entries by pointer so a
// timer that fired while being rescheduled cannot queue its path twice.
type pendingRefresh struct {
	timer *time.Timer
}

// New creates a new filesystem watcher
func New(cfg Config, queue Queuer) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("no watch paths configured")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	roots := make([]string, 0, len(cfg.Paths))
	for _, path := range cfg.Paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			fsWatcher.Close()
			return nil, err
		}
		roots = append(roots, absPath)
	}

	extensions := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions = append(extensions, ext)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		queue:      queue,
		watcher:    fsWatcher,
		roots:      roots,
		extensions: extensions,
		debounce:   debounce,
		watched:    make(map[string]struct{}),
		pending:    make(map[string]*pendingRefresh),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start adds recursive watches for every root and starts processing events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return &fs.PathError{Op: "watch", Path: root, Err: errors.New("not a directory")}
		}
		watched := w.addWatchRecursiveLocked(root)
		log.Debug().Str("path", root).Int("directories", watched).Msg("Added recursive watch")
	}

	w.running = true
	w.wg.Go(w.eventLoop)

	log.Info().Strs("paths", w.roots).Int("directories", len(w.watched)).Msg("Inotify watcher started")
	return nil
}

// Stop stops the watcher. Debounced events that have not fired are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.watcher.Close()
	w.wg.Wait()

	w.pendingMu.Lock()
	for _, entry := range w.pending {
		entry.timer.Stop()
	}
	w.pending = make(map[string]*pendingRefresh)
	w.pendingMu.Unlock()

	log.Info().Msg("Inotify watcher stopped")
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// eventLoop processes filesystem events
func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Inotify watcher error")
		}
	}
}

// handleEvent processes a single filesystem event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.forget(event.Name)
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			watched := w.addWatchRecursiveLocked(event.Name)
			w.mu.Unlock()
			log.Debug().Str("path", event.Name).Int("directories", watched).Msg("Added watch for new directory")

			// Files moved in together with the directory produce no events of their own.
			w.scheduleExisting(event.Name)
			return
		}
	}

	if !w.accepts(event.Name) {
		return
	}
	w.scheduleEvent(event.Name)
}

// accepts reports whether path has one of the watched extensions.
func (w *Watcher) accepts(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

// scheduleEvent schedules a refresh with debouncing
func (w *Watcher) scheduleEvent(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	// A timer that already fired is replaced; its callback sees a different
	// entry and backs off.
	if entry, ok := w.pending[path]; ok && entry.timer.Stop() {
		entry.timer.Reset(w.debounce)
		return
	}

	entry := &pendingRefresh{}
	entry.timer = time.AfterFunc(w.debounce, func() {
		w.fire(path, entry)
	})
	w.pending[path] = entry
	log.Debug().Str("path", path).Str("debounce", w.debounce.String()).Msg("Scheduled debounced refresh")
}

func (w *Watcher) scheduleExisting(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.accepts(path) {
			return nil
		}
		w.scheduleEvent(path)
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("path", dir).Msg("Failed to walk new directory")
	}
}

// forget drops a pending refresh and any watch for a removed path.
func (w *Watcher) forget(path string) {
	w.pendingMu.Lock()
	if entry, ok := w.pending[path]; ok {
		entry.timer.Stop()
		delete(w.pending, path)
	}
	w.pendingMu.Unlock()

	w.mu.Lock()
	delete(w.watched, path)
	w.mu.Unlock()
}

// fire queues the refresh after the debounce period
func (w *Watcher) fire(path string, entry *pendingRefresh) {
	w.pendingMu.Lock()
	if w.pending[path] != entry {
		w.pendingMu.Unlock()
		return
	}
	delete(w.pending, path)
	w.pendingMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}

	log.Info().Str("path", path).Msg("Inotify triggered refresh")

	if _, err := w.queue.Queue(processor.Request{Path: path, Source: database.SourceWatcher}); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to queue refresh")
	}
}

// addWatchRecursiveLocked adds watches to a directory and all its
// subdirectories and returns how many were added. Caller must hold w.mu.
func (w *Watcher) addWatchRecursiveLocked(rootPath string) int {
	added := 0

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Error walking directory")
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if _, ok := w.watched[path]; ok {
			return nil
		}

		if err := w.watcher.Add(path); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Failed to add watch for directory")
			return nil
		}

		w.watched[path] = struct{}{}
		added++
		return nil
	})

	if err != nil {
		log.Error().Err(err).Str("path", rootPath).Msg("Failed to walk directory tree")
	}

	return added
}

// Stats returns watcher statistics
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	directories := len(w.watched)
	w.mu.RUnlock()

	w.pendingMu.Lock()
	pendingCount := len(w.pending)
	w.pendingMu.Unlock()

	return Stats{
		Roots:        len(w.roots),
		Directories:  directories,
		PendingCount: pendingCount,
	}
}

// Stats holds watcher statistics
type Stats struct {
	Roots        int `json:"roots"`
	Directories  int `json:"directories"`
	PendingCount int `json:"pending_count"`
}
