// Package polling finds new media files by walking directories on an interval.
// It covers mounts where inotify events are not delivered, such as network and
// FUSE filesystems.
package polling

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

// MinInterval is the shortest accepted poll interval.
const MinInterval = 10 * time.Second

// Queuer accepts refresh requests. *processor.Processor implements it.
type Queuer interface {
	Queue(req processor.Request) (bool, error)
}

// Config holds the poller configuration
type Config struct {
	Paths      []string
	Extensions []string // empty accepts every file
	Interval   time.Duration
}

// Poller watches filesystem paths for changes using interval-based polling
type Poller struct {
	queue      Queuer
	roots      []string
	extensions []string
	interval   time.Duration

	seenFiles map[string]struct{}
	seenMu    sync.RWMutex
	firstScan bool
	scanning  atomic.Bool

	running bool
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new filesystem poller
func New(cfg Config, queue Queuer) (*Poller, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("no poll paths configured")
	}

	roots := make([]string, 0, len(cfg.Paths))
	for _, path := range cfg.Paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
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

	interval := cfg.Interval
	if interval < MinInterval {
		interval = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		queue:      queue,
		roots:      roots,
		extensions: extensions,
		interval:   interval,
		seenFiles:  make(map[string]struct{}),
		firstScan:  true,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start records the files already present and starts the polling loop.
// Files that exist at startup are never queued.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	p.doScan()

	p.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Polling loop panicked")
			}
		}()
		p.pollLoop()
	})

	log.Info().
		Int("paths", len(p.roots)).
		Dur("interval", p.interval).
		Int("seen_files", p.Stats().SeenFiles).
		Msg("Polling watcher started")
}

// Stop stops the poller
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	log.Info().Msg("Polling watcher stopped")
}

// Run starts the poller and blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	p.Stop()
	return nil
}

// pollLoop is the main polling loop
func (p *Poller) pollLoop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			// Skip this cycle if previous scan is still running
			if !p.scanning.CompareAndSwap(false, true) {
				log.Debug().Msg("Skipping poll cycle - previous scan still running")
				continue
			}
			p.doScan()
			p.scanning.Store(false)
		}
	}
}

// doScan walks every root once. New files are queued unless this is the first
// scan; files that disappeared are forgotten so they are queued again if they
// come back.
func (p *Poller) doScan() {
	isFirstScan := p.firstScan
	present := make(map[string]struct{})
	var newFiles []string

	for _, root := range p.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // Skip errors, continue walking
			}
			if d.IsDir() || !p.accepts(path) {
				return nil
			}

			present[path] = struct{}{}

			p.seenMu.RLock()
			_, seen := p.seenFiles[path]
			p.seenMu.RUnlock()

			if !seen && !isFirstScan {
				newFiles = append(newFiles, path)
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("path", root).Msg("Error walking directory")
		}
	}

	p.seenMu.Lock()
	p.seenFiles = present
	p.seenMu.Unlock()
	p.firstScan = false

	for _, path := range newFiles {
		if _, err := p.queue.Queue(processor.Request{Path: path, Source: database.SourceWatcher}); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to queue refresh from poller")
			continue
		}
		log.Info().Str("path", path).Msg("Polling watcher queued refresh")
	}
}

func (p *Poller) accepts(path string) bool {
	if len(p.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range p.extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Stats returns poller statistics
func (p *Poller) Stats() Stats {
	p.seenMu.RLock()
	defer p.seenMu.RUnlock()

	return Stats{
		PathCount: len(p.roots),
		SeenFiles: len(p.seenFiles),
	}
}

// Stats holds poller statistics
type Stats struct {
	PathCount int `json:"path_count"`
	SeenFiles int `json:"seen_files"`
}
