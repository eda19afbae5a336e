// Package processor queues refresh requests from the watcher and the webhook
// server and runs them on a fixed pool of workers.
package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/config"
	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/notification"
	"github.com/saltyorg/plexrefresh/internal/plex"
)

var (
	// ErrQueueFull is returned when the request queue has no free slot.
	ErrQueueFull = errors.New("refresh queue is full")
	// ErrStopped is returned for requests queued after Stop.
	ErrStopped = errors.New("processor stopped")
)

// Refresher runs a single refresh invocation.
type Refresher interface {
	Refresh(ctx context.Context, req plex.Request) (*plex.Outcome, error)
}

// History records refresh attempts. *database.DB implements it.
type History interface {
	CreateRefresh(r *database.Refresh) error
	CompleteRefresh(r *database.Refresh) error
	CleanupRefreshes(olderThan time.Duration) (int64, error)
	FailRunningRefreshes() (int64, error)
}

// Notifier receives refresh events. *notification.Manager implements it.
type Notifier interface {
	Notify(event notification.Event)
}

// Config holds the processor configuration
type Config struct {
	Plex      config.PlexConfig
	Workers   int
	QueueSize int

	// Timeout bounds each refresh; zero means no limit.
	Timeout time.Duration

	// CleanupDays is how many days of refresh history to keep.
	// Set to 0 to keep history forever.
	CleanupDays int
}

// Request asks for one file to be refreshed.
type Request struct {
	Path   string
	Source string
}

// Result is what a refresh run produced.
type Result struct {
	Record  *database.Refresh
	Outcome *plex.Outcome
	Err     error
}

// Processor handles refresh processing
type Processor struct {
	config    Config
	refresher Refresher
	history   History
	notifier  Notifier
	cron      *cron.Cron

	requests chan Request

	// pending holds paths queued but not yet picked up by a worker
	pending   map[string]struct{}
	active    int
	stopped   bool
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new refresh processor. history and notifier may be nil.
func New(cfg Config, refresher Refresher, history History, notifier Notifier) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		config:    cfg,
		refresher: refresher,
		history:   history,
		notifier:  notifier,
		cron:      cron.New(),
		requests:  make(chan Request, cfg.QueueSize),
		pending:   make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the workers and the history cleanup schedule.
func (p *Processor) Start() error {
	if p.history != nil {
		if count, err := p.history.FailRunningRefreshes(); err != nil {
			log.Error().Err(err).Msg("Failed to reset interrupted refreshes")
		} else if count > 0 {
			log.Info().Int64("count", count).Msg("Marked interrupted refreshes as failed")
		}

		if p.config.CleanupDays > 0 {
			if _, err := p.cron.AddFunc("@daily", p.cleanupHistory); err != nil {
				return fmt.Errorf("failed to schedule history cleanup: %w", err)
			}
			p.cleanupHistory()
		}
	}
	p.cron.Start()

	for i := range p.config.Workers {
		p.wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Int("worker", i).Msg("Refresh worker panicked")
				}
			}()
			p.worker()
		})
	}

	log.Info().Int("workers", p.config.Workers).Msg("Refresh processor started")
	return nil
}

// Stop stops accepting requests, cancels running refreshes and waits for the
// workers to exit. Requests still queued are dropped.
func (p *Processor) Stop() {
	p.pendingMu.Lock()
	if p.stopped {
		p.pendingMu.Unlock()
		return
	}
	p.stopped = true
	dropped := len(p.pending)
	p.pendingMu.Unlock()

	cronCtx := p.cron.Stop()
	p.cancel()
	close(p.requests)
	p.wg.Wait()
	<-cronCtx.Done()

	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Dropped queued refresh requests on shutdown")
	}
	log.Info().Msg("Refresh processor stopped")
}

// Queue adds a request to the queue. It returns false without error when the
// same path is already waiting for a worker.
func (p *Processor) Queue(req Request) (bool, error) {
	req.Path = filepath.Clean(req.Path)

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	if p.stopped {
		return false, ErrStopped
	}
	if _, ok := p.pending[req.Path]; ok {
		log.Debug().Str("path", req.Path).Msg("Duplicate refresh request, ignoring")
		return false, nil
	}

	select {
	case p.requests <- req:
		p.pending[req.Path] = struct{}{}
		log.Debug().Str("path", req.Path).Str("source", req.Source).Msg("Refresh request queued")
		return true, nil
	default:
		log.Warn().Str("path", req.Path).Msg("Refresh queue full, dropping request")
		return false, ErrQueueFull
	}
}

func (p *Processor) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case req, ok := <-p.requests:
			if !ok || p.ctx.Err() != nil {
				return
			}
			p.pendingMu.Lock()
			delete(p.pending, req.Path)
			p.active++
			p.pendingMu.Unlock()

			p.Run(p.ctx, req)

			p.pendingMu.Lock()
			p.active--
			p.pendingMu.Unlock()
		}
	}
}

// Run performs one refresh synchronously, recording it in the history and
// emitting a notification.
func (p *Processor) Run(ctx context.Context, req Request) Result {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	record := &database.Refresh{Source: req.Source, FilePath: req.Path}
	if p.history != nil {
		if err := p.history.CreateRefresh(record); err != nil {
			log.Error().Err(err).Str("path", req.Path).Msg("Failed to record refresh")
		}
	}

	outcome, err := p.refresher.Refresh(ctx, p.plexRequest(req.Path))
	fillRecord(record, outcome, err)

	if p.history != nil && record.ID != "" {
		if cerr := p.history.CompleteRefresh(record); cerr != nil {
			log.Error().Err(cerr).Str("refresh_id", record.ID).Msg("Failed to record refresh outcome")
		}
	}

	logEvent := log.Info()
	if err != nil {
		logEvent = log.Warn().Err(summaryError(err))
	}
	logEvent.
		Str("path", req.Path).
		Str("source", req.Source).
		Str("refresh_id", record.ID).
		Bool("item_refreshed", record.ItemRefreshed).
		Msg("Refresh finished")

	if p.notifier != nil {
		p.notifier.Notify(refreshEvent(record))
	}

	return Result{Record: record, Outcome: outcome, Err: err}
}

func (p *Processor) plexRequest(path string) plex.Request {
	c := p.config.Plex
	return plex.Request{
		FilePath:         path,
		Protocol:         c.Protocol,
		Host:             c.Host,
		Token:            c.Token,
		LibraryKey:       c.LibraryKey,
		LocalPathPrefix:  c.LocalPathPrefix,
		RemotePathPrefix: c.RemotePathPrefix,
	}
}

// fillRecord copies the outcome of a refresh into its history record.
func fillRecord(record *database.Refresh, outcome *plex.Outcome, err error) {
	if outcome != nil {
		record.RemotePath = outcome.File
		record.FolderRefreshed = outcome.FolderRefreshed
		record.ItemRefreshed = outcome.ItemRefreshed
		record.RatingKey = outcome.RatingKey
		record.Strategy = outcome.Strategy
		record.DiagnosticLog = outcome.DiagnosticLog()
	}
	if err != nil {
		record.Error = summaryError(err).Error()
	}
	if record.ItemRefreshed && record.Error == "" {
		record.Status = database.RefreshStatusCompleted
	} else {
		record.Status = database.RefreshStatusFailed
	}
}

// summaryError unwraps a *plex.RefreshError to its cause, whose message is a
// single line. The full log is kept separately.
func summaryError(err error) error {
	var rerr *plex.RefreshError
	if errors.As(err, &rerr) && rerr.Cause != nil {
		return rerr.Cause
	}
	return err
}

func refreshEvent(record *database.Refresh) notification.Event {
	fields := map[string]string{
		"file":   record.FilePath,
		"source": record.Source,
	}
	if record.RatingKey != "" {
		fields["rating_key"] = record.RatingKey
	}
	if record.Strategy != "" {
		fields["strategy"] = record.Strategy
	}

	if record.Status == database.RefreshStatusCompleted {
		return notification.Event{
			Type:    notification.EventRefreshCompleted,
			Title:   "Plex item refreshed",
			Message: filepath.Base(record.FilePath),
			Fields:  fields,
		}
	}

	message := record.DiagnosticLog
	if message == "" {
		message = record.Error
	}
	fields["folder_refreshed"] = fmt.Sprintf("%t", record.FolderRefreshed)
	return notification.Event{
		Type:    notification.EventRefreshFailed,
		Title:   "Plex refresh failed",
		Message: message,
		Fields:  fields,
	}
}

// cleanupHistory removes refreshes older than the configured retention period
func (p *Processor) cleanupHistory() {
	age := time.Duration(p.config.CleanupDays) * 24 * time.Hour
	deleted, err := p.history.CleanupRefreshes(age)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup refresh history")
		return
	}

	if deleted > 0 {
		log.Info().
			Int64("deleted", deleted).
			Int("days", p.config.CleanupDays).
			Msg("Cleaned up old refresh history")

		if o, ok := p.history.(interface{ Optimize() error }); ok {
			if err := o.Optimize(); err != nil {
				log.Warn().Err(err).Msg("Failed to optimize database after cleanup")
			}
		}
	}
}

// Stats returns current processor statistics
func (p *Processor) Stats() Stats {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	return Stats{
		Workers: p.config.Workers,
		Active:  p.active,
		Queued:  len(p.pending),
	}
}

// Stats holds processor statistics
type Stats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
}
