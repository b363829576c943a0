package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/jvossen/ensemble/internal/score"
)

// PersistFunc writes a pooled document to durable storage.
type PersistFunc func(proj *score.Project) error

// Flusher periodically persists every pooled project without evicting it,
// bounding how stale the stored copy can get. A failed save for one
// project never prevents the others from being saved.
type Flusher struct {
	pool     *Pool
	persist  PersistFunc
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

// NewFlusher creates a flusher over the pool. interval controls how often
// a full pass runs.
func NewFlusher(p *Pool, persist PersistFunc, interval time.Duration, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		pool:     p,
		persist:  persist,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run flushes on every tick until ctx is canceled, then performs one final
// unconditional pass before returning. Callers must Wait for that final
// pass during shutdown.
func (f *Flusher) Run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.FlushAll()
		case <-ctx.Done():
			f.FlushAll()
			return
		}
	}
}

// Wait blocks until Run has completed its final flush.
func (f *Flusher) Wait() {
	<-f.done
}

// FlushAll persists every pooled project once, holding each project's own
// lock while it is being written so a flush never observes a half-applied
// mutation. Reference counts are untouched.
func (f *Flusher) FlushAll() {
	f.pool.ForEach(func(id string, proj *score.Project, refs int) {
		guard := f.pool.Guard(id)
		guard.Lock()
		err := f.persist(proj)
		guard.Unlock()
		if err != nil {
			f.logger.Error("flush failed", "project", id, "error", err)
			return
		}
		f.logger.Debug("flushed project", "project", id, "refs", refs)
	})
}
