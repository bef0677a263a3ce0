package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/ledger-core/internal/observability"
	"go.uber.org/zap"
)

// Purger deletes finished idempotency keys older than retention;
// *idempotency.Store satisfies it.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyPurgeWorker periodically drops expired idempotency keys.
type IdempotencyPurgeWorker struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewIdempotencyPurgeWorker(purger Purger, retention time.Duration) *IdempotencyPurgeWorker {
	return &IdempotencyPurgeWorker{
		purger:    purger,
		retention: retention,
		interval:  time.Hour,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *IdempotencyPurgeWorker) Start(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *IdempotencyPurgeWorker) RunOnce(ctx context.Context) {
	n, err := w.purger.Purge(ctx, w.retention)
	if err != nil {
		observability.IncrementWorkerRun("idempotency_purge", "failed")
		zap.L().Warn("idempotency purge failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("idempotency_purge", "success")
	if n > 0 {
		zap.L().Info("purged idempotency keys", zap.Int64("count", n))
	}
}

func (w *IdempotencyPurgeWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

func (w *IdempotencyPurgeWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
