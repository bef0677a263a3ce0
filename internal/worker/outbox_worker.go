package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/ledger-core/internal/observability"
	"go.uber.org/zap"
)

// Dispatcher publishes due outbox events; *service.OutboxService satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, batchSize int32) (int, error)
}

// OutboxWorker polls the outbox and hands due events to their handlers.
// Several instances may run at once: claims use FOR UPDATE SKIP LOCKED.
type OutboxWorker struct {
	dispatcher   Dispatcher
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

func NewOutboxWorker(dispatcher Dispatcher) *OutboxWorker {
	return &OutboxWorker{
		dispatcher:   dispatcher,
		pollInterval: time.Second,
		batchSize:    50,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (w *OutboxWorker) WithPollInterval(interval time.Duration) *OutboxWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

func (w *OutboxWorker) WithBatchSize(size int32) *OutboxWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or ctx is canceled.
func (w *OutboxWorker) Start(ctx context.Context) {
	defer close(w.done)
	zap.L().Info("outbox worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("outbox worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("outbox worker stop signal received")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain keeps dispatching while full batches come back so a backlog clears
// without waiting a tick per batch.
func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		n, err := w.ProcessOnce(ctx)
		if err != nil || n < int(w.batchSize) {
			return
		}
		select {
		case <-w.stopCh:
			return
		default:
		}
	}
}

// ProcessOnce dispatches a single batch immediately.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	n, err := w.dispatcher.Dispatch(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("outbox", "failed")
		zap.L().Error("outbox dispatch failed", zap.Error(err))
		return n, err
	}
	observability.IncrementWorkerRun("outbox", "success")
	return n, nil
}

// Stop signals the loop to exit and waits for the in-flight batch.
func (w *OutboxWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *OutboxWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *OutboxWorker) String() string {
	return fmt.Sprintf("OutboxWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
