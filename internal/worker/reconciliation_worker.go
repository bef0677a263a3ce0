package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/ledger-core/internal/observability"
	"github.com/ayo6706/ledger-core/internal/service"
	"go.uber.org/zap"
)

const reconciliationLockName = "ledger:lock:reconciliation"

// Reconciler runs one ledger conservation check; *service.ReconciliationService
// satisfies it.
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconciliationReport, error)
}

// ReconciliationWorker runs periodic ledger reconciliation checks. With a Locker
// only one instance reconciles per tick.
type ReconciliationWorker struct {
	svc      Reconciler
	locker   Locker
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReconciliationWorker constructs a worker with a default hourly interval.
// locker may be nil for single-instance deployments.
func NewReconciliationWorker(svc Reconciler, locker Locker) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		locker:   locker,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	defer close(w.done)
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce reconciles unless another instance holds the lock. It returns nil when
// the run was skipped or failed.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) *service.ReconciliationReport {
	if w.locker != nil {
		release, acquired, err := w.locker.TryLock(ctx, reconciliationLockName)
		if err != nil {
			observability.IncrementWorkerRun("reconciliation", "lock_error")
			zap.L().Warn("reconciliation lock unavailable", zap.Error(err))
			return nil
		}
		if !acquired {
			observability.IncrementWorkerRun("reconciliation", "skipped")
			zap.L().Debug("reconciliation already running elsewhere")
			return nil
		}
		defer release()
	}

	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return nil
	}
	observability.IncrementWorkerRun("reconciliation", "success")
	return report
}
