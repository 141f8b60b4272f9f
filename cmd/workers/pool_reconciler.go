package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reconciler is the slice of the CSR service the worker drives
type Reconciler interface {
	ReconcileExhausted(ctx context.Context) (int64, error)
}

// PoolReconciler periodically marks drained CSR pools exhausted
type PoolReconciler struct {
	reconciler Reconciler
	logger     *zap.Logger
	schedule   string
	timeout    time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewPoolReconciler(reconciler Reconciler, schedule string, logger *zap.Logger) *PoolReconciler {
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &PoolReconciler{
		reconciler: reconciler,
		logger:     logger,
		schedule:   schedule,
		timeout:    time.Minute,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the job and runs it once immediately
func (p *PoolReconciler) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pool reconciler already running")
	}
	if _, err := p.cron.AddFunc(p.schedule, func() { p.run(ctx) }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", p.schedule, err)
	}

	p.logger.Info("Starting pool reconciler", zap.String("schedule", p.schedule))
	p.run(ctx)
	p.cron.Start()
	p.running = true
	return nil
}

// Stop waits for a running job to finish
func (p *PoolReconciler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.logger.Info("Stopping pool reconciler")
	<-p.cron.Stop().Done()
	p.running = false
}

func (p *PoolReconciler) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	n, err := p.reconciler.ReconcileExhausted(ctx)
	if err != nil {
		p.logger.Error("Pool reconciliation failed", zap.Error(err))
		return
	}
	p.logger.Debug("Pool reconciliation finished",
		zap.Int64("exhausted", n),
		zap.Duration("duration", time.Since(start)))
}
