package ai

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Warmer is implemented by providers that can preload their model.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// WarmupTask runs a Warmer in the background and exposes whether it has succeeded.
// With a keep-warm schedule it re-runs on a cron spec so the backend does not unload
// the model while idle.
type WarmupTask struct {
	w       Warmer
	timeout time.Duration
	log     *zap.Logger

	ready   atomic.Bool
	running atomic.Bool

	mu   sync.Mutex
	cron *cron.Cron
	wg   sync.WaitGroup
}

func NewWarmupTask(w Warmer, timeout time.Duration, log *zap.Logger) *WarmupTask {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WarmupTask{w: w, timeout: timeout, log: log}
}

func (t *WarmupTask) Ready() bool { return t.ready.Load() }

// Run performs one warm-up attempt. Overlapping calls are skipped.
func (t *WarmupTask) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return nil
	}
	defer t.running.Store(false)

	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	if err := t.w.Warmup(cctx); err != nil {
		t.log.Warn("model warm-up failed", zap.Duration("cost", time.Since(start)), zap.Error(err))
		return err
	}
	if !t.ready.Swap(true) {
		t.log.Info("model ready", zap.Duration("cost", time.Since(start)))
	}
	return nil
}

// Start launches the first attempt in its own goroutine and, if keepWarmSpec is non-empty,
// schedules further attempts with it (standard 5-field cron syntax or descriptors like "@every 4m").
func (t *WarmupTask) Start(ctx context.Context, keepWarmSpec string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if keepWarmSpec != "" {
		c := cron.New()
		if _, err := c.AddFunc(keepWarmSpec, func() { _ = t.Run(ctx) }); err != nil {
			return err
		}
		c.Start()
		t.cron = c
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_ = t.Run(ctx)
	}()
	return nil
}

// Stop halts the schedule and waits for the initial attempt to return.
func (t *WarmupTask) Stop() {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	t.wg.Wait()
}
