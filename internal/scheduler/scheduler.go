package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on every tick until ctx is done. A tick
// that arrives while the previous run is still going is dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	t := time.NewTicker(interval)
	defer t.Stop()

	var running atomic.Bool
	run := func() {
		if !running.CompareAndSwap(false, true) {
			slog.Warn("previous run still in progress, skipping tick", "task", name)
			return
		}
		go func() {
			defer running.Store(false)
			if err := task(ctx); err != nil {
				slog.Error("scheduled task failed", "task", name, "error", err)
			}
		}()
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
