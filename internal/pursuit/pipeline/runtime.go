package pipeline

import (
	"context"
	"time"
)

// TickPeriod returns the tick interval for the current desired rate.
func (e *Engine) TickPeriod() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return hzPeriod(e.desiredHz)
}

// Run drives Update on the engine's clock until ctx is cancelled. The
// ticker re-arms whenever rate adaptation moves the desired frequency,
// so a loaded host ticks slower and a recovered one speeds back up.
//
// Run does not enable the engine; pair it with Enable(true).
func (e *Engine) Run(ctx context.Context) error {
	period := e.TickPeriod()
	ticker := e.clock.NewTicker(period)
	defer ticker.Stop()
	diagf("[engine] loop running at %v per tick", period)

	for {
		select {
		case <-ctx.Done():
			diagf("[engine] loop stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C():
			e.Update()
			if p := e.TickPeriod(); p != period {
				tracef("[engine] retimed ticker %v -> %v", period, p)
				period = p
				ticker.Reset(p)
			}
		}
	}
}
