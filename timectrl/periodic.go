package timectrl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PeriodicTask runs fn on a fixed interval. A tick that arrives while the
// previous run is still going is skipped, so runs of one task never overlap.
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	// Immediate runs fn once as soon as Run starts.
	Immediate bool
	// OnSkip, if set, is called for every skipped tick.
	OnSkip func(name string)

	fn      func(ctx context.Context)
	running atomic.Bool
	skipped atomic.Int64
	runs    atomic.Int64
	wg      sync.WaitGroup
}

// NewPeriodicTask constructs a task. Interval must be positive.
func NewPeriodicTask(name string, interval time.Duration, fn func(ctx context.Context)) *PeriodicTask {
	return &PeriodicTask{Name: name, Interval: interval, fn: fn}
}

// Skipped returns the number of ticks dropped because a run was in flight.
func (p *PeriodicTask) Skipped() int64 { return p.skipped.Load() }

// Runs returns the number of started runs.
func (p *PeriodicTask) Runs() int64 { return p.runs.Load() }

// Run blocks until ctx is cancelled. Before returning it waits for any
// in-flight run; the run observes the same cancelled ctx and is expected to
// stop at its next safe point.
func (p *PeriodicTask) Run(ctx context.Context) error {
	defer p.wg.Wait()

	if p.Immediate {
		p.trigger(ctx)
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

func (p *PeriodicTask) trigger(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		if p.OnSkip != nil {
			p.OnSkip(p.Name)
		}
		return
	}
	p.runs.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.fn(ctx)
	}()
}
