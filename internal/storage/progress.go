package storage

import (
	"context"
	"math/rand/v2"
	"time"
)

// Progress milestones reported around a simulated upload.
const (
	ProgressStarted   = 5
	ProgressCeiling   = 90
	ProgressFinishing = 95
	ProgressDone      = 100
)

// ProgressSimulator reports progress for a backend that emits none. It must
// return once ctx is done and never report more than ProgressCeiling.
type ProgressSimulator interface {
	Simulate(ctx context.Context, start int, report func(int))
}

// TickerProgress advances by a random step of 1..MaxStep on every tick.
type TickerProgress struct {
	Interval time.Duration
	MaxStep  int
	rnd      func(n int) int
}

func NewTickerProgress(interval time.Duration, maxStep int) *TickerProgress {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if maxStep <= 0 {
		maxStep = 10
	}
	return &TickerProgress{Interval: interval, MaxStep: maxStep, rnd: rand.IntN}
}

func (p *TickerProgress) Simulate(ctx context.Context, start int, report func(int)) {
	t := time.NewTicker(p.Interval)
	defer t.Stop()

	cur := start
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if cur >= ProgressCeiling {
				continue
			}
			cur += 1 + p.rnd(p.MaxStep)
			if cur > ProgressCeiling {
				cur = ProgressCeiling
			}
			report(cur)
		}
	}
}

// NoProgress reports nothing between the start and finish milestones.
type NoProgress struct{}

func (NoProgress) Simulate(ctx context.Context, _ int, _ func(int)) { <-ctx.Done() }
