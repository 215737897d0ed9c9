// Package ratelimit provides the two pacing primitives the executors need:
// a Pacer that schedules arrival times for the open-loop model, and a
// TokenBucket that caps throughput for the closed-loop model.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer schedules iteration start times at a target rate using a drip
// accumulator rather than a fixed sleep-per-iteration, so it stays accurate
// under rate changes (ramping stages) without bursting.
type Pacer struct {
	mu          sync.Mutex
	rate        float64 // iterations per second
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
}

// NewPacer builds a Pacer targeting rate iterations/sec with no burst
// allowance (strict spacing). The first arrival is due immediately.
func NewPacer(rate float64) *Pacer {
	if rate <= 0 {
		rate = 1.0
	}
	return &Pacer{rate: rate, lastDrip: time.Now(), maxBurst: 1.0, accumulated: 1.0}
}

// Next returns the time the next iteration should start. A time in the past
// means the caller is behind schedule and should proceed immediately.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	p.accumulated += elapsed * p.rate
	if p.accumulated > p.maxBurst {
		p.accumulated = p.maxBurst
	}

	if p.accumulated >= 1.0 {
		p.accumulated -= 1.0
		p.lastDrip = now
		return now
	}

	deficit := 1.0 - p.accumulated
	waitSeconds := deficit / p.rate
	p.accumulated = 0

	next := now.Add(time.Duration(waitSeconds * float64(time.Second)))
	p.lastDrip = next
	return next
}

// Wait blocks until the next scheduled arrival, or ctx is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	next := p.Next()
	d := time.Until(next)
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SetRate retargets the pacer. Accumulated credit is dropped so a rate
// change (stage transition) never produces a burst.
func (p *Pacer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate <= 0 {
		rate = 1.0
	}
	p.rate = rate
	p.accumulated = 0
	p.lastDrip = time.Now()
}

// Rate returns the pacer's current target rate.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}
