// Package loop drives the mixer at a fixed rate, standing in for the
// output driver's control loop.
package loop

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/flight-control/mixerd/internal/controls"
	"github.com/flight-control/mixerd/internal/mixer"
)

// DefaultRate is the tick rate used when none is configured.
const DefaultRate = 100

// Mixer is the part of the device the loop needs.
type Mixer interface {
	Mix(r mixer.Resolver, outputs []float32) mixer.MixResult
}

// Sink receives the outputs of every tick. Implementations must not retain
// outputs after returning and must not block.
type Sink interface {
	WriteOutputs(outputs []float32, res mixer.MixResult)
}

// Stats counts what the loop has done since it started.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	FailsafeTicks  uint64 `json:"failsafeTicks"`
	TruncatedTicks uint64 `json:"truncatedTicks"`
	Overruns       uint64 `json:"overruns"`
}

// Runner snapshots the control table and mixes once per tick.
type Runner struct {
	table   *controls.Table
	mixer   Mixer
	sinks   []Sink
	period  time.Duration
	frame   mixer.ControlFrame
	outputs []float32

	ticks     atomic.Uint64
	failsafe  atomic.Uint64
	truncated atomic.Uint64
	overruns  atomic.Uint64
}

// NewRunner creates a runner with an output buffer of maxOutputs slots.
// A non-positive rate uses DefaultRate.
func NewRunner(table *controls.Table, m Mixer, maxOutputs, rate int, sinks ...Sink) *Runner {
	if rate <= 0 {
		rate = DefaultRate
	}
	if maxOutputs <= 0 {
		maxOutputs = mixer.DefaultMaxOutputs
	}
	return &Runner{
		table:   table,
		mixer:   m,
		sinks:   sinks,
		period:  time.Second / time.Duration(rate),
		outputs: make([]float32, maxOutputs),
	}
}

// Period returns the tick interval.
func (r *Runner) Period() time.Duration {
	return r.period
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	log.Printf("Control loop running at %v", r.period)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Control loop stopped after %d ticks", r.ticks.Load())
			return
		case now := <-ticker.C:
			r.Tick(now)
			if time.Since(now) > r.period {
				r.overruns.Add(1)
			}
		}
	}
}

// Tick runs one mixing pass at now. Slots past the written outputs are
// zeroed before the sinks see them.
func (r *Runner) Tick(now time.Time) mixer.MixResult {
	r.table.Snapshot(&r.frame, now)
	res := r.mixer.Mix(&r.frame, r.outputs)
	clear(r.outputs[res.Written:])

	r.ticks.Add(1)
	if res.Failsafe > 0 {
		r.failsafe.Add(1)
	}
	if res.Truncated() {
		r.truncated.Add(1)
	}
	for _, s := range r.sinks {
		s.WriteOutputs(r.outputs, res)
	}
	return res
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Ticks:          r.ticks.Load(),
		FailsafeTicks:  r.failsafe.Load(),
		TruncatedTicks: r.truncated.Load(),
		Overruns:       r.overruns.Load(),
	}
}
