// Package progress animates a percentage while a long AI call is outstanding.
//
// The value is COSMETIC. It is driven by a local timer only and says nothing
// about how far the gateway actually got; the gateway exposes no progress
// signal. Do not use it for anything but display.
package progress

import (
	"sync"
	"time"
)

const (
	// Cap is the highest value reached while the call is still running.
	Cap = 95
	// Done is forced when the real response arrives.
	Done = 100
)

// DefaultInterval is how often the percentage advances.
const DefaultInterval = 800 * time.Millisecond

// DefaultPhaseInterval is how often the status phase changes.
const DefaultPhaseInterval = 4 * time.Second

// Phases are the human-readable status lines cycled during quiz generation.
var Phases = []string{
	"Uploading your document...",
	"Extracting text from the PDF...",
	"Reading through the material...",
	"Identifying key concepts...",
	"Drafting questions...",
	"Writing answer options...",
	"Adding explanations...",
	"Finalising your quiz...",
}

// Step returns the next value after p: +5 below 30, +3 below 60, +2 below 80,
// +1 otherwise, never above Cap.
func Step(p int) int {
	var next int
	switch {
	case p < 30:
		next = p + 5
	case p < 60:
		next = p + 3
	case p < 80:
		next = p + 2
	default:
		next = p + 1
	}
	if next > Cap {
		next = Cap
	}
	if next < p {
		return p
	}
	return next
}

// Snapshot is a point-in-time view of an Estimator.
type Snapshot struct {
	Percent int    `json:"percent"`
	Phase   string `json:"phase"`
	Running bool   `json:"generating"`
}

// Estimator is a time-driven synthetic percentage. The zero value is not usable; use New.
type Estimator struct {
	mu            sync.Mutex
	percent       int
	phase         int
	phases        []string
	running       bool
	run           uint64
	interval      time.Duration
	phaseInterval time.Duration
	stop          chan struct{}
}

// New creates an idle estimator cycling through phases.
func New(phases []string, interval, phaseInterval time.Duration) *Estimator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if phaseInterval <= 0 {
		phaseInterval = DefaultPhaseInterval
	}
	return &Estimator{phases: phases, interval: interval, phaseInterval: phaseInterval}
}

// Start resets the value to 0 and starts the timers. Starting a running
// estimator restarts it. The returned run id identifies this run for
// CompleteRun and StopRun.
func (e *Estimator) Start() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.run++
	e.percent = 0
	e.phase = 0
	e.running = true
	e.stop = make(chan struct{})
	go e.loop(e.stop)
	return e.run
}

func (e *Estimator) loop(stop <-chan struct{}) {
	tick := time.NewTicker(e.interval)
	defer tick.Stop()
	phaseTick := time.NewTicker(e.phaseInterval)
	defer phaseTick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			e.Advance()
		case <-phaseTick.C:
			e.NextPhase()
		}
	}
}

// Advance applies one Step. It does nothing when the estimator is not running.
func (e *Estimator) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.percent = Step(e.percent)
	}
}

// NextPhase moves to the next phase, wrapping around after the last one.
func (e *Estimator) NextPhase() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && len(e.phases) > 0 {
		e.phase = (e.phase + 1) % len(e.phases)
	}
}

// Complete forces 100 and stops the timers.
func (e *Estimator) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.percent = Done
}

// Stop halts the timers without completing, e.g. after a failed call.
func (e *Estimator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// CompleteRun is Complete for the given run only. It reports false, leaving the
// estimator untouched, once a newer run has started.
func (e *Estimator) CompleteRun(run uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if run != e.run {
		return false
	}
	e.stopLocked()
	e.percent = Done
	return true
}

// StopRun is Stop for the given run only.
func (e *Estimator) StopRun(run uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if run != e.run {
		return false
	}
	e.stopLocked()
	return true
}

func (e *Estimator) stopLocked() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.running = false
}

// Snapshot returns the current value and phase.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{Percent: e.percent, Running: e.running}
	if len(e.phases) > 0 {
		s.Phase = e.phases[e.phase]
	}
	return s
}
