package transit

import (
	"sync"
	"time"
)

// Detector turns a polled progress value into a one-shot arrival signal.
// Each leg is identified by a caller-chosen key plus its start time, so a
// leg that stays at 100% across polls fires once, while a new leg under the
// same key (a different start) is tracked afresh.
type Detector struct {
	mu       sync.Mutex
	notified map[string]time.Time
}

// NewDetector returns an empty Detector.
func NewDetector() *Detector {
	return &Detector{notified: make(map[string]time.Time)}
}

// Observe evaluates leg at now. arrived is true only on the first
// observation at which the leg is complete.
func (d *Detector) Observe(key string, leg Leg, now time.Time) (progress float64, arrived bool) {
	progress = leg.Progress(now)
	if progress < 1 {
		return progress, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if start, ok := d.notified[key]; ok && start.Equal(leg.Start) {
		return progress, false
	}
	d.notified[key] = leg.Start
	return progress, true
}

// Notified reports whether the leg under key has already fired.
func (d *Detector) Notified(key string, start time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.notified[key]
	return ok && s.Equal(start)
}

// Forget drops the state held for key.
func (d *Detector) Forget(key string) {
	d.mu.Lock()
	delete(d.notified, key)
	d.mu.Unlock()
}

// Animation is the display-only fallback used when a leg has no start time:
// it advances a fixed step per tick and never signals arrival.
type Animation struct {
	step    float64
	percent float64
}

// NewAnimation returns an Animation advancing step percent per tick.
func NewAnimation(step float64) *Animation {
	if step <= 0 {
		step = 1
	}
	return &Animation{step: step}
}

// Tick advances the animation and returns the new percentage (0-100).
func (a *Animation) Tick() float64 {
	a.percent += a.step
	if a.percent > 100 {
		a.percent = 100
	}
	return a.percent
}

// Percent returns the current percentage without advancing.
func (a *Animation) Percent() float64 {
	return a.percent
}
