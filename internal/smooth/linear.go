// Package smooth provides parameter smoothing for automation values.
package smooth

import "math"

// Linear ramps from its current value to a target over a fixed number of
// samples. The ramp is restarted only when the target actually changes, so
// hosts that resend the same value every block do not stretch the ramp.
//
// The zero value has no ramp: targets are applied immediately until Reset
// configures a ramp length.
type Linear struct {
	current   float64
	target    float64
	step      float64
	countdown int
	steps     int
}

// Reset configures the ramp length from a sample rate and ramp time in
// seconds and snaps the current value to the target.
func (l *Linear) Reset(sampleRate, seconds float64) {
	l.steps = int(math.Floor(sampleRate * seconds))
	l.SetCurrentAndTarget(l.target)
}

// SetCurrentAndTarget jumps to v without ramping.
func (l *Linear) SetCurrentAndTarget(v float64) {
	l.current = v
	l.target = v
	l.countdown = 0
}

// SetTarget starts a ramp toward v.
func (l *Linear) SetTarget(v float64) {
	if v == l.target {
		return
	}

	if l.steps <= 0 {
		l.SetCurrentAndTarget(v)
		return
	}

	l.target = v
	l.countdown = l.steps
	l.step = (l.target - l.current) / float64(l.countdown)
}

// Next advances one sample and returns the new value.
func (l *Linear) Next() float64 {
	if l.countdown <= 0 {
		return l.target
	}

	l.countdown--
	if l.countdown > 0 {
		l.current += l.step
	} else {
		l.current = l.target
	}
	return l.current
}

// Skip advances n samples at once and returns the resulting value.
func (l *Linear) Skip(n int) float64 {
	if n <= 0 {
		return l.current
	}
	if n >= l.countdown {
		l.SetCurrentAndTarget(l.target)
		return l.target
	}

	l.current += l.step * float64(n)
	l.countdown -= n
	return l.current
}

// Current returns the present smoothed value.
func (l *Linear) Current() float64 { return l.current }

// Target returns the value being ramped toward.
func (l *Linear) Target() float64 { return l.target }

// IsSmoothing reports whether a ramp is in progress.
func (l *Linear) IsSmoothing() bool { return l.countdown > 0 }

// Steps returns the configured ramp length in samples.
func (l *Linear) Steps() int { return l.steps }
