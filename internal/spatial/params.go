// Package spatial renders a stereo input as a binaural source.
//
// Two render paths share one set of smoothed controls: the HRTF path
// (Renderer) convolves each ear with the nearest measured kernel, and the
// fallback path (Fallback) applies an equal-power panning law when no IR
// library is loaded.
package spatial

import "github.com/tphakala/go-binaural/internal/smooth"

// Params holds the smoothed azimuth, elevation and width controls.
type Params struct {
	Azimuth   smooth.Linear
	Elevation smooth.Linear
	Width     smooth.Linear
}

// Reset configures the ramp length of all three smoothers.
func (p *Params) Reset(sampleRate, seconds float64) {
	p.Azimuth.Reset(sampleRate, seconds)
	p.Elevation.Reset(sampleRate, seconds)
	p.Width.Reset(sampleRate, seconds)
}

// SetTargets starts ramps toward new control values.
func (p *Params) SetTargets(azimuth, elevation, width float64) {
	p.Azimuth.SetTarget(azimuth)
	p.Elevation.SetTarget(elevation)
	p.Width.SetTarget(width)
}

// Jump sets all controls without ramping.
func (p *Params) Jump(azimuth, elevation, width float64) {
	p.Azimuth.SetCurrentAndTarget(azimuth)
	p.Elevation.SetCurrentAndTarget(elevation)
	p.Width.SetCurrentAndTarget(width)
}

// advanceBlock reads one value per control for a block of n samples and
// advances every smoother by exactly n steps.
func (p *Params) advanceBlock(n int) (azimuth, elevation, width float64) {
	azimuth = p.Azimuth.Next()
	elevation = p.Elevation.Next()
	width = p.Width.Next()

	p.Azimuth.Skip(n - 1)
	p.Elevation.Skip(n - 1)
	p.Width.Skip(n - 1)
	return azimuth, elevation, width
}
