// Package geometry holds the angle arithmetic shared by the HRIR matcher and
// the spatial renderer.
//
// All angles are in degrees. Azimuth is measured on a circle, so distances
// and offsets wrap at 360; elevation is a bounded linear axis.
package geometry

import "math"

// Angle limits.
const (
	FullCircle   = 360.0
	HalfCircle   = 180.0
	MinElevation = -90.0
	MaxElevation = 90.0

	// MaxWidth is the upper end of the width control (percent).
	MaxWidth = 100.0

	// maxWidthOffset is the per-ear azimuth offset at full width.
	maxWidthOffset = 90.0
)

// Wrap360 maps any finite angle into [0, 360).
func Wrap360(a float64) float64 {
	a = math.Mod(a, FullCircle)
	if a < 0 {
		a += FullCircle
	}
	// math.Mod of a tiny negative value plus 360 can round up to exactly 360.
	if a >= FullCircle {
		a = 0
	}
	return a
}

// CircularDistance returns the shortest angular distance between two
// azimuths in [0, 360). The result lies in [0, 180].
func CircularDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	return math.Min(d, FullCircle-d)
}

// ClampElevation limits an elevation to [-90, 90].
func ClampElevation(e float64) float64 {
	return Clamp(e, MinElevation, MaxElevation)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WidthOffset converts a width percentage into the per-ear azimuth offset.
func WidthOffset(width float64) float64 {
	return (width / MaxWidth) * maxWidthOffset
}

// EarAzimuths derives the virtual source azimuth for each ear. The left ear
// is rotated by +offset and the right ear by -offset, both wrapped.
func EarAzimuths(azimuth, width float64) (left, right float64) {
	offset := WidthOffset(width)
	return Wrap360(azimuth + offset), Wrap360(azimuth - offset)
}
