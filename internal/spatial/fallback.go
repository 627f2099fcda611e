package spatial

import (
	"math"

	"github.com/tphakala/go-binaural/internal/geometry"
)

// centreCompensation is the level applied at the centre of the pan law;
// it rises to 1 at hard left or right.
const centreCompensation = 0.596

// Gains holds the fallback 2x2 mix matrix. LL is input left to output
// left, RL is input right to output left, and so on.
type Gains struct {
	LL, LR float64
	RL, RR float64
}

// PanGains computes the fallback mix for an azimuth in degrees and a width
// in percent.
//
// The azimuth becomes a pan position pan = -sin(azimuth); the width
// spreads two virtual positions around it, each of which gets an
// equal-power gain pair. All four gains share a loudness compensation
// that depends only on |pan|.
func PanGains(azimuth, width float64) Gains {
	pan := -math.Sin(azimuth * math.Pi / geometry.HalfCircle)
	spread := width / geometry.MaxWidth

	posL := geometry.Clamp(pan-spread, -1, 1)
	posR := geometry.Clamp(pan+spread, -1, 1)

	ll, lr := equalPower(posL)
	rl, rr := equalPower(posR)

	comp := Compensation(pan)
	return Gains{
		LL: ll * comp, LR: lr * comp,
		RL: rl * comp, RR: rr * comp,
	}
}

// Compensation returns the loudness compensation for a pan position.
func Compensation(pan float64) float64 {
	curve := math.Cos(math.Abs(pan) * math.Pi / 2)
	return 1 - (1-centreCompensation)*curve
}

func equalPower(pos float64) (near, far float64) {
	angle := (pos + 1) / 2 * math.Pi / 2
	return math.Cos(angle), math.Sin(angle)
}

// Fallback is the panning render path used while no IR library is loaded.
// It has no state of its own; it only consumes the smoothed controls.
type Fallback struct{}

// Render processes one block sample by sample. Elevation is advanced but
// has no effect. inR may be the same slice as inL for mono input, and the
// outputs may alias the inputs.
func (Fallback) Render(outL, outR, inL, inR []float32, p *Params) {
	for i := range inL {
		azimuth := p.Azimuth.Next()
		width := p.Width.Next()
		p.Elevation.Next()

		g := PanGains(azimuth, width)
		l, r := float64(inL[i]), float64(inR[i])
		outL[i] = float32(l*g.LL + r*g.RL)
		outR[i] = float32(l*g.LR + r*g.RR)
	}
}
