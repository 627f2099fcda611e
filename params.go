package binaural

import (
	"fmt"
	"strings"

	"github.com/tphakala/go-binaural/internal/geometry"
)

// ParamID identifies an automatable control.
type ParamID int

// Controls.
const (
	// ParamAzimuth is the source azimuth in degrees, [0, 360].
	ParamAzimuth ParamID = iota

	// ParamElevation is the source elevation in degrees, [-90, 90].
	ParamElevation

	// ParamWidth spreads the two ears' virtual sources apart, in percent
	// [0, 100]. At 100 each ear is rotated 90 degrees away from the source.
	ParamWidth

	numParams
)

var paramNames = [numParams]string{"azimuth", "elevation", "width"}

// String returns the parameter name.
func (id ParamID) String() string {
	if id < 0 || id >= numParams {
		return fmt.Sprintf("ParamID(%d)", int(id))
	}
	return paramNames[id]
}

// Range returns the valid range and the default value.
func (id ParamID) Range() (minVal, maxVal, def float64) {
	switch id {
	case ParamAzimuth:
		return 0, geometry.FullCircle, 0
	case ParamElevation:
		return geometry.MinElevation, geometry.MaxElevation, 0
	case ParamWidth:
		return 0, geometry.MaxWidth, 0
	default:
		return 0, 0, 0
	}
}

// Clamp limits v to the parameter's range.
func (id ParamID) Clamp(v float64) float64 {
	lo, hi, _ := id.Range()
	return geometry.Clamp(v, lo, hi)
}

// ParseParamID looks a parameter up by name, ignoring case.
func ParseParamID(name string) (ParamID, error) {
	for i, n := range paramNames {
		if strings.EqualFold(n, name) {
			return ParamID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
}
