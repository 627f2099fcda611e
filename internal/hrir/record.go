// Package hrir loads head-related impulse response libraries from disk and
// finds the measured direction closest to a requested one.
//
// A library root contains one sub-directory per sample-rate bucket. Each
// bucket holds WAV files whose names carry the measured direction:
//
//	root/48K_24bit/azi_30_ele_-15.wav
//	root/48K_24bit/azi_32.5_ele_0_subject3.wav
package hrir

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tphakala/go-binaural/internal/geometry"
)

// Filename markers delimiting the direction fields.
const (
	azimuthMarker    = "azi_"
	azimuthEndMarker = "_ele"
	elevationMarker  = "ele_"
)

// Record is one measured impulse response. Records are immutable once a
// library load has built them.
type Record struct {
	// Azimuth in degrees, wrapped to [0, 360).
	Azimuth float64

	// Elevation in degrees, clamped to [-90, 90].
	Elevation float64

	// SampleRate is the rate the IR was recorded at.
	SampleRate float64

	// Samples holds one slice per IR channel.
	Samples [][]float64

	// Path is the file the record was decoded from.
	Path string
}

// Channels returns the number of IR channels.
func (r *Record) Channels() int { return len(r.Samples) }

// Length returns the IR length in samples.
func (r *Record) Length() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// ParseDirection extracts azimuth and elevation from an IR file name.
// Missing markers or unparseable numbers yield 0 for that field.
func ParseDirection(name string) (azimuth, elevation float64) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	azimuth = geometry.Wrap360(leadingFloat(upTo(after(base, azimuthMarker), azimuthEndMarker)))
	elevation = geometry.ClampElevation(leadingFloat(after(base, elevationMarker)))
	return azimuth, elevation
}

// after returns the text following the first occurrence of marker, or ""
// if marker is absent.
func after(s, marker string) string {
	_, rest, ok := strings.Cut(s, marker)
	if !ok {
		return ""
	}
	return rest
}

// upTo returns the text preceding the first occurrence of marker, or all of
// s if marker is absent.
func upTo(s, marker string) string {
	before, _, _ := strings.Cut(s, marker)
	return before
}

// leadingFloat parses the longest numeric prefix of s. Text after the
// number is ignored; no number at all yields 0.
func leadingFloat(s string) float64 {
	s = strings.TrimLeft(s, " \t")

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}

	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}

	// Exponent only counts when at least one digit follows it.
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		if exp < len(s) && isDigit(s[exp]) {
			for exp < len(s) && isDigit(s[exp]) {
				exp++
			}
			end = exp
		}
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
