package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"

	binaural "github.com/tphakala/go-binaural"
)

// Automation is a render script: a starting position and library plus
// keyframes that move the source over time.
//
//	library: /data/irs/kemar
//	azimuth: 0
//	keyframes:
//	  - time: 2.0
//	    azimuth: 90
//	  - time: 4.0
//	    azimuth: 180
//	    width: 50
type Automation struct {
	Library   string     `yaml:"library"`
	Azimuth   *float64   `yaml:"azimuth"`
	Elevation *float64   `yaml:"elevation"`
	Width     *float64   `yaml:"width"`
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Keyframe sets control targets at a point in time. Unset fields keep
// their previous targets; the processor's smoothing ramps between them.
type Keyframe struct {
	Time      float64  `yaml:"time"` // seconds from the start of the input
	Azimuth   *float64 `yaml:"azimuth"`
	Elevation *float64 `yaml:"elevation"`
	Width     *float64 `yaml:"width"`
}

var errInvalidAutomation = errors.New("invalid automation")

// loadAutomation reads and validates an automation file.
func loadAutomation(path string) (*Automation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read automation: %w", err)
	}
	return parseAutomation(data)
}

func parseAutomation(data []byte) (*Automation, error) {
	var a Automation
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidAutomation, err)
	}
	for i, kf := range a.Keyframes {
		if kf.Time < 0 {
			return nil, fmt.Errorf("%w: keyframe %d has negative time %g", errInvalidAutomation, i, kf.Time)
		}
	}
	slices.SortStableFunc(a.Keyframes, func(x, y Keyframe) int {
		switch {
		case x.Time < y.Time:
			return -1
		case x.Time > y.Time:
			return 1
		default:
			return 0
		}
	})
	return &a, nil
}

// paramSetter is the part of the processor automation drives.
type paramSetter interface {
	SetParameter(id binaural.ParamID, v float64)
}

func setIfPresent(p paramSetter, id binaural.ParamID, v *float64) {
	if v != nil {
		p.SetParameter(id, *v)
	}
}

// applyInitial sets the automation's starting position.
func (a *Automation) applyInitial(p paramSetter) {
	setIfPresent(p, binaural.ParamAzimuth, a.Azimuth)
	setIfPresent(p, binaural.ParamElevation, a.Elevation)
	setIfPresent(p, binaural.ParamWidth, a.Width)
}

// automationCursor walks the keyframes of an automation as time advances.
type automationCursor struct {
	keyframes []Keyframe
	next      int
}

func newAutomationCursor(a *Automation) *automationCursor {
	if a == nil {
		return &automationCursor{}
	}
	return &automationCursor{keyframes: a.Keyframes}
}

// advance applies every keyframe due at or before t seconds and returns
// how many were applied.
func (c *automationCursor) advance(p paramSetter, t float64) int {
	applied := 0
	for c.next < len(c.keyframes) && c.keyframes[c.next].Time <= t {
		kf := c.keyframes[c.next]
		setIfPresent(p, binaural.ParamAzimuth, kf.Azimuth)
		setIfPresent(p, binaural.ParamElevation, kf.Elevation)
		setIfPresent(p, binaural.ParamWidth, kf.Width)
		c.next++
		applied++
	}
	return applied
}
