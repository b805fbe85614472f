// Package transition resolves the overlay that wraps a scene while it enters.
package transition

import (
	"strings"

	"github.com/ivlev/scene2video/internal/easing"
)

// Type selects the overlay animation.
type Type string

const (
	Fade  Type = "fade"
	Slide Type = "slide"
	Zoom  Type = "zoom"
)

// Direction tells whether the wrapped scene is entering or leaving.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// EntrySeconds is the length of the entry window of every scene but the first.
const EntrySeconds = 0.5

// Overlay is the transform applied on top of the Ken Burns layer.
type Overlay struct {
	Opacity           float64 `json:"opacity"`
	TranslateXPercent float64 `json:"translateXPercent"`
	Scale             float64 `json:"scale"`
}

// None leaves the wrapped layer untouched.
var None = Overlay{Opacity: 1, Scale: 1}

// Parse normalises a transition identifier.
func Parse(s string) Type {
	return Type(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether t is a supported transition.
func (t Type) Known() bool {
	return t == Fade || t == Slide || t == Zoom
}

// Frames returns the entry window length for fps: round(0.5 * fps).
func Frames(fps int) int {
	return easing.RoundFrames(EntrySeconds, fps)
}

// Progress is the raw linear progress of a transition after localFrame
// frames, clamped to [0,1].
func Progress(localFrame, durationFrames int) float64 {
	if durationFrames <= 0 {
		return 1
	}
	return easing.Clamp01(float64(localFrame) / float64(durationFrames))
}

// Resolve computes the overlay for type t at linear progress p.
// Unknown types resolve to None.
func Resolve(t Type, dir Direction, p float64) Overlay {
	p = easing.Clamp01(p)
	unit := [2]float64{0, 1}
	out := dir == Out

	switch t {
	case Fade:
		o := None
		o.Opacity = p
		if out {
			o.Opacity = 1 - p
		}
		return o
	case Slide:
		o := None
		if out {
			o.TranslateXPercent = easing.ClampedLerp(p, unit, [2]float64{0, 100})
		} else {
			o.TranslateXPercent = easing.ClampedLerp(p, unit, [2]float64{-100, 0})
		}
		return o
	case Zoom:
		if out {
			return Overlay{Opacity: 1 - p, Scale: easing.ClampedLerp(p, unit, [2]float64{1, 1.2})}
		}
		return Overlay{Opacity: p, Scale: easing.ClampedLerp(p, unit, [2]float64{0.8, 1})}
	default:
		return None
	}
}
