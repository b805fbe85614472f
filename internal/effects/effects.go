// Package effects resolves Ken Burns camera moves for a single scene.
package effects

import (
	"strings"

	"github.com/ivlev/scene2video/internal/easing"
)

// Effect identifies a Ken Burns camera move.
type Effect string

const (
	ZoomIn   Effect = "zoom_in"
	ZoomOut  Effect = "zoom_out"
	PanLeft  Effect = "pan_left"
	PanRight Effect = "pan_right"
	PanUp    Effect = "pan_up"
	PanDown  Effect = "pan_down"
	Static   Effect = "static"
)

// All lists the supported effects in a stable order.
var All = []Effect{ZoomIn, ZoomOut, PanLeft, PanRight, PanUp, PanDown, Static}

const (
	zoomScale = 1.3
	panScale  = 1.2
	panOffset = 10.0 // percent of the frame
)

// Transform is the scale and translation applied to the scene image.
// Translations are percentages of the frame size.
type Transform struct {
	Scale             float64 `json:"scale"`
	TranslateXPercent float64 `json:"translateXPercent"`
	TranslateYPercent float64 `json:"translateYPercent"`
}

// Identity is the transform of the static effect.
var Identity = Transform{Scale: 1}

// Parse normalises an identifier. Unknown values are returned as-is and
// reported by Known.
func Parse(s string) Effect {
	return Effect(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether e is one of the supported effects.
func (e Effect) Known() bool {
	for _, k := range All {
		if e == k {
			return true
		}
	}
	return false
}

// Resolve computes the transform of effect e at eased scene progress in [0,1].
// Unknown effects fall back to the static transform.
func Resolve(e Effect, progress float64) Transform {
	unit := [2]float64{0, 1}

	switch e {
	case ZoomIn:
		return Transform{Scale: easing.ClampedLerp(progress, unit, [2]float64{1, zoomScale})}
	case ZoomOut:
		return Transform{Scale: easing.ClampedLerp(progress, unit, [2]float64{zoomScale, 1})}
	case PanLeft:
		return Transform{
			Scale:             panScale,
			TranslateXPercent: easing.ClampedLerp(progress, unit, [2]float64{panOffset, -panOffset}),
		}
	case PanRight:
		return Transform{
			Scale:             panScale,
			TranslateXPercent: easing.ClampedLerp(progress, unit, [2]float64{-panOffset, panOffset}),
		}
	case PanUp:
		return Transform{
			Scale:             panScale,
			TranslateYPercent: easing.ClampedLerp(progress, unit, [2]float64{panOffset, -panOffset}),
		}
	case PanDown:
		return Transform{
			Scale:             panScale,
			TranslateYPercent: easing.ClampedLerp(progress, unit, [2]float64{-panOffset, panOffset}),
		}
	default:
		return Identity
	}
}
