// Package easing holds the pure numeric curves used by the compositor.
// Nothing here keeps state; every function can be evaluated at any frame.
package easing

import "math"

// SpringConfig describes a damped harmonic oscillator.
type SpringConfig struct {
	Damping   float64
	Stiffness float64
	Mass      float64 // 0 means 1
}

// Lerp performs linear interpolation between a and b.
// The (1-t)*a + t*b form is exact at t == 0 and t == 1.
func Lerp(a, b, t float64) float64 {
	return (1-t)*a + t*b
}

// Clamp01 limits t to [0,1].
func Clamp01(t float64) float64 {
	return clamp(t, 0, 1)
}

// ClampedLerp maps progress from the ascending range in onto out,
// clamping progress to in first so the result never leaves out.
func ClampedLerp(progress float64, in, out [2]float64) float64 {
	lo, hi := in[0], in[1]
	if hi <= lo {
		if progress >= hi {
			return out[1]
		}
		return out[0]
	}
	t := (clamp(progress, lo, hi) - lo) / (hi - lo)
	return Lerp(out[0], out[1], t)
}

// CubicEaseInOut applies the standard cubic ease-in-out curve.
func CubicEaseInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// Spring returns the position of a spring released from rest at 0 towards a
// target of 1, sampled at frame/fps seconds. The solution is closed-form, so
// frames can be queried in any order. Negative frames evaluate as frame 0.
func Spring(frame, fps int, cfg SpringConfig) float64 {
	if frame <= 0 || fps <= 0 {
		return 0
	}
	if cfg.Stiffness <= 0 {
		// no restoring force to animate with: snap to the target
		return 1
	}

	mass := cfg.Mass
	if mass <= 0 {
		mass = 1
	}
	damping := math.Max(cfg.Damping, 0)

	t := float64(frame) / float64(fps)
	w0 := math.Sqrt(cfg.Stiffness / mass)
	zeta := damping / (2 * math.Sqrt(cfg.Stiffness*mass))

	// x is the displacement from the target: x(0) = -1, x'(0) = 0.
	var x float64
	switch {
	case zeta < 1:
		wd := w0 * math.Sqrt(1-zeta*zeta)
		envelope := math.Exp(-zeta * w0 * t)
		x = -envelope * (math.Cos(wd*t) + zeta*w0/wd*math.Sin(wd*t))
	case zeta == 1:
		x = -math.Exp(-w0*t) * (1 + w0*t)
	default:
		root := math.Sqrt(zeta*zeta - 1)
		// r1*r2 == w0², this keeps the slow root accurate for large zeta
		r2 := -w0 * (zeta + root)
		r1 := w0 * w0 / r2
		a := r2 / (r1 - r2)
		b := -r1 / (r1 - r2)
		x = a*math.Exp(r1*t) + b*math.Exp(r2*t)
	}
	return 1 + x
}

// RoundFrames converts seconds to a whole number of frames. Halves round
// towards positive infinity, so -0.5 frames is frame 0.
func RoundFrames(seconds float64, fps int) int {
	return int(math.Floor(seconds*float64(fps) + 0.5))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
