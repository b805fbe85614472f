package director

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/ivlev/scene2video/internal/easing"
)

// WordsPerSecond is the narration pace used to estimate scene length from
// its text.
const WordsPerSecond = 2.5

// variation bounds the relative change between neighbouring scenes.
const variation = 0.15

var ErrTimelineTooShort = errors.New("target duration cannot fit every scene")

// EstimateDuration is how long the narration of text takes at
// WordsPerSecond, never less than minimum.
func EstimateDuration(text string, minimum float64) float64 {
	words := len(strings.Fields(text))
	return max(float64(words)/WordsPerSecond, minimum)
}

// VaryDurations splits total seconds across n scenes. The first scene
// deviates from the mean by up to 15%, every following one by up to 15%
// from its predecessor, no scene drops below minimum, and the result is
// rescaled so it sums to total.
func VaryDurations(total float64, n int, minimum float64, rng *rand.Rand) []float64 {
	if n <= 0 {
		return nil
	}
	base := total / float64(n)

	durations := make([]float64, n)
	durations[0] = max(base*(1+jitter(rng)), minimum)
	for i := 1; i < n; i++ {
		durations[i] = max(durations[i-1]*(1+jitter(rng)), minimum)
	}

	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	scale := total / sum
	for i := range durations {
		durations[i] *= scale
	}
	return durations
}

func jitter(rng *rand.Rand) float64 {
	return rng.Float64()*2*variation - variation
}

// AlignFrames rescales durations to total seconds (a non-positive total
// keeps their sum) and snaps them to whole frames at fps. Scene boundaries
// are rounded cumulatively, so the aligned timeline has exactly
// round(total*fps) frames. Scenes that would end up shorter than minimum
// seconds borrow frames from the longest scene.
func AlignFrames(durations []float64, total float64, fps int, minimum float64) ([]float64, error) {
	if len(durations) == 0 {
		return nil, nil
	}
	sum := 0.0
	for _, d := range durations {
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("invalid scene duration %v", d)
		}
		sum += d
	}
	if total <= 0 {
		total = sum
	}

	totalFrames := easing.RoundFrames(total, fps)
	minFrames := max(easing.RoundFrames(minimum, fps), 1)
	if totalFrames < minFrames*len(durations) {
		return nil, fmt.Errorf("%w: %.2fs for %d scenes of at least %.2fs", ErrTimelineTooShort, total, len(durations), float64(minFrames)/float64(fps))
	}

	scale := float64(totalFrames) / sum
	frames := make([]int, len(durations))
	acc, prev := 0.0, 0
	for i, d := range durations {
		acc += d * scale
		edge := int(math.Round(acc))
		frames[i] = edge - prev
		prev = edge
	}
	frames[len(frames)-1] += totalFrames - prev

	for i := range frames {
		for frames[i] < minFrames {
			donor := longest(frames)
			take := min(minFrames-frames[i], frames[donor]-minFrames)
			frames[donor] -= take
			frames[i] += take
		}
	}

	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = float64(f) / float64(fps)
	}
	return out, nil
}

func longest(frames []int) int {
	best := 0
	for i, f := range frames {
		if f > frames[best] {
			best = i
		}
	}
	return best
}
