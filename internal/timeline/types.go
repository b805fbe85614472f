// Package timeline resolves a global play-head into a fully described frame.
//
// A VideoConfig is built once per render job and never mutated. Compositor
// precomputes the scene windows from it and answers Frame queries as a pure
// function of the play-head, so frames can be evaluated in any order and
// from any number of goroutines.
package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/ivlev/scene2video/internal/easing"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/transition"
)

var (
	ErrNoScenes          = errors.New("video has no scenes")
	ErrInvalidFPS        = errors.New("fps must be positive")
	ErrInvalidDimensions = errors.New("width and height must be positive")
	ErrInvalidDuration   = errors.New("scene duration must be positive")
	ErrSceneTooShort     = errors.New("scene is shorter than one frame")
	ErrInvalidSubtitle   = errors.New("subtitle must end after it starts")
	ErrTimelineTooLong   = errors.New("timeline exceeds the frame limit")
)

// MaxFrames bounds the frame count of a timeline so window arithmetic never
// overflows.
const MaxFrames = math.MaxInt32

// Subtitle is a caption shown inside a scene. Times are seconds relative to
// the start of the owning scene.
type Subtitle struct {
	Text        string  `json:"text" yaml:"text"`
	StartTime   float64 `json:"startTime" yaml:"startTime"`
	EndTime     float64 `json:"endTime" yaml:"endTime"`
	Highlighted bool    `json:"highlighted,omitempty" yaml:"highlighted,omitempty"`
}

// Scene is one visual segment of the video.
type Scene struct {
	ImagePath string         `json:"imagePath" yaml:"imagePath"`
	Duration  float64        `json:"duration" yaml:"duration"` // seconds
	Effect    effects.Effect `json:"effect" yaml:"effect"`
	Subtitle  *Subtitle      `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
}

// VideoConfig is the root input of the compositor. Scene order is playback
// order.
type VideoConfig struct {
	Scenes     []Scene         `json:"scenes" yaml:"scenes"`
	AudioPath  string          `json:"audioPath,omitempty" yaml:"audioPath,omitempty"`
	FPS        int             `json:"fps" yaml:"fps"`
	Width      int             `json:"width" yaml:"width"`
	Height     int             `json:"height" yaml:"height"`
	Transition transition.Type `json:"transition,omitempty" yaml:"transition,omitempty"`
}

// Normalize trims and lower cases the effect and transition identifiers.
// Every decoder of external input calls it before Validate.
func (c *VideoConfig) Normalize() {
	for i := range c.Scenes {
		c.Scenes[i].Effect = effects.Parse(string(c.Scenes[i].Effect))
	}
	c.Transition = transition.Parse(string(c.Transition))
}

// Validate rejects configs that would corrupt frame placement. All scene
// problems are reported together.
func (c *VideoConfig) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFPS, c.FPS)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, c.Width, c.Height)
	}
	if len(c.Scenes) == 0 {
		return ErrNoScenes
	}

	var errs []error
	total := 0
	for i, s := range c.Scenes {
		if err := s.validate(c.FPS); err != nil {
			errs = append(errs, fmt.Errorf("scene %d: %w", i, err))
			continue
		}
		total += easing.RoundFrames(s.Duration, c.FPS)
	}
	if len(errs) == 0 && total > MaxFrames {
		return fmt.Errorf("%w: %d frames", ErrTimelineTooLong, total)
	}
	return errors.Join(errs...)
}

func (s *Scene) validate(fps int) error {
	if math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) || s.Duration <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidDuration, s.Duration)
	}
	if !representable(s.Duration, fps) {
		return fmt.Errorf("%w: %gs at %d fps", ErrTimelineTooLong, s.Duration, fps)
	}
	if easing.RoundFrames(s.Duration, fps) == 0 {
		return fmt.Errorf("%w: %.4fs at %d fps", ErrSceneTooShort, s.Duration, fps)
	}
	if sub := s.Subtitle; sub != nil {
		if !representable(sub.StartTime, fps) || !representable(sub.EndTime, fps) || sub.EndTime <= sub.StartTime {
			return fmt.Errorf("%w: %g..%g", ErrInvalidSubtitle, sub.StartTime, sub.EndTime)
		}
	}
	return nil
}

// representable reports whether seconds is finite and within MaxFrames
// frames of zero at fps.
func representable(seconds float64, fps int) bool {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return false
	}
	return math.Abs(seconds*float64(fps)) <= MaxFrames
}

// Warnings lists cosmetic problems that do not stop a render: unknown effect
// and transition identifiers, which fall back to static / no-op.
func (c *VideoConfig) Warnings() []string {
	var out []string
	for i, s := range c.Scenes {
		if !s.Effect.Known() {
			out = append(out, fmt.Sprintf("scene %d: unknown effect %q, rendering as %s", i, s.Effect, effects.Static))
		}
	}
	if c.Transition != "" && !c.Transition.Known() {
		out = append(out, fmt.Sprintf("unknown transition %q, scenes will cut without overlay", c.Transition))
	}
	return out
}

// TotalDuration is the sum of the frame-aligned scene durations in seconds.
func (c *VideoConfig) TotalDuration() float64 {
	if c.FPS <= 0 {
		return 0
	}
	frames := 0
	for _, s := range c.Scenes {
		frames += easing.RoundFrames(s.Duration, c.FPS)
	}
	return float64(frames) / float64(c.FPS)
}

// clone returns a deep copy so the compositor never aliases caller memory.
func (c VideoConfig) clone() VideoConfig {
	out := c
	out.Scenes = make([]Scene, len(c.Scenes))
	for i, s := range c.Scenes {
		if s.Subtitle != nil {
			sub := *s.Subtitle
			s.Subtitle = &sub
		}
		out.Scenes[i] = s
	}
	return out
}
