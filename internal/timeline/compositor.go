package timeline

import (
	"math"
	"sort"

	"github.com/ivlev/scene2video/internal/easing"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/transition"
)

// Animation curves. They are deliberately different: the camera uses a soft
// spring followed by cubic easing, subtitles a stiffer spring, and the entry
// transition plain linear progress.
var (
	KenBurnsSpring = easing.SpringConfig{Damping: 100, Stiffness: 200, Mass: 0.5}
	SubtitleSpring = easing.SpringConfig{Damping: 200, Stiffness: 300, Mass: 1}
)

const (
	subtitleRiseOffset = 30.0 // px
	subtitleStartScale = 0.8
	pulseAmplitude     = 0.1
)

// Window is the half-open frame range [Start, Start+Frames) of one scene.
type Window struct {
	Start  int `json:"start"`
	Frames int `json:"frames"`
}

// End returns the first frame after the window.
func (w Window) End() int { return w.Start + w.Frames }

// Contains reports whether frame lies inside the window.
func (w Window) Contains(frame int) bool { return frame >= w.Start && frame < w.End() }

type subtitleWindow struct {
	start  int // relative to the scene start
	frames int
}

// Compositor maps play-heads to frames. It is immutable after New and safe
// for concurrent use.
type Compositor struct {
	cfg              VideoConfig
	windows          []Window
	subtitles        []subtitleWindow
	total            int
	transitionFrames int
	transitionType   transition.Type
}

// New validates cfg and precomputes the scene windows.
func New(cfg VideoConfig) (*Compositor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	c := &Compositor{
		cfg:              cfg,
		windows:          make([]Window, len(cfg.Scenes)),
		subtitles:        make([]subtitleWindow, len(cfg.Scenes)),
		transitionFrames: transition.Frames(cfg.FPS),
		transitionType:   cfg.Transition,
	}
	if c.transitionType == "" {
		c.transitionType = transition.Fade
	}

	start := 0
	for i, s := range cfg.Scenes {
		n := easing.RoundFrames(s.Duration, cfg.FPS)
		c.windows[i] = Window{Start: start, Frames: n}
		start += n

		if s.Subtitle != nil {
			c.subtitles[i] = subtitleWindow{
				start:  easing.RoundFrames(s.Subtitle.StartTime, cfg.FPS),
				frames: easing.RoundFrames(s.Subtitle.EndTime-s.Subtitle.StartTime, cfg.FPS),
			}
		}
	}
	c.total = start

	return c, nil
}

// TotalFrames is the number of frames the renderer should emit.
func (c *Compositor) TotalFrames() int { return c.total }

// FPS returns the frame rate of the timeline.
func (c *Compositor) FPS() int { return c.cfg.FPS }

// Size returns the output raster dimensions.
func (c *Compositor) Size() (width, height int) { return c.cfg.Width, c.cfg.Height }

// AudioPath returns the soundtrack attached to the whole timeline, if any.
func (c *Compositor) AudioPath() string { return c.cfg.AudioPath }

// TransitionFrames is the length of every non-first scene's entry window.
func (c *Compositor) TransitionFrames() int { return c.transitionFrames }

// Scenes returns a copy of the scene list.
func (c *Compositor) Scenes() []Scene {
	return c.cfg.clone().Scenes
}

// Windows returns a copy of the per-scene frame windows.
func (c *Compositor) Windows() []Window {
	out := make([]Window, len(c.windows))
	copy(out, c.windows)
	return out
}

// SceneAt returns the index of the scene that owns playHead.
func (c *Compositor) SceneAt(playHead int) (int, bool) {
	if playHead < 0 || playHead >= c.total {
		return -1, false
	}
	i := sort.Search(len(c.windows), func(i int) bool {
		return c.windows[i].End() > playHead
	})
	return i, i < len(c.windows)
}

// Frame resolves the play-head into a frame descriptor.
func (c *Compositor) Frame(playHead int) Frame {
	f := Frame{PlayHead: playHead, SceneIndex: -1}

	if c.cfg.AudioPath != "" {
		f.Audio = &AudioTrack{Path: c.cfg.AudioPath, StartFrame: 0, DurationFrames: c.total}
	}

	idx, ok := c.SceneAt(playHead)
	if !ok {
		return f
	}
	scene := c.cfg.Scenes[idx]
	local := playHead - c.windows[idx].Start

	f.SceneIndex = idx
	f.LocalFrame = local
	f.Base = c.baseLayer(scene, local)

	if idx > 0 && local < c.transitionFrames {
		f.Transition = c.transitionLayer(local)
	}
	if scene.Subtitle != nil {
		f.Subtitle = c.subtitleLayer(*scene.Subtitle, c.subtitles[idx], local)
	}
	return f
}

func (c *Compositor) baseLayer(scene Scene, local int) *BaseLayer {
	progress := easing.CubicEaseInOut(easing.Spring(local, c.cfg.FPS, KenBurnsSpring))
	return &BaseLayer{
		ImagePath: scene.ImagePath,
		Effect:    scene.Effect,
		Progress:  progress,
		Transform: effects.Resolve(scene.Effect, progress),
		Opacity:   1,
	}
}

func (c *Compositor) transitionLayer(local int) *TransitionLayer {
	p := transition.Progress(local, c.transitionFrames)
	return &TransitionLayer{
		Type:      c.transitionType,
		Direction: transition.In,
		Progress:  p,
		Overlay:   transition.Resolve(c.transitionType, transition.In, p),
	}
}

func (c *Compositor) subtitleLayer(sub Subtitle, w subtitleWindow, local int) *SubtitleLayer {
	rel := local - w.start
	if rel < 0 || rel >= w.frames {
		return nil
	}

	unit := [2]float64{0, 1}
	entrance := easing.Spring(rel, c.cfg.FPS, SubtitleSpring)
	scale := easing.ClampedLerp(entrance, unit, [2]float64{subtitleStartScale, 1})
	if sub.Highlighted {
		scale *= pulse(rel, c.cfg.FPS)
	}

	return &SubtitleLayer{
		Text:          sub.Text,
		Highlighted:   sub.Highlighted,
		Visible:       true,
		RelativeFrame: rel,
		Opacity:       easing.ClampedLerp(entrance, unit, [2]float64{0, 1}),
		TranslateY:    easing.ClampedLerp(entrance, unit, [2]float64{subtitleRiseOffset, 0}),
		Scale:         scale,
	}
}

// pulse oscillates around 1 with a one second period.
func pulse(rel, fps int) float64 {
	return math.Sin(float64(rel)/float64(fps)*2*math.Pi)*pulseAmplitude + 1
}
