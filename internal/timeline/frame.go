package timeline

import (
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/transition"
)

// Frame describes everything a rasterizer needs to draw one output frame.
// Layers that do not apply to the play-head are nil.
type Frame struct {
	PlayHead   int              `json:"playHead"`
	SceneIndex int              `json:"sceneIndex"` // -1 outside the timeline
	LocalFrame int              `json:"localFrame"`
	Base       *BaseLayer       `json:"base,omitempty"`
	Transition *TransitionLayer `json:"transition,omitempty"`
	Subtitle   *SubtitleLayer   `json:"subtitle,omitempty"`
	Audio      *AudioTrack      `json:"audio,omitempty"`
}

// Active reports whether the play-head fell inside the timeline.
func (f Frame) Active() bool { return f.SceneIndex >= 0 }

// SubtitleVisible reports whether a caption is on screen.
func (f Frame) SubtitleVisible() bool { return f.Subtitle != nil && f.Subtitle.Visible }

// BaseLayer is the Ken Burns image layer of the active scene.
type BaseLayer struct {
	ImagePath string            `json:"imagePath"`
	Effect    effects.Effect    `json:"effect"`
	Progress  float64           `json:"progress"` // eased
	Transform effects.Transform `json:"transform"`
	Opacity   float64           `json:"opacity"`
}

// TransitionLayer wraps the base layer while a scene enters.
type TransitionLayer struct {
	Type      transition.Type      `json:"type"`
	Direction transition.Direction `json:"direction"`
	Progress  float64              `json:"progress"` // linear
	Overlay   transition.Overlay   `json:"overlay"`
}

// SubtitleLayer is the caption of the active scene.
type SubtitleLayer struct {
	Text          string  `json:"text"`
	Highlighted   bool    `json:"highlighted"`
	Visible       bool    `json:"visible"`
	RelativeFrame int     `json:"relativeFrame"`
	Opacity       float64 `json:"opacity"`
	TranslateY    float64 `json:"translateY"` // px
	Scale         float64 `json:"scale"`
}

// AudioTrack is the soundtrack attachment. It always spans the whole
// timeline.
type AudioTrack struct {
	Path           string `json:"path"`
	StartFrame     int    `json:"startFrame"`
	DurationFrames int    `json:"durationFrames"`
}
