// Package director plans a video from a narration script: it classifies
// every segment, picks a Ken Burns effect for it and fits the scene
// durations to the narration.
package director

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/transition"
)

type rule struct {
	effect effects.Effect
	weight float64
}

// effectRules weights the effects suitable for each scene type.
var effectRules = map[SceneType][]rule{
	Hook:         {{effects.ZoomIn, 0.8}, {effects.PanRight, 0.2}},
	Introduction: {{effects.ZoomOut, 0.4}, {effects.PanLeft, 0.3}, {effects.Static, 0.3}},
	MainPoint:    {{effects.ZoomIn, 0.7}, {effects.Static, 0.3}},
	Example:      {{effects.PanRight, 0.35}, {effects.PanLeft, 0.35}, {effects.ZoomOut, 0.3}},
	Transition:   {{effects.PanLeft, 0.4}, {effects.PanRight, 0.4}, {effects.ZoomOut, 0.2}},
	Emphasis:     {{effects.ZoomIn, 0.9}, {effects.Static, 0.1}},
	CTA:          {{effects.ZoomIn, 0.7}, {effects.Static, 0.3}},
	Conclusion:   {{effects.ZoomOut, 0.5}, {effects.Static, 0.3}, {effects.PanUp, 0.2}},
	Regular: {
		{effects.PanRight, 0.25}, {effects.PanLeft, 0.25}, {effects.ZoomIn, 0.2},
		{effects.ZoomOut, 0.15}, {effects.Static, 0.15},
	},
}

// AudioProbe reports the length of an audio file in seconds.
type AudioProbe func(ctx context.Context, path string) (float64, error)

// Stats counts what the director produced since the last reset.
type Stats struct {
	TotalScenes int                    `json:"totalScenes"`
	Effects     map[effects.Effect]int `json:"effectsDistribution"`
	SceneTypes  map[SceneType]int      `json:"sceneTypesDistribution"`
}

// Director turns scripts into VideoConfigs. A Director is not safe for
// concurrent use, its random source and statistics are shared state.
type Director struct {
	FPS         int
	Width       int
	Height      int
	Transition  transition.Type
	MinDuration float64
	// Probe, when set, fits the timeline to the script's narration audio.
	Probe AudioProbe
	Log   *slog.Logger

	rng   *rand.Rand
	stats Stats
}

// NewDirector creates a Director from planner settings. Plans are
// reproducible for a given seed.
func NewDirector(cfg config.Planner) *Director {
	d := &Director{
		FPS:         cfg.FPS,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Transition:  transition.Parse(cfg.Transition),
		MinDuration: cfg.MinDuration,
		Log:         slog.Default(),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}
	d.ResetStats()
	return d
}

// Rand exposes the seeded random source, for SeedScript.
func (d *Director) Rand() *rand.Rand { return d.rng }

// SelectEffect draws an effect for a scene type from its weighted rules,
// avoiding previous when the rules offer an alternative.
func (d *Director) SelectEffect(t SceneType, previous effects.Effect) effects.Effect {
	rules, ok := effectRules[t]
	if !ok {
		rules = effectRules[Regular]
	}

	available := make([]rule, 0, len(rules))
	for _, r := range rules {
		if r.effect != previous {
			available = append(available, r)
		}
	}
	if len(available) == 0 {
		available = rules
	}

	total := 0.0
	for _, r := range available {
		total += r.weight
	}
	pick := d.rng.Float64() * total
	selected := available[len(available)-1].effect
	for _, r := range available {
		if pick < r.weight {
			selected = r.effect
			break
		}
		pick -= r.weight
	}

	d.stats.Effects[selected]++
	return selected
}

// minDuration is the shortest scene the planner produces: never below the
// configured minimum, and long enough to finish the entry transition.
func (d *Director) minDuration() float64 {
	return max(d.MinDuration, transition.EntrySeconds*1.1)
}

// Plan builds a VideoConfig from script. Segment durations default to the
// narration estimate of their text; with a Probe and an audio track the
// timeline is stretched or squeezed to the audio length. Durations are
// always aligned to whole frames.
func (d *Director) Plan(ctx context.Context, script *Script) (*timeline.VideoConfig, error) {
	if script == nil || len(script.Segments) == 0 {
		return nil, ErrEmptyScript
	}
	if d.FPS <= 0 {
		return nil, fmt.Errorf("%w: got %d", timeline.ErrInvalidFPS, d.FPS)
	}

	n := len(script.Segments)
	minimum := d.minDuration()
	durations := make([]float64, n)
	for i, seg := range script.Segments {
		if seg.Image == "" {
			return nil, fmt.Errorf("segment %d: no image", i)
		}
		durations[i] = seg.Duration
		if durations[i] <= 0 {
			durations[i] = EstimateDuration(seg.Text, minimum)
		}
	}

	target := 0.0
	if script.AudioPath != "" && d.Probe != nil {
		length, err := d.Probe(ctx, script.AudioPath)
		if err != nil {
			return nil, fmt.Errorf("probe narration: %w", err)
		}
		d.Log.Info("[*] Сценарий масштабируется под аудио", "audio", script.AudioPath, "seconds", length)
		target = length
	}

	durations, err := AlignFrames(durations, target, d.FPS, minimum)
	if err != nil {
		return nil, err
	}

	vc := &timeline.VideoConfig{
		Scenes:     make([]timeline.Scene, n),
		AudioPath:  script.AudioPath,
		FPS:        d.FPS,
		Width:      d.Width,
		Height:     d.Height,
		Transition: d.Transition,
	}

	previous := effects.Effect("")
	for i, seg := range script.Segments {
		st := seg.SceneType
		if !st.Known() {
			st = DetectSceneType(i, n, seg.Text)
		}
		effect := seg.Effect
		if effect.Known() {
			d.stats.Effects[effect]++
		} else {
			effect = d.SelectEffect(st, previous)
		}
		previous = effect

		scene := timeline.Scene{
			ImagePath: seg.Image,
			Duration:  durations[i],
			Effect:    effect,
		}
		if seg.Text != "" {
			scene.Subtitle = &timeline.Subtitle{
				Text:        seg.Text,
				StartTime:   0,
				EndTime:     durations[i],
				Highlighted: st.Highlighted(),
			}
		}
		vc.Scenes[i] = scene

		d.stats.TotalScenes++
		d.stats.SceneTypes[st]++
		d.Log.Debug("[>] Сцена", "index", i, "type", st, "effect", effect, "duration", durations[i])
	}

	if err := vc.Validate(); err != nil {
		return nil, err
	}
	return vc, nil
}

// Stats returns a copy of the usage statistics.
func (d *Director) Stats() Stats {
	return Stats{
		TotalScenes: d.stats.TotalScenes,
		Effects:     maps.Clone(d.stats.Effects),
		SceneTypes:  maps.Clone(d.stats.SceneTypes),
	}
}

func (d *Director) ResetStats() {
	d.stats = Stats{
		Effects:    map[effects.Effect]int{},
		SceneTypes: map[SceneType]int{},
	}
}
