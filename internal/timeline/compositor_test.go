package timeline

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/transition"
)

func twoSceneConfig() VideoConfig {
	return VideoConfig{
		FPS:    30,
		Width:  1920,
		Height: 1080,
		Scenes: []Scene{
			{
				ImagePath: "slides/intro.png",
				Duration:  2,
				Effect:    effects.ZoomIn,
				Subtitle:  &Subtitle{Text: "Hello", StartTime: 0.5, EndTime: 1.5},
			},
			{
				ImagePath: "slides/outro.png",
				Duration:  2,
				Effect:    effects.Static,
			},
		},
	}
}

func mustCompositor(t *testing.T, cfg VideoConfig) *Compositor {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestTwoSceneScenario(t *testing.T) {
	c := mustCompositor(t, twoSceneConfig())

	assert.Equal(t, 120, c.TotalFrames())
	assert.Equal(t, []Window{{Start: 0, Frames: 60}, {Start: 60, Frames: 60}}, c.Windows())

	t.Run("subtitle window", func(t *testing.T) {
		for ph := 0; ph < 120; ph++ {
			f := c.Frame(ph)
			want := ph >= 15 && ph <= 44
			assert.Equal(t, want, f.SubtitleVisible(), "play-head %d", ph)
			if !want {
				assert.Nil(t, f.Subtitle, "play-head %d", ph)
			}
		}

		first := c.Frame(15).Subtitle
		require.NotNil(t, first)
		assert.Equal(t, 0, first.RelativeFrame)
		assert.Equal(t, "Hello", first.Text)
		assert.Equal(t, 29, c.Frame(44).Subtitle.RelativeFrame)
	})

	t.Run("transition window", func(t *testing.T) {
		f := c.Frame(61)
		assert.Equal(t, 1, f.SceneIndex)
		assert.Equal(t, 1, f.LocalFrame)
		require.NotNil(t, f.Transition)
		assert.Equal(t, transition.Fade, f.Transition.Type)
		assert.InDelta(t, 1.0/15, f.Transition.Progress, 1e-12)
		assert.InDelta(t, 1.0/15, f.Transition.Overlay.Opacity, 1e-12)

		assert.Nil(t, c.Frame(75).Transition)
		assert.NotNil(t, c.Frame(74).Transition)
	})

	t.Run("scene boundaries", func(t *testing.T) {
		assert.Equal(t, 0, c.Frame(59).SceneIndex)
		assert.Equal(t, 59, c.Frame(59).LocalFrame)
		assert.Equal(t, 1, c.Frame(60).SceneIndex)
		assert.Equal(t, 0, c.Frame(60).LocalFrame)
		assert.Equal(t, "slides/outro.png", c.Frame(60).Base.ImagePath)
	})
}

func TestFirstSceneNeverHasTransition(t *testing.T) {
	cfg := twoSceneConfig()
	for _, typ := range []transition.Type{transition.Fade, transition.Slide, transition.Zoom} {
		cfg.Transition = typ
		c := mustCompositor(t, cfg)
		for ph := 0; ph < 60; ph++ {
			assert.Nil(t, c.Frame(ph).Transition, "%s at %d", typ, ph)
		}
	}
}

func TestTransitionWindowPerFPS(t *testing.T) {
	for _, fps := range []int{1, 24, 25, 30, 60} {
		cfg := twoSceneConfig()
		cfg.FPS = fps
		c := mustCompositor(t, cfg)
		w := c.Windows()[1]
		limit := transition.Frames(fps)
		for local := 0; local < w.Frames; local++ {
			active := c.Frame(w.Start+local).Transition != nil
			assert.Equal(t, local < limit, active, "fps %d local %d", fps, local)
		}
	}
}

func TestKenBurnsStartsFromRestEveryScene(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.Scenes[1].Effect = effects.PanRight
	c := mustCompositor(t, cfg)

	first := c.Frame(0).Base
	require.NotNil(t, first)
	assert.Equal(t, 0.0, first.Progress)
	assert.Equal(t, effects.Resolve(effects.ZoomIn, 0), first.Transform)
	assert.Equal(t, 1.0, first.Opacity)

	second := c.Frame(60).Base
	assert.Equal(t, 0.0, second.Progress)
	assert.Equal(t, effects.Resolve(effects.PanRight, 0), second.Transform)

	// the camera keeps moving towards the end state
	late := c.Frame(59).Base
	assert.Greater(t, late.Transform.Scale, 1.2)
	assert.LessOrEqual(t, late.Transform.Scale, 1.3)
}

func TestSubtitleEntranceAndPulse(t *testing.T) {
	plain := mustCompositor(t, twoSceneConfig())

	cfg := twoSceneConfig()
	cfg.Scenes[0].Subtitle.Highlighted = true
	hl := mustCompositor(t, cfg)

	start := plain.Frame(15).Subtitle
	assert.Equal(t, 0.0, start.Opacity)
	assert.Equal(t, 30.0, start.TranslateY)
	assert.Equal(t, 0.8, start.Scale)

	prev := start
	for ph := 16; ph <= 44; ph++ {
		s := plain.Frame(ph).Subtitle
		assert.Greater(t, s.Opacity, prev.Opacity)
		assert.Less(t, s.TranslateY, prev.TranslateY)
		assert.Greater(t, s.Scale, prev.Scale)
		assert.LessOrEqual(t, s.Opacity, 1.0)
		prev = s
	}

	for _, ph := range []int{16, 20, 25, 40} {
		p := plain.Frame(ph).Subtitle
		h := hl.Frame(ph).Subtitle
		require.True(t, h.Highlighted)
		rel := float64(p.RelativeFrame)
		pulse := math.Sin(rel/30*2*math.Pi)*0.1 + 1
		assert.InDelta(t, p.Scale*pulse, h.Scale, 1e-12, "play-head %d", ph)
		assert.Equal(t, p.Opacity, h.Opacity)
	}
}

func TestOutOfRangePlayHead(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.AudioPath = "voice.mp3"
	c := mustCompositor(t, cfg)

	for _, ph := range []int{-1, -100, 120, 5000} {
		f := c.Frame(ph)
		assert.False(t, f.Active())
		assert.Equal(t, -1, f.SceneIndex)
		assert.Nil(t, f.Base)
		assert.Nil(t, f.Transition)
		assert.Nil(t, f.Subtitle)
		require.NotNil(t, f.Audio)
	}
}

func TestAudioSpansTimeline(t *testing.T) {
	cfg := twoSceneConfig()
	assert.Nil(t, mustCompositor(t, cfg).Frame(10).Audio)

	cfg.AudioPath = "voice.mp3"
	c := mustCompositor(t, cfg)
	for _, ph := range []int{0, 59, 60, 119} {
		assert.Equal(t, &AudioTrack{Path: "voice.mp3", StartFrame: 0, DurationFrames: 120}, c.Frame(ph).Audio)
	}
}

func TestPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		fps := []int{12, 24, 25, 30, 60}[rng.Intn(5)]
		n := 1 + rng.Intn(12)
		cfg := VideoConfig{FPS: fps, Width: 320, Height: 240}
		sum := 0
		for i := 0; i < n; i++ {
			d := 0.1 + rng.Float64()*6
			cfg.Scenes = append(cfg.Scenes, Scene{ImagePath: "x.png", Duration: d, Effect: effects.Static})
			sum += int(math.Round(d * float64(fps)))
		}

		c := mustCompositor(t, cfg)
		windows := c.Windows()
		require.Equal(t, sum, c.TotalFrames())
		next := 0
		for i, w := range windows {
			assert.Equal(t, next, w.Start, "round %d window %d", round, i)
			assert.Positive(t, w.Frames)
			next = w.End()
		}
		assert.Equal(t, c.TotalFrames(), next)

		for ph := 0; ph < c.TotalFrames(); ph++ {
			idx := c.Frame(ph).SceneIndex
			require.True(t, windows[idx].Contains(ph))
		}
	}
}

func TestFrameIsDeterministic(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.AudioPath = "voice.mp3"
	cfg.Scenes[0].Subtitle.Highlighted = true
	c := mustCompositor(t, cfg)

	sequential := make([]Frame, c.TotalFrames())
	for ph := range sequential {
		sequential[ph] = c.Frame(ph)
	}

	concurrent := make([]Frame, c.TotalFrames())
	var wg sync.WaitGroup
	for ph := len(concurrent) - 1; ph >= 0; ph-- {
		wg.Add(1)
		go func(ph int) {
			defer wg.Done()
			concurrent[ph] = c.Frame(ph)
		}(ph)
	}
	wg.Wait()

	assert.Equal(t, sequential, concurrent)
	assert.Equal(t, c.Frame(33), c.Frame(33))
}

func TestCompositorDoesNotAliasConfig(t *testing.T) {
	cfg := twoSceneConfig()
	c := mustCompositor(t, cfg)
	before := c.Frame(20)

	cfg.Scenes[0].Subtitle.Text = "changed"
	cfg.Scenes[0].Effect = effects.PanLeft
	cfg.Scenes[0].Duration = 10

	assert.Equal(t, before, c.Frame(20))
	assert.Equal(t, 120, c.TotalFrames())
}

func TestUnknownEffectAndTransition(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.Scenes[0].Effect = "spin"
	cfg.Transition = "wipe"
	assert.Len(t, cfg.Warnings(), 2)

	c := mustCompositor(t, cfg)
	assert.Equal(t, effects.Identity, c.Frame(30).Base.Transform)

	tr := c.Frame(61).Transition
	require.NotNil(t, tr)
	assert.Equal(t, transition.None, tr.Overlay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*VideoConfig)
		want   error
	}{
		{"zero fps", func(c *VideoConfig) { c.FPS = 0 }, ErrInvalidFPS},
		{"no width", func(c *VideoConfig) { c.Width = 0 }, ErrInvalidDimensions},
		{"no scenes", func(c *VideoConfig) { c.Scenes = nil }, ErrNoScenes},
		{"zero duration", func(c *VideoConfig) { c.Scenes[1].Duration = 0 }, ErrInvalidDuration},
		{"negative duration", func(c *VideoConfig) { c.Scenes[0].Duration = -1 }, ErrInvalidDuration},
		{"nan duration", func(c *VideoConfig) { c.Scenes[0].Duration = math.NaN() }, ErrInvalidDuration},
		{"sub-frame duration", func(c *VideoConfig) { c.Scenes[0].Duration = 0.01 }, ErrSceneTooShort},
		{"inverted subtitle", func(c *VideoConfig) { c.Scenes[0].Subtitle.EndTime = 0.2 }, ErrInvalidSubtitle},
		{"infinite subtitle end", func(c *VideoConfig) { c.Scenes[0].Subtitle.EndTime = math.Inf(1) }, ErrInvalidSubtitle},
		{"infinite subtitle start", func(c *VideoConfig) { c.Scenes[0].Subtitle.StartTime = math.Inf(-1) }, ErrInvalidSubtitle},
		{"huge duration", func(c *VideoConfig) { c.Scenes[0].Duration = 1e300 }, ErrTimelineTooLong},
		{"frames overflow in total", func(c *VideoConfig) {
			c.Scenes[0].Duration = float64(MaxFrames/2+1) / float64(c.FPS)
			c.Scenes[1].Duration = float64(MaxFrames/2+1) / float64(c.FPS)
		}, ErrTimelineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := twoSceneConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("all scene errors reported", func(t *testing.T) {
		cfg := twoSceneConfig()
		cfg.Scenes[0].Duration = 0
		cfg.Scenes[1].Duration = -3
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scene 0")
		assert.Contains(t, err.Error(), "scene 1")
	})
}

func TestTotalDuration(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.Scenes[1].Duration = 1.01 // 30.3 frames -> 30
	assert.InDelta(t, 3.0, cfg.TotalDuration(), 1e-12)
}
