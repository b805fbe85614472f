package director

import (
	"context"
	"errors"
	"image"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/easing"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/timeline"
)

func testDirector(seed int64) *Director {
	cfg := config.Default().Planner
	cfg.Seed = seed
	d := NewDirector(cfg)
	d.Log = logging.Discard()
	return d
}

func TestDetectSceneType(t *testing.T) {
	tests := []struct {
		name  string
		index int
		total int
		text  string
		want  SceneType
	}{
		{"opening is always a hook", 0, 10, "Subscribe to the channel", Hook},
		{"closing is always a conclusion", 9, 10, "Did you know", Conclusion},
		{"english transition", 3, 10, "But there is more to it.", Transition},
		{"russian example", 5, 10, "Например, возьмём кофе", Example},
		{"emphasis", 4, 10, "This is really IMPORTANT!", Emphasis},
		{"call to action", 6, 10, "Leave a comment below", CTA},
		{"russian cta", 6, 10, "Подпишитесь на канал", CTA},
		{"keyword order decides", 4, 10, "However, remember this", Transition},
		{"no keyword early", 2, 10, "Coffee grows on trees", Introduction},
		{"no keyword middle", 5, 10, "Coffee grows on trees", MainPoint},
		{"no keyword late", 7, 10, "Coffee grows on trees", Regular},
		{"whole words only", 5, 10, "Nowhere is keyless", MainPoint},
		{"russian substring is not a word", 5, 10, "Можно попробовать", MainPoint},
		{"single scene", 0, 1, "anything", Hook},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSceneType(tt.index, tt.total, tt.text))
		})
	}
}

func TestSelectEffectNeverRepeats(t *testing.T) {
	d := testDirector(7)
	for st, rules := range effectRules {
		for _, r := range rules {
			for range 20 {
				got := d.SelectEffect(st, r.effect)
				assert.NotEqual(t, r.effect, got, "%s after %s", st, r.effect)
				assert.True(t, allowed(st, got), "%s picked %s", st, got)
			}
		}
	}
}

func TestSelectEffectFollowsWeights(t *testing.T) {
	d := testDirector(3)
	counts := map[effects.Effect]int{}
	const n = 20000
	for range n {
		counts[d.SelectEffect(Emphasis, "")]++
	}
	assert.InDelta(t, 0.9, float64(counts[effects.ZoomIn])/n, 0.02)
	assert.InDelta(t, 0.1, float64(counts[effects.Static])/n, 0.02)
	assert.Equal(t, n, d.Stats().Effects[effects.ZoomIn]+d.Stats().Effects[effects.Static])
}

func TestSelectEffectUnknownType(t *testing.T) {
	d := testDirector(1)
	assert.True(t, allowed(Regular, d.SelectEffect("mystery", "")))
}

func allowed(st SceneType, e effects.Effect) bool {
	for _, r := range effectRules[st] {
		if r.effect == e {
			return true
		}
	}
	return false
}

func sampleScript() *Script {
	return &Script{
		Segments: []Segment{
			{Text: "Did you know coffee was discovered by goats?", Image: "goat.png"},
			{Text: "Coffee grows on small trees in the tropics", Image: "tree.png", Duration: 4},
			{Text: "Remember, it is important to roast the beans", Image: "roast.png"},
			{Text: "For example, light roasts keep more acidity", Image: "cup.png"},
			{Text: "Subscribe to the channel for more", Image: "logo.png", SceneType: CTA},
			{Image: "end.png", Duration: 2},
		},
	}
}

func TestPlan(t *testing.T) {
	d := testDirector(42)
	vc, err := d.Plan(context.Background(), sampleScript())
	require.NoError(t, err)
	require.NoError(t, vc.Validate())

	assert.Equal(t, 30, vc.FPS)
	assert.Equal(t, 1920, vc.Width)
	assert.Len(t, vc.Scenes, 6)

	for i, s := range vc.Scenes {
		assert.True(t, s.Effect.Known(), "scene %d", i)
		if i > 0 {
			assert.NotEqual(t, vc.Scenes[i-1].Effect, s.Effect, "scene %d repeats", i)
		}
		frames := s.Duration * float64(vc.FPS)
		assert.InDelta(t, math.Round(frames), frames, 1e-9, "scene %d is frame aligned", i)
	}

	// 8 words at 2.5 words per second
	assert.InDelta(t, 3.2, vc.Scenes[0].Duration, 1e-9)
	assert.InDelta(t, 4.0, vc.Scenes[1].Duration, 1e-9)

	assert.False(t, vc.Scenes[0].Subtitle.Highlighted)
	assert.True(t, vc.Scenes[2].Subtitle.Highlighted, "emphasis is highlighted")
	assert.True(t, vc.Scenes[4].Subtitle.Highlighted, "forced cta is highlighted")
	assert.Nil(t, vc.Scenes[5].Subtitle)
	assert.Equal(t, vc.Scenes[1].Duration, vc.Scenes[1].Subtitle.EndTime)

	stats := d.Stats()
	assert.Equal(t, 6, stats.TotalScenes)
	assert.Equal(t, 1, stats.SceneTypes[Hook])
	assert.Equal(t, 1, stats.SceneTypes[Conclusion])
	assert.Equal(t, 1, stats.SceneTypes[CTA])
}

func TestPlanIsReproducible(t *testing.T) {
	a, err := testDirector(9).Plan(context.Background(), sampleScript())
	require.NoError(t, err)
	b, err := testDirector(9).Plan(context.Background(), sampleScript())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPlanFitsNarration(t *testing.T) {
	d := testDirector(1)
	d.Probe = func(ctx context.Context, path string) (float64, error) {
		assert.Equal(t, "voice.mp3", path)
		return 30.0, nil
	}
	script := sampleScript()
	script.AudioPath = "voice.mp3"

	vc, err := d.Plan(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, "voice.mp3", vc.AudioPath)
	assert.InDelta(t, 30.0, vc.TotalDuration(), 1e-9)

	d.Probe = func(ctx context.Context, path string) (float64, error) {
		return 0, errors.New("ffprobe missing")
	}
	_, err = d.Plan(context.Background(), script)
	assert.ErrorContains(t, err, "ffprobe missing")
}

func TestPlanErrors(t *testing.T) {
	d := testDirector(1)
	_, err := d.Plan(context.Background(), &Script{})
	assert.True(t, errors.Is(err, ErrEmptyScript))

	_, err = d.Plan(context.Background(), &Script{Segments: []Segment{{Text: "no picture"}}})
	assert.ErrorContains(t, err, "no image")

	d.Probe = func(ctx context.Context, path string) (float64, error) { return 1, nil }
	_, err = d.Plan(context.Background(), &Script{AudioPath: "a.mp3", Segments: sampleScript().Segments})
	assert.True(t, errors.Is(err, ErrTimelineTooShort))
}

func TestVaryDurations(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const total, n = 100.0, 10
	durations := VaryDurations(total, n, 0.55, rng)
	require.Len(t, durations, n)

	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	assert.InDelta(t, total, sum, 1e-9)

	// the final rescale preserves neighbour ratios
	for i := 1; i < n; i++ {
		ratio := durations[i]/durations[i-1] - 1
		assert.LessOrEqual(t, math.Abs(ratio), variation+1e-9, "scene %d", i)
	}
	assert.Nil(t, VaryDurations(10, 0, 1, rng))
}

func TestAlignFrames(t *testing.T) {
	got, err := AlignFrames([]float64{1, 1, 1}, 1, 10, 0.1)
	require.NoError(t, err)
	frames := make([]int, len(got))
	for i, d := range got {
		frames[i] = easing.RoundFrames(d, 10)
	}
	assert.Equal(t, []int{3, 4, 3}, frames)

	// a tiny scene borrows from the longest one
	got, err = AlignFrames([]float64{0.01, 5, 1}, 0, 10, 0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 4.5, 1.0}, got, 1e-9)

	_, err = AlignFrames([]float64{1, 1}, 0.5, 10, 0.5)
	assert.True(t, errors.Is(err, ErrTimelineTooShort))

	_, err = AlignFrames([]float64{1, -1}, 0, 10, 0.1)
	assert.Error(t, err)
}

type pages struct {
	n    int
	imgs []image.Image
}

func (p pages) PageCount() int                                  { return p.n }
func (p pages) GetPageDimensions(int) (float64, float64, error) { return 100, 100, nil }
func (p pages) Ref(i int) string                                { return source.PageRef("deck.pdf", i+1) }
func (p pages) Close() error                                    { return nil }

func (p pages) RenderPage(i int, dpi int) (image.Image, error) {
	if i >= len(p.imgs) {
		return nil, errors.New("no render")
	}
	return p.imgs[i], nil
}

func slide(lines int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for l := range lines {
		y := 20 + l*40
		for yy := y; yy < y+16; yy++ {
			for x := 20; x < 180; x++ {
				img.Pix[yy*img.Stride+x] = 255
			}
		}
	}
	return img
}

func TestMarkTextPages(t *testing.T) {
	src := pages{n: 3, imgs: []image.Image{slide(4), slide(1), slide(0)}}
	script := SeedScript(src, 9, 1, rand.New(rand.NewSource(1)))

	marked, err := MarkTextPages(script, src, analyzer.NewContrastDetector())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, effects.Static, script.Segments[0].Effect)
	assert.Empty(t, script.Segments[1].Effect)
	assert.Empty(t, script.Segments[2].Effect)

	d := testDirector(4)
	vc, err := d.Plan(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, effects.Static, vc.Scenes[0].Effect)
	assert.NotEqual(t, effects.Static, vc.Scenes[1].Effect)

	_, err = MarkTextPages(script, pages{n: 3}, analyzer.NewContrastDetector())
	assert.ErrorContains(t, err, "page 1")
}

func TestSeedScript(t *testing.T) {
	script := SeedScript(pages{n: 4}, 20, 1, rand.New(rand.NewSource(2)))
	require.Len(t, script.Segments, 4)

	sum := 0.0
	for i, seg := range script.Segments {
		assert.Equal(t, source.PageRef("deck.pdf", i+1), seg.Image)
		assert.Empty(t, seg.Text)
		sum += seg.Duration
	}
	assert.InDelta(t, 20.0, sum, 1e-9)
}

func TestScriptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"script.yaml", "script.json"} {
		path := filepath.Join(dir, "nested", name)
		require.NoError(t, WriteScript(sampleScript(), path))

		got, err := ReadScript(path)
		require.NoError(t, err, name)
		assert.Equal(t, sampleScript(), got, name)
	}

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, WriteScript(&Script{Title: "nothing"}, empty))
	_, err := ReadScript(empty)
	assert.True(t, errors.Is(err, ErrEmptyScript))
}

func TestFindLatestConfig(t *testing.T) {
	dir := t.TempDir()
	first := GenerateConfigPath(dir)
	assert.Equal(t, dir, filepath.Dir(first))
	assert.Regexp(t, `video_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.yaml$`, first)

	_, err := FindLatestConfig(dir)
	assert.Error(t, err)

	vc, err := testDirector(1).Plan(context.Background(), sampleScript())
	require.NoError(t, err)
	require.NoError(t, timeline.WriteConfig(vc, filepath.Join(dir, "a.yaml")))
	require.NoError(t, timeline.WriteConfig(vc, filepath.Join(dir, "b.json")))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.yaml"), past, past))

	latest, err := FindLatestConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.json"), latest)
}
