package renderer

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/transition"
)

var errMissing = errors.New("missing")

type memStore map[string]*image.RGBA

func (m memStore) Get(ref string) (*image.RGBA, error) {
	if img, ok := m[ref]; ok {
		return img, nil
	}
	return nil, errMissing
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
)

func testStore() memStore {
	return memStore{
		"red.png":   solid(100, 50, red),
		"green.png": solid(40, 60, green),
	}
}

func testConfig() timeline.VideoConfig {
	return timeline.VideoConfig{
		FPS:    30,
		Width:  640,
		Height: 360,
		Scenes: []timeline.Scene{
			{ImagePath: "red.png", Duration: 2, Effect: effects.ZoomIn,
				Subtitle: &timeline.Subtitle{Text: "Hello world", StartTime: 0.5, EndTime: 1.9}},
			{ImagePath: "green.png", Duration: 2, Effect: effects.PanLeft},
		},
	}
}

func render(t *testing.T, cfg timeline.VideoConfig, playHead int, opts ...Option) *image.RGBA {
	t.Helper()
	comp, err := timeline.New(cfg)
	require.NoError(t, err)
	r, err := NewRasterizer(comp, testStore(), opts...)
	require.NoError(t, err)

	dst := image.NewRGBA(r.Bounds())
	require.NoError(t, r.Render(comp.Frame(playHead), dst))
	return dst
}

func TestRenderCoversFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Scenes[0].Subtitle = nil

	for _, ph := range []int{0, 30, 59} {
		img := render(t, cfg, ph)
		for _, p := range []image.Point{{320, 180}, {1, 1}, {638, 358}} {
			assert.Equal(t, red, img.RGBAAt(p.X, p.Y), "play-head %d at %v", ph, p)
		}
	}

	img := render(t, cfg, 100)
	assert.Equal(t, green, img.RGBAAt(320, 180))
}

func TestRenderFadeFromBlack(t *testing.T) {
	cfg := testConfig()

	start := render(t, cfg, 60)
	assert.Equal(t, color.RGBA{A: 255}, start.RGBAAt(320, 180))

	mid := render(t, cfg, 67) // 7/15 of the fade
	assert.InDelta(t, 255*7.0/15, float64(mid.RGBAAt(320, 180).G), 2)

	done := render(t, cfg, 75)
	assert.Equal(t, green, done.RGBAAt(320, 180))
}

func TestRenderSlideStartsOffscreen(t *testing.T) {
	cfg := testConfig()
	cfg.Transition = transition.Slide

	start := render(t, cfg, 60)
	assert.Equal(t, color.RGBA{A: 255}, start.RGBAAt(320, 180))

	// half way in, the image still leaves the right edge uncovered
	mid := render(t, cfg, 68)
	assert.Equal(t, green, mid.RGBAAt(10, 180))
	assert.Equal(t, color.RGBA{A: 255}, mid.RGBAAt(630, 180))
}

func TestRenderCaption(t *testing.T) {
	with := render(t, testConfig(), 40)

	cfg := testConfig()
	cfg.Scenes[0].Subtitle = nil
	without := render(t, cfg, 40)

	// the card sits in the lower part of the frame
	for y := 0; y < 150; y++ {
		for x := 0; x < 640; x += 7 {
			require.Equal(t, without.RGBAAt(x, y), with.RGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}
	assert.NotEqual(t, without.Pix, with.Pix)

	// invisible before its start time
	assert.Equal(t, render(t, cfg, 10).Pix, render(t, testConfig(), 10).Pix)
}

func TestRenderHighlightedCaption(t *testing.T) {
	cfg := testConfig()
	cfg.Scenes[0].Subtitle.Highlighted = true
	hl := render(t, cfg, 40)
	plain := render(t, testConfig(), 40)
	assert.NotEqual(t, plain.Pix, hl.Pix)
}

func TestRenderEndCard(t *testing.T) {
	cfg := testConfig()
	ec := WithEndCard(EndCard{URL: "https://example.com/watch", Seconds: 1})

	before := render(t, cfg, 80, ec)
	assert.Equal(t, render(t, cfg, 80).Pix, before.Pix)

	shown := render(t, cfg, 119, ec)
	plain := render(t, cfg, 119)
	assert.NotEqual(t, plain.Pix, shown.Pix)
	// top left untouched
	assert.Equal(t, plain.RGBAAt(10, 10), shown.RGBAAt(10, 10))
}

func TestRenderErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Scenes[1].ImagePath = "absent.png"
	comp, err := timeline.New(cfg)
	require.NoError(t, err)
	r, err := NewRasterizer(comp, testStore())
	require.NoError(t, err)

	err = r.Render(comp.Frame(70), image.NewRGBA(r.Bounds()))
	assert.True(t, errors.Is(err, errMissing))

	err = r.Render(comp.Frame(0), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.Error(t, err)
}

func TestRenderOutsideTimelineIsBlack(t *testing.T) {
	img := render(t, testConfig(), 500)
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(320, 180))
}

func TestGradeLUT(t *testing.T) {
	assert.Equal(t, uint8(0), gradeLUT[0])
	assert.Equal(t, uint8(135), gradeLUT[128])
	assert.Equal(t, uint8(255), gradeLUT[255])

	img := solid(2, 2, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	Grade(img)
	assert.Equal(t, color.RGBA{R: 135, G: 135, B: 135, A: 255}, img.RGBAAt(1, 1))

	empty := solid(1, 1, color.RGBA{})
	Grade(empty)
	assert.Equal(t, color.RGBA{}, empty.RGBAAt(0, 0))
}

func TestWrapText(t *testing.T) {
	faces, err := newCaptionFaces()
	require.NoError(t, err)
	defer faces.Close()

	text := strings.Repeat("word ", 30)
	lines := wrapText(faces.regular, text, 400)
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, measure(faces, l), fixed.I(400), l)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(lines, " ")))

	assert.Equal(t, []string{"a", "b"}, wrapText(faces.regular, "a\nb", 400))
	assert.Equal(t, []string{""}, wrapText(faces.regular, "   ", 400))
}

func measure(cf *captionFaces, s string) fixed.Int26_6 {
	return font.MeasureString(cf.regular, s)
}
