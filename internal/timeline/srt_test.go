package timeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSRT(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.Scenes[1].Subtitle = &Subtitle{Text: "Bye", StartTime: 0.5, EndTime: 5}

	var sb strings.Builder
	require.NoError(t, WriteSRT(&sb, cfg))

	want := "1\n00:00:00,500 --> 00:00:01,500\nHello\n\n" +
		"2\n00:00:02,500 --> 00:00:04,000\nBye\n\n"
	assert.Equal(t, want, sb.String())
}

func TestWriteSRTInvalidConfig(t *testing.T) {
	cfg := twoSceneConfig()
	cfg.FPS = 0
	assert.Error(t, WriteSRT(&strings.Builder{}, cfg))
}

func TestSRTTimestamp(t *testing.T) {
	tests := []struct {
		frame, fps int
		want       string
	}{
		{0, 30, "00:00:00,000"},
		{1, 30, "00:00:00,033"},
		{45, 30, "00:00:01,500"},
		{25 * 3725, 25, "01:02:05,000"},
		{68, 30, "00:00:02,267"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, srtTimestamp(tt.frame, tt.fps))
	}
}

func TestCaptionsFollowCompositorRounding(t *testing.T) {
	c := mustCompositor(t, twoSceneConfig())
	caps := c.Captions()
	require.Len(t, caps, 1)
	assert.Equal(t, 15, caps[0].StartFrame)
	assert.Equal(t, 45, caps[0].EndFrame)

	for ph := caps[0].StartFrame; ph < caps[0].EndFrame; ph++ {
		assert.True(t, c.Frame(ph).SubtitleVisible())
	}
}
