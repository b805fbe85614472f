package timeline

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// Caption is a subtitle placed on the global timeline.
type Caption struct {
	Index      int
	SceneIndex int
	Text       string
	StartFrame int
	EndFrame   int // exclusive
}

// Captions lists every subtitle in global frames, using the same rounding as
// the compositor so sidecar captions match the burned-in ones. Captions are
// clipped to their scene.
func (c *Compositor) Captions() []Caption {
	var out []Caption
	for i, s := range c.cfg.Scenes {
		if s.Subtitle == nil {
			continue
		}
		w := c.windows[i]
		sw := c.subtitles[i]
		start := w.Start + max(sw.start, 0)
		end := min(w.Start+sw.start+sw.frames, w.End())
		if end <= start {
			continue
		}
		out = append(out, Caption{
			Index:      len(out) + 1,
			SceneIndex: i,
			Text:       s.Subtitle.Text,
			StartFrame: start,
			EndFrame:   end,
		})
	}
	return out
}

// WriteSRT writes the subtitles of cfg as a SubRip file.
func WriteSRT(w io.Writer, cfg VideoConfig) error {
	comp, err := New(cfg)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for _, cp := range comp.Captions() {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			cp.Index,
			srtTimestamp(cp.StartFrame, comp.FPS()),
			srtTimestamp(cp.EndFrame, comp.FPS()),
			cp.Text)
	}
	return bw.Flush()
}

// srtTimestamp formats a frame position as HH:MM:SS,mmm.
func srtTimestamp(frame, fps int) string {
	ms := int64(math.Round(float64(frame) * 1000 / float64(fps)))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
