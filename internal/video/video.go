// Package video streams rendered frames into an ffmpeg process.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var ErrFrameSize = errors.New("frame size does not match the stream")

// Job describes one output file.
type Job struct {
	Output    string
	Width     int
	Height    int
	FPS       int
	Frames    int    // total frames, the output is clamped to this length
	AudioPath string // optional soundtrack, starts at frame 0
	Encoder   string // ffmpeg codec name, e.g. libx264
	Quality   int
}

// Duration is the length of the output in seconds.
func (j Job) Duration() float64 {
	if j.FPS <= 0 {
		return 0
	}
	return float64(j.Frames) / float64(j.FPS)
}

// FrameWriter accepts frames in presentation order.
type FrameWriter interface {
	WriteFrame(img *image.RGBA) error
	// Close flushes the stream and waits for the encoder to finish.
	Close() error
}

// VideoEncoder opens frame streams.
type VideoEncoder interface {
	Open(ctx context.Context, job Job) (FrameWriter, error)
}

// FFmpegEncoder pipes raw RGBA frames into ffmpeg's stdin.
type FFmpegEncoder struct {
	FFmpegPath string // defaults to "ffmpeg"
}

// Args builds the ffmpeg command line for job, without the binary name.
func (e *FFmpegEncoder) Args(job Job) []string {
	frames := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", job.Width, job.Height),
		"r":       strconv.Itoa(job.FPS),
	})
	streams := []*ffmpeg.Stream{frames}

	out := ffmpeg.KwArgs{
		"c:v":     job.Encoder,
		"pix_fmt": "yuv420p",
		"r":       strconv.Itoa(job.FPS),
		"t":       fmt.Sprintf("%.3f", job.Duration()),
	}
	if job.AudioPath != "" {
		streams = append(streams, ffmpeg.Input(job.AudioPath).Audio())
		out["c:a"] = "aac"
		out["b:a"] = "192k"
	}
	for k, v := range QualityArgs(job.Encoder, job.Quality) {
		out[k] = v
	}

	return ffmpeg.Output(streams, job.Output, out).OverWriteOutput().GetArgs()
}

// QualityArgs maps the 0-100ish quality knob onto each encoder's own
// rate control.
func QualityArgs(encoder string, quality int) ffmpeg.KwArgs {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox does not honour -q:v everywhere, use a bitrate instead
		return ffmpeg.KwArgs{"b:v": fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return ffmpeg.KwArgs{"cq": strconv.Itoa(quality)}
	default: // libx264
		return ffmpeg.KwArgs{"crf": strconv.Itoa(quality), "preset": "medium"}
	}
}

// DefaultQuality is the quality knob used when none is configured.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// Open starts ffmpeg for job. The process is killed if ctx is cancelled.
func (e *FFmpegEncoder) Open(ctx context.Context, job Job) (FrameWriter, error) {
	bin := e.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, e.Args(job)...)
	log := &tailBuffer{limit: 8 << 10}
	cmd.Stdout = log
	cmd.Stderr = log

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	return &ffmpegStream{
		cmd:   cmd,
		stdin: stdin,
		log:   log,
		rect:  image.Rect(0, 0, job.Width, job.Height),
	}, nil
}

type ffmpegStream struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   *tailBuffer
	rect  image.Rectangle
	once  sync.Once
	err   error
}

func (s *ffmpegStream) WriteFrame(img *image.RGBA) error {
	if img.Rect.Size() != s.rect.Size() {
		return fmt.Errorf("%w: got %v, want %v", ErrFrameSize, img.Rect.Size(), s.rect.Size())
	}
	if err := writeRawRGBA(s.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w", err)
	}
	return nil
}

func (s *ffmpegStream) Close() error {
	s.once.Do(func() {
		s.stdin.Close()
		if err := s.cmd.Wait(); err != nil {
			s.err = fmt.Errorf("ffmpeg wait error: %w\n%s", err, s.log.String())
		}
	})
	return s.err
}

// writeRawRGBA writes the visible rows of img, skipping stride padding.
func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	rowLen := img.Rect.Dx() * 4
	if img.Stride == rowLen {
		_, err := w.Write(img.Pix[:rowLen*img.Rect.Dy()])
		return err
	}
	for y := 0; y < img.Rect.Dy(); y++ {
		off := y * img.Stride
		if _, err := w.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

// tailBuffer keeps the last limit bytes of the ffmpeg log.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if extra := t.buf.Len() - t.limit; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
