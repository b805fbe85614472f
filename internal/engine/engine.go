// Package engine runs a render job: it preloads media, evaluates every frame
// of a timeline on a worker pool and streams the frames to the encoder in
// presentation order.
package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/video"
)

// Stage names reported through Progress.
const (
	StagePreload = "preload"
	StageRender  = "render"
	StageDone    = "done"
)

// Progress is a snapshot of a running job.
type Progress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Images preloads and serves decoded scene images.
type Images interface {
	Preload(ctx context.Context, refs []string, workers int) error
	Get(ref string) (*image.RGBA, error)
}

type VideoProject struct {
	Config     *config.Config
	Video      *timeline.VideoConfig
	Output     string // empty picks a timestamped file in the output dir
	Encoder    video.VideoEncoder
	Images     Images // nil uses a graded source.Library
	Log        *slog.Logger
	OnProgress func(Progress)
}

func NewVideoProject(cfg *config.Config, vc *timeline.VideoConfig, ve video.VideoEncoder, log *slog.Logger) *VideoProject {
	if log == nil {
		log = slog.Default()
	}
	return &VideoProject{
		Config:  cfg,
		Video:   vc,
		Encoder: ve,
		Log:     log,
	}
}

// Report summarises a finished job.
type Report struct {
	Output      string
	Frames      int
	Workers     int
	Encoder     string
	PreloadTime time.Duration
	RenderTime  time.Duration
	EncodeTime  time.Duration
	TotalTime   time.Duration
	Host        system.HostInfo
}

// EffectiveFPS is frames produced per wall-clock second.
func (r *Report) EffectiveFPS() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.Frames) / r.TotalTime.Seconds()
}

func (p *VideoProject) Run(ctx context.Context) (*Report, error) {
	startTime := time.Now()

	comp, err := timeline.New(*p.Video)
	if err != nil {
		return nil, fmt.Errorf("invalid video config: %w", err)
	}
	for _, w := range p.Video.Warnings() {
		p.Log.Warn("[!] " + w)
	}

	width, height := comp.Size()
	host := system.Host(ctx)
	workers := p.Config.Render.Workers
	if workers <= 0 {
		workers = system.RecommendWorkers(host, width*height*4)
	}
	encoderName := p.Config.Render.Encoder
	if encoderName == config.EncoderAuto {
		encoderName = system.GetBestH264Encoder(ctx, p.Config.Tools.FFmpeg)
	}
	quality := p.Config.Render.Quality
	if quality == 0 {
		quality = video.DefaultQuality(encoderName)
	}
	output, err := p.outputPath()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Output:  output,
		Frames:  comp.TotalFrames(),
		Workers: workers,
		Encoder: encoderName,
		Host:    host,
	}

	p.Log.Info("--- [PROJECT: SCENE ENGINE] ---")
	p.Log.Info("[*] Таймлайн",
		"scenes", len(p.Video.Scenes),
		"frames", comp.TotalFrames(),
		"size", fmt.Sprintf("%dx%d", width, height),
		"fps", comp.FPS(),
		"workers", workers,
		"encoder", encoderName)

	// 1. decode every image once
	p.progress(StagePreload, 0, comp.TotalFrames())
	preloadStart := time.Now()
	images := p.Images
	if images == nil {
		images = source.NewLibrary(width, height, source.WithPrepare(renderer.Grade))
	}
	if err := images.Preload(ctx, imageRefs(p.Video), workers); err != nil {
		return nil, fmt.Errorf("preload images: %w", err)
	}
	report.PreloadTime = time.Since(preloadStart)

	var opts []renderer.Option
	if ec := p.Config.EndCard; ec.URL != "" {
		opts = append(opts, renderer.WithEndCard(renderer.EndCard{URL: ec.URL, Seconds: ec.Seconds}))
	}
	rast, err := renderer.NewRasterizer(comp, images, opts...)
	if err != nil {
		return nil, err
	}

	// 2. stream frames to the encoder
	writer, err := p.Encoder.Open(ctx, video.Job{
		Output:    output,
		Width:     width,
		Height:    height,
		FPS:       comp.FPS(),
		Frames:    comp.TotalFrames(),
		AudioPath: comp.AudioPath(),
		Encoder:   encoderName,
		Quality:   quality,
	})
	if err != nil {
		return nil, fmt.Errorf("open encoder: %w", err)
	}

	renderTime, encodeTime, err := p.renderFrames(ctx, comp, rast, writer, workers)
	closeStart := time.Now()
	if cerr := writer.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("finish encoding: %w", cerr)
	}
	encodeTime += time.Since(closeStart)
	if err != nil {
		os.Remove(output)
		return nil, err
	}

	report.RenderTime = renderTime
	report.EncodeTime = encodeTime
	report.TotalTime = time.Since(startTime)
	p.progress(StageDone, comp.TotalFrames(), comp.TotalFrames())
	p.Log.Info("[+++] Видео готово", "output", output, "took", report.TotalTime.Round(time.Millisecond))

	if p.Config.Render.ShowStats {
		p.writePerfReport(report)
	}
	return report, nil
}

// renderFrames evaluates frames chunk by chunk. Inside a chunk frames render
// in any order, the frame index decides where the buffer lands, and the
// chunk is then written sequentially.
func (p *VideoProject) renderFrames(ctx context.Context, comp *timeline.Compositor, rast *renderer.Rasterizer, w video.FrameWriter, workers int) (renderTime, encodeTime time.Duration, err error) {
	total := comp.TotalFrames()
	chunk := max(p.Config.Render.ChunkSize, 1)
	bounds := rast.Bounds()
	frames := make([]*image.RGBA, min(chunk, total))

	release := func() {
		for i, f := range frames {
			if f != nil {
				system.PutImage(f)
				frames[i] = nil
			}
		}
	}
	defer release()

	for start := 0; start < total; start += chunk {
		n := min(chunk, total-start)

		t0 := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				buf := system.GetImage(bounds)
				frames[i] = buf
				if err := rast.Render(comp.Frame(start+i), buf); err != nil {
					return fmt.Errorf("frame %d: %w", start+i, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return renderTime, encodeTime, err
		}
		renderTime += time.Since(t0)

		t1 := time.Now()
		for i := 0; i < n; i++ {
			if err := w.WriteFrame(frames[i]); err != nil {
				return renderTime, encodeTime, fmt.Errorf("frame %d: %w", start+i, err)
			}
		}
		encodeTime += time.Since(t1)
		release()

		done := start + n
		p.progress(StageRender, done, total)
		p.Log.Debug("[>] Готово", "frames", done, "total", total)
	}
	return renderTime, encodeTime, ctx.Err()
}

func (p *VideoProject) progress(stage string, done, total int) {
	if p.OnProgress != nil {
		p.OnProgress(Progress{Stage: stage, Done: done, Total: total})
	}
}

func (p *VideoProject) outputPath() (string, error) {
	out := p.Output
	if out == "" {
		out = filepath.Join(p.Config.Render.OutputDir, fmt.Sprintf("video_%s.mp4", time.Now().Format("2006-01-02_15-04-05")))
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	return out, nil
}

func imageRefs(vc *timeline.VideoConfig) []string {
	refs := make([]string, 0, len(vc.Scenes))
	for _, s := range vc.Scenes {
		refs = append(refs, s.ImagePath)
	}
	return refs
}

func (p *VideoProject) writePerfReport(r *Report) {
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Host: %s\n"+
			"Workers: %d | Encoder: %s\n"+
			"Total Time: %.2fs\n"+
			"Preload: %.2fs\n"+
			"Rendering (CPU): %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"----------------------------\n",
		p.Config.BuildVersion, r.Host, r.Workers, r.Encoder, r.TotalTime.Seconds(),
		r.PreloadTime.Seconds(), r.RenderTime.Seconds(), r.EncodeTime.Seconds(), r.EffectiveFPS(),
	)
	fmt.Print(report)

	if p.Config.Render.BenchmarkLog == "" {
		return
	}
	logEntry := fmt.Sprintf("[%s] Build: %s | Output: %s | Frames: %d | Workers: %d | Total: %.2fs | Render: %.2fs | Encode: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		p.Config.BuildVersion,
		filepath.Base(r.Output),
		r.Frames,
		r.Workers,
		r.TotalTime.Seconds(),
		r.RenderTime.Seconds(),
		r.EncodeTime.Seconds(),
		r.EffectiveFPS(),
	)

	f, err := os.OpenFile(p.Config.Render.BenchmarkLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		p.Log.Warn("[!] Не удалось записать benchmark.log", "err", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(logEntry); err != nil {
		p.Log.Warn("[!] Не удалось записать benchmark.log", "err", err)
	}
}
