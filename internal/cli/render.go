package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/video"
)

func (a *app) renderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [video-config]",
		Short: "Render a video config to MP4 (default: latest in scenarios/)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.latestOr(args)
			if err != nil {
				return err
			}
			return a.render(cmd, path)
		},
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "Output MP4 (default: timestamped file in the output dir)")
	f.Int("workers", 0, "Render goroutines (0 sizes from the host)")
	f.String("encoder", "", "H.264 encoder, or auto")
	f.Int("quality", 0, "Encoder quality (0 picks a default per encoder)")
	f.Bool("stats", false, "Print a performance report and append it to the benchmark log")
	f.String("end-card-url", "", "Show a QR code for this URL at the end")
	return cmd
}

func (a *app) render(cmd *cobra.Command, path string) error {
	vc, err := timeline.ReadConfig(path)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("workers") {
		a.cfg.Render.Workers, _ = f.GetInt("workers")
	}
	if v, _ := f.GetString("encoder"); v != "" {
		a.cfg.Render.Encoder = v
	}
	if f.Changed("quality") {
		a.cfg.Render.Quality, _ = f.GetInt("quality")
	}
	if v, _ := f.GetBool("stats"); v {
		a.cfg.Render.ShowStats = true
	}
	if v, _ := f.GetString("end-card-url"); v != "" {
		a.cfg.EndCard.URL = v
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := engine.NewVideoProject(a.cfg, vc, &video.FFmpegEncoder{FFmpegPath: a.cfg.Tools.FFmpeg}, a.log)
	p.Output, _ = f.GetString("output")
	p.OnProgress = func(pr engine.Progress) {
		if pr.Stage == engine.StageRender {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r[>] %d/%d frames", pr.Done, pr.Total)
			if pr.Done == pr.Total {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		}
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[+++] Успех! Видео сохранено: %s\n", report.Output)
	return nil
}
