package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/api"
	"github.com/ivlev/scene2video/internal/video"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render and preview HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetString("addr"); v != "" {
				a.cfg.Server.Addr = v
			}
			return a.serve(background(cmd))
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from settings, :8080)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	enc := &video.FFmpegEncoder{FFmpegPath: a.cfg.Tools.FFmpeg}
	jobs := api.NewJobManager(a.cfg.Render.OutputDir, a.cfg.Server.MaxJobs, api.EngineRunner(a.cfg, enc, a.log), a.log)
	srv := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: api.NewServer(a.cfg, jobs, a.log).Router(),
	}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	a.log.Info("[*] Сервер запущен", "addr", a.cfg.Server.Addr, "max_jobs", a.cfg.Server.MaxJobs)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.log.Info("[*] Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	jobs.Shutdown()
	return err
}
