// Package api exposes the scene engine over HTTP: render jobs that run in the
// background and synchronous frame previews.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/timeline"
)

// RenderRequest starts a render job. Output is a file name inside the
// configured output directory; empty picks one from the job ID.
type RenderRequest struct {
	Config timeline.VideoConfig `json:"config"`
	Output string               `json:"output,omitempty"`
}

// PreviewRequest asks for the frame descriptor at a play-head.
type PreviewRequest struct {
	Config   timeline.VideoConfig `json:"config"`
	PlayHead int                  `json:"playHead"`
}

// PreviewResponse carries a frame descriptor plus timeline facts a client
// needs to scrub.
type PreviewResponse struct {
	Frame       timeline.Frame `json:"frame"`
	TotalFrames int            `json:"totalFrames"`
	Warnings    []string       `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	cfg  *config.Config
	jobs *JobManager
	log  *slog.Logger
}

func NewServer(cfg *config.Config, jobs *JobManager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, jobs: jobs, log: log}
}

// Router constructs the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(s.corsConfig()))

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/render", s.handleRender)
		api.GET("/jobs/:id", s.handleGetJob)
		api.DELETE("/jobs/:id", s.handleCancelJob)
		api.POST("/preview", s.handlePreview)
	}
	return r
}

func (s *Server) corsConfig() cors.Config {
	cc := cors.DefaultConfig()
	cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("[>] http",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start).Round(time.Microsecond))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.cfg.BuildVersion})
}

func (s *Server) handleRender(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	req.Config.Normalize()
	if err := req.Config.Validate(); err != nil {
		respondWithError(c, http.StatusUnprocessableEntity, err)
		return
	}

	name, err := outputName(req.Output)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err)
		return
	}

	vc := req.Config
	job := s.jobs.Submit(&vc, name)
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Param("id"))
	if err != nil {
		respondWithError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	job, err := s.jobs.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, ErrJobNotFound):
		respondWithError(c, http.StatusNotFound, err)
	case errors.Is(err, ErrJobFinished):
		respondWithError(c, http.StatusConflict, err)
	default:
		c.JSON(http.StatusOK, job)
	}
}

func (s *Server) handlePreview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	req.Config.Normalize()
	comp, err := timeline.New(req.Config)
	if err != nil {
		respondWithError(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.JSON(http.StatusOK, PreviewResponse{
		Frame:       comp.Frame(req.PlayHead),
		TotalFrames: comp.TotalFrames(),
		Warnings:    req.Config.Warnings(),
	})
}

// outputName reduces a client supplied name to a bare .mp4 file name.
func outputName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("output must be a plain file name, got %q", name)
	}
	if !strings.EqualFold(filepath.Ext(base), ".mp4") {
		base += ".mp4"
	}
	return base, nil
}

func respondWithError(c *gin.Context, status int, err error) {
	c.JSON(status, errorResponse{Error: err.Error()})
}
