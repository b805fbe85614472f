// Package config holds the process-wide settings of scene2video: render
// tuning, external tools, the HTTP server and logging. Values are layered as
// defaults, then an optional TOML file, then SCENE2VIDEO_* environment
// variables (a .env file is read first), then command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "SCENE2VIDEO_"

// EncoderAuto asks the engine to probe ffmpeg for a hardware encoder.
const EncoderAuto = "auto"

var ErrInvalidConfig = errors.New("invalid configuration")

type Render struct {
	OutputDir    string `toml:"output_dir"`
	Workers      int    `toml:"workers"`    // 0 sizes the pool from the host
	ChunkSize    int    `toml:"chunk_size"` // frames rendered between ordered writes
	Encoder      string `toml:"encoder"`
	Quality      int    `toml:"quality"` // 0 picks a default per encoder
	ShowStats    bool   `toml:"show_stats"`
	BenchmarkLog string `toml:"benchmark_log"`
}

type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

type EndCard struct {
	URL     string  `toml:"url"`
	Seconds float64 `toml:"seconds"`
}

type Planner struct {
	FPS         int     `toml:"fps"`
	Width       int     `toml:"width"`
	Height      int     `toml:"height"`
	Seed        int64   `toml:"seed"`
	MinDuration float64 `toml:"min_duration"`
	Transition  string  `toml:"transition"`
}

type Server struct {
	Addr        string   `toml:"addr"`
	MaxJobs     int      `toml:"max_jobs"`
	CORSOrigins []string `toml:"cors_origins"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Config is the root of the settings tree.
type Config struct {
	Render       Render  `toml:"render"`
	Tools        Tools   `toml:"tools"`
	EndCard      EndCard `toml:"end_card"`
	Planner      Planner `toml:"planner"`
	Server       Server  `toml:"server"`
	Log          Log     `toml:"log"`
	BuildVersion string  `toml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Render: Render{
			OutputDir:    "output",
			ChunkSize:    64,
			Encoder:      EncoderAuto,
			BenchmarkLog: "benchmark.log",
		},
		Tools: Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		EndCard: EndCard{
			Seconds: 3,
		},
		Planner: Planner{
			FPS:         30,
			Width:       1920,
			Height:      1080,
			Seed:        1,
			MinDuration: 1,
			Transition:  "fade",
		},
		Server: Server{
			Addr:        ":8080",
			MaxJobs:     2,
			CORSOrigins: []string{"*"},
		},
		Log:          Log{Level: "info", Format: "text"},
		BuildVersion: "dev",
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	// best-effort: a .env next to the working directory is optional
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a TOML file into c. Keys absent from the file keep their
// current value.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides fields from SCENE2VIDEO_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("OUTPUT_DIR", &c.Render.OutputDir)
	num("WORKERS", &c.Render.Workers)
	num("CHUNK_SIZE", &c.Render.ChunkSize)
	str("ENCODER", &c.Render.Encoder)
	num("QUALITY", &c.Render.Quality)
	flag("SHOW_STATS", &c.Render.ShowStats)
	str("FFMPEG", &c.Tools.FFmpeg)
	str("FFPROBE", &c.Tools.FFprobe)
	str("END_CARD_URL", &c.EndCard.URL)
	str("ADDR", &c.Server.Addr)
	num("MAX_JOBS", &c.Server.MaxJobs)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	return errors.Join(errs...)
}

// Validate checks ranges that would otherwise fail deep inside a render.
func (c *Config) Validate() error {
	var errs []error
	if c.Render.Workers < 0 {
		errs = append(errs, errors.New("render.workers must not be negative"))
	}
	if c.Render.ChunkSize <= 0 {
		errs = append(errs, errors.New("render.chunk_size must be positive"))
	}
	if c.Render.Quality < 0 {
		errs = append(errs, errors.New("render.quality must not be negative"))
	}
	if c.Render.Encoder == "" {
		errs = append(errs, errors.New("render.encoder must be set"))
	}
	if c.EndCard.URL != "" && c.EndCard.Seconds <= 0 {
		errs = append(errs, errors.New("end_card.seconds must be positive"))
	}
	if c.Planner.FPS <= 0 || c.Planner.Width <= 0 || c.Planner.Height <= 0 {
		errs = append(errs, errors.New("planner fps, width and height must be positive"))
	}
	if c.Server.MaxJobs <= 0 {
		errs = append(errs, errors.New("server.max_jobs must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
