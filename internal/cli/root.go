// Package cli wires the scene2video commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/system"
)

// ScenarioDir is where plan writes configs and render looks for the latest.
const ScenarioDir = "scenarios"

// app carries state shared by every command once the root pre-run has
// loaded the settings.
type app struct {
	version string
	cfg     *config.Config
	log     *slog.Logger
}

// Main runs the CLI and exits with a non-zero status on failure.
func Main(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "[-]", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:           "scene2video",
		Short:         "Compose Ken Burns slideshows with transitions and subtitles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	pf := root.PersistentFlags()
	pf.String("config", "", "TOML settings file")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")

	root.AddCommand(
		a.renderCommand(),
		a.previewCommand(),
		a.planCommand(),
		a.srtCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.BuildVersion = a.version

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.Setup(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	system.InitResourceLimits(log)

	a.cfg = cfg
	a.log = log
	return nil
}

// latestOr returns path, or the newest scenario when path is empty.
func (a *app) latestOr(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	latest, err := system.FindLatest(ScenarioDir, system.ConfigExtensions...)
	if err != nil {
		return "", fmt.Errorf("no config given and %w", err)
	}
	a.log.Info("[*] Используется сценарий", "path", latest)
	return latest, nil
}

func writeOut(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
