package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
)

// presets maps aspect presets onto output sizes.
var presets = map[string][2]int{
	"16:9": {1920, 1080},
	"9:16": {1080, 1920},
	"4:5":  {1080, 1350},
}

func (a *app) planCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a video config from a narration script or a PDF / image folder",
		Long: "Plan assigns a Ken Burns effect to every segment by its role in the video " +
			"and fits scene durations to the narration audio. Without --script one silent " +
			"scene is made per page of --input.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.plan(cmd)
		},
	}
	f := cmd.Flags()
	f.String("script", "", "Segments file (YAML or JSON)")
	f.String("input", "", "PDF or image folder to seed the plan (default: latest PDF in input/pdf)")
	f.String("audio", "", "Narration audio (default: the script's, or latest in input/audio)")
	f.Bool("fit-audio", true, "Fit scene durations to the narration length")
	f.Float64("duration", 0, "Total seconds when seeding without audio (0: 5s per page)")
	f.StringP("out", "o", "", "Output config (default: timestamped file in scenarios/)")
	f.String("preset", "", "Aspect preset: 16:9, 9:16 or 4:5")
	f.Int("fps", 0, "Frames per second")
	f.Int("width", 0, "Output width")
	f.Int("height", 0, "Output height")
	f.Int64("seed", 0, "Random seed for effect selection")
	f.String("transition", "", "Entry transition: fade, slide or zoom")
	f.String("text-detector", "contrast", "Page analysis that keeps text slides static when seeding from --input (none: off)")
	return cmd
}

func (a *app) plan(cmd *cobra.Command) error {
	f := cmd.Flags()
	planner := a.cfg.Planner
	if v, _ := f.GetString("preset"); v != "" {
		size, ok := presets[v]
		if !ok {
			return fmt.Errorf("unknown preset %q", v)
		}
		planner.Width, planner.Height = size[0], size[1]
	}
	if v, _ := f.GetInt("fps"); v > 0 {
		planner.FPS = v
	}
	if v, _ := f.GetInt("width"); v > 0 {
		planner.Width = v
	}
	if v, _ := f.GetInt("height"); v > 0 {
		planner.Height = v
	}
	if f.Changed("seed") {
		planner.Seed, _ = f.GetInt64("seed")
	}
	if v, _ := f.GetString("transition"); v != "" {
		planner.Transition = v
	}

	d := director.NewDirector(planner)
	d.Log = a.log
	if fit, _ := f.GetBool("fit-audio"); fit {
		ffprobe := a.cfg.Tools.FFprobe
		d.Probe = func(ctx context.Context, path string) (float64, error) {
			return system.GetAudioDuration(ctx, ffprobe, path)
		}
	}

	script, err := a.loadScript(cmd, d)
	if err != nil {
		return err
	}

	vc, err := d.Plan(background(cmd), script)
	if err != nil {
		return err
	}

	out, _ := f.GetString("out")
	if out == "" {
		out = director.GenerateConfigPath(ScenarioDir)
	}
	if err := timeline.WriteConfig(vc, out); err != nil {
		return err
	}

	stats := d.Stats()
	a.log.Info("[+] Сценарий построен",
		"scenes", stats.TotalScenes,
		"seconds", vc.TotalDuration(),
		"effects", summary(stats.Effects),
		"types", summary(stats.SceneTypes))
	fmt.Fprintf(cmd.OutOrStdout(), "[+++] Успех! Сценарий сохранен: %s\n", out)
	return nil
}

func (a *app) loadScript(cmd *cobra.Command, d *director.Director) (*director.Script, error) {
	f := cmd.Flags()
	audio, _ := f.GetString("audio")

	if path, _ := f.GetString("script"); path != "" {
		script, err := director.ReadScript(path)
		if err != nil {
			return nil, err
		}
		if audio != "" {
			script.AudioPath = audio
		}
		return script, nil
	}

	input, _ := f.GetString("input")
	if input == "" {
		latest, err := system.FindLatestPDF("input/pdf")
		if err != nil {
			return nil, fmt.Errorf("give --script or --input: %w", err)
		}
		input = latest
		a.log.Info("[*] Используется последний PDF", "path", input)
	}
	if audio == "" {
		if latest, err := system.FindLatestAudio("input/audio"); err == nil {
			audio = latest
			a.log.Info("[*] Используется последнее аудио", "path", audio)
		}
	}

	src, err := source.Open(input)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if src.PageCount() == 0 {
		return nil, fmt.Errorf("%s has no pages or images", input)
	}

	total, _ := f.GetFloat64("duration")
	if total <= 0 {
		total = 5 * float64(src.PageCount())
	}
	script := director.SeedScript(src, total, d.MinDuration, d.Rand())
	script.AudioPath = audio

	if variant, _ := f.GetString("text-detector"); variant != "none" {
		det, err := analyzer.NewDetector(variant)
		if err != nil {
			return nil, err
		}
		marked, err := director.MarkTextPages(script, src, det)
		if err != nil {
			return nil, err
		}
		a.log.Info("[*] Текстовые страницы без движения камеры", "pages", marked)
	}
	return script, nil
}

// summary renders a count map as "k=v" pairs in key order.
func summary[K ~string](m map[K]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", k, m[K(k)])
	}
	return out
}
