package director

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/effects"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/timeline"
)

var ErrEmptyScript = errors.New("script has no segments")

// Segment is one narrated beat of a video: what is said and what is shown.
type Segment struct {
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	Image     string    `json:"image" yaml:"image"`
	Duration  float64   `json:"duration,omitempty" yaml:"duration,omitempty"` // 0 estimates from Text
	SceneType SceneType `json:"sceneType,omitempty" yaml:"sceneType,omitempty"` // overrides detection

	// Effect, when known, pins the Ken Burns effect instead of drawing one.
	Effect effects.Effect `json:"effect,omitempty" yaml:"effect,omitempty"`
}

// Script is the planner input.
type Script struct {
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	AudioPath string    `json:"audioPath,omitempty" yaml:"audioPath,omitempty"`
	Segments  []Segment `json:"segments" yaml:"segments"`
}

// SeedScript builds a script with one silent segment per page of src,
// splitting total seconds across them with VaryDurations.
func SeedScript(src source.Source, total, minimum float64, rng *rand.Rand) *Script {
	n := src.PageCount()
	durations := VaryDurations(total, n, minimum, rng)
	script := &Script{Segments: make([]Segment, n)}
	for i := range n {
		script.Segments[i] = Segment{Image: src.Ref(i), Duration: durations[i]}
	}
	return script
}

// A page is text heavy when the detector finds at least textMinBlocks
// separate blocks covering textMinCoverage of it.
const (
	textMinBlocks   = 3
	textMinCoverage = 0.25
	analysisDPI     = 72
)

// MarkTextPages pins the static effect on every segment whose page of src
// is text heavy. Segments map to pages by index. It returns how many
// segments were pinned.
func MarkTextPages(script *Script, src source.Source, det analyzer.Detector) (int, error) {
	n := min(len(script.Segments), src.PageCount())
	marked := 0
	for i := range n {
		img, err := src.RenderPage(i, analysisDPI)
		if err != nil {
			return marked, fmt.Errorf("analyse page %d: %w", i+1, err)
		}
		layout, err := analyzer.Analyze(det, img)
		if err != nil {
			return marked, fmt.Errorf("analyse page %d: %w", i+1, err)
		}
		if layout.TextHeavy(textMinBlocks, textMinCoverage) {
			script.Segments[i].Effect = effects.Static
			marked++
		}
	}
	return marked, nil
}

// ReadScript reads a script from a YAML or JSON file.
func ReadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if timeline.FormatFor(path) == timeline.FormatJSON {
		err = json.Unmarshal(data, &script)
	} else {
		err = yaml.Unmarshal(data, &script)
	}
	if err != nil {
		return nil, fmt.Errorf("decode script %s: %w", path, err)
	}
	if len(script.Segments) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyScript)
	}
	return &script, nil
}

// WriteScript writes a script to a YAML or JSON file.
func WriteScript(script *Script, path string) error {
	var (
		data []byte
		err  error
	)
	if timeline.FormatFor(path) == timeline.FormatJSON {
		data, err = json.MarshalIndent(script, "", "  ")
	} else {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(script)
		data = buf.Bytes()
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
