// Package system wraps host facilities: file discovery, external tools and
// capacity probing.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var ErrNotFound = errors.New("no matching files")

var (
	PDFExtensions    = []string{".pdf"}
	AudioExtensions  = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	ImageExtensions  = []string{".jpg", ".jpeg", ".png"}
	ConfigExtensions = []string{".yaml", ".yml", ".json"}
)

// InitResourceLimits raises the open file limit, ffmpeg and MuPDF handles
// add up on long decks.
func InitResourceLimits(log *slog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("[!] Не удалось прочитать лимит открытых файлов", "err", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn("[!] Не удалось поднять лимит открытых файлов", "err", err)
		return
	}
	log.Debug("[*] Лимит открытых файлов поднят", "limit", rLimit.Cur)
}

// FindLatest returns the most recently modified file in dir whose extension
// is one of exts. A file path is resolved within its directory.
func FindLatest(path string, exts ...string) (string, error) {
	dir := path
	if fi, err := os.Stat(path); err != nil {
		return "", err
	} else if !fi.IsDir() {
		dir = filepath.Dir(path)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time
	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if latestFile == "" || info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, strings.Join(exts, ","), dir)
	}
	return latestFile, nil
}

func FindLatestPDF(dir string) (string, error)   { return FindLatest(dir, PDFExtensions...) }
func FindLatestAudio(dir string) (string, error) { return FindLatest(dir, AudioExtensions...) }
func FindLatestImage(dir string) (string, error) { return FindLatest(dir, ImageExtensions...) }

func hasExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// GetAudioDuration asks ffprobe for the length of a media file in seconds.
func GetAudioDuration(ctx context.Context, ffprobe, path string) (float64, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return d, nil
}

// GetBestH264Encoder probes ffmpeg for a hardware H.264 encoder.
// Order: VideoToolbox (macOS), NVENC (NVIDIA), then software libx264.
func GetBestH264Encoder(ctx context.Context, ffmpeg string) string {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(list string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(list, name) {
			return name
		}
	}
	return "libx264"
}

// HostInfo is a capacity snapshot used for worker sizing and perf reports.
type HostInfo struct {
	LogicalCPUs  int
	PhysicalCPUs int
	TotalMemory  uint64
	FreeMemory   uint64
}

func (h HostInfo) String() string {
	return fmt.Sprintf("cpu %d/%d | mem %.1f/%.1f GiB free",
		h.PhysicalCPUs, h.LogicalCPUs, gib(h.FreeMemory), gib(h.TotalMemory))
}

func gib(b uint64) float64 { return float64(b) / (1 << 30) }

// Host reads CPU and memory figures, falling back to the Go runtime view of
// the CPU count when gopsutil cannot.
func Host(ctx context.Context) HostInfo {
	info := HostInfo{LogicalCPUs: runtime.NumCPU()}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.LogicalCPUs = n
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil && n > 0 {
		info.PhysicalCPUs = n
	} else {
		info.PhysicalCPUs = info.LogicalCPUs
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemory = vm.Total
		info.FreeMemory = vm.Available
	}
	return info
}

// RecommendWorkers sizes the frame pool: one worker per logical CPU, capped
// so that in-flight frame buffers use at most a quarter of free memory.
func RecommendWorkers(h HostInfo, frameBytes int) int {
	workers := max(h.LogicalCPUs, 1)
	if h.FreeMemory > 0 && frameBytes > 0 {
		// each worker holds a frame plus one waiting to be written
		budget := int(h.FreeMemory / 4 / uint64(2*frameBytes))
		workers = min(workers, max(budget, 1))
	}
	return workers
}
