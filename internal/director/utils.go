package director

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ivlev/scene2video/internal/system"
)

// GenerateConfigPath creates a timestamped video config filename in dir.
func GenerateConfigPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("video_%s.yaml", timestamp))
}

// FindLatestConfig finds the most recently modified video config in dir.
func FindLatestConfig(dir string) (string, error) {
	return system.FindLatest(dir, system.ConfigExtensions...)
}
