package cli

import (
	"os"
	"path/filepath"
)

// Color modes accepted by --color
const (
	ColorAuto = "auto"
	ColorOn   = "on"
	ColorOff  = "off"
)

// Config holds all CLI configuration
type Config struct {
	Project         string
	BasePath        string
	FixesDir        string
	Verbosity       string
	Color           string
	MetricsTextfile string
	LogFile         string
	// WorkDir anchors relative flags and the mirrored fixes layout.
	// Empty means the process working directory.
	WorkDir string
	Version string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		Verbosity: "info",
		Color:     ColorAuto,
	}
}

// ResolveWorkDir returns WorkDir, defaulting to the process working directory
func (c *Config) ResolveWorkDir() (string, error) {
	if c.WorkDir != "" {
		return filepath.Abs(c.WorkDir)
	}
	return os.Getwd()
}
