package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/docchat-cli/config"
	"github.com/otherjamesbrown/docchat-cli/pkg/logging"
	"github.com/otherjamesbrown/docchat-cli/pkg/timestamp"
)

// newLogger builds the CLI's logger from config. Logs go to stderr so they
// never interleave with streamed answer text on stdout.
func newLogger(cfg *config.CLIConfig, component string) logging.Logger {
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:      level,
		Component:  component,
		JSONFormat: cfg.JSONLogs,
		Output:     os.Stderr,
	})
}

// outputJSON outputs data as JSON.
func outputJSON(data any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// outputYAML outputs data as YAML.
func outputYAML(data any) error {
	enc := yaml.NewEncoder(os.Stdout)
	return enc.Encode(data)
}

// parsePosition accepts a playback position as plain seconds ("83"),
// fractional seconds ("83.5"), or a clock literal ("1:23", "1:02:03").
func parsePosition(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty position")
	}
	if strings.Contains(s, ":") {
		matches := timestamp.Extract("[" + s + "]")
		if len(matches) != 1 {
			return 0, fmt.Errorf("invalid position %q (want seconds or H:MM[:SS])", s)
		}
		return float64(matches[0].Seconds), nil
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid position %q (want seconds or H:MM[:SS])", s)
	}
	return seconds, nil
}

// formatBytes renders a file size for display.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}

// truncate shortens a string for single-line table display.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
