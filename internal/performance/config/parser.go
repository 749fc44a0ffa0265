package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultConnections = 1
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRequests = 16
	DefaultMethod      = "GET"
)

// LoadConfig loads a benchmark configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*BenchmarkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*BenchmarkConfig, error) {
	var config BenchmarkConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills in every optional value.
func ApplyDefaults(config *BenchmarkConfig) {
	if config.Threads == 0 {
		config.Threads = runtime.NumCPU()
	}

	for i := range config.HTTP {
		h := &config.HTTP[i]
		h.BaseURL = strings.TrimRight(h.BaseURL, "/")
		if h.Connections == 0 {
			h.Connections = DefaultConnections
		}
		if h.Timeout == 0 {
			h.Timeout = Duration(DefaultTimeout)
		}
	}

	for i := range config.Phases {
		p := &config.Phases[i]
		if p.Kind == "" {
			p.Kind = KindOnce
		}
		if p.Users == 0 {
			p.Users = 1
		}
	}

	sc := &config.Scenario
	if sc.MaxRequests == 0 {
		sc.MaxRequests = DefaultMaxRequests
	}
	// a scenario with a single sequence that is not marked starts with it
	if len(sc.Sequences) == 1 {
		sc.Sequences[0].Initial = true
	}
	for i := range sc.Sequences {
		for j := range sc.Sequences[i].Steps {
			if req := sc.Sequences[i].Steps[j].HTTPRequest; req != nil {
				if req.Method == "" {
					req.Method = DefaultMethod
				}
				req.Method = strings.ToUpper(req.Method)
				req.BaseURL = strings.TrimRight(req.BaseURL, "/")
			}
		}
	}
}

// DefaultBaseURL returns the base URL used by requests that do not name one.
func (c *BenchmarkConfig) DefaultBaseURL() string {
	if len(c.HTTP) == 0 {
		return ""
	}
	return c.HTTP[0].BaseURL
}
