// Package config loads client settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	// EnvURL overrides the dashboard base URL.
	EnvURL = "PRDASH_URL"
	// EnvToken is the bearer token sent to the dashboard.
	EnvToken = "PRDASH_TOKEN"
	// EnvGitHubToken enables close-actor suggestions and username checks.
	EnvGitHubToken = "GITHUB_TOKEN"
	// EnvConfig points at the YAML config file.
	EnvConfig = "PRDASH_CONFIG"
)

// RefreshStep is one endpoint of the "update all data" sequence.
type RefreshStep struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Intervals holds the fixed delays of the enhancement controller.
type Intervals struct {
	// Poll is the progress polling period.
	Poll time.Duration
	// StartSettle is the wait between a start request and the first poll.
	StartSettle time.Duration
	// StopBackstop is the wait before the extra status check after a stop.
	StopBackstop time.Duration
	// Reload is the wait between completion and the full reload.
	Reload time.Duration
	// MissingReload is the wait before the missing-PR list is reloaded
	// after a manual update.
	MissingReload time.Duration
	// Request bounds every HTTP request to the dashboard.
	Request time.Duration
}

// Config is the resolved client configuration.
type Config struct {
	BaseURL      string
	Token        string
	GitHubToken  string
	Intervals    Intervals
	RefreshSteps []RefreshStep
}

type fileConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	GitHubToken  string        `yaml:"github_token"`
	Intervals    fileIntervals `yaml:"intervals"`
	RefreshSteps []RefreshStep `yaml:"refresh_steps"`
}

type fileIntervals struct {
	Poll          string `yaml:"poll"`
	StartSettle   string `yaml:"start_settle"`
	StopBackstop  string `yaml:"stop_backstop"`
	Reload        string `yaml:"reload"`
	MissingReload string `yaml:"missing_reload"`
	Request       string `yaml:"request"`
}

// DefaultConfig returns the built-in settings used before any file or
// environment override.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Intervals: Intervals{
			Poll:          2000 * time.Millisecond,
			StartSettle:   500 * time.Millisecond,
			StopBackstop:  600 * time.Millisecond,
			Reload:        2000 * time.Millisecond,
			MissingReload: 1500 * time.Millisecond,
			Request:       30 * time.Second,
		},
		RefreshSteps: DefaultRefreshSteps(),
	}
}

// DefaultRefreshSteps lists the data-refresh endpoints in the order the
// dashboard runs them.
func DefaultRefreshSteps() []RefreshStep {
	return []RefreshStep{
		{Name: "GitHub open PRs", Path: "/api/update/github-prs"},
		{Name: "GitHub closed PRs", Path: "/api/update/github-closed-prs"},
		{Name: "GitLab open MRs", Path: "/api/update/gitlab-mrs"},
		{Name: "GitLab closed MRs", Path: "/api/update/gitlab-closed-mrs"},
		{Name: "JIRA open tickets", Path: "/api/update/jira-tickets"},
		{Name: "JIRA closed tickets", Path: "/api/update/jira-closed-tickets"},
		{Name: "App-interface MRs", Path: "/api/update/app-interface"},
		{Name: "Deployments", Path: "/api/update/deployments"},
	}
}

// Load merges the defaults, the YAML file at path (optional when empty or
// missing and not explicit) and the environment, in that order.
func Load(path string, env map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if env == nil {
		env = osEnvMap()
	}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = env[EnvConfig]
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := mergeFile(&cfg, path, explicit); err != nil {
			return Config{}, err
		}
	}

	if v := env[EnvURL]; v != "" {
		cfg.BaseURL = v
	}
	if v := env[EnvToken]; v != "" {
		cfg.Token = v
	}
	if v := env[EnvGitHubToken]; v != "" {
		cfg.GitHubToken = v
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath returns the per-user config path, or "" if the user config
// directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prdash", "config.yaml")
}

// Validate reports the first missing or out-of-range setting.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("config: base_url is required")
	}
	iv := cfg.Intervals
	for name, d := range map[string]time.Duration{
		"poll":           iv.Poll,
		"start_settle":   iv.StartSettle,
		"stop_backstop":  iv.StopBackstop,
		"reload":         iv.Reload,
		"missing_reload": iv.MissingReload,
		"request":        iv.Request,
	} {
		if d <= 0 {
			return fmt.Errorf("config: intervals.%s must be positive", name)
		}
	}
	for i, step := range cfg.RefreshSteps {
		if !strings.HasPrefix(step.Path, "/") {
			return fmt.Errorf("config: refresh_steps[%d].path %q must start with /", i, step.Path)
		}
	}
	return nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.GitHubToken != "" {
		cfg.GitHubToken = fc.GitHubToken
	}
	if len(fc.RefreshSteps) > 0 {
		cfg.RefreshSteps = fc.RefreshSteps
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll", fc.Intervals.Poll, &cfg.Intervals.Poll},
		{"start_settle", fc.Intervals.StartSettle, &cfg.Intervals.StartSettle},
		{"stop_backstop", fc.Intervals.StopBackstop, &cfg.Intervals.StopBackstop},
		{"reload", fc.Intervals.Reload, &cfg.Intervals.Reload},
		{"missing_reload", fc.Intervals.MissingReload, &cfg.Intervals.MissingReload},
		{"request", fc.Intervals.Request, &cfg.Intervals.Request},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config: intervals.%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func osEnvMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
