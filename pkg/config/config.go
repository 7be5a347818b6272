// Package config loads the bot's configuration: YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete bot configuration
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Platform PlatformConfig `yaml:"platform"`
	Engine   EngineConfig   `yaml:"engine"`
	Alert    AlertConfig    `yaml:"alert"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig holds the platform credentials
type AccountConfig struct {
	Username string `yaml:"username" env:"TZAARBOT_USERNAME"`
	Password string `yaml:"password" env:"TZAARBOT_PASSWORD"`
}

// PlatformConfig defines how the platform is polled
type PlatformConfig struct {
	BaseURL      string        `yaml:"base_url"`
	UserAgent    string        `yaml:"user_agent"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// InvitePattern is a glob an invitation id must match to be joined.
	InvitePattern string `yaml:"invite_pattern"`
	// InviteWindow is how many bytes before the last invite image are searched for the join form.
	InviteWindow int `yaml:"invite_window"`
}

// EngineConfig defines the external engine invocation
type EngineConfig struct {
	Path         string   `yaml:"path"`
	Profile      string   `yaml:"profile"`
	PositionFile string   `yaml:"position_file"`
	ResultFile   string   `yaml:"result_file"` // Defaults to position_file
	ExecutedFile string   `yaml:"executed_file"`
	AlertMarkers []string `yaml:"alert_markers"`
}

// AlertConfig defines mail delivery. Alerts are only logged when SMTPAddr is empty.
type AlertConfig struct {
	SMTPAddr string   `yaml:"smtp_addr" env:"TZAARBOT_SMTP_ADDR"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password" env:"TZAARBOT_SMTP_PASSWORD"`
}

// OutputConfig defines where durable files go
type OutputConfig struct {
	LogDir     string `yaml:"log_dir"`
	ArchiveDir string `yaml:"archive_dir"`
	// JournalPath is the SQLite turn journal. Empty disables it.
	JournalPath string `yaml:"journal_path"`
}

// LoggingConfig defines console logging
type LoggingConfig struct {
	// Verbosity controls console echo: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity"`
}

// DefaultConfig returns a configuration that only lacks credentials and the engine path
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:       "http://www.boiteajeux.net/",
			UserAgent:     "tzaarbot",
			PollInterval:  30 * time.Second,
			InvitePattern: "tza-*",
			InviteWindow:  530,
		},
		Engine: EngineConfig{
			Profile:      "42",
			PositionFile: "BAJcurrGame.sav",
			ExecutedFile: "BAJposAfter.sav",
			AlertMarkers: []string{"*ASSERTATION*", "*HashCollision*"},
		},
		Output: OutputConfig{
			LogDir:      "output",
			ArchiveDir:  "games",
			JournalPath: "tzaarbot.db",
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Account.Username == "" {
		return fmt.Errorf("account username is required")
	}
	if c.Account.Password == "" {
		return fmt.Errorf("account password is required")
	}

	if c.Platform.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Platform.InvitePattern == "" {
		return fmt.Errorf("invite_pattern is required")
	}
	if c.Platform.InviteWindow < 0 {
		return fmt.Errorf("invite_window cannot be negative")
	}

	if c.Engine.Path == "" {
		return fmt.Errorf("engine path is required")
	}
	if c.Engine.Profile == "" {
		return fmt.Errorf("engine profile is required")
	}
	if c.Engine.PositionFile == "" || c.Engine.ExecutedFile == "" {
		return fmt.Errorf("engine position_file and executed_file are required")
	}

	if c.Alert.SMTPAddr != "" && (c.Alert.From == "" || len(c.Alert.To) == 0) {
		return fmt.Errorf("alert from and to are required when smtp_addr is set")
	}

	if c.Output.LogDir == "" {
		return fmt.Errorf("output log_dir is required")
	}
	if c.Output.ArchiveDir == "" {
		return fmt.Errorf("output archive_dir is required")
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}
