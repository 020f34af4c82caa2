// Package config provides configuration structs and utilities for the
// flowtone application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents the root configuration for the flowtone application.
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Session       SessionConfig       `yaml:"session"`
	Policy        PolicyConfig        `yaml:"policy"`
	Routing       RoutingConfig       `yaml:"routing"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Audio         AudioConfig         `yaml:"audio"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// BackendConfig holds the music generation backend settings.
type BackendConfig struct {
	URL         string  `yaml:"url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

// SessionConfig holds session defaults.
type SessionConfig struct {
	DefaultDurationSeconds int    `yaml:"default_duration_seconds"`
	CalmPrompt             string `yaml:"calm_prompt"`
	IntensePrompt          string `yaml:"intense_prompt"`
	FreePlayPrompt         string `yaml:"free_play_prompt"`
	FreePlayBPM            int    `yaml:"free_play_bpm"`
}

// PolicyConfig holds the focus policy settings.
type PolicyConfig struct {
	Mode           string   `yaml:"mode"` // blocklist, allowlist
	BlockedApps    []string `yaml:"blocked_apps,omitempty"`
	BlockedDomains []string `yaml:"blocked_domains,omitempty"`
	AllowedApps    []string `yaml:"allowed_apps,omitempty"`
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
}

// RoutingConfig holds the context routing settings.
type RoutingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RulesFile string `yaml:"rules_file"` // watched for hot reload when set
}

// ClassifierConfig holds the steering intent service settings.
type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig holds playback settings. Output selects the playback
// destination: empty discards samples (timing only), "stdout" writes raw
// s16le PCM to standard output for piping into a player, anything else is
// treated as a file or FIFO path.
type AudioConfig struct {
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	Volume     float64 `yaml:"volume"`
	Output     string  `yaml:"output,omitempty"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// Default configuration values.
const (
	DefaultBackendURL      = "wss://musicgen.googleapis.com/ws/v1/stream"
	DefaultBackendModel    = "models/lyria-realtime-exp"
	DefaultTemperature     = 1.1
	DefaultDuration        = 25 * 60
	DefaultCalmPrompt      = "calm ambient textures, slow evolving pads"
	DefaultIntensePrompt   = "driving rhythmic focus, bright arpeggios"
	DefaultFreePlayPrompt  = "warm lo-fi beats, steady groove"
	DefaultFreePlayBPM     = 90
	DefaultPolicyMode      = "blocklist"
	DefaultClassifierURL   = "http://localhost:8089"
	DefaultSampleRate      = 48000
	DefaultChannels        = 2
	DefaultVolume          = 1.0
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultTracingExporter = "none"
	DefaultServiceName     = "flowtone"
)

// NewDefaultConfig returns a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:         DefaultBackendURL,
			Model:       DefaultBackendModel,
			Temperature: DefaultTemperature,
		},
		Session: SessionConfig{
			DefaultDurationSeconds: DefaultDuration,
			CalmPrompt:             DefaultCalmPrompt,
			IntensePrompt:          DefaultIntensePrompt,
			FreePlayPrompt:         DefaultFreePlayPrompt,
			FreePlayBPM:            DefaultFreePlayBPM,
		},
		Policy: PolicyConfig{
			Mode: DefaultPolicyMode,
		},
		Routing: RoutingConfig{
			Enabled: true,
		},
		Classifier: ClassifierConfig{
			URL:     DefaultClassifierURL,
			Timeout: 15 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate: DefaultSampleRate,
			Channels:   DefaultChannels,
			Volume:     DefaultVolume,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      false,
				ExporterType: DefaultTracingExporter,
				SampleRate:   1.0,
				ServiceName:  DefaultServiceName,
			},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	} else if u, err := url.Parse(c.Backend.URL); err != nil {
		errs = append(errs, fmt.Errorf("backend.url is invalid: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("backend.url scheme %q is not ws or wss", u.Scheme))
	}
	if c.Backend.Model == "" {
		errs = append(errs, errors.New("backend.model is required"))
	}

	if d := c.Session.DefaultDurationSeconds; d < 60 || d > 3600 {
		errs = append(errs, fmt.Errorf("session.default_duration_seconds %d out of range [60, 3600]", d))
	}
	if bpm := c.Session.FreePlayBPM; bpm < 60 || bpm > 200 {
		errs = append(errs, fmt.Errorf("session.free_play_bpm %d out of range [60, 200]", bpm))
	}

	switch c.Policy.Mode {
	case "blocklist", "allowlist":
	default:
		errs = append(errs, fmt.Errorf("policy.mode %q is not blocklist or allowlist", c.Policy.Mode))
	}

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is not 1 or 2", c.Audio.Channels))
	}
	if v := c.Audio.Volume; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("audio.volume %v out of range [0, 1]", v))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is invalid", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is invalid", c.Logging.Format))
	}

	if c.Observability.Tracing.Enabled {
		switch c.Observability.Tracing.ExporterType {
		case "none", "stdout", "otlp":
		default:
			errs = append(errs, fmt.Errorf("observability.tracing.exporter_type %q is invalid",
				c.Observability.Tracing.ExporterType))
		}
		if r := c.Observability.Tracing.SampleRate; r < 0 || r > 1 {
			errs = append(errs, fmt.Errorf("observability.tracing.sample_rate %v out of range [0, 1]", r))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasCredentials reports whether the backend API key is configured. Without
// it a session cannot start.
func (c *Config) HasCredentials() bool {
	return c.Backend.APIKey != ""
}
