// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the foyer proxy.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Control configures the game server's control link.
	Control ControlConfig `yaml:"control"`

	// Workers configures per-session worker endpoints.
	Workers WorkersConfig `yaml:"workers"`

	// Auth configures the external authentication API.
	Auth AuthConfig `yaml:"auth"`

	// Session configures admission policy.
	Session SessionConfig `yaml:"session"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Control *ControlConfig `yaml:"control,omitempty"`
	Workers *WorkersConfig `yaml:"workers,omitempty"`
	Auth    *AuthConfig    `yaml:"auth,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
}

// ControlConfig configures the control link the game server attaches to.
type ControlConfig struct {
	// Address is the TCP listen address for the control port.
	// Default: :7800
	Address string `yaml:"address"`

	// Token authenticates the control link. Required outside
	// development. Supports ${VAR} expansion so the token can live in
	// the process environment instead of the file.
	Token string `yaml:"token"`
}

// WorkersConfig configures per-session worker endpoints.
type WorkersConfig struct {
	// Host is the bind host for worker listeners. Ports are always
	// kernel-allocated.
	// Default: 0.0.0.0
	Host string `yaml:"host"`

	// SpawnTimeout bounds how long a session open may wait for its
	// worker to start listening.
	// Default: 5s
	SpawnTimeout string `yaml:"spawn_timeout"`
}

// AuthConfig configures the external authentication API.
type AuthConfig struct {
	// BaseURL is the authentication API base URL, e.g.
	// https://auth.example.com/api. Required unless session.trust_mode.
	BaseURL string `yaml:"base_url"`

	// ClaimTimeout bounds each ticket claim call.
	// Default: 10s
	ClaimTimeout string `yaml:"claim_timeout"`
}

// SessionConfig configures admission policy.
type SessionConfig struct {
	// TrustMode admits every connection without a ticket claim.
	// Development only; Validate rejects it in production.
	TrustMode bool `yaml:"trust_mode"`

	// ProtocolToken lets internal reconnections bypass the capacity
	// check. Supports ${VAR} expansion.
	ProtocolToken string `yaml:"protocol_token"`

	// Capacity is the maximum number of concurrent sessions.
	// Zero means unlimited.
	Capacity int `yaml:"capacity"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Control: ControlConfig{
			Address: ":7800",
		},
		Workers: WorkersConfig{
			Host:         "0.0.0.0",
			SpawnTimeout: "5s",
		},
		Auth: AuthConfig{
			ClaimTimeout: "10s",
		},
		Session: SessionConfig{
			TrustMode: false,
			Capacity:  0,
		},
	}
}

// Load loads configuration from the FOYER_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if FOYER_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("FOYER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FOYER_CONFIG environment variable not set; " +
			"set it to the path of your foyer.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - the only expansion performed is ${VAR} substitution
// inside token and URL fields, so secrets can stay out of the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${VAR} references in secret-bearing fields.
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Control != nil {
		if overrides.Control.Address != "" {
			c.Control.Address = overrides.Control.Address
		}
		if overrides.Control.Token != "" {
			c.Control.Token = overrides.Control.Token
		}
	}

	if overrides.Workers != nil {
		if overrides.Workers.Host != "" {
			c.Workers.Host = overrides.Workers.Host
		}
		if overrides.Workers.SpawnTimeout != "" {
			c.Workers.SpawnTimeout = overrides.Workers.SpawnTimeout
		}
	}

	if overrides.Auth != nil {
		if overrides.Auth.BaseURL != "" {
			c.Auth.BaseURL = overrides.Auth.BaseURL
		}
		if overrides.Auth.ClaimTimeout != "" {
			c.Auth.ClaimTimeout = overrides.Auth.ClaimTimeout
		}
	}

	if overrides.Session != nil {
		// TrustMode is a bool, so it is always applied from overrides.
		c.Session.TrustMode = overrides.Session.TrustMode
		if overrides.Session.ProtocolToken != "" {
			c.Session.ProtocolToken = overrides.Session.ProtocolToken
		}
		if overrides.Session.Capacity != 0 {
			c.Session.Capacity = overrides.Session.Capacity
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// fields that commonly carry secrets or per-host values.
func (c *Config) expandVariables() {
	c.Control.Token = expandVars(c.Control.Token)
	c.Session.ProtocolToken = expandVars(c.Session.ProtocolToken)
	c.Auth.BaseURL = expandVars(c.Auth.BaseURL)
	c.Workers.Host = expandVars(c.Workers.Host)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// process environment.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Control.Address == "" {
		errs = append(errs, fmt.Errorf("control.address is required"))
	}

	if _, err := time.ParseDuration(c.Workers.SpawnTimeout); err != nil {
		errs = append(errs, fmt.Errorf("workers.spawn_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Auth.ClaimTimeout); err != nil {
		errs = append(errs, fmt.Errorf("auth.claim_timeout: %w", err))
	}

	if c.Session.TrustMode {
		if c.Environment == Production {
			errs = append(errs, fmt.Errorf("session.trust_mode is not allowed in production"))
		}
	} else if c.Auth.BaseURL == "" {
		errs = append(errs, fmt.Errorf("auth.base_url is required unless session.trust_mode is set"))
	}

	if c.Environment != Development && c.Control.Token == "" {
		errs = append(errs, fmt.Errorf("control.token is required outside development"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SpawnTimeout returns the parsed worker spawn timeout.
func (c *Config) SpawnTimeout() time.Duration {
	d, err := time.ParseDuration(c.Workers.SpawnTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// ClaimTimeout returns the parsed ticket claim timeout.
func (c *Config) ClaimTimeout() time.Duration {
	d, err := time.ParseDuration(c.Auth.ClaimTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
