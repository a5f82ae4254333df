// Copyright 2025 Sandlot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the sandlot CLI configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory, then under
// $XDG_CONFIG_HOME/sandlot/.
const DefaultFileName = "sandlot.yaml"

// Config is the CLI configuration surface.
type Config struct {
	// CDN is the module-graph CDN origin.
	CDN string `yaml:"cdn"`

	// LibURL is the lib.<name>.d.ts URL template with {version} and
	// {name} placeholders.
	LibURL string `yaml:"lib_url"`

	// TSVersion keys the lib cache.
	TSVersion string `yaml:"ts_version"`

	// CacheDir enables the on-disk type cache when set.
	CacheDir string `yaml:"cache_dir"`

	// CacheBackend selects "dir" (default) or "bolt" for CacheDir.
	CacheBackend string `yaml:"cache_backend"`

	// HistoryDB enables sqlite build history when set.
	HistoryDB string `yaml:"history_db"`

	// RateLimit bounds CDN requests per second (0 = unlimited).
	RateLimit float64 `yaml:"rate_limit"`

	// Ignore holds extra mirror-exclusion globs for --dir mode.
	Ignore []string `yaml:"ignore"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors internal/log's configuration surface.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheBackend: "dir",
	}
}

// Load reads path (or the default locations when path is empty),
// merges it over defaults, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findDefault()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func findDefault() string {
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		candidate := filepath.Join(base, "sandlot", DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyEnv lets SANDLOT_* variables override file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SANDLOT_CDN"); v != "" {
		cfg.CDN = v
	}
	if v := os.Getenv("SANDLOT_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("SANDLOT_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("SANDLOT_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("SANDLOT_TS_VERSION"); v != "" {
		cfg.TSVersion = v
	}
}

// Validate rejects unusable combinations early.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "", "dir", "bolt":
	default:
		return fmt.Errorf("cache_backend must be \"dir\" or \"bolt\", got %q", c.CacheBackend)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0, got %v", c.RateLimit)
	}
	return nil
}
