// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides configuration loading for PromptLab.
//
// Configuration is read from an optional YAML file, then overlaid with
// environment variables. Every field has a working default so PromptLab runs
// with no configuration at all (in-memory store, mock judge).
//
// Thread Safety:
//
//	Load returns a fresh Config per call. The returned value is not mutated
//	by this package afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize is the maximum allowed configuration file size (1MB).
const MaxYAMLFileSize = 1024 * 1024

// Environment variable overrides. Each, when set and non-empty, replaces the
// corresponding file value.
const (
	EnvStoreBackend = "PROMPTLAB_STORE_BACKEND"
	EnvStorePath    = "PROMPTLAB_STORE_PATH"
	EnvJudgeModel   = "PROMPTLAB_JUDGE_MODEL"
	EnvLogLevel     = "PROMPTLAB_LOG_LEVEL"
	EnvMinSamples   = "PROMPTLAB_MIN_SAMPLE_SIZE"
)

var validate = validator.New()

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend" validate:"oneof=memory badger"`

	// Path is the BadgerDB directory. Required when Backend is "badger".
	Path string `yaml:"path" validate:"required_if=Backend badger"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`
}

// JudgeConfig configures the LLM judge evaluator.
type JudgeConfig struct {
	// Model is the judge model identifier.
	Model string `yaml:"model" validate:"required"`
}

// ExperimentConfig holds experiment defaults applied when an A/B test omits
// them.
type ExperimentConfig struct {
	// ConfidenceLevel is the default significance confidence (0-1 exclusive).
	ConfidenceLevel float64 `yaml:"confidence_level" validate:"gt=0,lt=1"`

	// MinSampleSize is the default per-experiment sample size target.
	MinSampleSize int `yaml:"min_sample_size" validate:"gt=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is "json" or "text".
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Config is the root PromptLab configuration.
type Config struct {
	// ServiceName identifies this deployment in telemetry.
	ServiceName string `yaml:"service_name" validate:"required"`

	Store      StoreConfig      `yaml:"store"`
	Judge      JudgeConfig      `yaml:"judge"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the zero-configuration defaults.
func Default() Config {
	return Config{
		ServiceName: "promptlab",
		Store: StoreConfig{
			Backend:    "memory",
			SyncWrites: true,
		},
		Judge: JudgeConfig{
			Model: "gpt-4o-mini",
		},
		Experiment: ExperimentConfig{
			ConfidenceLevel: 0.95,
			MinSampleSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
//
// Description:
//
//	Starts from Default, merges the file at path when path is non-empty,
//	then applies environment overrides, then validates. A missing file at
//	an explicit path is an error; path == "" skips the file entirely.
//
// Inputs:
//   - path: YAML file path, or empty to use defaults plus environment.
//
// Outputs:
//   - Config: The merged configuration.
//   - error: Non-nil on read, parse, or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return cfg, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > MaxYAMLFileSize {
			return cfg, fmt.Errorf("config file %s exceeds %d bytes", path, MaxYAMLFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: field %s failed %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvStoreBackend); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvJudgeModel); v != "" {
		cfg.Judge.Model = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvMinSamples); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Experiment.MinSampleSize = n
		}
	}
}
