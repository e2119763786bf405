// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptlab.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvStoreBackend, EnvStorePath, EnvJudgeModel, EnvLogLevel, EnvMinSamples} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ServiceName != "promptlab" {
		t.Errorf("ServiceName = %q, want promptlab", cfg.ServiceName)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Judge.Model != "gpt-4o-mini" {
		t.Errorf("Judge.Model = %q, want gpt-4o-mini", cfg.Judge.Model)
	}
	if cfg.Experiment.ConfidenceLevel != 0.95 {
		t.Errorf("Experiment.ConfidenceLevel = %v, want 0.95", cfg.Experiment.ConfidenceLevel)
	}
	if cfg.Experiment.MinSampleSize != 100 {
		t.Errorf("Experiment.MinSampleSize = %v, want 100", cfg.Experiment.MinSampleSize)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want default memory", cfg.Store.Backend)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load(missing path) error = nil, want stat failure")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
service_name: promptlab-staging
store:
  backend: badger
  path: /tmp/promptlab-data
  sync_writes: false
judge:
  model: gpt-4o
experiment:
  confidence_level: 0.99
  min_sample_size: 500
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServiceName != "promptlab-staging" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.Store.Backend != "badger" || cfg.Store.Path != "/tmp/promptlab-data" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Judge.Model != "gpt-4o" {
		t.Errorf("Judge.Model = %q", cfg.Judge.Model)
	}
	if cfg.Experiment.ConfidenceLevel != 0.99 || cfg.Experiment.MinSampleSize != 500 {
		t.Errorf("Experiment = %+v", cfg.Experiment)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
judge:
  model: o3-mini
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Judge.Model != "o3-mini" {
		t.Errorf("Judge.Model = %q, want o3-mini", cfg.Judge.Model)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want default memory", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStoreBackend, "badger")
	t.Setenv(EnvStorePath, "/var/lib/promptlab")
	t.Setenv(EnvJudgeModel, "gpt-4.1")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMinSamples, "250")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != "badger" || cfg.Store.Path != "/var/lib/promptlab" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Judge.Model != "gpt-4.1" {
		t.Errorf("Judge.Model = %q", cfg.Judge.Model)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Experiment.MinSampleSize != 250 {
		t.Errorf("Experiment.MinSampleSize = %v", cfg.Experiment.MinSampleSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
logging:
  level: debug
`)
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want env value to win", cfg.Logging.Level)
	}
}

func TestLoad_InvalidMinSamplesEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMinSamples, "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Experiment.MinSampleSize != 100 {
		t.Errorf("MinSampleSize = %v, want default 100", cfg.Experiment.MinSampleSize)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		wantIn  string
	}{
		{
			"unknown backend",
			"store:\n  backend: postgres\n",
			"Backend",
		},
		{
			"badger without path",
			"store:\n  backend: badger\n",
			"Path",
		},
		{
			"confidence out of range",
			"experiment:\n  confidence_level: 1.5\n",
			"ConfidenceLevel",
		},
		{
			"bad log level",
			"logging:\n  level: verbose\n",
			"Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("error %q does not mention field %s", err, tt.wantIn)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "store: [not: a: mapping\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse failure")
	}
}

func TestLoad_OversizedFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "# "+strings.Repeat("x", MaxYAMLFileSize))

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want size limit failure")
	}
}
