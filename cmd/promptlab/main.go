// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command promptlab is the CLI for the PromptLab evaluation and
// experimentation engine.
//
// Usage:
//
//	promptlab evaluators
//	promptlab evaluate --text "some response" --evaluators evals.yaml
//	promptlab create --prompt <id> --variant A=v1 --variant B=v2 --split A=50 --split B=50
//	promptlab analyze --experiment <id>
//
// Configuration is read from an optional YAML file (--config) plus
// PROMPTLAB_* environment variables. With no configuration PromptLab runs
// against an in-memory store with the mock judge.
package main

import (
	"log"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/PromptLab/pkg/logging"
	"github.com/AleutianAI/PromptLab/pkg/ux"
	"github.com/AleutianAI/PromptLab/services/promptlab/config"
	"github.com/AleutianAI/PromptLab/services/promptlab/telemetry"
)

var (
	cfg       config.Config
	appLogger *logging.Logger
	appSink   *telemetry.Sink
)

func main() {
	defer func() {
		if appLogger != nil {
			appLogger.Close()
		}
	}()
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a PromptLab config YAML file")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		cfg = loaded

		appLogger = logging.New(logging.Config{
			Level:   logging.ParseLevel(cfg.Logging.Level),
			Service: cfg.ServiceName,
			JSON:    cfg.Logging.Format == "json",
		})
		slog.SetDefault(appLogger.Slog())

		appSink, err = telemetry.NewSink(&telemetry.Config{ServiceName: cfg.ServiceName})
		if err != nil {
			// A nil sink disables instrumentation without disabling the CLI.
			slog.Warn("Telemetry unavailable", "error", err)
		}

		if plainOutput {
			ux.SetPlain(true)
		}
	}
}
