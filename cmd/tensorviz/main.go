// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tensorviz connects to a running model process and mirrors
// its tensor, metric, and breakpoint state through differential
// synchronization.
//
// Usage:
//
//	tensorviz watch
//	tensorviz watch --config ~/.tensorviz/tensorviz.yaml
//	tensorviz watch --endpoint ws://trainer:8765/sync
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	configPath string
	endpoint   string

	rootCmd = &cobra.Command{
		Use:   "tensorviz",
		Short: "Differential state synchronization client for model observability",
		Long: `tensorviz maintains a live local mirror of a model process:
tensor snapshots kept current through sparse diffs, scalar metric
series, and conditional breakpoints with captured state.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	defaultConfig := "tensorviz.yaml"
	if home, err := os.UserHomeDir(); err == nil {
		defaultConfig = filepath.Join(home, ".tensorviz", "tensorviz.yaml")
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig,
		"Path to the YAML config file (created on first run)")

	watchCmd.Flags().StringVar(&endpoint, "endpoint", "",
		"Websocket endpoint of the model process (overrides config)")
	rootCmd.AddCommand(watchCmd)
}
