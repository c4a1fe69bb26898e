// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/assistant-lsp/pkg/logging"
	"github.com/AleutianAI/assistant-lsp/services/chat/config"
)

// --- Global Command Variables ---
var (
	configPath       string
	historyDir       string
	workspaceFolders []string
	workspaceFile    string
	verbose          bool
	traceEnabled     bool

	appConfig config.Config
	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "assistant-history",
		Short: "Inspect and maintain assistant chat history on this machine",
		Long: `assistant-history operates on the per-workspace chat history
documents the assistant language server writes. It can list and search a
workspace's conversations and run the cross-workspace size sweep that
the server otherwise runs in the background.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			appConfig, err = config.Load(configPath)
			if err != nil {
				log.Fatalf("Error loading config: %v", err)
			}
			if historyDir == "" {
				historyDir = config.DefaultHistoryDir()
			}

			level := logging.LevelInfo
			if verbose {
				level = logging.LevelDebug
			}
			appLogger = logging.New(logging.Config{
				Level:   level,
				Service: "assistant-history",
			})

			if traceEnabled {
				if err := setupTracing(); err != nil {
					log.Fatalf("Error setting up tracing: %v", err)
				}
			}
		},
	}

	// --- History Inspection ---
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List a workspace's chat history grouped by date",
		RunE:  runList, // Defined in cmd_history.go
	}
	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search a workspace's message bodies",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch, // Defined in cmd_history.go
	}
	exportCmd = &cobra.Command{
		Use:   "export [history-id]",
		Short: "Export one conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport, // Defined in cmd_history.go
	}

	// --- Maintenance ---
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Trim oldest history across all workspaces when over the size ceiling",
		RunE:  runSweep, // Defined in cmd_sweep.go
	}

	watchMode bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML tuning config (defaults apply when absent)")
	rootCmd.PersistentFlags().StringVar(&historyDir, "dir", "", "History directory (default ~/.aleutian/assistant/history)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "Print spans to stdout")

	listCmd.Flags().StringSliceVar(&workspaceFolders, "folder", nil, "Workspace folder (repeatable)")
	listCmd.Flags().StringVar(&workspaceFile, "workspace-file", "", "Workspace file path, when the host uses one")
	searchCmd.Flags().StringSliceVar(&workspaceFolders, "folder", nil, "Workspace folder (repeatable)")
	searchCmd.Flags().StringVar(&workspaceFile, "workspace-file", "", "Workspace file path, when the host uses one")
	exportCmd.Flags().StringSliceVar(&workspaceFolders, "folder", nil, "Workspace folder (repeatable)")
	exportCmd.Flags().StringVar(&workspaceFile, "workspace-file", "", "Workspace file path, when the host uses one")

	sweepCmd.Flags().BoolVar(&watchMode, "watch", false, "Keep running and sweep on history file changes")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sweepCmd)
}
