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
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/assistant-lsp/services/chat/maintenance"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

func runSweep(cmd *cobra.Command, args []string) error {
	files := storage.New(historyDir, appLogger.Slog())
	if err := files.EnsureDir(); err != nil {
		return err
	}

	cfg := appConfig.Maintenance
	if !watchMode {
		// One-shot invocations should never be dropped by the
		// watcher-oriented rate limit.
		cfg.MinSweepInterval = 0
	}
	maintainer := maintenance.NewMaintainer(maintenance.Options{
		Files:  files,
		Config: cfg,
		Logger: appLogger.Slog(),
	})

	if watchMode {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		watcher, err := maintenance.NewWatcher(maintainer, appLogger.Slog())
		if err != nil {
			return err
		}
		defer watcher.Close()

		fmt.Printf("Watching %s (ceiling %d bytes)\n", historyDir, cfg.MaxTotalBytes)
		err = watcher.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	report, err := maintainer.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Total size: %d -> %d bytes (ceiling %d, target %d)\n",
		report.TotalBefore, report.TotalAfter, cfg.MaxTotalBytes, cfg.TargetTotalBytes)
	if report.MessagesEvicted > 0 {
		fmt.Printf("Evicted %d messages across %d tab visits (%d tabs removed) in %d iterations\n",
			report.MessagesEvicted, report.TabsTrimmed, report.TabsRemoved, report.Iterations)
	} else {
		fmt.Println("Nothing to trim")
	}
	return nil
}
