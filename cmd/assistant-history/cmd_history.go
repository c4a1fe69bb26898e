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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
	"github.com/AleutianAI/assistant-lsp/services/chat/history"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

// openStore builds a read-only view over the selected workspace's
// history document.
func openStore(ctx context.Context) (*history.Store, error) {
	if len(workspaceFolders) == 0 && workspaceFile == "" {
		return nil, errors.New("select a workspace with --folder or --workspace-file")
	}

	files := storage.New(historyDir, appLogger.Slog())
	store := history.NewStore(history.Options{
		Files: files,
		Identity: history.Identity{
			Folders:       workspaceFolders,
			WorkspaceFile: workspaceFile,
		},
		Config: appConfig.History,
		Logger: appLogger.Slog(),
	})

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.WaitReady(waitCtx); err != nil {
		return nil, fmt.Errorf("history load timed out: %w", err)
	}
	return store, nil
}

func printGroups(groups []datatypes.HistoryGroup) {
	for _, group := range groups {
		if group.Name != "" {
			fmt.Printf("%s\n", group.Name)
		}
		for _, item := range group.Items {
			if item.ID == "" {
				fmt.Printf("  %s\n", item.Description)
				continue
			}
			updated := time.UnixMilli(item.UpdatedAt).Format("2006-01-02 15:04")
			fmt.Printf("  [%s] %s (%s, %s)\n", item.ID, item.Description, item.TabType, updated)
		}
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	printGroups(store.History())
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	result := store.SearchMessages(ctx, args[0])
	printGroups(result.Groups)
	fmt.Printf("(%s)\n", result.Elapsed.Round(time.Microsecond))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	raw, err := store.ExportTab(args[0])
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
