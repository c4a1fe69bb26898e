// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command assistant-history inspects and maintains the assistant chat
// history stored on this machine.
//
// Usage:
//
//	go run ./cmd/assistant-history list --folder /path/to/project
//	go run ./cmd/assistant-history search "needle" --folder /path/to/project
//	go run ./cmd/assistant-history sweep
//	go run ./cmd/assistant-history sweep --watch
package main

import (
	"context"
	"log"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error executing command: %v", err)
		shutdown()
		os.Exit(1)
	}
	shutdown()
}

// shutdown flushes tracing and closes the log file.
func shutdown() {
	if tracerShutdown != nil {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("Error flushing traces: %v", err)
		}
	}
	if appLogger != nil {
		_ = appLogger.Close()
	}
}
