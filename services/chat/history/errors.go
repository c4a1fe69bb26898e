// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import "errors"

var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("history store is closed")

	// ErrUnknownTab indicates no history is mapped for the tab id.
	ErrUnknownTab = errors.New("unknown tab id")
)

// ToolResultValidationError reports that the new message's tool results
// cannot be reconciled against the prior assistant turn without
// information loss. The caller must not submit the request.
type ToolResultValidationError struct {
	Reason string
}

func (e *ToolResultValidationError) Error() string {
	return "tool result validation failed: " + e.Reason
}
