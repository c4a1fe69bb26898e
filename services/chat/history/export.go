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

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
)

// ExportedTab is the shape of one exported conversation: display turns
// only, with hidden messages and tool plumbing already filtered out.
type ExportedTab struct {
	Title     string                  `json:"title"`
	TabType   datatypes.TabType       `json:"tabType"`
	UpdatedAt int64                   `json:"updatedAt"`
	Turns     []datatypes.DisplayTurn `json:"turns"`
}

// ExportTab serializes a tab's displayable turns for the history
// panel's export action. Returns ErrUnknownTab when no tab exists for
// the historyId.
func (s *Store) ExportTab(historyID string) ([]byte, error) {
	doc := s.document()
	if doc == nil {
		return nil, fmt.Errorf("export %s: %w", historyID, ErrUnknownTab)
	}
	tab, ok := doc.Tab(historyID)
	if !ok {
		return nil, fmt.Errorf("export %s: %w", historyID, ErrUnknownTab)
	}

	var turns []datatypes.DisplayTurn
	for _, m := range tab.Messages() {
		if m.Hidden {
			continue
		}
		turns = append(turns, datatypes.MessageToDisplayTurns(m)...)
	}

	out := ExportedTab{
		Title:     tab.Title,
		TabType:   tab.TabType,
		UpdatedAt: tab.UpdatedAt,
		Turns:     turns,
	}
	return json.MarshalIndent(out, "", "  ")
}
