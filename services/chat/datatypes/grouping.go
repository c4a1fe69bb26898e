// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"sort"
	"time"
)

// Named, time-descending history panel groups.
const (
	GroupToday     = "Today"
	GroupYesterday = "Yesterday"
	GroupLastWeek  = "Last Week"
	GroupLastMonth = "Last Month"
	GroupOlder     = "Older"
)

// ItemAction is an affordance the history panel offers on an item.
type ItemAction string

const (
	ActionExport ItemAction = "export"
	ActionDelete ItemAction = "delete"
)

// HistoryItem is one history panel entry. Sentinel entries ("no history",
// "no matches") carry an empty ID and no actions.
type HistoryItem struct {
	ID          string       `json:"id,omitempty"`
	Description string       `json:"description"`
	TabType     TabType      `json:"tabType,omitempty"`
	UpdatedAt   int64        `json:"updatedAt,omitempty"`
	Actions     []ItemAction `json:"actions,omitempty"`
}

// HistoryGroup is a named bucket of history panel entries.
type HistoryGroup struct {
	Name  string        `json:"name,omitempty"`
	Items []HistoryItem `json:"items"`
}

// GroupTabsByDate buckets tabs into Today / Yesterday / Last Week /
// Last Month / Older using midnight-aligned boundaries computed from
// now. Within each bucket, tabs sort by UpdatedAt descending. Open tabs
// get their title wrapped in bold markup. Empty buckets are omitted.
func GroupTabsByDate(tabs []Tab, now time.Time) []HistoryGroup {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)
	lastMonth := today.AddDate(0, 0, -30)

	buckets := map[string][]Tab{}
	for _, tab := range tabs {
		updated := time.UnixMilli(tab.UpdatedAt)
		switch {
		case !updated.Before(today):
			buckets[GroupToday] = append(buckets[GroupToday], tab)
		case !updated.Before(yesterday):
			buckets[GroupYesterday] = append(buckets[GroupYesterday], tab)
		case !updated.Before(lastWeek):
			buckets[GroupLastWeek] = append(buckets[GroupLastWeek], tab)
		case !updated.Before(lastMonth):
			buckets[GroupLastMonth] = append(buckets[GroupLastMonth], tab)
		default:
			buckets[GroupOlder] = append(buckets[GroupOlder], tab)
		}
	}

	var groups []HistoryGroup
	for _, name := range []string{GroupToday, GroupYesterday, GroupLastWeek, GroupLastMonth, GroupOlder} {
		bucket := buckets[name]
		if len(bucket) == 0 {
			continue
		}
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].UpdatedAt > bucket[j].UpdatedAt
		})
		items := make([]HistoryItem, 0, len(bucket))
		for _, tab := range bucket {
			title := tab.Title
			if title == "" {
				title = "New conversation"
			}
			if tab.IsOpen {
				title = "**" + title + "**"
			}
			items = append(items, HistoryItem{
				ID:          tab.HistoryID,
				Description: title,
				TabType:     tab.TabType,
				UpdatedAt:   tab.UpdatedAt,
				Actions:     []ItemAction{ActionExport, ActionDelete},
			})
		}
		groups = append(groups, HistoryGroup{Name: name, Items: items})
	}
	return groups
}
