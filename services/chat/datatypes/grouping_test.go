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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupTabsByDate_Buckets(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	ms := func(tm time.Time) int64 { return tm.UnixMilli() }

	tabs := []Tab{
		{HistoryID: "today", Title: "today", UpdatedAt: ms(now.Add(-1 * time.Hour))},
		{HistoryID: "yesterday", Title: "yesterday", UpdatedAt: ms(now.Add(-24 * time.Hour))},
		{HistoryID: "last-week", Title: "last week", UpdatedAt: ms(now.Add(-4 * 24 * time.Hour))},
		{HistoryID: "last-month", Title: "last month", UpdatedAt: ms(now.Add(-20 * 24 * time.Hour))},
		{HistoryID: "older", Title: "older", UpdatedAt: ms(now.Add(-90 * 24 * time.Hour))},
	}

	groups := GroupTabsByDate(tabs, now)
	require.Len(t, groups, 5)
	assert.Equal(t, GroupToday, groups[0].Name)
	assert.Equal(t, GroupYesterday, groups[1].Name)
	assert.Equal(t, GroupLastWeek, groups[2].Name)
	assert.Equal(t, GroupLastMonth, groups[3].Name)
	assert.Equal(t, GroupOlder, groups[4].Name)
	for _, g := range groups {
		require.Len(t, g.Items, 1)
	}
}

func TestGroupTabsByDate_MidnightBoundary(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 30, 0, 0, time.UTC)

	// 00:10 today lands in Today; 23:50 yesterday lands in Yesterday even
	// though the two are 40 minutes apart.
	early := Tab{HistoryID: "a", UpdatedAt: time.Date(2025, 6, 15, 0, 10, 0, 0, time.UTC).UnixMilli()}
	late := Tab{HistoryID: "b", UpdatedAt: time.Date(2025, 6, 14, 23, 50, 0, 0, time.UTC).UnixMilli()}

	groups := GroupTabsByDate([]Tab{early, late}, now)
	require.Len(t, groups, 2)
	assert.Equal(t, GroupToday, groups[0].Name)
	assert.Equal(t, "a", groups[0].Items[0].ID)
	assert.Equal(t, GroupYesterday, groups[1].Name)
	assert.Equal(t, "b", groups[1].Items[0].ID)
}

func TestGroupTabsByDate_SortAndMarkup(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	older := Tab{HistoryID: "x", Title: "first", UpdatedAt: now.Add(-3 * time.Hour).UnixMilli()}
	newer := Tab{HistoryID: "y", Title: "second", IsOpen: true, UpdatedAt: now.Add(-1 * time.Hour).UnixMilli()}

	groups := GroupTabsByDate([]Tab{older, newer}, now)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 2)
	// Descending by UpdatedAt, open tab bolded.
	assert.Equal(t, "y", groups[0].Items[0].ID)
	assert.Equal(t, "**second**", groups[0].Items[0].Description)
	assert.Equal(t, "first", groups[0].Items[1].Description)
	assert.Contains(t, groups[0].Items[0].Actions, ActionDelete)
	assert.Contains(t, groups[0].Items[0].Actions, ActionExport)
}

func TestGroupTabsByDate_EmptyInput(t *testing.T) {
	assert.Empty(t, GroupTabsByDate(nil, time.Now()))
}
