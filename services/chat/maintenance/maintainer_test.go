// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package maintenance

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/assistant-lsp/services/chat/config"
	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
	"github.com/AleutianAI/assistant-lsp/services/chat/history"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

func testFiles(t *testing.T) *storage.Store {
	t.Helper()
	files := storage.New(t.TempDir(), slog.Default())
	require.NoError(t, files.EnsureDir())
	return files
}

// makeTab builds a tab with one conversation of prompt/answer pairs,
// timestamps ascending from startTS in one-second steps.
func makeTab(historyID string, startTS int64, pairs, bodyLen int) datatypes.Tab {
	body := strings.Repeat("x", bodyLen)
	ts := startTS
	var messages []datatypes.Message
	for i := 0; i < pairs; i++ {
		messages = append(messages,
			datatypes.Message{Type: datatypes.MessageTypePrompt, Body: body, Timestamp: ts},
			datatypes.Message{Type: datatypes.MessageTypeAnswer, Body: body, Timestamp: ts + 500},
		)
		ts += 1000
	}
	return datatypes.Tab{
		HistoryID: historyID,
		TabType:   datatypes.TabTypeChat,
		UpdatedAt: ts,
		Conversations: []datatypes.Conversation{{
			ConversationID: "conv-" + historyID,
			Messages:       messages,
		}},
	}
}

func writeDoc(t *testing.T, files *storage.Store, name string, tabs ...datatypes.Tab) {
	t.Helper()
	doc, err := history.OpenDocument(files, name)
	require.NoError(t, err)
	for _, tab := range tabs {
		doc.Upsert(tab)
	}
	require.NoError(t, doc.Save())
}

func docMessageCount(t *testing.T, files *storage.Store, name string) int {
	t.Helper()
	doc, err := history.OpenDocument(files, name)
	require.NoError(t, err)
	count := 0
	for _, tab := range doc.Tabs() {
		count += tab.MessageCount()
	}
	return count
}

func testMaintenanceConfig() config.MaintenanceConfig {
	return config.MaintenanceConfig{
		MaxTotalBytes:    4096,
		TargetTotalBytes: 4096,
		MaxIterations:    100,
		BatchIterations:  2,
		PairsPerBatch:    2,
	}
}

// =============================================================================
// Sweep
// =============================================================================

func TestSweep_NoOpUnderCeiling(t *testing.T) {
	files := testFiles(t)
	writeDoc(t, files, storage.DocumentName("aaaa"), makeTab("h1", 1000, 2, 50))

	m := NewMaintainer(Options{Files: files, Config: testMaintenanceConfig()})
	report, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Zero(t, report.MessagesEvicted)
	assert.Equal(t, report.TotalBefore, report.TotalAfter)
}

func TestSweep_EvictsOldestFirst(t *testing.T) {
	files := testFiles(t)
	oldDoc := storage.DocumentName("aaaa")
	newDoc := storage.DocumentName("bbbb")
	writeDoc(t, files, oldDoc, makeTab("old", 1_000, 10, 200))
	writeDoc(t, files, newDoc, makeTab("new", time.Now().UnixMilli(), 2, 200))

	m := NewMaintainer(Options{Files: files, Config: testMaintenanceConfig()})
	report, err := m.Sweep(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Positive(t, report.MessagesEvicted)
	assert.Less(t, report.TotalAfter, report.TotalBefore)
	assert.LessOrEqual(t, report.TotalAfter, m.cfg.TargetTotalBytes)

	// The recent workspace is untouched; only the old one shrank.
	assert.Equal(t, 4, docMessageCount(t, files, newDoc))
	assert.Less(t, docMessageCount(t, files, oldDoc), 20)
}

func TestSweep_EvictedMessagesAreTheOldest(t *testing.T) {
	files := testFiles(t)
	name := storage.DocumentName("aaaa")
	writeDoc(t, files, name, makeTab("h1", 1_000, 12, 200))

	m := NewMaintainer(Options{Files: files, Config: testMaintenanceConfig()})
	_, err := m.Sweep(context.Background())
	require.NoError(t, err)

	doc, err := history.OpenDocument(files, name)
	require.NoError(t, err)
	tabs := doc.Tabs()
	require.Len(t, tabs, 1)
	messages := tabs[0].Messages()
	require.NotEmpty(t, messages)

	// Eviction is front-of-conversation: the minimum surviving
	// timestamp moved forward.
	assert.Greater(t, messages[0].Timestamp, int64(1_000))

	// The survivors are still well-formed prompt/answer pairs.
	for i, msg := range messages {
		if i%2 == 0 {
			assert.Equal(t, datatypes.MessageTypePrompt, msg.Type)
		} else {
			assert.Equal(t, datatypes.MessageTypeAnswer, msg.Type)
		}
	}
}

func TestSweep_SaveFailureSkipsDocument(t *testing.T) {
	files := testFiles(t)
	stuckDoc := storage.DocumentName("aaaa")
	healthyDoc := storage.DocumentName("bbbb")
	writeDoc(t, files, stuckDoc, makeTab("h1", 1_000, 6, 200))
	writeDoc(t, files, healthyDoc, makeTab("h2", 2_000, 6, 200))

	// Occupy the stuck document's temp path so its saves fail.
	require.NoError(t, os.Mkdir(files.Path(stuckDoc)+".tmp", 0700))

	cfg := testMaintenanceConfig()
	cfg.MaxTotalBytes = 10
	cfg.TargetTotalBytes = 10
	m := NewMaintainer(Options{Files: files, Config: cfg})
	report, err := m.Sweep(context.Background())
	require.NoError(t, err)

	// The healthy document still got swept down to nothing.
	healthy, err := history.OpenDocument(files, healthyDoc)
	require.NoError(t, err)
	assert.Zero(t, healthy.TabCount())
	assert.Less(t, report.TotalAfter, report.TotalBefore)

	// The stuck document is unchanged on disk.
	assert.Equal(t, 12, docMessageCount(t, files, stuckDoc))
}

func TestSweep_EmptiedTabsRemoved(t *testing.T) {
	files := testFiles(t)
	name := storage.DocumentName("aaaa")
	writeDoc(t, files, name,
		makeTab("h1", 1_000, 4, 200),
		makeTab("h2", 2_000, 4, 200),
	)

	cfg := testMaintenanceConfig()
	cfg.MaxTotalBytes = 10
	cfg.TargetTotalBytes = 10
	m := NewMaintainer(Options{Files: files, Config: cfg})
	report, err := m.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TabsRemoved)
	doc, err := history.OpenDocument(files, name)
	require.NoError(t, err)
	assert.Zero(t, doc.TabCount())
}

func TestSweep_IterationBound(t *testing.T) {
	files := testFiles(t)
	writeDoc(t, files, storage.DocumentName("aaaa"), makeTab("h1", 1_000, 30, 200))

	cfg := testMaintenanceConfig()
	cfg.MaxTotalBytes = 10
	cfg.TargetTotalBytes = 10
	cfg.MaxIterations = 3
	cfg.PairsPerBatch = 1

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	m := NewMaintainer(Options{Files: files, Config: cfg, Logger: logger})
	report, err := m.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Iterations)
	assert.Greater(t, report.TotalAfter, cfg.TargetTotalBytes)
	// Stopping above target at the cap is worth telling someone about.
	assert.Contains(t, logBuf.String(), "iteration cap")
}

func TestSweep_RateLimited(t *testing.T) {
	files := testFiles(t)
	cfg := testMaintenanceConfig()
	cfg.MinSweepInterval = time.Minute
	m := NewMaintainer(Options{Files: files, Config: cfg})

	first, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
}

func TestSweep_ReusesLiveStoreDocument(t *testing.T) {
	files := testFiles(t)
	identity := history.Identity{Folders: []string{"/home/user/project"}}

	store := history.NewStore(history.Options{
		Files:    files,
		Identity: identity,
		Config: config.HistoryConfig{
			MaxRequestCharacters: 600_000,
			MaxRequestMessages:   250,
			AutosaveInterval:     time.Hour,
		},
	})
	ctx := context.Background()
	require.NoError(t, store.WaitReady(ctx))
	defer store.Close(ctx)

	// The live document is dirty in memory only; the sweep must flush
	// it before measuring, then trim through the same instance.
	big := makeTab("live", 1_000, 12, 200)
	store.Document().Upsert(big)

	m := NewMaintainer(Options{Files: files, Config: testMaintenanceConfig(), Current: store})
	report, err := m.Sweep(ctx)
	require.NoError(t, err)

	assert.Positive(t, report.TotalBefore)
	assert.Positive(t, report.MessagesEvicted)

	tab, ok := store.Document().Tab("live")
	require.True(t, ok)
	assert.Less(t, tab.MessageCount(), 24)
}

func TestSizeExceeded(t *testing.T) {
	files := testFiles(t)
	m := NewMaintainer(Options{Files: files, Config: testMaintenanceConfig()})

	over, total, err := m.SizeExceeded()
	require.NoError(t, err)
	assert.False(t, over)
	assert.Zero(t, total)

	writeDoc(t, files, storage.DocumentName("aaaa"), makeTab("h1", 1_000, 20, 400))
	over, total, err = m.SizeExceeded()
	require.NoError(t, err)
	assert.True(t, over)
	assert.Positive(t, total)
}

// =============================================================================
// Pair Trimming
// =============================================================================

func TestTrimOldestPairs(t *testing.T) {
	tab := makeTab("h1", 1_000, 5, 10)
	evicted, empty := trimOldestPairs(&tab, 2)
	assert.Equal(t, 4, evicted)
	assert.False(t, empty)
	assert.Equal(t, 6, tab.MessageCount())
}

func TestTrimOldestPairs_ShortConversationDroppedWhole(t *testing.T) {
	tab := datatypes.Tab{
		HistoryID: "h1",
		Conversations: []datatypes.Conversation{
			{ConversationID: "c1", Messages: []datatypes.Message{
				{Type: datatypes.MessageTypePrompt, Body: "p", Timestamp: 1},
				{Type: datatypes.MessageTypeAnswer, Body: "a", Timestamp: 2},
			}},
			{ConversationID: "c2", Messages: []datatypes.Message{
				{Type: datatypes.MessageTypePrompt, Body: "p", Timestamp: 3},
				{Type: datatypes.MessageTypeAnswer, Body: "a", Timestamp: 4},
				{Type: datatypes.MessageTypePrompt, Body: "p", Timestamp: 5},
				{Type: datatypes.MessageTypeAnswer, Body: "a", Timestamp: 6},
			}},
		},
	}

	evicted, empty := trimOldestPairs(&tab, 2)
	assert.Equal(t, 4, evicted)
	assert.False(t, empty)
	require.Len(t, tab.Conversations, 1)
	assert.Equal(t, "c2", tab.Conversations[0].ConversationID)
	assert.Len(t, tab.Conversations[0].Messages, 2)
}

func TestTrimOldestPairs_EmptiesTab(t *testing.T) {
	tab := makeTab("h1", 1_000, 1, 10)
	evicted, empty := trimOldestPairs(&tab, 3)
	assert.Equal(t, 2, evicted)
	assert.True(t, empty)
}

func TestTrimOldestPairs_DoesNotAliasOriginal(t *testing.T) {
	original := makeTab("h1", 1_000, 3, 10)
	kept := original.Conversations

	tab := original
	_, _ = trimOldestPairs(&tab, 1)

	// The caller's conversation slice must be untouched.
	assert.Len(t, kept[0].Messages, 6)
}

// =============================================================================
// Eviction Queue
// =============================================================================

func TestBuildQueue_UntimestampedSortsFirst(t *testing.T) {
	files := testFiles(t)
	name := storage.DocumentName("aaaa")

	legacy := datatypes.Tab{
		HistoryID: "legacy",
		Conversations: []datatypes.Conversation{{
			ConversationID: "c1",
			Messages: []datatypes.Message{
				{Type: datatypes.MessageTypePrompt, Body: "p"},
				{Type: datatypes.MessageTypeAnswer, Body: "a"},
			},
		}},
	}
	writeDoc(t, files, name, makeTab("recent", time.Now().UnixMilli(), 1, 10), legacy)

	doc, err := history.OpenDocument(files, name)
	require.NoError(t, err)
	q := buildQueue(map[string]*history.Document{name: doc})
	require.Equal(t, 2, q.Len())
	assert.Equal(t, "legacy", (*q)[0].historyID)
}
