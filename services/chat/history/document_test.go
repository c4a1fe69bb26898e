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
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

func testFiles(t *testing.T) *storage.Store {
	t.Helper()
	files := storage.New(t.TempDir(), slog.Default())
	require.NoError(t, files.EnsureDir())
	return files
}

func TestOpenDocument_AbsentStartsEmpty(t *testing.T) {
	doc, err := OpenDocument(testFiles(t), "chat-history-abc.json")
	require.NoError(t, err)
	assert.Zero(t, doc.TabCount())
	assert.False(t, doc.Dirty())
}

func TestOpenDocument_CorruptFileErrors(t *testing.T) {
	files := testFiles(t)
	require.NoError(t, files.Save("chat-history-bad.json", []byte("{not json")))

	_, err := OpenDocument(files, "chat-history-bad.json")
	require.Error(t, err)
}

func TestDocument_SaveOnlyWhenDirty(t *testing.T) {
	files := testFiles(t)
	name := "chat-history-abc.json"
	doc, err := OpenDocument(files, name)
	require.NoError(t, err)

	// Clean document: save is a no-op, nothing is written.
	require.NoError(t, doc.Save())
	size, err := files.Size(name)
	require.NoError(t, err)
	assert.Zero(t, size)

	doc.Upsert(datatypes.Tab{HistoryID: "h1", Title: "t"})
	assert.True(t, doc.Dirty())
	require.NoError(t, doc.Save())
	assert.False(t, doc.Dirty())

	size, err = files.Size(name)
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestDocument_UpsertRemoveRoundTrip(t *testing.T) {
	files := testFiles(t)
	name := "chat-history-abc.json"
	doc, err := OpenDocument(files, name)
	require.NoError(t, err)

	doc.Upsert(datatypes.Tab{HistoryID: "h1", Title: "one"})
	doc.Upsert(datatypes.Tab{HistoryID: "h2", Title: "two", IsOpen: true})
	doc.Upsert(datatypes.Tab{HistoryID: "h1", Title: "one updated"})
	require.NoError(t, doc.Save())

	reopened, err := OpenDocument(files, name)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.TabCount())

	tab, ok := reopened.Tab("h1")
	require.True(t, ok)
	assert.Equal(t, "one updated", tab.Title)

	open := reopened.OpenTabs()
	require.Len(t, open, 1)
	assert.Equal(t, "h2", open[0].HistoryID)

	assert.True(t, reopened.Remove("h1"))
	assert.False(t, reopened.Remove("h1"))
	assert.Equal(t, 1, reopened.TabCount())
}

func TestDocument_SettingsPersist(t *testing.T) {
	files := testFiles(t)
	name := "chat-history-abc.json"
	doc, err := OpenDocument(files, name)
	require.NoError(t, err)

	doc.SetSettings(Settings{ModelID: "model-x"})
	require.NoError(t, doc.Save())

	reopened, err := OpenDocument(files, name)
	require.NoError(t, err)
	assert.Equal(t, "model-x", reopened.Settings().ModelID)
}
