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
	"sync"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

// Settings is the single process-wide key/value record persisted next to
// the tab collection. Get/replace semantics, no history.
type Settings struct {
	ModelID string `json:"modelId,omitempty"`
}

// documentData is the persisted shape of one workspace's history file:
// the Tab collection plus the Settings record.
type documentData struct {
	Tabs     []datatypes.Tab `json:"tabs"`
	Settings Settings        `json:"settings"`
}

// Document is one workspace's history document held in memory, with a
// uniqueness index on historyId. Mutations mark the document dirty; Save
// is a no-op until then.
//
// Thread Safety: Safe for concurrent use.
type Document struct {
	name  string
	files *storage.Store

	mu    sync.RWMutex
	data  documentData
	index map[string]int
	dirty bool
}

// OpenDocument loads a named document from the file store. An absent
// file yields an empty document; corrupt JSON is an error the caller
// decides how to degrade on.
func OpenDocument(files *storage.Store, name string) (*Document, error) {
	doc := &Document{
		name:  name,
		files: files,
		index: map[string]int{},
	}

	raw, found, err := files.Load(name)
	if err != nil {
		return nil, err
	}
	if found && len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc.data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		doc.rebuildIndex()
	}
	return doc, nil
}

// Name returns the backing file name.
func (d *Document) Name() string {
	return d.name
}

func (d *Document) rebuildIndex() {
	d.index = make(map[string]int, len(d.data.Tabs))
	for i, tab := range d.data.Tabs {
		d.index[tab.HistoryID] = i
	}
}

// Tab returns the tab with the given historyId.
func (d *Document) Tab(historyID string) (datatypes.Tab, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[historyID]
	if !ok {
		return datatypes.Tab{}, false
	}
	return d.data.Tabs[i], true
}

// Tabs returns a copy of the tab collection in insertion order.
func (d *Document) Tabs() []datatypes.Tab {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]datatypes.Tab, len(d.data.Tabs))
	copy(out, d.data.Tabs)
	return out
}

// TabCount returns the number of tabs.
func (d *Document) TabCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data.Tabs)
}

// OpenTabs returns all tabs flagged open, sorted as stored.
func (d *Document) OpenTabs() []datatypes.Tab {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []datatypes.Tab
	for _, tab := range d.data.Tabs {
		if tab.IsOpen {
			out = append(out, tab)
		}
	}
	return out
}

// Upsert inserts or replaces a tab keyed by its historyId.
func (d *Document) Upsert(tab datatypes.Tab) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.index[tab.HistoryID]; ok {
		d.data.Tabs[i] = tab
	} else {
		d.index[tab.HistoryID] = len(d.data.Tabs)
		d.data.Tabs = append(d.data.Tabs, tab)
	}
	d.dirty = true
}

// Remove deletes a tab by historyId. Returns whether it existed.
func (d *Document) Remove(historyID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[historyID]
	if !ok {
		return false
	}
	d.data.Tabs = append(d.data.Tabs[:i], d.data.Tabs[i+1:]...)
	d.rebuildIndex()
	d.dirty = true
	return true
}

// Settings returns the settings record.
func (d *Document) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data.Settings
}

// SetSettings replaces the settings record.
func (d *Document) SetSettings(s Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.Settings = s
	d.dirty = true
}

// Dirty reports whether the in-memory state has unsaved mutations.
func (d *Document) Dirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dirty
}

// Save persists the document if dirty. The write is atomic at the file
// store layer.
func (d *Document) Save() error {
	d.mu.Lock()
	if !d.dirty {
		d.mu.Unlock()
		return nil
	}
	raw, err := json.Marshal(d.data)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("marshal %s: %w", d.name, err)
	}
	d.dirty = false
	d.mu.Unlock()

	if err := d.files.Save(d.name, raw); err != nil {
		// Leave dirty set so the next autosave retries.
		d.mu.Lock()
		d.dirty = true
		d.mu.Unlock()
		historySaveErrorsTotal.Inc()
		return err
	}
	return nil
}
