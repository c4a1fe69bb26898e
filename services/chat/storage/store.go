// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists named JSON documents to a per-user history
// directory.
//
// The package abstracts the history engine's load/save/delete/list
// calls over the host filesystem. A missing file is "no data", not an
// error; any other I/O failure is surfaced to the caller, who is
// expected to log and degrade rather than abort. Writes are atomic from
// the caller's perspective (temp file plus rename) and use owner-only
// permissions.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0700
	filePerm = 0600
)

// Store reads and writes named documents under a single root directory.
//
// Thread Safety: Safe for concurrent use; all state is immutable and
// the filesystem provides operation-level atomicity.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir. The directory is created lazily by
// the first mutating operation.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		logger: logger.With(slog.String("component", "document_store")),
	}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of a named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// EnsureDir creates the root directory if missing. Idempotent.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("create history dir %s: %w", s.dir, err)
	}
	return nil
}

// Load returns the contents of a named document. An absent file returns
// found=false with a nil error.
func (s *Store) Load(name string) (data []byte, found bool, err error) {
	data, err = os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s: %w", name, err)
	}
	return data, true, nil
}

// Save writes the full document in a single atomic step: the content
// goes to a temp file first and is renamed into place.
func (s *Store) Save(name string, data []byte) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	path := s.Path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Delete removes a named document. A missing file is not an error.
func (s *Store) Delete(name string) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Rename moves oldName to newName. Used by the workspace identity
// migration; fails if oldName is absent.
func (s *Store) Rename(oldName, newName string) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	if err := os.Rename(s.Path(oldName), s.Path(newName)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// Size returns the byte size of a named document, or 0 for an absent
// file.
func (s *Store) Size(name string) (int64, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.Size(), nil
}

// Entry describes one document in the history directory.
type Entry struct {
	Name string
	Size int64
}

// List enumerates all documents with their sizes. An unreadable entry
// counts as size 0 and is logged, never fatal. A missing root directory
// is an empty listing.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history dir: %w", err)
	}

	var entries []Entry
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		entry := Entry{Name: d.Name()}
		if info, err := d.Info(); err != nil {
			s.logger.Warn("unreadable history document, counting size 0",
				slog.String("name", d.Name()),
				slog.String("error", err.Error()),
			)
		} else {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// TotalSize returns the summed size of all documents in the directory.
func (s *Store) TotalSize() (int64, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}
