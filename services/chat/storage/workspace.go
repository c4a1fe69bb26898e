// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// NoWorkspaceIdentity is the sentinel identity used when the host has no
// workspace folders open.
const NoWorkspaceIdentity = "no-workspace"

// workspaceFileSalt keeps workspace-file identities in a distinct
// namespace from folder identities, so the two schemes can never collide
// on the same path string.
const workspaceFileSalt = "workspace-file:"

// documentPrefix and documentSuffix frame every history document name.
const (
	documentPrefix = "chat-history-"
	documentSuffix = ".json"
)

// FolderIdentity derives the workspace identity from the open folder
// roots: paths are cleaned, sorted, and joined before hashing, so
// multi-root workspaces hash deterministically regardless of open order.
func FolderIdentity(folders []string) string {
	if len(folders) == 0 {
		return NoWorkspaceIdentity
	}
	cleaned := make([]string, 0, len(folders))
	for _, f := range folders {
		cleaned = append(cleaned, filepath.Clean(f))
	}
	sort.Strings(cleaned)
	sum := sha256.Sum256([]byte(strings.Join(cleaned, "|")))
	return hex.EncodeToString(sum[:16])
}

// WorkspaceFileIdentity derives the workspace identity from an explicit
// workspace file path. This is a newer identification mode used by hosts
// that supply a workspace file; it hashes under a distinct scheme from
// FolderIdentity.
func WorkspaceFileIdentity(path string) string {
	if path == "" {
		return NoWorkspaceIdentity
	}
	sum := sha256.Sum256([]byte(workspaceFileSalt + filepath.Clean(path)))
	return hex.EncodeToString(sum[:16])
}

// DocumentName maps a workspace identity to its history document name.
func DocumentName(identity string) string {
	return documentPrefix + identity + documentSuffix
}

// IsDocumentName reports whether a directory entry is a history
// document (maintenance sweeps skip temp files and strays).
func IsDocumentName(name string) bool {
	return strings.HasPrefix(name, documentPrefix) && strings.HasSuffix(name, documentSuffix)
}

// MigrateIdentity renames the document for oldIdentity to the name for
// newIdentity when only the old one exists on disk. Hosts that upgrade
// from folder-based to workspace-file-based identification call this
// before opening, so history is not silently lost. Returns whether a
// rename happened.
func (s *Store) MigrateIdentity(oldIdentity, newIdentity string) (bool, error) {
	if oldIdentity == newIdentity {
		return false, nil
	}
	oldName := DocumentName(oldIdentity)
	newName := DocumentName(newIdentity)

	if size, err := s.Size(newName); err != nil || size > 0 {
		return false, err
	}
	oldSize, err := s.Size(oldName)
	if err != nil || oldSize == 0 {
		return false, err
	}

	if err := s.Rename(oldName, newName); err != nil {
		return false, err
	}
	s.logger.Info("migrated history document to workspace-file identity",
		slog.String("from", oldName),
		slog.String("to", newName),
	)
	return true, nil
}
