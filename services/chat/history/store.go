// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history implements the per-workspace chat history store.
//
// The store owns one workspace's history document (tabs, conversations,
// messages, settings), keeps the volatile tabId-to-historyId mapping for
// open UI tabs, and shapes bounded, well-formed message histories for
// new remote requests. The document loads asynchronously: before the
// load resolves, reads return empty results and writes are deliberate
// no-ops, never errors.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/assistant-lsp/services/chat/config"
	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

// loggerWithTrace returns a logger with trace context attached when a
// span is active.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// =============================================================================
// State Machine
// =============================================================================

// State is the store lifecycle: uninitialized -> initializing -> ready.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// =============================================================================
// Construction
// =============================================================================

// Identity describes how the host identifies the current workspace.
type Identity struct {
	// Folders are the open workspace roots.
	Folders []string

	// WorkspaceFile, when non-empty, selects the newer workspace-file
	// identification mode. A folder-identity document left on disk by an
	// older host is migrated to the new name before use.
	WorkspaceFile string
}

// Options configures a Store.
type Options struct {
	Files      *storage.Store
	Identity   Identity
	Config     config.HistoryConfig
	ClientType string
	Logger     *slog.Logger
}

// Store is the read/write API over one workspace's history document.
//
// Each workspace document is owned by at most one Store at a time; the
// size maintainer opens other workspaces' documents transiently and
// never through a Store. The live workspace's document is the one
// exception: a sweep trims it through this Store's shared Document, and
// an append racing that sweep can re-persist a tab snapshot read before
// the trim. That staleness is accepted; the next sweep re-measures and
// re-evicts.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	cfg        config.HistoryConfig
	files      *storage.Store
	clientType string
	logger     *slog.Logger

	mu           sync.RWMutex
	state        State
	closed       bool
	doc          *Document
	docName      string
	tabToHistory map[string]string
	historyToTab map[string]string

	ready     chan struct{}
	stop      chan struct{}
	autosaver sync.WaitGroup

	searchDebouncer *Debouncer
}

// NewStore creates the store and starts the asynchronous document load.
// Initialization is triggered automatically when the load resolves;
// until then the store answers empty reads and ignores writes.
func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.MaxRequestMessages == 0 {
		cfg = config.Default().History
	}

	s := &Store{
		cfg:             cfg,
		files:           opts.Files,
		clientType:      opts.ClientType,
		logger:          logger.With(slog.String("component", "history_store")),
		state:           StateInitializing,
		tabToHistory:    map[string]string{},
		historyToTab:    map[string]string{},
		ready:           make(chan struct{}),
		stop:            make(chan struct{}),
		searchDebouncer: NewDebouncer(cfg.SearchDebounce),
	}

	go s.initialize(opts.Identity)
	return s
}

// initialize resolves the workspace identity, migrates old-scheme
// documents, loads the backing file, and flips the store to ready. Load
// failures degrade to an empty document: the store stays available.
func (s *Store) initialize(identity Identity) {
	start := time.Now()

	docName := storage.DocumentName(storage.FolderIdentity(identity.Folders))
	if identity.WorkspaceFile != "" {
		newID := storage.WorkspaceFileIdentity(identity.WorkspaceFile)
		oldID := storage.FolderIdentity(identity.Folders)
		if _, err := s.files.MigrateIdentity(oldID, newID); err != nil {
			s.logger.Warn("workspace identity migration failed",
				slog.String("error", err.Error()),
			)
		}
		docName = storage.DocumentName(newID)
	}

	doc, err := OpenDocument(s.files, docName)
	if err != nil {
		s.logger.Error("history document load failed, starting empty",
			slog.String("document", docName),
			slog.String("error", err.Error()),
		)
		doc = &Document{name: docName, files: s.files, index: map[string]int{}}
	}

	s.mu.Lock()
	s.doc = doc
	s.docName = docName
	s.state = StateReady
	s.mu.Unlock()
	close(s.ready)

	elapsed := time.Since(start)
	historyLoadDuration.Observe(elapsed.Seconds())
	s.logger.Info("history store ready",
		slog.String("document", docName),
		slog.Int("tabs", doc.TabCount()),
		slog.Duration("load_time", elapsed),
	)

	s.autosaver.Add(1)
	go s.autosaveLoop()
}

// autosaveLoop flushes the document on a fixed interval, independent of
// caller activity.
func (s *Store) autosaveLoop() {
	defer s.autosaver.Done()
	ticker := time.NewTicker(s.cfg.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.document().Save(); err != nil {
				s.logger.Warn("autosave failed", slog.String("error", err.Error()))
			}
		}
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WaitReady blocks until the document load resolves or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// document returns the open document, or nil before ready.
func (s *Store) document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil
	}
	return s.doc
}

// Document exposes the open document for the size maintainer, which
// reuses it instead of reopening the current workspace's file.
func (s *Store) Document() *Document {
	return s.document()
}

// DocumentName returns the backing file name, empty before ready.
func (s *Store) DocumentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docName
}

// Close stops the autosaver, performs a final save, and clears the
// volatile tab mappings. Idempotent.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.autosaver.Wait()

	var err error
	if doc := s.document(); doc != nil {
		err = doc.Save()
	}

	s.mu.Lock()
	s.tabToHistory = map[string]string{}
	s.historyToTab = map[string]string{}
	s.mu.Unlock()
	s.searchDebouncer.Stop()

	s.logger.Info("history store closed")
	return err
}

// Save flushes the document immediately (explicit save calls on top of
// the autosave interval).
func (s *Store) Save(ctx context.Context) error {
	doc := s.document()
	if doc == nil {
		return nil
	}
	return doc.Save()
}

// =============================================================================
// Reads
// =============================================================================

// Tab returns the tab for a historyId.
func (s *Store) Tab(historyID string) (datatypes.Tab, bool) {
	doc := s.document()
	if doc == nil {
		return datatypes.Tab{}, false
	}
	return doc.Tab(historyID)
}

// OpenTabs returns all tabs flagged open.
func (s *Store) OpenTabs() []datatypes.Tab {
	doc := s.document()
	if doc == nil {
		return nil
	}
	return doc.OpenTabs()
}

// OpenTabID returns the UI tab id currently bound to a historyId. The
// mapping exists only for open tabs and is never persisted.
func (s *Store) OpenTabID(historyID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tabID, ok := s.historyToTab[historyID]
	return tabID, ok
}

// HistoryID returns the historyId mapped to a UI tab id.
func (s *Store) HistoryID(tabID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	historyID, ok := s.tabToHistory[tabID]
	return historyID, ok
}

// NoHistoryText is the sentinel description shown when a workspace has
// no persisted conversations yet.
const NoHistoryText = "You don't have any chat history yet"

// History returns all tabs grouped by date for the history panel, or a
// single placeholder group when the workspace has no history.
func (s *Store) History() []datatypes.HistoryGroup {
	doc := s.document()
	if doc == nil {
		return placeholderGroup(NoHistoryText)
	}
	tabs := doc.Tabs()
	if len(tabs) == 0 {
		return placeholderGroup(NoHistoryText)
	}
	return datatypes.GroupTabsByDate(tabs, time.Now())
}

func placeholderGroup(description string) []datatypes.HistoryGroup {
	return []datatypes.HistoryGroup{{
		Items: []datatypes.HistoryItem{{Description: description}},
	}}
}

// Messages returns up to limit most recent messages for a tab,
// flattened across its conversations. limit <= 0 means all.
func (s *Store) Messages(tabID string, limit int) []datatypes.Message {
	doc := s.document()
	if doc == nil {
		return nil
	}
	historyID, ok := s.HistoryID(tabID)
	if !ok {
		return nil
	}
	tab, ok := doc.Tab(historyID)
	if !ok {
		return nil
	}
	messages := tab.Messages()
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

// =============================================================================
// Writes
// =============================================================================

// AddMessage is the single write entry point: it validates the request,
// mints a historyId for new tabs, applies the write-side cleanup rules,
// and appends the message.
//
// An empty assistant placeholder (blank body, no tool uses) marks a
// cancelled in-flight turn: it is not stored, and the prompt that
// triggered it is popped so no orphaned prompt remains.
func (s *Store) AddMessage(ctx context.Context, req datatypes.AddMessageRequest) error {
	ctx, span := historyTracer.Start(ctx, "chat.History.AddMessage",
		trace.WithAttributes(
			attribute.String("tab_id", req.TabID),
			attribute.String("message_type", string(req.Message.Type)),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	doc := s.document()
	if doc == nil {
		// Pre-initialization writes are deliberately ignored.
		s.logger.Debug("add-message before ready, ignoring", slog.String("tab_id", req.TabID))
		return nil
	}

	historyID := s.bindTab(req.TabID)
	logger := loggerWithTrace(ctx, s.logger).With(slog.String("history_id", historyID))

	if req.Message.IsEmptyAnswer() {
		s.dropAbandonedPrompt(doc, historyID, req.ConversationID)
		logger.Debug("empty assistant placeholder discarded")
		return nil
	}

	message := req.Message
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	if message.Type == datatypes.MessageTypePrompt && message.Context != nil && len(message.Context.ToolResults) > 0 {
		// Tool-heavy turns keep only their results in history; the
		// editor and file context would bloat the stored document.
		message.Context = &datatypes.UserInputMessageContext{
			ToolResults: message.Context.ToolResults,
		}
	}

	tabType := req.TabType
	if tabType == "" {
		tabType = datatypes.TabTypeChat
	}

	now := time.Now().UnixMilli()
	tab, found := doc.Tab(historyID)
	if !found {
		tab = datatypes.Tab{
			HistoryID: historyID,
			IsOpen:    true,
			TabType:   tabType,
		}
	}
	tab.Conversations = datatypes.UpsertConversation(tab.Conversations, req.ConversationID, message, s.clientType)
	tab.UpdatedAt = now
	if message.Type == datatypes.MessageTypePrompt && !message.Hidden && message.Body != "" {
		tab.Title = message.Body
	}
	doc.Upsert(tab)

	historyMessagesAddedTotal.WithLabelValues(string(message.Type)).Inc()
	return nil
}

// bindTab returns the historyId for a UI tab, minting one on first use.
func (s *Store) bindTab(tabID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if historyID, ok := s.tabToHistory[tabID]; ok {
		return historyID
	}
	historyID := uuid.NewString()
	s.tabToHistory[tabID] = historyID
	s.historyToTab[historyID] = tabID
	historyOpenTabsGauge.Set(float64(len(s.tabToHistory)))
	return historyID
}

// dropAbandonedPrompt removes the trailing prompt of a conversation when
// its answer resolved empty. This is the write-side rule; the read-side
// trailing-prompt rule in preprocess.go covers the distinct case of
// history that never got an answer at all.
func (s *Store) dropAbandonedPrompt(doc *Document, historyID, conversationID string) {
	tab, ok := doc.Tab(historyID)
	if !ok {
		return
	}
	for i := range tab.Conversations {
		if tab.Conversations[i].ConversationID != conversationID {
			continue
		}
		messages := tab.Conversations[i].Messages
		if n := len(messages); n > 0 && messages[n-1].Type == datatypes.MessageTypePrompt {
			tab.Conversations[i].Messages = messages[:n-1]
		}
		if len(tab.Conversations[i].Messages) == 0 {
			tab.Conversations = append(tab.Conversations[:i], tab.Conversations[i+1:]...)
		}
		doc.Upsert(tab)
		return
	}
}

// ClearTab removes the tab bound to a UI tab id and releases the
// mapping.
func (s *Store) ClearTab(tabID string) {
	doc := s.document()
	if doc == nil {
		return
	}
	historyID, ok := s.HistoryID(tabID)
	if !ok {
		return
	}
	doc.Remove(historyID)
	s.unbind(tabID, historyID)
}

// DeleteHistory removes a tab by historyId (user-initiated delete from
// the history panel) and releases any open-tab mapping.
func (s *Store) DeleteHistory(historyID string) {
	doc := s.document()
	if doc == nil {
		return
	}
	doc.Remove(historyID)
	if tabID, ok := s.OpenTabID(historyID); ok {
		s.unbind(tabID, historyID)
	}
}

// UpdateTabOpenState flags a tab open or closed. Closing releases the
// volatile mapping; mere inactivity does not.
func (s *Store) UpdateTabOpenState(tabID string, isOpen bool) {
	doc := s.document()
	if doc == nil {
		return
	}
	historyID, ok := s.HistoryID(tabID)
	if !ok {
		return
	}
	if tab, found := doc.Tab(historyID); found {
		tab.IsOpen = isOpen
		doc.Upsert(tab)
	}
	if !isOpen {
		s.unbind(tabID, historyID)
	}
}

func (s *Store) unbind(tabID, historyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tabToHistory, tabID)
	delete(s.historyToTab, historyID)
	historyOpenTabsGauge.Set(float64(len(s.tabToHistory)))
}

// =============================================================================
// Settings
// =============================================================================

// ModelID returns the selected model identifier, empty when unset.
func (s *Store) ModelID() string {
	doc := s.document()
	if doc == nil {
		return ""
	}
	return doc.Settings().ModelID
}

// SetModelID replaces the selected model identifier.
func (s *Store) SetModelID(modelID string) {
	doc := s.document()
	if doc == nil {
		return
	}
	doc.SetSettings(Settings{ModelID: modelID})
}
