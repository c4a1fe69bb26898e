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
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
)

// NoMatchesText is the sentinel description returned when a search
// matches nothing. The sentinel item carries no actions.
const NoMatchesText = "No matches found"

// SearchResult carries the grouped matches plus the elapsed search time
// reported to the host telemetry sink.
type SearchResult struct {
	Groups  []datatypes.HistoryGroup
	Elapsed time.Duration
}

// SearchMessages runs a case-insensitive substring match over all
// message bodies across all tabs. An empty query short-circuits to the
// full grouped history.
func (s *Store) SearchMessages(ctx context.Context, query string) SearchResult {
	_, span := historyTracer.Start(ctx, "chat.History.SearchMessages")
	defer span.End()

	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return SearchResult{Groups: s.History(), Elapsed: time.Since(start)}
	}

	var matched []datatypes.Tab
	doc := s.document()
	if doc != nil {
		needle := strings.ToLower(query)
		for _, tab := range doc.Tabs() {
			if tabMatches(tab, needle) {
				matched = append(matched, tab)
			}
		}
	}

	elapsed := time.Since(start)
	historySearchDuration.Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("matches", len(matched)))

	if len(matched) == 0 {
		return SearchResult{Groups: placeholderGroup(NoMatchesText), Elapsed: elapsed}
	}
	return SearchResult{Groups: datatypes.GroupTabsByDate(matched, time.Now()), Elapsed: elapsed}
}

func tabMatches(tab datatypes.Tab, lowerNeedle string) bool {
	for _, c := range tab.Conversations {
		for _, m := range c.Messages {
			if strings.Contains(strings.ToLower(m.Body), lowerNeedle) {
				return true
			}
		}
	}
	return false
}

// SearchMessagesDebounced schedules a search after the configured
// debounce window; a newer call within the window cancels the pending
// one so only the latest query produces a result.
func (s *Store) SearchMessagesDebounced(ctx context.Context, query string, deliver func(SearchResult)) {
	s.searchDebouncer.Do(func() {
		deliver(s.SearchMessages(ctx, query))
	})
}

// =============================================================================
// Debouncer
// =============================================================================

// Debouncer coalesces bursts of calls into the trailing one. A zero
// delay runs callbacks synchronously (useful in tests).
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer creates a Debouncer with the given trailing delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn after the delay, canceling any still-pending call.
func (d *Debouncer) Do(fn func()) {
	if d.delay <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
