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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
)

func TestSearchMessages_MatchesSubstring(t *testing.T) {
	s := newReadyStore(t)
	seedMessages(t, s, "tab-1", prompt("how do I parse YAML"), answer("use the yaml package"))
	seedMessages(t, s, "tab-2", prompt("unrelated topic"), answer("nothing here"))

	result := s.SearchMessages(context.Background(), "YAML")
	require.Len(t, result.Groups, 1)
	require.Len(t, result.Groups[0].Items, 1)
	assert.Contains(t, result.Groups[0].Items[0].Description, "how do I parse YAML")
	assert.GreaterOrEqual(t, result.Elapsed, time.Duration(0))
}

func TestSearchMessages_CaseInsensitive(t *testing.T) {
	s := newReadyStore(t)
	seedMessages(t, s, "tab-1", prompt("Mixed Case Needle"), answer("a"))

	result := s.SearchMessages(context.Background(), "mixed case")
	require.Len(t, result.Groups, 1)
	assert.Len(t, result.Groups[0].Items, 1)
}

func TestSearchMessages_NoMatchSentinel(t *testing.T) {
	s := newReadyStore(t)
	seedMessages(t, s, "tab-1", prompt("p"), answer("a"))

	result := s.SearchMessages(context.Background(), "zzz-not-present")
	require.Len(t, result.Groups, 1)
	require.Len(t, result.Groups[0].Items, 1)
	item := result.Groups[0].Items[0]
	assert.Equal(t, NoMatchesText, item.Description)
	assert.Empty(t, item.Actions)
	assert.Empty(t, item.ID)
}

func TestSearchMessages_EmptyQueryReturnsHistory(t *testing.T) {
	s := newReadyStore(t)
	seedMessages(t, s, "tab-1", prompt("anything"), answer("a"))

	result := s.SearchMessages(context.Background(), "   ")
	require.Len(t, result.Groups, 1)
	assert.Equal(t, datatypes.GroupToday, result.Groups[0].Name)
}

func TestSearchMessages_MatchesAnswerBody(t *testing.T) {
	s := newReadyStore(t)
	seedMessages(t, s, "tab-1", prompt("p"), answer("the secret is in the answer"))

	result := s.SearchMessages(context.Background(), "secret")
	require.Len(t, result.Groups, 1)
	assert.Len(t, result.Groups[0].Items, 1)
}

// =============================================================================
// Debouncer
// =============================================================================

func TestDebouncer_ZeroDelayIsSynchronous(t *testing.T) {
	d := NewDebouncer(0)
	called := false
	d.Do(func() { called = true })
	assert.True(t, called)
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := i
		d.Do(func() {
			calls.Add(1)
			last.Store(int32(i))
		})
	}

	assert.Eventually(t, func() bool {
		return calls.Load() == 1 && last.Load() == 5
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestSearchMessagesDebounced_DeliversLatest(t *testing.T) {
	s := newReadyStore(t)
	seedMessages(t, s, "tab-1", prompt("needle in tab one"), answer("a"))

	// SearchDebounce is zero in the test config, so delivery is
	// synchronous.
	var delivered SearchResult
	s.SearchMessagesDebounced(context.Background(), "needle", func(r SearchResult) {
		delivered = r
	})
	require.Len(t, delivered.Groups, 1)
	assert.Len(t, delivered.Groups[0].Items, 1)
}
