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
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
)

// OverflowNoticeText replaces the new message body when trimming
// discarded the history a pending tool result depended on.
const OverflowNoticeText = "The conversation history has overflowed and was cleared; the tool results could not be delivered."

// PreprocessedRequest is the shaped output handed to the remote client:
// a bounded, well-formed history prefix plus the (possibly adjusted) new
// user message.
type PreprocessedRequest struct {
	History []datatypes.Message
	Message datatypes.Message
}

// PreprocessedRequestHistory produces the message list to submit
// alongside newMessage, honoring the alternation and tool-pairing
// invariants of the remote API and the remaining character budget.
//
// The steps run in a fixed order, each a hard contract: tail cap,
// trailing-empty-answer drop, sequence repair, tool-result
// reconciliation, character-budget trim, and the overflow edge case.
// A *ToolResultValidationError means the caller must not send the
// request; every other anomaly is repaired locally.
func (s *Store) PreprocessedRequestHistory(ctx context.Context, tabID string, newMessage datatypes.Message, remainingCharacterBudget int) (PreprocessedRequest, error) {
	ctx, span := historyTracer.Start(ctx, "chat.History.PreprocessRequest",
		trace.WithAttributes(
			attribute.String("tab_id", tabID),
			attribute.Int("budget", remainingCharacterBudget),
		),
	)
	defer span.End()

	logger := loggerWithTrace(ctx, s.logger).With(slog.String("tab_id", tabID))

	// Cheap oldest-first truncation before the heavier passes.
	messages := s.Messages(tabID, s.cfg.MaxRequestMessages)

	messages = dropTrailingEmptyAnswer(messages)
	messages = fixMessageSequence(messages, &newMessage)

	if err := reconcileToolResults(messages, &newMessage, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool result validation failed")
		return PreprocessedRequest{}, err
	}

	messages = trimToCharacterBudget(messages, remainingCharacterBudget)

	// Results that survived reconciliation but lost their requesting
	// answer to the trim cannot be contextualized.
	if len(messages) == 0 && len(newMessage.ToolResults()) > 0 {
		logger.Warn("history overflowed with pending tool results, discarding results")
		historyPreprocessDropsTotal.WithLabelValues("overflow").Inc()
		newMessage.Context.ToolResults = nil
		newMessage.Body = OverflowNoticeText
	}

	span.SetAttributes(attribute.Int("history_messages", len(messages)))
	return PreprocessedRequest{History: messages, Message: newMessage}, nil
}

// dropTrailingEmptyAnswer removes a trailing empty assistant turn and
// the prompt that triggered it. This mirrors the write-side cleanup in
// AddMessage for documents persisted before that rule existed.
func dropTrailingEmptyAnswer(messages []datatypes.Message) []datatypes.Message {
	n := len(messages)
	if n == 0 || !messages[n-1].IsEmptyAnswer() {
		return messages
	}
	messages = messages[:n-1]
	if n := len(messages); n > 0 && messages[n-1].Type == datatypes.MessageTypePrompt {
		messages = messages[:n-1]
	}
	historyPreprocessDropsTotal.WithLabelValues("empty_answer").Inc()
	return messages
}

// role collapses message types to the two remote roles: answers are
// assistant turns, everything else rides as user input.
func role(t datatypes.MessageType) string {
	if t == datatypes.MessageTypeAnswer {
		return "assistant"
	}
	return "user"
}

// fixMessageSequence repairs a stored history so that it is either empty
// or starts with a prompt, ends with an answer, and alternates strictly.
//
// Rules, in order:
//   - directives are display-only and never sent, drop them
//   - drop leading messages until the first prompt
//   - a trailing prompt means history ended mid-turn: its tool results
//     are carried forward onto the new message so an in-flight result is
//     not lost, then the prompt is dropped (distinct from the write-side
//     empty-answer rule: this turn never got an answer at all)
//   - drop trailing messages until the sequence ends with an answer
//   - walk the remainder and drop any message repeating the previous
//     role
//   - if the last survivor matches the new message's role, drop it too
func fixMessageSequence(messages []datatypes.Message, newMessage *datatypes.Message) []datatypes.Message {
	kept := make([]datatypes.Message, 0, len(messages))
	for _, m := range messages {
		if m.Type != datatypes.MessageTypeDirective {
			kept = append(kept, m)
		}
	}
	messages = kept

	for len(messages) > 0 && messages[0].Type != datatypes.MessageTypePrompt {
		messages = messages[1:]
		historyPreprocessDropsTotal.WithLabelValues("leading_answer").Inc()
	}

	if n := len(messages); n > 0 && messages[n-1].Type == datatypes.MessageTypePrompt {
		if results := messages[n-1].ToolResults(); len(results) > 0 {
			if newMessage.Context == nil {
				newMessage.Context = &datatypes.UserInputMessageContext{}
			}
			newMessage.Context.ToolResults = append(newMessage.Context.ToolResults, results...)
		}
		messages = messages[:n-1]
		historyPreprocessDropsTotal.WithLabelValues("trailing_prompt").Inc()
	}

	for n := len(messages); n > 0 && messages[n-1].Type != datatypes.MessageTypeAnswer; n = len(messages) {
		messages = messages[:n-1]
		historyPreprocessDropsTotal.WithLabelValues("trailing_non_answer").Inc()
	}

	out := messages[:0:0]
	for _, m := range messages {
		if len(out) > 0 && role(out[len(out)-1].Type) == role(m.Type) {
			historyPreprocessDropsTotal.WithLabelValues("broken_alternation").Inc()
			continue
		}
		out = append(out, m)
	}
	messages = out

	if n := len(messages); n > 0 && role(messages[n-1].Type) == role(newMessage.Type) {
		messages = messages[:n-1]
		historyPreprocessDropsTotal.WithLabelValues("same_role_tail").Inc()
	}

	return messages
}

// reconcileToolResults verifies the new message's tool results against
// the tool uses the preceding answer actually requested: results for
// unrequested ids are dropped, and a requested id with no result gets a
// synthesized error result. An empty history is left for the overflow
// edge case downstream.
//
// Returns *ToolResultValidationError when results were supplied but the
// preceding answer requested nothing and the message has no content of
// its own; nothing recoverable can be sent in that state.
func reconcileToolResults(messages []datatypes.Message, newMessage *datatypes.Message, logger *slog.Logger) error {
	if len(messages) == 0 {
		return nil
	}

	last := messages[len(messages)-1]
	var requested []datatypes.ToolUse
	if last.Type == datatypes.MessageTypeAnswer {
		requested = last.ToolUses
	}

	supplied := newMessage.ToolResults()
	if len(requested) == 0 {
		if len(supplied) > 0 && newMessage.Body == "" {
			return &ToolResultValidationError{
				Reason: fmt.Sprintf("%d tool results supplied but the preceding assistant message requested no tool uses", len(supplied)),
			}
		}
		if len(supplied) > 0 {
			logger.Warn("dropping tool results with no requesting tool uses",
				slog.Int("dropped", len(supplied)),
			)
			newMessage.Context.ToolResults = nil
		}
		return nil
	}

	byID := make(map[string]datatypes.ToolResult, len(supplied))
	for _, r := range supplied {
		if _, dup := byID[r.ToolUseID]; !dup {
			byID[r.ToolUseID] = r
		}
	}

	reconciled := make([]datatypes.ToolResult, 0, len(requested))
	for _, use := range requested {
		if r, ok := byID[use.ID]; ok {
			reconciled = append(reconciled, r)
			delete(byID, use.ID)
			continue
		}
		logger.Debug("synthesizing cancelled tool result", slog.String("tool_use_id", use.ID))
		reconciled = append(reconciled, datatypes.NewCancelledToolResult(use.ID))
	}
	for id := range byID {
		logger.Warn("dropping tool result for unrequested tool use", slog.String("tool_use_id", id))
	}

	if newMessage.Context == nil {
		newMessage.Context = &datatypes.UserInputMessageContext{}
	}
	newMessage.Context.ToolResults = reconciled
	return nil
}

// isCleanPrompt reports whether a message can anchor a trimmed history:
// a prompt with a context object, no tool results, and a non-empty body.
// Cutting anywhere else would strand a tool-use pair.
func isCleanPrompt(m datatypes.Message) bool {
	return m.Type == datatypes.MessageTypePrompt &&
		m.Context != nil &&
		len(m.Context.ToolResults) == 0 &&
		m.Body != ""
}

// trimToCharacterBudget drops oldest messages until the history fits the
// character budget, cutting only at clean prompts at index >= 2 so the
// result stays well formed. With no viable anchor the whole history is
// discarded rather than left malformed. Idempotent on its own output.
func trimToCharacterBudget(messages []datatypes.Message, budget int) []datatypes.Message {
	total := 0
	for _, m := range messages {
		total += m.CharacterCount()
	}

	for total > budget && len(messages) > 2 {
		anchor := -1
		for i := 2; i < len(messages); i++ {
			if isCleanPrompt(messages[i]) {
				anchor = i
				break
			}
		}
		if anchor < 0 {
			historyPreprocessDropsTotal.WithLabelValues("budget_discard_all").Inc()
			return nil
		}
		for _, m := range messages[:anchor] {
			total -= m.CharacterCount()
		}
		messages = messages[anchor:]
		historyPreprocessDropsTotal.WithLabelValues("budget_cut").Inc()
	}

	return messages
}
