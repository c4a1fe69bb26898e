// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the persisted conversation record model for
// the chat history subsystem.
//
// The package is pure data: stored records (Tab, Conversation, Message),
// the remote-API turn shapes they map to, the UI display shapes they map
// from, and the grouping helpers used by the history panel. Nothing here
// touches disk or holds state; the transformations are side-effect free
// and copy-on-write at every collection boundary.
package datatypes

import (
	"encoding/json"
)

// =============================================================================
// Enums
// =============================================================================

// MessageType distinguishes user, assistant, and system-injected messages.
type MessageType string

const (
	// MessageTypePrompt is a user-authored message.
	MessageTypePrompt MessageType = "prompt"

	// MessageTypeAnswer is an assistant response.
	MessageTypeAnswer MessageType = "answer"

	// MessageTypeDirective is a system-injected message (tool narration,
	// notices). Directives are display-only and never part of the
	// alternating request sequence.
	MessageTypeDirective MessageType = "directive"
)

// TabType identifies the feature surface a conversation belongs to.
type TabType string

const (
	TabTypeChat           TabType = "chat"
	TabTypeDocGeneration  TabType = "doc-generation"
	TabTypeCodeReview     TabType = "code-review"
	TabTypeTestGeneration TabType = "test-generation"
)

// ToolResultStatus reports the outcome of a tool invocation.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// CancelledToolResultText is the body of a synthesized error result for
// a tool use the user never answered.
const CancelledToolResultText = "Tool use was cancelled by the user"

// =============================================================================
// Tool Use / Tool Result
// =============================================================================

// ToolUse is an action the assistant requested in an answer.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Explanation extracts the optional human-readable explanation field
// from the tool input. The input is an opaque structured value; this is
// a narrow typed read of one field, not a full decode.
func (t ToolUse) Explanation() (string, bool) {
	if len(t.Input) == 0 {
		return "", false
	}
	var in struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(t.Input, &in); err != nil {
		return "", false
	}
	if in.Explanation == "" {
		return "", false
	}
	return in.Explanation, true
}

// ToolResult is the outcome of a previously requested tool use, attached
// to the user prompt that follows the requesting answer.
type ToolResult struct {
	ToolUseID string           `json:"toolUseId"`
	Content   json.RawMessage  `json:"content,omitempty"`
	Status    ToolResultStatus `json:"status"`
}

// NewCancelledToolResult synthesizes an error-status result for a tool
// use that never received a real result.
func NewCancelledToolResult(toolUseID string) ToolResult {
	content, _ := json.Marshal([]map[string]string{{"text": CancelledToolResultText}})
	return ToolResult{
		ToolUseID: toolUseID,
		Content:   content,
		Status:    ToolResultError,
	}
}

// =============================================================================
// Message
// =============================================================================

// UserInputMessageContext carries tool results plus editor and file
// context for a user turn. EditorState and AdditionalContext are opaque
// payloads shaped by the host editor.
type UserInputMessageContext struct {
	ToolResults       []ToolResult    `json:"toolResults,omitempty"`
	EditorState       json.RawMessage `json:"editorState,omitempty"`
	AdditionalContext json.RawMessage `json:"additionalContext,omitempty"`
}

// RelatedContent is attribution metadata attached to an answer.
type RelatedContent struct {
	Title   string            `json:"title,omitempty"`
	Content []json.RawMessage `json:"content"`
}

// Message is one stored conversation turn.
//
// Timestamps are Unix milliseconds UTC. Hidden marks synthetic
// placeholder messages that are stored but never rendered.
type Message struct {
	Body       string                   `json:"body" validate:"maxbodybytes"`
	Type       MessageType              `json:"type"`
	MessageID  string                   `json:"messageId,omitempty"`
	UserIntent string                   `json:"userIntent,omitempty"`
	Origin     string                   `json:"origin,omitempty"`
	ToolUses   []ToolUse                `json:"toolUses,omitempty"`
	Context    *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
	Hidden     bool                     `json:"hidden,omitempty"`

	CodeReference  json.RawMessage `json:"codeReference,omitempty"`
	RelatedContent *RelatedContent `json:"relatedContent,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// IsEmptyAnswer reports whether the message is an assistant turn that
// resolved with no content and no tool uses (a cancelled or failed
// in-flight response).
func (m Message) IsEmptyAnswer() bool {
	return m.Type == MessageTypeAnswer && m.Body == "" && len(m.ToolUses) == 0
}

// ToolResults returns the tool results carried in the message context,
// nil-safe.
func (m Message) ToolResults() []ToolResult {
	if m.Context == nil {
		return nil
	}
	return m.Context.ToolResults
}

// CharacterCount approximates the request cost of the message: body text
// plus the JSON-serialized tool uses, tool results, and editor/file
// context.
func (m Message) CharacterCount() int {
	count := len(m.Body)
	if len(m.ToolUses) > 0 {
		if data, err := json.Marshal(m.ToolUses); err == nil {
			count += len(data)
		}
	}
	if m.Context != nil {
		if len(m.Context.ToolResults) > 0 {
			if data, err := json.Marshal(m.Context.ToolResults); err == nil {
				count += len(data)
			}
		}
		count += len(m.Context.EditorState)
		count += len(m.Context.AdditionalContext)
	}
	return count
}

// =============================================================================
// Conversation
// =============================================================================

// Conversation is one remote chat session under a tab. Messages are
// chronological and append-only; only trimming and eviction remove from
// the head.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	ClientType     string    `json:"clientType,omitempty"`
	Messages       []Message `json:"messages"`
}

// UpsertConversation returns a new conversation list with the message
// appended to the conversation with the given id, or with a new
// conversation appended when none matches. The input list is never
// mutated.
func UpsertConversation(conversations []Conversation, conversationID string, message Message, clientType string) []Conversation {
	out := make([]Conversation, len(conversations))
	copy(out, conversations)

	for i := range out {
		if out[i].ConversationID == conversationID {
			messages := make([]Message, len(out[i].Messages), len(out[i].Messages)+1)
			copy(messages, out[i].Messages)
			out[i].Messages = append(messages, message)
			return out
		}
	}

	return append(out, Conversation{
		ConversationID: conversationID,
		ClientType:     clientType,
		Messages:       []Message{message},
	})
}

// =============================================================================
// Tab
// =============================================================================

// Tab is a conversation container. HistoryID is server-independent,
// unique, and immutable once minted; the UI-session tabId association is
// volatile and never persisted here.
type Tab struct {
	HistoryID     string         `json:"historyId"`
	IsOpen        bool           `json:"isOpen,omitempty"`
	UpdatedAt     int64          `json:"updatedAt"`
	TabType       TabType        `json:"tabType"`
	Title         string         `json:"title,omitempty"`
	Conversations []Conversation `json:"conversations"`
}

// Messages returns all of the tab's messages flattened in chronological
// order across conversations.
func (t Tab) Messages() []Message {
	var out []Message
	for _, c := range t.Conversations {
		out = append(out, c.Messages...)
	}
	return out
}

// MessageCount returns the total message count across conversations.
func (t Tab) MessageCount() int {
	n := 0
	for _, c := range t.Conversations {
		n += len(c.Messages)
	}
	return n
}

// OldestMessageTimestamp returns the smallest message timestamp in the
// tab, or 0 when no message carries one. Zero sorts as oldest in the
// eviction queue, so untimestamped history is evicted first.
func (t Tab) OldestMessageTimestamp() int64 {
	var oldest int64
	found := false
	for _, c := range t.Conversations {
		for _, m := range c.Messages {
			if m.Timestamp == 0 {
				return 0
			}
			if !found || m.Timestamp < oldest {
				oldest = m.Timestamp
				found = true
			}
		}
	}
	if !found {
		return 0
	}
	return oldest
}
