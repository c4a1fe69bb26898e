// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"encoding/json"
)

// DefaultTurnOrigin is the origin recorded on user turns that do not
// carry one.
const DefaultTurnOrigin = "IDE"

// =============================================================================
// Remote Turn Shapes
// =============================================================================

// UserInputTurn is the user half of the remote conversation state.
type UserInputTurn struct {
	Content    string                   `json:"content"`
	UserIntent string                   `json:"userIntent,omitempty"`
	Origin     string                   `json:"origin,omitempty"`
	Context    *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// AssistantTurn is the assistant half of the remote conversation state.
type AssistantTurn struct {
	MessageID string    `json:"messageId,omitempty"`
	Content   string    `json:"content"`
	ToolUses  []ToolUse `json:"toolUses,omitempty"`
}

// ChatTurn is the tagged union the remote API speaks: exactly one of
// UserInput or AssistantResponse is set.
type ChatTurn struct {
	UserInput         *UserInputTurn `json:"userInputMessage,omitempty"`
	AssistantResponse *AssistantTurn `json:"assistantResponseMessage,omitempty"`
}

// ConversationRequest is the shaped payload handed to the remote chat
// client: validated history plus the new turn.
type ConversationRequest struct {
	ConversationID  string     `json:"conversationId,omitempty"`
	History         []ChatTurn `json:"history,omitempty"`
	CurrentTurn     ChatTurn   `json:"currentMessage"`
	CustomizationID string     `json:"customizationArn,omitempty"`
}

// ChatEvent is one partial event from the streamed response.
type ChatEvent struct {
	Content   string     `json:"content,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	ToolUses  []ToolUse  `json:"toolUses,omitempty"`
	Done      bool       `json:"done,omitempty"`
}

// StreamingClient is the contract of the remote chat/completion service.
// The history subsystem only shapes requests for it; it does not speak
// the wire protocol itself.
type StreamingClient interface {
	// SendMessage issues a conversation-state request and returns the
	// request id plus a channel of partial events. The channel is closed
	// after the final event.
	SendMessage(ctx context.Context, req ConversationRequest) (requestID string, events <-chan ChatEvent, err error)
}

// =============================================================================
// Turn <-> Message Mapping
// =============================================================================

// TurnToMessage maps a remote turn to a stored Message. User turns keep
// content, intent, origin, and context (defaulting to an empty context
// when absent). Assistant turns keep content, message id, and tool uses.
// An unrecognized shape maps to an empty prompt.
func TurnToMessage(turn ChatTurn) Message {
	switch {
	case turn.UserInput != nil:
		ctx := turn.UserInput.Context
		if ctx == nil {
			ctx = &UserInputMessageContext{}
		}
		return Message{
			Body:       turn.UserInput.Content,
			Type:       MessageTypePrompt,
			UserIntent: turn.UserInput.UserIntent,
			Origin:     turn.UserInput.Origin,
			Context:    ctx,
		}
	case turn.AssistantResponse != nil:
		toolUses := turn.AssistantResponse.ToolUses
		if toolUses == nil {
			toolUses = []ToolUse{}
		}
		return Message{
			Body:      turn.AssistantResponse.Content,
			Type:      MessageTypeAnswer,
			MessageID: turn.AssistantResponse.MessageID,
			ToolUses:  toolUses,
		}
	default:
		return Message{Type: MessageTypePrompt}
	}
}

// MessageToTurn is the inverse mapping. Answers become assistant turns;
// everything else becomes a user turn with origin defaulting to "IDE"
// and an empty context when none is stored.
func MessageToTurn(m Message) ChatTurn {
	if m.Type == MessageTypeAnswer {
		return ChatTurn{
			AssistantResponse: &AssistantTurn{
				MessageID: m.MessageID,
				Content:   m.Body,
				ToolUses:  m.ToolUses,
			},
		}
	}

	origin := m.Origin
	if origin == "" {
		origin = DefaultTurnOrigin
	}
	ctx := m.Context
	if ctx == nil {
		ctx = &UserInputMessageContext{}
	}
	return ChatTurn{
		UserInput: &UserInputTurn{
			Content:    m.Body,
			UserIntent: m.UserIntent,
			Origin:     origin,
			Context:    ctx,
		},
	}
}

// MessagesToTurns maps a message list pairwise.
func MessagesToTurns(messages []Message) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, MessageToTurn(m))
	}
	return turns
}

// =============================================================================
// Display Mapping
// =============================================================================

// DisplayTurn is one UI-renderable turn.
type DisplayTurn struct {
	Body           string          `json:"body"`
	Type           MessageType     `json:"type"`
	MessageID      string          `json:"messageId,omitempty"`
	CodeReference  json.RawMessage `json:"codeReference,omitempty"`
	RelatedContent *RelatedContent `json:"relatedContent,omitempty"`
}

// MessageToDisplayTurns maps one stored message to one or more display
// turns: the primary turn, plus a synthetic directive turn for each tool
// use whose input carries an explanation (tool actions get narrated
// inline). RelatedContent with an empty content list is dropped.
func MessageToDisplayTurns(m Message) []DisplayTurn {
	primary := DisplayTurn{
		Body:          m.Body,
		Type:          m.Type,
		MessageID:     m.MessageID,
		CodeReference: m.CodeReference,
	}
	if m.RelatedContent != nil && len(m.RelatedContent.Content) > 0 {
		primary.RelatedContent = m.RelatedContent
	}

	turns := []DisplayTurn{primary}
	for _, use := range m.ToolUses {
		if explanation, ok := use.Explanation(); ok {
			turns = append(turns, DisplayTurn{
				Body: explanation,
				Type: MessageTypeDirective,
			})
		}
	}
	return turns
}
