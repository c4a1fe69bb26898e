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
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Request Bounds
// =============================================================================

const (
	// MaxMessageBodyBytes bounds a single stored message body. Checked in
	// bytes, not runes, so oversized payloads cannot exhaust memory.
	MaxMessageBodyBytes = 500_000

	// MaxRequestCharacters is the character ceiling for one remote
	// request (body text plus serialized tool payloads and context).
	MaxRequestCharacters = 600_000

	// MaxRequestMessages caps how many stored messages are loaded into
	// one remote request before heavier trimming runs.
	MaxRequestMessages = 250
)

// chatValidate is the shared validator for chat request types.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbodybytes", validateMaxBodyBytes)
}

// validateMaxBodyBytes enforces MaxMessageBodyBytes on string fields.
func validateMaxBodyBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBodyBytes
}

// =============================================================================
// AddMessageRequest
// =============================================================================

// AddMessageRequest is the caller-facing shape for appending one message
// to a tab's history.
type AddMessageRequest struct {
	// TabID is the UI-session tab the message belongs to.
	TabID string `json:"tabId" validate:"required"`

	// TabType is the feature surface, defaulting to chat when empty.
	TabType TabType `json:"tabType,omitempty"`

	// ConversationID is the remote session id the message belongs to.
	ConversationID string `json:"conversationId" validate:"required"`

	// ClientType tags the originating client.
	ClientType string `json:"clientType,omitempty"`

	// Message is the turn to append.
	Message Message `json:"message"`
}

// Validate checks structural requirements and body size bounds.
func (r *AddMessageRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid add-message request: %w", err)
	}
	switch r.Message.Type {
	case MessageTypePrompt, MessageTypeAnswer, MessageTypeDirective:
	default:
		return fmt.Errorf("unknown message type %q", r.Message.Type)
	}
	return nil
}
