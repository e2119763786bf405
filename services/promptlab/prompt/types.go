// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt defines the core PromptLab entities: prompts, their
// versions, and the responses generated from them.
//
// These types are deliberately free of persistence concerns. Stores in
// services/promptlab/store operate on them as plain values.
package prompt

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrAlreadyFinalized is returned when finalizing a non-pending response.
	ErrAlreadyFinalized = errors.New("response already finalized")

	// ErrInvalidStatus is returned for an unknown response status.
	ErrInvalidStatus = errors.New("invalid response status")
)

// -----------------------------------------------------------------------------
// Response Status
// -----------------------------------------------------------------------------

// ResponseStatus is the lifecycle state of an LlmResponse.
//
// A response is created as StatusPending and transitions exactly once to one
// of the terminal states.
type ResponseStatus string

const (
	// StatusPending indicates the call is in flight.
	StatusPending ResponseStatus = "pending"

	// StatusSuccess indicates the call completed normally.
	StatusSuccess ResponseStatus = "success"

	// StatusError indicates the provider returned an error.
	StatusError ResponseStatus = "error"

	// StatusTimeout indicates the call exceeded its deadline.
	StatusTimeout ResponseStatus = "timeout"
)

// Terminal returns true for success, error, and timeout.
func (s ResponseStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusTimeout:
		return true
	default:
		return false
	}
}

// Valid returns true if s is a known status.
func (s ResponseStatus) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// -----------------------------------------------------------------------------
// Prompt and PromptVersion
// -----------------------------------------------------------------------------

// Prompt is a named, versioned text-generation prompt.
type Prompt struct {
	// ID uniquely identifies the prompt.
	ID string `json:"id"`

	// Name is a human-readable identifier (e.g. "support_reply").
	Name string `json:"name"`

	// ActiveVersionID is the version used when no experiment is running.
	ActiveVersionID string `json:"active_version_id"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// PromptVersion is one immutable revision of a prompt's template.
type PromptVersion struct {
	// ID uniquely identifies the version.
	ID string `json:"id"`

	// PromptID references the owning prompt.
	PromptID string `json:"prompt_id"`

	// Number is the monotonically increasing version number.
	Number int `json:"number"`

	// Template is the prompt template text.
	Template string `json:"template"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// LlmResponse
// -----------------------------------------------------------------------------

// LlmResponse is the result of one LLM invocation for a prompt version.
//
// A response is created once per tracked call with StatusPending and
// finalized exactly once via Finalize. When the call was routed through a
// running experiment, ExperimentID and VariantName record which arm produced
// it; both are empty otherwise.
type LlmResponse struct {
	// ID uniquely identifies the response.
	ID string `json:"id"`

	// VersionID references the owning prompt version.
	VersionID string `json:"version_id"`

	// Status is the lifecycle state.
	Status ResponseStatus `json:"status"`

	// Provider is the upstream provider (e.g. "openai", "anthropic").
	Provider string `json:"provider,omitempty"`

	// Model is the provider model identifier.
	Model string `json:"model,omitempty"`

	// RenderedPrompt is the fully rendered prompt sent to the model.
	RenderedPrompt string `json:"rendered_prompt,omitempty"`

	// Text is the generated response text.
	Text string `json:"text,omitempty"`

	// TokensPrompt is the prompt token count reported by the provider.
	TokensPrompt int `json:"tokens_prompt,omitempty"`

	// TokensCompletion is the completion token count.
	TokensCompletion int `json:"tokens_completion,omitempty"`

	// TokensTotal is the total token count.
	TokensTotal int `json:"tokens_total,omitempty"`

	// CostUSD is the computed call cost in US dollars.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// ResponseTimeMs is the wall-clock latency in milliseconds.
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`

	// ExperimentID tags the experiment that routed this call, if any.
	ExperimentID string `json:"experiment_id,omitempty"`

	// VariantName tags the variant that produced this call, if any.
	VariantName string `json:"variant_name,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// NewResponse creates a pending response for the given version.
//
// Inputs:
//   - versionID: The owning prompt version. Must not be empty.
//   - now: Clock function. If nil, time.Now is used.
//
// Outputs:
//   - *LlmResponse: The new pending response. Never nil.
func NewResponse(versionID string, now func() time.Time) *LlmResponse {
	if now == nil {
		now = time.Now
	}
	return &LlmResponse{
		ID:        uuid.NewString(),
		VersionID: versionID,
		Status:    StatusPending,
		CreatedAt: now(),
	}
}

// Finalize transitions the response from pending to a terminal status.
//
// Description:
//
//	Records the outcome of the call. A response may only be finalized once;
//	re-finalizing returns ErrAlreadyFinalized and leaves the response
//	unchanged.
//
// Inputs:
//   - status: Terminal status to set. Must be success, error, or timeout.
//
// Outputs:
//   - error: nil on success, ErrAlreadyFinalized or ErrInvalidStatus.
func (r *LlmResponse) Finalize(status ResponseStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrAlreadyFinalized, r.Status)
	}
	r.Status = status
	return nil
}

// Succeeded returns true if the response completed normally.
func (r *LlmResponse) Succeeded() bool {
	return r.Status == StatusSuccess
}
