package provider

import (
	"context"
	"errors"
	"fmt"
)

// LineItem is one purchased item as reported by the extraction capability.
// Monetary fields are decimal strings; normalization happens downstream.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// ExtractionResult is the structured output of the extraction capability.
// Raw is the provider's verbatim payload, retained for audit.
type ExtractionResult struct {
	Vendor string
	Date   string
	Total  string
	Items  []LineItem
	Raw    []byte
}

// GenerationResult is the output of the generative capability: a one-line
// narrative and a normalized JSON document. Either part may be empty when
// the model misbehaves; callers decide what that means.
type GenerationResult struct {
	Narrative      string
	NormalizedJSON []byte
	Raw            []byte
}

// ExtractionProvider turns image bytes into structured receipt data.
type ExtractionProvider interface {
	Extract(ctx context.Context, image []byte, contentType string) (ExtractionResult, error)
}

// GenerationProvider turns a structured summary prompt into narrative plus
// normalized JSON.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}

// Error wraps a provider failure with its retry classification.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider error (%s): %v", kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransientError marks err as retriable (timeout, throttling, 5xx).
func NewTransientError(err error) *Error {
	return &Error{Transient: true, Err: err}
}

// NewPermanentError marks err as non-retriable (explicit rejection).
func NewPermanentError(err error) *Error {
	return &Error{Transient: false, Err: err}
}

// IsTransient reports whether err is a retriable provider failure.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
