// Package llm is the boundary to the language-generation service: a single
// text-in/text-out call, plus helpers for decoding the JSON that callers ask
// the model to produce.
package llm

import (
	"context"
	"errors"
)

// Client is the generation service. Implementations are stateless; a call may
// fail and is safe to retry in isolation. No retry is applied here.
type Client interface {
	Invoke(ctx context.Context, systemInstruction, prompt string, temperature float32) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, systemInstruction, prompt string, temperature float32) (string, error)

func (f ClientFunc) Invoke(ctx context.Context, systemInstruction, prompt string, temperature float32) (string, error) {
	return f(ctx, systemInstruction, prompt, temperature)
}

var (
	// ErrEmptyResponse is returned when the service answers without content.
	ErrEmptyResponse = errors.New("generation service returned no content")
	// ErrServiceFailure wraps transport and API errors of the service.
	ErrServiceFailure = errors.New("generation service call failed")
	// ErrMalformedOutput marks structured output that could not be decoded.
	ErrMalformedOutput = errors.New("malformed structured output")
)
