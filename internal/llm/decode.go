package llm

import (
	"encoding/json"
	"fmt"
)

// Decoded is the tagged outcome of decoding a structured model response:
// either Value is set and Err is nil, or Err describes why the output was
// unusable. Callers choose the fallback policy explicitly.
type Decoded[T any] struct {
	Value T
	Raw   string
	Err   error
}

// OK reports whether decoding succeeded.
func (d Decoded[T]) OK() bool {
	return d.Err == nil
}

// OrDefault returns the decoded value, or fallback on a parse error.
func (d Decoded[T]) OrDefault(fallback T) T {
	if d.Err != nil {
		return fallback
	}
	return d.Value
}

// Must returns the value, or an error wrapping ErrMalformedOutput.
func (d Decoded[T]) Must() (T, error) {
	if d.Err != nil {
		var zero T
		return zero, d.Err
	}
	return d.Value, nil
}

// DecodeJSON extracts and decodes the JSON object in a model response.
func DecodeJSON[T any](response string) Decoded[T] {
	out := Decoded[T]{Raw: response}
	payload := ExtractJSON(response)
	if payload == "" {
		out.Err = fmt.Errorf("%w: no JSON object in response", ErrMalformedOutput)
		return out
	}
	if err := json.Unmarshal([]byte(payload), &out.Value); err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out
}
