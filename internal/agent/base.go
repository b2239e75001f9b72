// Package agent implements the generation agents of the opinion workflow.
// Each agent turns conversation, research, or draft text into one or more
// generation-service calls with a fixed instruction, and decodes the reply.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"counsel/api/internal/llm"
	"counsel/api/internal/metrics"
	"counsel/api/internal/store"
)

type caller struct {
	client llm.Client
}

func (c caller) invoke(ctx context.Context, operation, system, prompt string, temperature float32) (string, error) {
	start := time.Now()
	out, err := c.client.Invoke(ctx, system, prompt, temperature)
	metrics.GenerationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationFailures.WithLabelValues(operation).Inc()
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	return out, nil
}

func decode[T any](operation, response string) llm.Decoded[T] {
	decoded := llm.DecodeJSON[T](response)
	if !decoded.OK() {
		metrics.ParseFailures.WithLabelValues(operation).Inc()
		slog.Warn("structured output rejected", "operation", operation, "error", decoded.Err, "response", truncate(response, 200))
	}
	return decoded
}

// transcript renders history as alternating speaker lines.
func transcript(history []store.Message) string {
	if len(history) == 0 {
		return "(no conversation yet)"
	}
	var b strings.Builder
	for _, m := range history {
		speaker := "User"
		if m.Role == store.RoleAssistant {
			speaker = "Assistant"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
