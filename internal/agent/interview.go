package agent

import (
	"context"
	"log/slog"
	"strings"

	"counsel/api/internal/llm"
	"counsel/api/internal/store"
)

type InterviewAgent struct {
	caller
}

func NewInterviewAgent(client llm.Client) *InterviewAgent {
	return &InterviewAgent{caller{client: client}}
}

// GenerateQuestion asks the next clarifying question. extra is optional
// context, such as a section's prior Q&A, appended to the prompt.
func (a *InterviewAgent) GenerateQuestion(ctx context.Context, history []store.Message, extra string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Conversation so far:\n")
	prompt.WriteString(transcript(history))
	if strings.TrimSpace(extra) != "" {
		prompt.WriteString("\n\nAdditional context:\n")
		prompt.WriteString(extra)
	}
	prompt.WriteString("\n\nAsk the next question.")

	out, err := a.invoke(ctx, "generate_question", interviewerInstruction, prompt.String(), 0.7)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (a *InterviewAgent) SummarizeFacts(ctx context.Context, history []store.Message) (string, error) {
	prompt := "Summarise the facts established in this conversation:\n\n" + transcript(history)
	out, err := a.invoke(ctx, "summarize_facts", factsSummaryInstruction, prompt, 0.3)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AssessCompleteness never fails; any service or parse error yields
// DefaultCompleteness.
func (a *InterviewAgent) AssessCompleteness(ctx context.Context, history []store.Message) Completeness {
	prompt := "Assess this interview:\n\n" + transcript(history)
	out, err := a.invoke(ctx, "assess_completeness", completenessInstruction, prompt, 0.1)
	if err != nil {
		slog.Warn("completeness assessment failed", "error", err)
		return DefaultCompleteness()
	}
	decoded := decode[Completeness]("assess_completeness", out)
	if !decoded.OK() {
		return DefaultCompleteness()
	}
	c := decoded.Value
	c.Completeness = clampScore(c.Completeness)
	if c.MissingCritical == nil {
		c.MissingCritical = []string{}
	}
	if c.MissingDesirable == nil {
		c.MissingDesirable = []string{}
	}
	return c
}
