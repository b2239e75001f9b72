package agent

import (
	"context"
	"fmt"

	"counsel/api/internal/llm"
)

type AnalysisAgent struct {
	caller
}

func NewAnalysisAgent(client llm.Client) *AnalysisAgent {
	return &AnalysisAgent{caller{client: client}}
}

// AnalyzeTaxPosition weighs facts against research for the given issue.
// Output that does not decode is an error wrapping llm.ErrMalformedOutput.
func (a *AnalysisAgent) AnalyzeTaxPosition(ctx context.Context, facts, research, issue string) (TaxAnalysis, error) {
	prompt := fmt.Sprintf("Issue:\n%s\n\nFacts:\n%s\n\nResearch:\n%s", issue, facts, research)
	out, err := a.invoke(ctx, "analyze_tax_position", analysisInstruction, prompt, 0.3)
	if err != nil {
		return TaxAnalysis{}, err
	}
	analysis, err := decode[TaxAnalysis]("analyze_tax_position", out).Must()
	if err != nil {
		return TaxAnalysis{}, fmt.Errorf("analyze tax position: %w", err)
	}
	return analysis, nil
}
