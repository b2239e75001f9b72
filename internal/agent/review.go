package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"counsel/api/internal/llm"
)

// ErrNoSections is returned when a review is requested for an empty opinion.
var ErrNoSections = errors.New("no sections to review")

type ReviewAgent struct {
	caller
}

func NewReviewAgent(client llm.Client) *ReviewAgent {
	return &ReviewAgent{caller{client: client}}
}

// ReviewOpinion scores the whole opinion. ReadyForClient is taken from the
// model's answer as given.
func (a *ReviewAgent) ReviewOpinion(ctx context.Context, sections []OpinionSection) (ReviewFeedback, error) {
	if len(sections) == 0 {
		return ReviewFeedback{}, ErrNoSections
	}
	out, err := a.invoke(ctx, "review_opinion", reviewOpinionInstruction, "Draft opinion:\n\n"+renderOpinion(sections), 0.2)
	if err != nil {
		return ReviewFeedback{}, err
	}
	feedback, err := decode[ReviewFeedback]("review_opinion", out).Must()
	if err != nil {
		return ReviewFeedback{}, fmt.Errorf("review opinion: %w", err)
	}
	feedback.OverallScore = clampScore(feedback.OverallScore)
	if feedback.CriticalIssues == nil {
		feedback.CriticalIssues = []string{}
	}
	if feedback.Recommendations == nil {
		feedback.Recommendations = []string{}
	}
	return feedback, nil
}

func (a *ReviewAgent) ReviewSection(ctx context.Context, section OpinionSection) (SectionReview, error) {
	prompt := fmt.Sprintf("Section: %s\n\n%s", section.Title, section.Content)
	out, err := a.invoke(ctx, "review_section", reviewSectionInstruction, prompt, 0.2)
	if err != nil {
		return SectionReview{}, err
	}
	review, err := decode[SectionReview]("review_section", out).Must()
	if err != nil {
		return SectionReview{}, fmt.Errorf("review section %q: %w", section.Title, err)
	}
	review.Score = clampScore(review.Score)
	return review, nil
}

// CheckCitations degrades to an empty result on any failure.
func (a *ReviewAgent) CheckCitations(ctx context.Context, sections []OpinionSection) CitationCheck {
	empty := CitationCheck{Valid: true, Issues: []string{}, MissingCitations: []string{}}
	out, err := a.invoke(ctx, "check_citations", citationInstruction, "Draft opinion:\n\n"+renderOpinion(sections), 0.1)
	if err != nil {
		slog.Warn("citation check failed", "error", err)
		return empty
	}
	check := decode[CitationCheck]("check_citations", out).OrDefault(empty)
	if check.Issues == nil {
		check.Issues = []string{}
	}
	if check.MissingCitations == nil {
		check.MissingCitations = []string{}
	}
	return check
}

// SuggestImprovements degrades to an empty list on any failure.
func (a *ReviewAgent) SuggestImprovements(ctx context.Context, sections []OpinionSection) []string {
	type suggestions struct {
		Suggestions []string `json:"suggestions"`
	}
	out, err := a.invoke(ctx, "suggest_improvements", improvementsInstruction, "Draft opinion:\n\n"+renderOpinion(sections), 0.4)
	if err != nil {
		slog.Warn("improvement suggestions failed", "error", err)
		return []string{}
	}
	got := decode[suggestions]("suggest_improvements", out).OrDefault(suggestions{})
	if got.Suggestions == nil {
		return []string{}
	}
	return got.Suggestions
}

func (a *ReviewAgent) FinalQualityCheck(ctx context.Context, sections []OpinionSection) (QualityCheck, error) {
	if len(sections) == 0 {
		return QualityCheck{}, ErrNoSections
	}
	out, err := a.invoke(ctx, "final_quality_check", qualityInstruction, "Opinion:\n\n"+renderOpinion(sections), 0.1)
	if err != nil {
		return QualityCheck{}, err
	}
	check, err := decode[QualityCheck]("final_quality_check", out).Must()
	if err != nil {
		return QualityCheck{}, fmt.Errorf("final quality check: %w", err)
	}
	check.Score = clampScore(check.Score)
	if check.Blockers == nil {
		check.Blockers = []string{}
	}
	return check, nil
}

func renderOpinion(sections []OpinionSection) string {
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n\n%s\n\n", s.Order, s.Title, strings.TrimSpace(s.Content))
	}
	return strings.TrimSpace(b.String())
}
