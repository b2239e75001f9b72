package workflow

import (
	"context"
	"fmt"
	"strings"

	"counsel/api/internal/agent"
	"counsel/api/internal/store"
)

func (o *Orchestrator) handlePhase(ctx context.Context, t *turn) (Response, error) {
	h, ok := o.phases[t.phase]
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownPhase, t.phase)
	}
	return h(ctx, t)
}

func (o *Orchestrator) handleDocumentQuery(ctx context.Context, t *turn) (Response, error) {
	docs, err := o.researcher.SearchDocuments(ctx, t.draftID, t.message)
	if err != nil {
		return Response{}, err
	}
	var msg string
	if len(docs.Sources) == 0 {
		msg = "I could not find anything in the uploaded documents that matches your question."
	} else {
		msg = fmt.Sprintf("I found %d relevant excerpts in your documents:\n\n%s", len(docs.Sources), docs.Results)
	}
	resp := respond(msg, t.phase, t.phase, o.completenessFor(ctx, t).Completeness, "document_query")
	resp.Sources = docs.Sources
	return resp, nil
}

func (o *Orchestrator) handleInterview(ctx context.Context, t *turn) (Response, error) {
	c := o.completenessFor(ctx, t)
	question, err := o.interviewer.GenerateQuestion(ctx, t.history, "")
	if err != nil {
		return Response{}, err
	}
	next := PhaseInterview
	if c.ReadyToProceed {
		next = PhaseResearch
	}
	resp := respond(question, PhaseInterview, next, c.Completeness, "interview")
	resp.Suggestions = append([]string(nil), c.MissingCritical...)
	resp.Metadata["completeness"] = c.Completeness
	return resp, nil
}

// factBase is the shared groundwork of the research, analysis and drafting
// handlers.
type factBase struct {
	facts    string
	issue    string
	research agent.ResearchResult
}

func (o *Orchestrator) gatherResearch(ctx context.Context, t *turn) (factBase, error) {
	facts, err := o.interviewer.SummarizeFacts(ctx, t.history)
	if err != nil {
		return factBase{}, err
	}
	issue := headingSection(facts, "Tax Issue")
	if issue == "" {
		issue = t.message
	}
	research, err := o.researcher.ConductResearch(ctx, t.draftID, issue, facts)
	if err != nil {
		return factBase{}, err
	}
	return factBase{facts: facts, issue: issue, research: research}, nil
}

func (o *Orchestrator) handleResearch(ctx context.Context, t *turn) (Response, error) {
	base, err := o.gatherResearch(ctx, t)
	if err != nil {
		return Response{}, err
	}
	msg := "Here is what the research found:\n\n" + base.research.Summary()
	resp := respond(msg, PhaseResearch, PhaseAnalysis, o.completenessFor(ctx, t).Completeness, "research")
	resp.Sources = citationSources(base.research.Citations)
	resp.Suggestions = append(append([]string(nil), base.research.AdditionalResearchNeeded...), "Continue to the analysis")
	return resp, nil
}

func (o *Orchestrator) handleAnalysis(ctx context.Context, t *turn) (Response, error) {
	base, err := o.gatherResearch(ctx, t)
	if err != nil {
		return Response{}, err
	}
	analysis, err := o.analyst.AnalyzeTaxPosition(ctx, base.facts, base.research.Summary(), base.issue)
	if err != nil {
		return Response{}, err
	}
	resp := respond(analysis.Summary(), PhaseAnalysis, PhaseDrafting, o.completenessFor(ctx, t).Completeness, "analysis")
	resp.Sources = citationSources(base.research.Citations)
	resp.Suggestions = []string{"Draft the opinion"}
	return resp, nil
}

// handleDrafting drafts the whole opinion and stores each section before
// responding.
func (o *Orchestrator) handleDrafting(ctx context.Context, t *turn) (Response, error) {
	base, err := o.gatherResearch(ctx, t)
	if err != nil {
		return Response{}, err
	}
	analysis, err := o.analyst.AnalyzeTaxPosition(ctx, base.facts, base.research.Summary(), base.issue)
	if err != nil {
		return Response{}, err
	}
	sections, err := o.drafter.DraftCompleteOpinion(ctx, agent.OpinionInput{
		Facts:    base.facts,
		Issue:    base.issue,
		Research: base.research,
		Analysis: analysis,
	})
	if err != nil {
		return Response{}, err
	}

	var b strings.Builder
	b.WriteString("I drafted the opinion:\n\n")
	for _, s := range sections {
		if _, err := o.sections.InsertSection(ctx, store.Section{
			DraftID:     t.draftID,
			SectionType: string(s.SectionType),
			Title:       s.Title,
			Content:     s.Content,
			Order:       s.Order,
		}); err != nil {
			return Response{}, fmt.Errorf("save %s section: %w", s.SectionType, err)
		}
		fmt.Fprintf(&b, "%d. %s\n", s.Order, s.Title)
	}
	resp := respond(strings.TrimSpace(b.String()), PhaseDrafting, PhaseReview, o.completenessFor(ctx, t).Completeness, "drafting")
	resp.Sources = citationSources(base.research.Citations)
	resp.Suggestions = []string{"Review the opinion", "Edit a section"}
	return resp, nil
}

func (o *Orchestrator) handleReview(ctx context.Context, t *turn) (Response, error) {
	stored, err := o.sections.ListSections(ctx, t.draftID)
	if err != nil {
		return Response{}, err
	}
	if len(stored) == 0 {
		resp := respond("There is no drafted opinion to review yet. Ask me to draft the opinion first.",
			t.phase, t.phase, o.completenessFor(ctx, t).Completeness, "")
		resp.Suggestions = []string{"Draft the opinion"}
		return resp, nil
	}
	feedback, err := o.reviewer.ReviewOpinion(ctx, OpinionSections(stored))
	if err != nil {
		return Response{}, err
	}

	phase := PhaseReview
	if feedback.ReadyForClient {
		phase = PhaseComplete
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Overall score: %d/100\n", feedback.OverallScore)
	fmt.Fprintf(&b, "Completeness %d, coherence %d, citations %d, logic %d.\n",
		feedback.Completeness.Score, feedback.Coherence.Score, feedback.Citations.Score, feedback.Logic.Score)
	if feedback.ReadyForClient {
		b.WriteString("The opinion is ready for the client.")
	} else {
		b.WriteString("The opinion needs more work before it goes to the client.")
	}
	resp := respond(b.String(), phase, phase, o.completenessFor(ctx, t).Completeness, "review")
	resp.Suggestions = append(append([]string(nil), feedback.CriticalIssues...), feedback.Recommendations...)
	resp.Metadata["overallScore"] = feedback.OverallScore
	resp.Metadata["readyForClient"] = feedback.ReadyForClient
	return resp, nil
}

func (o *Orchestrator) handleComplete(ctx context.Context, t *turn) (Response, error) {
	resp := respond("The opinion has passed review. You can export it as PDF, Word, HTML or Markdown.",
		PhaseComplete, PhaseComplete, o.completenessFor(ctx, t).Completeness, "complete")
	resp.Suggestions = []string{"Export as PDF", "Export as DOCX"}
	return resp, nil
}

// OpinionSections converts stored sections to the agents' section type.
func OpinionSections(stored []store.Section) []agent.OpinionSection {
	out := make([]agent.OpinionSection, 0, len(stored))
	for _, s := range stored {
		out = append(out, agent.OpinionSection{
			SectionType: agent.SectionType(s.SectionType),
			Title:       s.Title,
			Content:     s.Content,
			Order:       s.Order,
		})
	}
	return out
}

func citationSources(citations []agent.Citation) []agent.DocumentSource {
	out := make([]agent.DocumentSource, 0, len(citations))
	for _, c := range citations {
		out = append(out, agent.DocumentSource{DocumentID: c.DocumentID, FileName: c.FileName, Category: c.Category})
	}
	return out
}

var summaryHeadings = []string{
	"taxpayer information",
	"tax issue",
	"key facts",
	"transaction details",
	"relevant considerations",
	"information gaps",
}

// headingSection returns the body under heading in a facts summary, or ""
// when the heading is absent.
func headingSection(summary, heading string) string {
	want := strings.ToLower(heading)
	var body []string
	inside := false
	for _, line := range strings.Split(summary, "\n") {
		name := normalizeHeading(line)
		if isHeading(name) {
			if inside {
				break
			}
			inside = name == want
			continue
		}
		if inside {
			body = append(body, line)
		}
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

func normalizeHeading(line string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(line), "#*: "))
}

func isHeading(name string) bool {
	for _, h := range summaryHeadings {
		if name == h {
			return true
		}
	}
	return false
}
