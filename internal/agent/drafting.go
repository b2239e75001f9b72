package agent

import (
	"context"
	"fmt"
	"strings"

	"counsel/api/internal/llm"
)

type DraftingAgent struct {
	caller
}

func NewDraftingAgent(client llm.Client) *DraftingAgent {
	return &DraftingAgent{caller{client: client}}
}

func (a *DraftingAgent) DraftFactsSection(ctx context.Context, facts string) (DraftedSection, error) {
	return a.draft(ctx, SectionFacts, draftFactsInstruction, "Facts:\n"+facts)
}

func (a *DraftingAgent) DraftIssueSection(ctx context.Context, facts, issue string) (DraftedSection, error) {
	return a.draft(ctx, SectionIssue, draftIssueInstruction, fmt.Sprintf("Facts:\n%s\n\nIssue:\n%s", facts, issue))
}

func (a *DraftingAgent) DraftLawSection(ctx context.Context, issue, research string) (DraftedSection, error) {
	return a.draft(ctx, SectionLaw, draftLawInstruction, fmt.Sprintf("Issue:\n%s\n\nResearch:\n%s", issue, research))
}

func (a *DraftingAgent) DraftApplicationSection(ctx context.Context, facts, research, analysis string) (DraftedSection, error) {
	return a.draft(ctx, SectionApplication, draftApplicationInstruction,
		fmt.Sprintf("Facts:\n%s\n\nResearch:\n%s\n\nAnalysis:\n%s", facts, research, analysis))
}

func (a *DraftingAgent) DraftConclusionSection(ctx context.Context, analysis, priorSections string) (DraftedSection, error) {
	return a.draft(ctx, SectionConclusion, draftConclusionInstruction,
		fmt.Sprintf("Analysis:\n%s\n\nEarlier sections:\n%s", analysis, priorSections))
}

// DraftCustomSection drafts a section under a caller-chosen title.
func (a *DraftingAgent) DraftCustomSection(ctx context.Context, title, sectionContext string) (DraftedSection, error) {
	d, err := a.draft(ctx, SectionCustom, draftCustomInstruction, fmt.Sprintf("Title: %s\n\nContext:\n%s", title, sectionContext))
	if err != nil {
		return DraftedSection{}, err
	}
	if strings.TrimSpace(title) != "" {
		d.Title = title
	}
	return d, nil
}

// DraftCompleteOpinion drafts facts, issue, law, application and conclusion
// in that order. The first failing drafter aborts the whole opinion.
func (a *DraftingAgent) DraftCompleteOpinion(ctx context.Context, in OpinionInput) ([]OpinionSection, error) {
	research := in.Research.Summary()
	analysis := in.Analysis.Summary()

	var sections []OpinionSection
	prior := func() string {
		var b strings.Builder
		for _, s := range sections {
			fmt.Fprintf(&b, "%s\n%s\n\n", s.Title, s.Content)
		}
		return strings.TrimSpace(b.String())
	}
	steps := []struct {
		sectionType SectionType
		run         func() (DraftedSection, error)
	}{
		{SectionFacts, func() (DraftedSection, error) { return a.DraftFactsSection(ctx, in.Facts) }},
		{SectionIssue, func() (DraftedSection, error) { return a.DraftIssueSection(ctx, in.Facts, in.Issue) }},
		{SectionLaw, func() (DraftedSection, error) { return a.DraftLawSection(ctx, in.Issue, research) }},
		{SectionApplication, func() (DraftedSection, error) {
			return a.DraftApplicationSection(ctx, in.Facts, research, analysis)
		}},
		{SectionConclusion, func() (DraftedSection, error) { return a.DraftConclusionSection(ctx, analysis, prior()) }},
	}
	for i, step := range steps {
		d, err := step.run()
		if err != nil {
			return nil, fmt.Errorf("draft %s section: %w", step.sectionType, err)
		}
		sections = append(sections, OpinionSection{
			SectionType: step.sectionType,
			Title:       d.Title,
			Content:     d.Content,
			Order:       i + 1,
		})
	}
	return sections, nil
}

func (a *DraftingAgent) draft(ctx context.Context, sectionType SectionType, instruction, prompt string) (DraftedSection, error) {
	operation := "draft_" + string(sectionType)
	out, err := a.invoke(ctx, operation, instruction, prompt, 0.4)
	if err != nil {
		return DraftedSection{}, err
	}
	d, err := decode[DraftedSection](operation, out).Must()
	if err != nil {
		return DraftedSection{}, err
	}
	if strings.TrimSpace(d.Content) == "" {
		return DraftedSection{}, fmt.Errorf("%w: %s section has no content", llm.ErrMalformedOutput, sectionType)
	}
	if strings.TrimSpace(d.Title) == "" {
		d.Title = sectionType.DefaultTitle()
	}
	if d.Citations == nil {
		d.Citations = []string{}
	}
	return d, nil
}
