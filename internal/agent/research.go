package agent

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"counsel/api/internal/llm"
	"counsel/api/internal/search"
)

// Retriever searches the documents uploaded to a draft.
type Retriever interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type ResearchAgent struct {
	caller
	retriever Retriever
}

func NewResearchAgent(client llm.Client, retriever Retriever) *ResearchAgent {
	return &ResearchAgent{caller: caller{client: client}, retriever: retriever}
}

const (
	researchSearchLimit = 5
	factsQueryRunes     = 300
)

// SearchDocuments runs one retrieval query scoped to draftID. Zero matches
// produce an empty result, not an error.
func (a *ResearchAgent) SearchDocuments(ctx context.Context, draftID int64, query string) (DocumentSearch, error) {
	if err := ctx.Err(); err != nil {
		return DocumentSearch{}, err
	}
	out := DocumentSearch{Sources: []DocumentSource{}}
	if strings.TrimSpace(query) == "" || a.retriever == nil {
		return out, nil
	}
	resp := a.retriever.Search(ctx, search.Query{DraftID: draftID, Text: query, Limit: researchSearchLimit})
	for _, r := range resp.Results {
		out.Sources = append(out.Sources, DocumentSource{
			DocumentID: r.DocumentID,
			FileName:   r.FileName,
			Category:   r.Category,
			Excerpt:    r.Content,
			Score:      r.Score,
		})
	}
	out.Results = FormatSources(out.Sources)
	return out, nil
}

// ConductResearch searches the draft's documents for the issue and facts in
// parallel, then asks the model to synthesise the applicable law. A synthesis
// that cannot be decoded is kept verbatim as the only relevantLaw entry.
func (a *ResearchAgent) ConductResearch(ctx context.Context, draftID int64, issue, facts string) (ResearchResult, error) {
	queries := researchQueries(issue, facts)
	found := make([][]DocumentSource, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := a.SearchDocuments(gctx, draftID, q)
			if err != nil {
				return fmt.Errorf("search %q: %w", q, err)
			}
			found[i] = res.Sources
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ResearchResult{}, err
	}

	var sources []DocumentSource
	for _, batch := range found {
		sources = MergeSources(sources, batch)
	}

	findings := FormatSources(sources)
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Issue:\n%s\n\nFacts:\n%s\n\n", issue, facts)
	if findings != "" {
		prompt.WriteString("Excerpts from the client's documents:\n")
		prompt.WriteString(findings)
	} else {
		prompt.WriteString("No client documents matched; rely on general authorities.")
	}

	out, err := a.invoke(ctx, "conduct_research", researchInstruction, prompt.String(), 0.3)
	if err != nil {
		return ResearchResult{}, err
	}

	result := ResearchResult{
		DocumentFindings:         findings,
		RelevantLaw:              []string{},
		Precedents:               []string{},
		AdditionalResearchNeeded: []string{},
		Citations:                citations(sources),
	}
	decoded := decode[ResearchResult]("conduct_research", out)
	if !decoded.OK() {
		result.RelevantLaw = []string{strings.TrimSpace(out)}
		return result, nil
	}
	if decoded.Value.RelevantLaw != nil {
		result.RelevantLaw = decoded.Value.RelevantLaw
	}
	if decoded.Value.Precedents != nil {
		result.Precedents = decoded.Value.Precedents
	}
	if decoded.Value.AdditionalResearchNeeded != nil {
		result.AdditionalResearchNeeded = decoded.Value.AdditionalResearchNeeded
	}
	return result, nil
}

func researchQueries(issue, facts string) []string {
	candidates := []string{
		strings.TrimSpace(issue),
		strings.TrimSpace(truncate(facts, factsQueryRunes)),
	}
	if issue = strings.TrimSpace(issue); issue != "" {
		candidates = append(candidates, issue+" law regulation ruling")
	}
	var out []string
	seen := map[string]bool{}
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// MergeSources appends incoming sources whose file name is not yet present.
// The first occurrence of a file name wins. The result never aliases existing.
func MergeSources(existing, incoming []DocumentSource) []DocumentSource {
	out := make([]DocumentSource, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, s := range existing {
		seen[s.FileName] = true
		out = append(out, s)
	}
	for _, s := range incoming {
		if seen[s.FileName] {
			continue
		}
		seen[s.FileName] = true
		out = append(out, s)
	}
	return out
}

// FormatSources renders sources as a numbered excerpt list.
func FormatSources(sources []DocumentSource) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, s.FileName, s.Category, strings.TrimSpace(s.Excerpt))
	}
	return strings.TrimSpace(b.String())
}

func citations(sources []DocumentSource) []Citation {
	out := make([]Citation, 0, len(sources))
	for _, s := range sources {
		out = append(out, Citation{DocumentID: s.DocumentID, FileName: s.FileName, Category: s.Category})
	}
	return out
}
