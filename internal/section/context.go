package section

import (
	"fmt"
	"strings"

	"counsel/api/internal/agent"
	"counsel/api/internal/store"
)

var searchTemplates = map[agent.SectionType]string{
	agent.SectionFacts:      "facts background transaction parties dates amounts agreement",
	agent.SectionIssue:      "tax issue question treatment characterization",
	agent.SectionLaw:        "law statute regulation ruling case authority",
	agent.SectionConclusion: "conclusion opinion recommendation position",
}

// initialSearchQuery builds the first retrieval query of a thread. Analysis
// and application search on the finished facts and issue sections.
func initialSearchQuery(state State, sections []store.Section) string {
	switch state.SectionType {
	case agent.SectionAnalysis, agent.SectionApplication:
		var parts []string
		for _, s := range sections {
			if s.SectionType == string(agent.SectionFacts) || s.SectionType == string(agent.SectionIssue) {
				parts = append(parts, s.Content)
			}
		}
		if len(parts) > 0 {
			return truncateRunes(strings.Join(parts, " "), contextQueryRunes)
		}
		return "tax analysis application of law to facts"
	case agent.SectionCustom:
		return state.Title()
	default:
		return searchTemplates[state.SectionType]
	}
}

// widenedQuery extends the thread's base query with the answers given so
// far, newest first, so truncation drops the oldest text.
func widenedQuery(state State) string {
	parts := make([]string, 0, len(state.Questions)+1)
	for i := len(state.Questions) - 1; i >= 0; i-- {
		if q := state.Questions[i]; q.Answered {
			parts = append(parts, q.Answer)
		}
	}
	parts = append(parts, state.SearchQuery)
	return truncateRunes(strings.Join(parts, " "), searchQueryRunes)
}

func openingLine(state State) string {
	n := len(state.DocumentFindings)
	if n == 0 {
		return fmt.Sprintf("Let's draft the %s section. I did not find any uploaded documents for it, so consider uploading documents that support it.", state.Title())
	}
	noun := "documents"
	if n == 1 {
		noun = "document"
	}
	return fmt.Sprintf("Let's draft the %s section. I found %d relevant %s to work from.", state.Title(), n, noun)
}

// fullContext concatenates previous sections, the Q&A transcript and the
// accumulated findings, in that order.
func fullContext(state State, previous []agent.OpinionSection) string {
	var b strings.Builder
	if len(previous) > 0 {
		b.WriteString("Previous sections:\n\n")
		for _, s := range previous {
			fmt.Fprintf(&b, "%s\n%s\n\n", s.Title, strings.TrimSpace(s.Content))
		}
	}
	b.WriteString("Questions and answers for ")
	b.WriteString(state.Title())
	b.WriteString(":\n\n")
	b.WriteString(state.transcript())
	b.WriteString("\n\n")
	if len(state.DocumentFindings) > 0 {
		b.WriteString("Document findings:\n\n")
		b.WriteString(renderFindings(state.DocumentFindings))
	}
	return strings.TrimSpace(b.String())
}

func renderFindings(findings []Finding) string {
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "File: %s\nCategory: %s\n%s\n\n", f.FileName, f.Category, strings.TrimSpace(f.Content))
	}
	return strings.TrimSpace(b.String())
}

func renderSections(sections []store.Section) string {
	if len(sections) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", s.Order, s.Title, truncateRunes(strings.TrimSpace(s.Content), contextQueryRunes))
	}
	return strings.TrimSpace(b.String())
}

func referencedDocuments(findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nReferenced Documents:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s (%s)\n", f.FileName, f.Category)
	}
	return strings.TrimRight(b.String(), "\n")
}

func previousContent(previous []agent.OpinionSection, t agent.SectionType) string {
	for _, s := range previous {
		if s.SectionType == t {
			return s.Content
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
