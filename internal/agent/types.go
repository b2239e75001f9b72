package agent

import (
	"fmt"
	"strings"
)

// SectionType names a formal part of the opinion.
type SectionType string

const (
	SectionFacts       SectionType = "facts"
	SectionIssue       SectionType = "issue"
	SectionLaw         SectionType = "law"
	SectionAnalysis    SectionType = "analysis"
	SectionApplication SectionType = "application"
	SectionConclusion  SectionType = "conclusion"
	SectionCustom      SectionType = "custom"
)

// DefaultTitle is the heading used when a section has no custom title.
func (t SectionType) DefaultTitle() string {
	switch t {
	case SectionFacts:
		return "Statement of Facts"
	case SectionIssue:
		return "Issue Presented"
	case SectionLaw:
		return "Applicable Law"
	case SectionAnalysis:
		return "Analysis"
	case SectionApplication:
		return "Application of Law to Facts"
	case SectionConclusion:
		return "Conclusion"
	default:
		return "Additional Section"
	}
}

// Completeness is the interviewer's judgement of whether enough facts exist
// to move past the interview.
type Completeness struct {
	Completeness     int      `json:"completeness"`
	MissingCritical  []string `json:"missingCritical"`
	MissingDesirable []string `json:"missingDesirable"`
	ReadyToProceed   bool     `json:"readyToProceed"`
}

// DefaultCompleteness is returned whenever the assessment cannot be made.
func DefaultCompleteness() Completeness {
	return Completeness{
		Completeness:     50,
		MissingCritical:  []string{"manual review needed"},
		MissingDesirable: []string{},
		ReadyToProceed:   false,
	}
}

// DocumentSource is a retrieved excerpt with its provenance.
type DocumentSource struct {
	DocumentID string  `json:"documentId"`
	FileName   string  `json:"fileName"`
	Category   string  `json:"category"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// DocumentSearch is the result of searching one draft's documents.
type DocumentSearch struct {
	Results string           `json:"results"`
	Sources []DocumentSource `json:"sources"`
}

type Citation struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Category   string `json:"category"`
}

type ResearchResult struct {
	RelevantLaw              []string   `json:"relevantLaw"`
	DocumentFindings         string     `json:"documentFindings"`
	Precedents               []string   `json:"precedents"`
	AdditionalResearchNeeded []string   `json:"additionalResearchNeeded"`
	Citations                []Citation `json:"citations"`
}

// Summary renders the research as prose for downstream prompts.
func (r ResearchResult) Summary() string {
	var b strings.Builder
	writeList(&b, "Relevant Law", r.RelevantLaw)
	writeList(&b, "Precedents", r.Precedents)
	if strings.TrimSpace(r.DocumentFindings) != "" {
		b.WriteString("Document Findings:\n")
		b.WriteString(r.DocumentFindings)
		b.WriteString("\n\n")
	}
	writeList(&b, "Additional Research Needed", r.AdditionalResearchNeeded)
	return strings.TrimSpace(b.String())
}

type AlternativePosition struct {
	Position   string   `json:"position"`
	Likelihood string   `json:"likelihood"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

type Risk struct {
	Severity   string `json:"severity"`
	Risk       string `json:"risk"`
	Mitigation string `json:"mitigation"`
}

type TaxAnalysis struct {
	MainIssues           []string              `json:"mainIssues"`
	LegalAnalysis        string                `json:"legalAnalysis"`
	AlternativePositions []AlternativePosition `json:"alternativePositions"`
	Risks                []Risk                `json:"risks"`
	Conclusion           string                `json:"conclusion"`
}

// Summary renders the analysis as prose for downstream prompts and sections.
func (a TaxAnalysis) Summary() string {
	var b strings.Builder
	writeList(&b, "Main Issues", a.MainIssues)
	if a.LegalAnalysis != "" {
		b.WriteString("Legal Analysis:\n")
		b.WriteString(a.LegalAnalysis)
		b.WriteString("\n\n")
	}
	if len(a.AlternativePositions) > 0 {
		b.WriteString("Alternative Positions:\n")
		for _, p := range a.AlternativePositions {
			fmt.Fprintf(&b, "- %s (likelihood: %s)\n", p.Position, p.Likelihood)
			for _, s := range p.Strengths {
				fmt.Fprintf(&b, "  + %s\n", s)
			}
			for _, w := range p.Weaknesses {
				fmt.Fprintf(&b, "  - %s\n", w)
			}
		}
		b.WriteString("\n")
	}
	if len(a.Risks) > 0 {
		b.WriteString("Risks:\n")
		for _, r := range a.Risks {
			fmt.Fprintf(&b, "- [%s] %s. Mitigation: %s\n", r.Severity, r.Risk, r.Mitigation)
		}
		b.WriteString("\n")
	}
	if a.Conclusion != "" {
		b.WriteString("Conclusion:\n")
		b.WriteString(a.Conclusion)
	}
	return strings.TrimSpace(b.String())
}

// DraftedSection is the output of one section drafter.
type DraftedSection struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

// OpinionSection is a finished section in document order.
type OpinionSection struct {
	SectionType SectionType `json:"sectionType"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Order       int         `json:"order"`
}

// OpinionInput feeds the bulk drafting path.
type OpinionInput struct {
	Facts    string
	Issue    string
	Research ResearchResult
	Analysis TaxAnalysis
}

type CompletenessScore struct {
	Score           int      `json:"score"`
	MissingElements []string `json:"missingElements"`
}

type DimensionScore struct {
	Score  int      `json:"score"`
	Issues []string `json:"issues"`
}

type ReviewFeedback struct {
	OverallScore    int               `json:"overallScore"`
	Completeness    CompletenessScore `json:"completeness"`
	Coherence       DimensionScore    `json:"coherence"`
	Citations       DimensionScore    `json:"citations"`
	Logic           DimensionScore    `json:"logic"`
	Recommendations []string          `json:"recommendations"`
	CriticalIssues  []string          `json:"criticalIssues"`
	ReadyForClient  bool              `json:"readyForClient"`
}

type SectionReview struct {
	Score       int      `json:"score"`
	Strengths   []string `json:"strengths"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

type CitationCheck struct {
	Valid            bool     `json:"valid"`
	Issues           []string `json:"issues"`
	MissingCitations []string `json:"missingCitations"`
}

type QualityCheck struct {
	Score    int      `json:"score"`
	Ready    bool     `json:"ready"`
	Blockers []string `json:"blockers"`
	Notes    string   `json:"notes"`
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
