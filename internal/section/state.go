// Package section runs the interactive question-and-answer thread that
// drafts one opinion section at a time.
package section

import (
	"strings"
	"unicode/utf8"

	"counsel/api/internal/agent"
)

type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Answered bool   `json:"answered"`
}

// Finding is a document excerpt gathered while drafting a section.
type Finding struct {
	DocumentID string  `json:"documentId,omitempty"`
	Content    string  `json:"content"`
	FileName   string  `json:"fileName"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
}

// State is the value threaded through StartSection, AnswerQuestion and
// GenerateContent. Operations never modify the State they are given; they
// return an updated copy.
type State struct {
	SectionType          agent.SectionType `json:"sectionType"`
	CustomTitle          string            `json:"customTitle,omitempty"`
	Questions            []QA              `json:"questions"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	IsComplete           bool              `json:"isComplete"`
	GenerationID         string            `json:"generationId"`
	DocumentFindings     []Finding         `json:"documentFindings"`
	SearchQuery          string            `json:"searchQuery"`
}

// Title is the custom title when set, otherwise the section type's default.
func (s State) Title() string {
	if strings.TrimSpace(s.CustomTitle) != "" {
		return s.CustomTitle
	}
	return s.SectionType.DefaultTitle()
}

func (s State) AnsweredCount() int {
	n := 0
	for _, q := range s.Questions {
		if q.Answered {
			n++
		}
	}
	return n
}

func (s State) clone() State {
	out := s
	out.Questions = append([]QA(nil), s.Questions...)
	out.DocumentFindings = append([]Finding(nil), s.DocumentFindings...)
	return out
}

// transcript renders the section's Q&A so far.
func (s State) transcript() string {
	var b strings.Builder
	for _, q := range s.Questions {
		b.WriteString("Q: ")
		b.WriteString(q.Question)
		b.WriteString("\n")
		if q.Answered {
			b.WriteString("A: ")
			b.WriteString(q.Answer)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

var maxQuestions = map[agent.SectionType]int{
	agent.SectionFacts:       3,
	agent.SectionIssue:       2,
	agent.SectionLaw:         3,
	agent.SectionAnalysis:    4,
	agent.SectionApplication: 4,
	agent.SectionConclusion:  2,
	agent.SectionCustom:      3,
}

const (
	defaultMaxQuestions = 3
	minAnswered         = 2
	minAnswerRunes      = 200
)

// MaxQuestions is the question cap for a section type.
func MaxQuestions(t agent.SectionType) int {
	if n, ok := maxQuestions[t]; ok {
		return n
	}
	return defaultMaxQuestions
}

// needsMoreQuestions is evaluated in this order: fewer than two answers
// continue, reaching the cap stops, otherwise continue while the answers
// joined by a space are shorter than 200 characters.
func needsMoreQuestions(s State) bool {
	answered := s.AnsweredCount()
	if answered < minAnswered {
		return true
	}
	if answered >= MaxQuestions(s.SectionType) {
		return false
	}
	answers := make([]string, 0, answered)
	for _, q := range s.Questions {
		if q.Answered {
			answers = append(answers, q.Answer)
		}
	}
	return utf8.RuneCountInString(strings.Join(answers, " ")) < minAnswerRunes
}

// mergeFindings appends incoming findings whose file name is not yet
// present. Existing findings are never dropped or replaced.
func mergeFindings(existing, incoming []Finding) []Finding {
	out := make([]Finding, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, f := range existing {
		seen[f.FileName] = true
	}
	for _, f := range incoming {
		if seen[f.FileName] {
			continue
		}
		seen[f.FileName] = true
		out = append(out, f)
	}
	return out
}

func findingsFrom(sources []agent.DocumentSource) []Finding {
	out := make([]Finding, 0, len(sources))
	for _, s := range sources {
		out = append(out, Finding{
			DocumentID: s.DocumentID,
			Content:    s.Excerpt,
			FileName:   s.FileName,
			Category:   s.Category,
			Score:      s.Score,
		})
	}
	return out
}

func validType(t agent.SectionType) bool {
	_, ok := maxQuestions[t]
	return ok
}
