package section

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"counsel/api/internal/agent"
	"counsel/api/internal/metrics"
	"counsel/api/internal/store"
)

var (
	ErrNotComplete        = errors.New("section questions are not complete")
	ErrAlreadyComplete    = errors.New("section questions are already complete")
	ErrUnknownSectionType = errors.New("unknown section type")
	ErrEmptyAnswer        = errors.New("answer is empty")
	ErrNoPendingQuestion  = errors.New("no pending question")
)

const (
	stageSectionQuestion = "section_question"
	stageSectionAnswer   = "section_answer"
	searchQueryRunes     = 1000
	contextQueryRunes    = 500
)

type messageStore interface {
	InsertMessage(context.Context, store.Message) (store.Message, error)
	ListMessages(context.Context, store.MessageFilter) ([]store.Message, error)
	ListSections(context.Context, int64) ([]store.Section, error)
}

type interviewer interface {
	GenerateQuestion(context.Context, []store.Message, string) (string, error)
	SummarizeFacts(context.Context, []store.Message) (string, error)
}

type researcher interface {
	SearchDocuments(context.Context, int64, string) (agent.DocumentSearch, error)
	ConductResearch(context.Context, int64, string, string) (agent.ResearchResult, error)
}

type analyst interface {
	AnalyzeTaxPosition(context.Context, string, string, string) (agent.TaxAnalysis, error)
}

type drafter interface {
	DraftConclusionSection(context.Context, string, string) (agent.DraftedSection, error)
	DraftCustomSection(context.Context, string, string) (agent.DraftedSection, error)
}

type Generator struct {
	store       messageStore
	interviewer interviewer
	researcher  researcher
	analyst     analyst
	drafter     drafter
	builders    map[agent.SectionType]contentBuilder
}

// contentBuilder turns the assembled section context into section text.
type contentBuilder func(ctx context.Context, in buildInput) (string, error)

type buildInput struct {
	state       State
	draftID     int64
	fullContext string
	previous    []agent.OpinionSection
}

func NewGenerator(messages messageStore, interviewer interviewer, researcher researcher, analyst analyst, drafter drafter) *Generator {
	g := &Generator{
		store:       messages,
		interviewer: interviewer,
		researcher:  researcher,
		analyst:     analyst,
		drafter:     drafter,
	}
	g.builders = map[agent.SectionType]contentBuilder{
		agent.SectionFacts:       g.buildSummary,
		agent.SectionIssue:       g.buildSummary,
		agent.SectionLaw:         g.buildLaw,
		agent.SectionAnalysis:    g.buildAnalysis,
		agent.SectionApplication: g.buildAnalysis,
		agent.SectionConclusion:  g.buildConclusion,
		agent.SectionCustom:      g.buildCustom,
	}
	return g
}

type StartResult struct {
	Question string `json:"question"`
	State    State  `json:"state"`
}

type AnswerResult struct {
	Question string `json:"question,omitempty"`
	Complete bool   `json:"complete"`
	State    State  `json:"state"`
}

// StartSection opens a new drafting thread for sectionType and asks its
// first question.
func (g *Generator) StartSection(ctx context.Context, sectionType agent.SectionType, draftID int64, customTitle string) (StartResult, error) {
	if !validType(sectionType) {
		return StartResult{}, fmt.Errorf("%w: %q", ErrUnknownSectionType, sectionType)
	}
	history, err := g.store.ListMessages(ctx, store.MessageFilter{DraftID: draftID, TopLevelOnly: true})
	if err != nil {
		return StartResult{}, fmt.Errorf("load conversation: %w", err)
	}
	sections, err := g.store.ListSections(ctx, draftID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load sections: %w", err)
	}

	state := State{
		SectionType:      sectionType,
		CustomTitle:      strings.TrimSpace(customTitle),
		Questions:        []QA{},
		GenerationID:     uuid.NewString(),
		DocumentFindings: []Finding{},
	}
	state.SearchQuery = initialSearchQuery(state, sections)

	docs, err := g.researcher.SearchDocuments(ctx, draftID, state.SearchQuery)
	if err != nil {
		return StartResult{}, fmt.Errorf("search documents: %w", err)
	}
	state.DocumentFindings = mergeFindings(state.DocumentFindings, findingsFrom(docs.Sources))

	prompt := fmt.Sprintf("We are drafting the %q section of the opinion.\n\nCompleted sections:\n%s",
		state.Title(), renderSections(sections))
	if len(state.DocumentFindings) > 0 {
		prompt += "\n\nRelevant document excerpts:\n" + renderFindings(state.DocumentFindings)
	}
	asked, err := g.interviewer.GenerateQuestion(ctx, history, prompt)
	if err != nil {
		return StartResult{}, err
	}
	question := openingLine(state) + "\n\n" + asked

	state.Questions = append(state.Questions, QA{Question: question})
	if err := g.persist(ctx, draftID, state, store.RoleAssistant, question, stageSectionQuestion); err != nil {
		return StartResult{}, err
	}
	metrics.SectionQuestions.WithLabelValues(string(sectionType)).Inc()
	return StartResult{Question: question, State: state}, nil
}

// AnswerQuestion records the answer to the pending question, widens the
// document search with it, and either asks a follow-up or completes the
// section. The given state is not modified.
func (g *Generator) AnswerQuestion(ctx context.Context, state State, answer string, draftID int64) (AnswerResult, error) {
	if state.IsComplete {
		return AnswerResult{}, ErrAlreadyComplete
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return AnswerResult{}, ErrEmptyAnswer
	}
	idx := state.CurrentQuestionIndex
	if idx < 0 || idx >= len(state.Questions) {
		return AnswerResult{}, ErrNoPendingQuestion
	}

	next := state.clone()
	next.Questions[idx].Answer = answer
	next.Questions[idx].Answered = true
	if err := g.persist(ctx, draftID, next, store.RoleUser, answer, stageSectionAnswer); err != nil {
		return AnswerResult{}, err
	}
	next.CurrentQuestionIndex = idx + 1

	docs, err := g.researcher.SearchDocuments(ctx, draftID, widenedQuery(next))
	if err != nil {
		return AnswerResult{}, fmt.Errorf("search documents: %w", err)
	}
	next.DocumentFindings = mergeFindings(next.DocumentFindings, findingsFrom(docs.Sources))

	if !needsMoreQuestions(next) {
		next.IsComplete = true
		return AnswerResult{Complete: true, State: next}, nil
	}

	history, err := g.store.ListMessages(ctx, store.MessageFilter{DraftID: draftID, TopLevelOnly: true})
	if err != nil {
		return AnswerResult{}, fmt.Errorf("load conversation: %w", err)
	}
	prompt := fmt.Sprintf("We are drafting the %q section of the opinion. Ask a follow-up question that builds on this exchange:\n\n%s",
		next.Title(), next.transcript())
	question, err := g.interviewer.GenerateQuestion(ctx, history, prompt)
	if err != nil {
		return AnswerResult{}, err
	}
	next.Questions = append(next.Questions, QA{Question: question})
	if err := g.persist(ctx, draftID, next, store.RoleAssistant, question, stageSectionQuestion); err != nil {
		return AnswerResult{}, err
	}
	metrics.SectionQuestions.WithLabelValues(string(next.SectionType)).Inc()
	return AnswerResult{Question: question, Complete: false, State: next}, nil
}

// GenerateContent produces the section text from a completed thread.
// Persisting the result is left to the caller.
func (g *Generator) GenerateContent(ctx context.Context, state State, draftID int64, previous []agent.OpinionSection) (string, error) {
	if !state.IsComplete {
		return "", ErrNotComplete
	}
	build, ok := g.builders[state.SectionType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSectionType, state.SectionType)
	}
	content, err := build(ctx, buildInput{
		state:       state,
		draftID:     draftID,
		fullContext: fullContext(state, previous),
		previous:    previous,
	})
	if err != nil {
		return "", fmt.Errorf("generate %s section: %w", state.SectionType, err)
	}
	return strings.TrimSpace(content) + referencedDocuments(state.DocumentFindings), nil
}

func (g *Generator) buildSummary(ctx context.Context, in buildInput) (string, error) {
	history := []store.Message{{DraftID: in.draftID, Role: store.RoleUser, Content: in.fullContext}}
	return g.interviewer.SummarizeFacts(ctx, history)
}

func (g *Generator) buildLaw(ctx context.Context, in buildInput) (string, error) {
	issue := previousContent(in.previous, agent.SectionIssue)
	if issue == "" {
		issue = in.state.transcript()
	}
	research, err := g.researcher.ConductResearch(ctx, in.draftID, issue, in.fullContext)
	if err != nil {
		return "", err
	}
	return research.Summary(), nil
}

func (g *Generator) buildAnalysis(ctx context.Context, in buildInput) (string, error) {
	issue := previousContent(in.previous, agent.SectionIssue)
	if issue == "" {
		issue = in.state.Title()
	}
	research := previousContent(in.previous, agent.SectionLaw)
	if research == "" {
		research = renderFindings(in.state.DocumentFindings)
	}
	analysis, err := g.analyst.AnalyzeTaxPosition(ctx, in.fullContext, research, issue)
	if err != nil {
		return "", err
	}
	return analysis.Summary(), nil
}

func (g *Generator) buildConclusion(ctx context.Context, in buildInput) (string, error) {
	analysis := previousContent(in.previous, agent.SectionApplication)
	if analysis == "" {
		analysis = previousContent(in.previous, agent.SectionAnalysis)
	}
	if analysis == "" {
		analysis = in.state.transcript()
	}
	drafted, err := g.drafter.DraftConclusionSection(ctx, analysis, in.fullContext)
	if err != nil {
		return "", err
	}
	return drafted.Content, nil
}

func (g *Generator) buildCustom(ctx context.Context, in buildInput) (string, error) {
	drafted, err := g.drafter.DraftCustomSection(ctx, in.state.Title(), in.fullContext)
	if err != nil {
		return "", err
	}
	return drafted.Content, nil
}

func (g *Generator) persist(ctx context.Context, draftID int64, state State, role, content, stage string) error {
	_, err := g.store.InsertMessage(ctx, store.Message{
		DraftID:      draftID,
		Role:         role,
		Content:      content,
		GenerationID: state.GenerationID,
		SectionType:  string(state.SectionType),
		Metadata: map[string]any{
			"stage":         stage,
			"questionIndex": state.CurrentQuestionIndex,
		},
	})
	if err != nil {
		return fmt.Errorf("persist %s message: %w", role, err)
	}
	return nil
}
