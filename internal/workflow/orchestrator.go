package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"counsel/api/internal/agent"
	"counsel/api/internal/metrics"
	"counsel/api/internal/store"
)

var (
	// ErrProcessing wraps every failure raised while handling a turn.
	ErrProcessing   = errors.New("failed to process message")
	ErrEmptyMessage = errors.New("message is empty")
	ErrUnknownPhase = errors.New("unknown phase")
)

type interviewer interface {
	GenerateQuestion(context.Context, []store.Message, string) (string, error)
	SummarizeFacts(context.Context, []store.Message) (string, error)
	AssessCompleteness(context.Context, []store.Message) agent.Completeness
}

type researcher interface {
	SearchDocuments(context.Context, int64, string) (agent.DocumentSearch, error)
	ConductResearch(context.Context, int64, string, string) (agent.ResearchResult, error)
}

type analyst interface {
	AnalyzeTaxPosition(context.Context, string, string, string) (agent.TaxAnalysis, error)
}

type drafter interface {
	DraftCompleteOpinion(context.Context, agent.OpinionInput) ([]agent.OpinionSection, error)
}

type reviewer interface {
	ReviewOpinion(context.Context, []agent.OpinionSection) (agent.ReviewFeedback, error)
}

type sectionStore interface {
	InsertSection(context.Context, store.Section) (store.Section, error)
	ListSections(context.Context, int64) ([]store.Section, error)
}

// Response is the envelope every turn handler returns.
type Response struct {
	Message       string                 `json:"message"`
	Phase         Phase                  `json:"phase"`
	Suggestions   []string               `json:"suggestions,omitempty"`
	Sources       []agent.DocumentSource `json:"sources,omitempty"`
	WorkflowState WorkflowState          `json:"workflowState"`
	Metadata      map[string]any         `json:"metadata,omitempty"`
}

type Orchestrator struct {
	interviewer interviewer
	researcher  researcher
	analyst     analyst
	drafter     drafter
	reviewer    reviewer
	sections    sectionStore
	rules       []rule
	phases      map[Phase]handler
}

func New(interviewer interviewer, researcher researcher, analyst analyst, drafter drafter, reviewer reviewer, sections sectionStore) *Orchestrator {
	o := &Orchestrator{
		interviewer: interviewer,
		researcher:  researcher,
		analyst:     analyst,
		drafter:     drafter,
		reviewer:    reviewer,
		sections:    sections,
	}
	o.phases = map[Phase]handler{
		PhaseInterview: o.handleInterview,
		PhaseResearch:  o.handleResearch,
		PhaseAnalysis:  o.handleAnalysis,
		PhaseDrafting:  o.handleDrafting,
		PhaseReview:    o.handleReview,
		PhaseComplete:  o.handleComplete,
	}
	o.rules = defaultRules(o)
	return o
}

// turn carries everything a handler needs. History includes the user
// message being handled as its last entry.
type turn struct {
	draftID      int64
	message      string
	history      []store.Message
	phase        Phase
	completeness agent.Completeness
	assessed     bool
}

type handler func(ctx context.Context, t *turn) (Response, error)

// HandleMessage handles one user turn. currentPhase, when not empty,
// overrides the phase inferred from history.
func (o *Orchestrator) HandleMessage(ctx context.Context, message string, history []store.Message, draftID int64, currentPhase Phase) (Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}
	if currentPhase != "" && !currentPhase.Valid() {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownPhase, currentPhase)
	}

	t := &turn{draftID: draftID, message: message, phase: currentPhase}
	if t.phase == "" {
		t.phase, t.completeness = o.determinePhase(ctx, history)
		t.assessed = len(history) > 0
	}
	t.history = make([]store.Message, 0, len(history)+1)
	t.history = append(t.history, history...)
	t.history = append(t.history, store.Message{DraftID: draftID, Role: store.RoleUser, Content: message})

	r := o.route(t)
	resp, err := r.handle(ctx, t)
	if err != nil {
		metrics.TurnFailures.WithLabelValues(string(t.phase), r.name).Inc()
		slog.Error("workflow: turn failed",
			"draft_id", draftID,
			"phase", t.phase,
			"intent", r.name,
			"message", truncate(message, 100),
			"error", err,
		)
		return Response{}, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	metrics.TurnsTotal.WithLabelValues(string(t.phase), r.name).Inc()
	return resp, nil
}

// completenessFor assesses the turn's history once and caches the result.
func (o *Orchestrator) completenessFor(ctx context.Context, t *turn) agent.Completeness {
	if !t.assessed {
		t.completeness = o.interviewer.AssessCompleteness(ctx, t.history)
		t.assessed = true
	}
	return t.completeness
}

func respond(message string, phase, next Phase, completeness int, stage string) Response {
	resp := Response{
		Message:       message,
		Phase:         phase,
		WorkflowState: newWorkflowState(next, completeness),
	}
	if stage != "" {
		resp.Metadata = map[string]any{
			"stage":           stage,
			"completedStages": completedStages(next),
		}
	}
	return resp
}

// completedStages lists the stage markers a draft in phase next has passed.
// Carrying them on every stamped message keeps the marker scan from losing
// a stage once it scrolls out of the recent window.
func completedStages(next Phase) []string {
	out := []string{}
	for _, s := range stageMarkers {
		if s.phase.Rank() < next.Rank() {
			out = append(out, s.marker)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
