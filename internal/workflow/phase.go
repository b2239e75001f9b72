// Package workflow routes conversation turns to the agent that fits the
// draft's current phase or the user's explicit intent.
package workflow

import (
	"context"
	"encoding/json"
	"strings"

	"counsel/api/internal/agent"
	"counsel/api/internal/store"
)

type Phase string

const (
	PhaseInterview Phase = "interview"
	PhaseResearch  Phase = "research"
	PhaseAnalysis  Phase = "analysis"
	PhaseDrafting  Phase = "drafting"
	PhaseReview    Phase = "review"
	PhaseComplete  Phase = "complete"
)

var phaseOrder = []Phase{PhaseInterview, PhaseResearch, PhaseAnalysis, PhaseDrafting, PhaseReview, PhaseComplete}

// Rank orders phases; unknown phases rank -1.
func (p Phase) Rank() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool {
	return p.Rank() >= 0
}

// ParsePhase accepts "" as no phase.
func ParsePhase(raw string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" || p.Valid() {
		return p, nil
	}
	return "", ErrUnknownPhase
}

// WorkflowState is derived from the phase a turn leaves the draft in.
type WorkflowState struct {
	Phase            Phase `json:"phase"`
	Completeness     int   `json:"completeness"`
	FactsEstablished bool  `json:"factsEstablished"`
	ResearchComplete bool  `json:"researchComplete"`
	AnalysisComplete bool  `json:"analysisComplete"`
	DraftComplete    bool  `json:"draftComplete"`
	ReviewComplete   bool  `json:"reviewComplete"`
	ReadyForExport   bool  `json:"readyForExport"`
}

func newWorkflowState(next Phase, completeness int) WorkflowState {
	rank := next.Rank()
	return WorkflowState{
		Phase:            next,
		Completeness:     completeness,
		FactsEstablished: rank > PhaseInterview.Rank(),
		ResearchComplete: rank > PhaseResearch.Rank(),
		AnalysisComplete: rank > PhaseAnalysis.Rank(),
		DraftComplete:    rank > PhaseDrafting.Rank(),
		ReviewComplete:   rank > PhaseReview.Rank(),
		ReadyForExport:   next == PhaseComplete,
	}
}

const markerWindow = 5

// stageMarkers are scanned in order; the first one missing from the recent
// metadata names the phase.
var stageMarkers = []struct {
	marker string
	phase  Phase
}{
	{"research", PhaseResearch},
	{"analysis", PhaseAnalysis},
	{"drafting", PhaseDrafting},
}

// DeterminePhase infers the phase from conversation history alone.
func (o *Orchestrator) DeterminePhase(ctx context.Context, history []store.Message) Phase {
	phase, _ := o.determinePhase(ctx, history)
	return phase
}

func (o *Orchestrator) determinePhase(ctx context.Context, history []store.Message) (Phase, agent.Completeness) {
	if len(history) == 0 {
		return PhaseInterview, agent.Completeness{}
	}
	completeness := o.interviewer.AssessCompleteness(ctx, history)
	if !completeness.ReadyToProceed {
		return PhaseInterview, completeness
	}
	return phaseFromMarkers(history), completeness
}

func phaseFromMarkers(history []store.Message) Phase {
	start := len(history) - markerWindow
	if start < 0 {
		start = 0
	}
	var recent strings.Builder
	for _, m := range history[start:] {
		if len(m.Metadata) == 0 {
			continue
		}
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			continue
		}
		recent.Write(raw)
	}
	scanned := recent.String()
	for _, stage := range stageMarkers {
		if !strings.Contains(scanned, stage.marker) {
			return stage.phase
		}
	}
	return PhaseReview
}
