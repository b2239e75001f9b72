package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"counsel/api/internal/agent"
	"counsel/api/internal/export"
	"counsel/api/internal/gitrepo"
	"counsel/api/internal/search"
	"counsel/api/internal/section"
	"counsel/api/internal/session"
	"counsel/api/internal/store"
	"counsel/api/internal/workflow"
)

const (
	commitAuthor   = "Counsel"
	releaseTimeout = 5 * time.Second
)

type dataStore interface {
	InsertMessage(context.Context, store.Message) (store.Message, error)
	ListMessages(context.Context, store.MessageFilter) ([]store.Message, error)
	InsertSection(context.Context, store.Section) (store.Section, error)
	ListSections(context.Context, int64) ([]store.Section, error)
	InsertDocumentChunk(context.Context, store.DocumentChunk) (store.DocumentChunk, error)
	ListDocumentChunks(context.Context, int64) ([]store.DocumentChunk, error)
	Ping(context.Context) error
}

type conversation interface {
	HandleMessage(context.Context, string, []store.Message, int64, workflow.Phase) (workflow.Response, error)
}

type sectionDrafter interface {
	StartSection(context.Context, agent.SectionType, int64, string) (section.StartResult, error)
	AnswerQuestion(context.Context, section.State, string, int64) (section.AnswerResult, error)
	GenerateContent(context.Context, section.State, int64, []agent.OpinionSection) (string, error)
}

type reviewer interface {
	ReviewOpinion(context.Context, []agent.OpinionSection) (agent.ReviewFeedback, error)
	ReviewSection(context.Context, agent.OpinionSection) (agent.SectionReview, error)
	CheckCitations(context.Context, []agent.OpinionSection) agent.CitationCheck
	SuggestImprovements(context.Context, []agent.OpinionSection) []string
	FinalQualityCheck(context.Context, []agent.OpinionSection) (agent.QualityCheck, error)
}

type sessionStore interface {
	AcquireTurn(context.Context, int64) (string, error)
	ReleaseTurn(context.Context, int64, string) error
	RefreshTurn(context.Context, int64, string) error
	LockTTL() time.Duration
	SaveSectionState(context.Context, int64, section.State) error
	LoadSectionState(context.Context, int64, string) (section.State, error)
	Ping(context.Context) error
}

type chunkIndexer interface {
	IndexChunk(search.ChunkRecord)
}

type gitService interface {
	CommitSection(int64, gitrepo.SectionFile, string, string) (gitrepo.CommitInfo, error)
	History(int64, int) ([]gitrepo.CommitInfo, error)
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type Service struct {
	store    dataStore
	workflow conversation
	sections sectionDrafter
	reviewer reviewer
	sessions sessionStore
	index    chunkIndexer
	git      gitService
	exporter exporter
}

func New(dataStore dataStore, orchestrator conversation, sections sectionDrafter, reviewer reviewer, sessions sessionStore, index chunkIndexer, git gitService, exporter exporter) *Service {
	return &Service{
		store:    dataStore,
		workflow: orchestrator,
		sections: sections,
		reviewer: reviewer,
		sessions: sessions,
		index:    index,
		git:      git,
		exporter: exporter,
	}
}

// Ping checks the database and the session store.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.store.Ping(ctx),
		"sessions": s.sessions.Ping(ctx),
	}
}

// withTurn runs fn while holding the draft's turn lock. The lock is
// refreshed at a third of its TTL until fn returns.
func (s *Service) withTurn(ctx context.Context, draftID int64, fn func() error) error {
	token, err := s.sessions.AcquireTurn(ctx, draftID)
	if err != nil {
		if errors.Is(err, session.ErrDraftBusy) {
			return domainError(http.StatusConflict, "DRAFT_BUSY", "Another request for this draft is in progress", nil)
		}
		return err
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepTurn(ctx, draftID, token, done)
	}()
	defer func() {
		close(done)
		wg.Wait()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := s.sessions.ReleaseTurn(releaseCtx, draftID, token); err != nil {
			slog.Warn("release turn lock", "draft_id", draftID, "error", err)
		}
	}()
	return fn()
}

func (s *Service) keepTurn(ctx context.Context, draftID int64, token string, done <-chan struct{}) {
	interval := s.sessions.LockTTL() / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			err := s.sessions.RefreshTurn(refreshCtx, draftID, token)
			cancel()
			if errors.Is(err, session.ErrTurnLost) {
				slog.Error("turn lock lost while turn was running", "draft_id", draftID)
				return
			}
			if err != nil {
				slog.Warn("refresh turn lock", "draft_id", draftID, "error", err)
			}
		}
	}
}

// PostMessage handles one conversation turn. Both sides of the exchange are
// stored only after the turn succeeds.
func (s *Service) PostMessage(ctx context.Context, draftID int64, message, phase string) (workflow.Response, error) {
	if strings.TrimSpace(message) == "" {
		return workflow.Response{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "message is required", nil)
	}
	current, err := workflow.ParsePhase(phase)
	if err != nil {
		return workflow.Response{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}

	var resp workflow.Response
	err = s.withTurn(ctx, draftID, func() error {
		history, err := s.store.ListMessages(ctx, store.MessageFilter{DraftID: draftID, TopLevelOnly: true})
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		resp, err = s.workflow.HandleMessage(ctx, message, history, draftID, current)
		if err != nil {
			return err
		}
		if _, err := s.store.InsertMessage(ctx, store.Message{
			DraftID: draftID,
			Role:    store.RoleUser,
			Content: strings.TrimSpace(message),
		}); err != nil {
			return fmt.Errorf("save user message: %w", err)
		}
		if _, err := s.store.InsertMessage(ctx, store.Message{
			DraftID:  draftID,
			Role:     store.RoleAssistant,
			Content:  resp.Message,
			Metadata: resp.Metadata,
		}); err != nil {
			return fmt.Errorf("save assistant message: %w", err)
		}
		return nil
	})
	if err != nil {
		return workflow.Response{}, err
	}
	return resp, nil
}

func (s *Service) ListMessages(ctx context.Context, draftID int64, generationID string) ([]store.Message, error) {
	filter := store.MessageFilter{DraftID: draftID, TopLevelOnly: generationID == ""}
	if generationID != "" {
		filter.GenerationID = generationID
	}
	return s.store.ListMessages(ctx, filter)
}

type DocumentInput struct {
	FileName string `json:"fileName"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

type UploadResult struct {
	FileName string `json:"fileName"`
	Chunks   int    `json:"chunks"`
}

// UploadDocument splits a document into chunks, stores them and hands each
// chunk to the search index.
func (s *Service) UploadDocument(ctx context.Context, draftID int64, input DocumentInput) (UploadResult, error) {
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return UploadResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "fileName is required", nil)
	}
	chunks := chunkText(input.Content, maxChunkRunes)
	if len(chunks) == 0 {
		return UploadResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil)
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = "general"
	}

	for i, content := range chunks {
		stored, err := s.store.InsertDocumentChunk(ctx, store.DocumentChunk{
			DraftID:    draftID,
			FileName:   fileName,
			Category:   category,
			ChunkIndex: i,
			Content:    content,
		})
		if err != nil {
			return UploadResult{}, err
		}
		s.index.IndexChunk(search.ChunkRecord{
			ID:         stored.ID,
			DraftID:    stored.DraftID,
			FileName:   stored.FileName,
			Category:   stored.Category,
			ChunkIndex: stored.ChunkIndex,
			Content:    stored.Content,
		})
	}
	slog.Info("document uploaded", "draft_id", draftID, "file_name", fileName, "chunks", len(chunks))
	return UploadResult{FileName: fileName, Chunks: len(chunks)}, nil
}

type DocumentSummary struct {
	FileName string `json:"fileName"`
	Category string `json:"category"`
	Chunks   int    `json:"chunks"`
}

// ListDocuments summarizes the documents uploaded to a draft.
func (s *Service) ListDocuments(ctx context.Context, draftID int64) ([]DocumentSummary, error) {
	chunks, err := s.store.ListDocumentChunks(ctx, draftID)
	if err != nil {
		return nil, err
	}
	out := []DocumentSummary{}
	index := map[string]int{}
	for _, c := range chunks {
		i, ok := index[c.FileName]
		if !ok {
			index[c.FileName] = len(out)
			out = append(out, DocumentSummary{FileName: c.FileName, Category: c.Category, Chunks: 1})
			continue
		}
		out[i].Chunks++
	}
	return out, nil
}

// StartSection opens a section drafting thread and stores its state.
func (s *Service) StartSection(ctx context.Context, draftID int64, sectionType, customTitle string) (section.StartResult, error) {
	var result section.StartResult
	err := s.withTurn(ctx, draftID, func() error {
		var err error
		result, err = s.sections.StartSection(ctx, agent.SectionType(strings.TrimSpace(sectionType)), draftID, customTitle)
		if err != nil {
			return err
		}
		return s.sessions.SaveSectionState(ctx, draftID, result.State)
	})
	if err != nil {
		return section.StartResult{}, err
	}
	return result, nil
}

// AnswerSection answers the pending question of a section thread.
func (s *Service) AnswerSection(ctx context.Context, draftID int64, generationID, answer string) (section.AnswerResult, error) {
	var result section.AnswerResult
	err := s.withTurn(ctx, draftID, func() error {
		state, err := s.sessions.LoadSectionState(ctx, draftID, generationID)
		if err != nil {
			return err
		}
		result, err = s.sections.AnswerQuestion(ctx, state, answer, draftID)
		if err != nil {
			return err
		}
		return s.sessions.SaveSectionState(ctx, draftID, result.State)
	})
	if err != nil {
		return section.AnswerResult{}, err
	}
	return result, nil
}

type GeneratedSection struct {
	Section store.Section      `json:"section"`
	Commit  gitrepo.CommitInfo `json:"commit"`
}

// GenerateSection writes the content of a completed section thread, stores
// it and records it in the draft's history.
func (s *Service) GenerateSection(ctx context.Context, draftID int64, generationID string) (GeneratedSection, error) {
	var out GeneratedSection
	err := s.withTurn(ctx, draftID, func() error {
		state, err := s.sessions.LoadSectionState(ctx, draftID, generationID)
		if err != nil {
			return err
		}
		stored, err := s.store.ListSections(ctx, draftID)
		if err != nil {
			return fmt.Errorf("load sections: %w", err)
		}
		content, err := s.sections.GenerateContent(ctx, state, draftID, workflow.OpinionSections(stored))
		if err != nil {
			return err
		}
		saved, err := s.store.InsertSection(ctx, store.Section{
			DraftID:     draftID,
			SectionType: string(state.SectionType),
			Title:       state.Title(),
			Content:     content,
			Order:       sectionOrder(stored, state),
		})
		if err != nil {
			return fmt.Errorf("save section: %w", err)
		}
		out.Section = saved

		commit, err := s.git.CommitSection(draftID, gitrepo.SectionFile{
			SectionType: saved.SectionType,
			Title:       saved.Title,
			Content:     saved.Content,
			Order:       saved.Order,
		}, commitAuthor, "Write "+saved.Title)
		if err != nil {
			slog.Error("commit section", "draft_id", draftID, "order", saved.Order, "error", err)
			return nil
		}
		out.Commit = commit
		return nil
	})
	if err != nil {
		return GeneratedSection{}, err
	}
	return out, nil
}

// sectionOrder reuses the slot of a stored section of the same standard type
// and appends otherwise.
func sectionOrder(stored []store.Section, state section.State) int {
	last := 0
	for _, s := range stored {
		if state.SectionType != agent.SectionCustom && s.SectionType == string(state.SectionType) {
			return s.Order
		}
		if state.SectionType == agent.SectionCustom && s.SectionType == string(agent.SectionCustom) && s.Title == state.Title() {
			return s.Order
		}
		last = max(last, s.Order)
	}
	return last + 1
}

func (s *Service) ListSections(ctx context.Context, draftID int64) ([]store.Section, error) {
	return s.store.ListSections(ctx, draftID)
}

func (s *Service) SectionHistory(_ context.Context, draftID int64, limit int) ([]gitrepo.CommitInfo, error) {
	return s.git.History(draftID, limit)
}

type OpinionReview struct {
	Feedback     agent.ReviewFeedback `json:"feedback"`
	Citations    agent.CitationCheck  `json:"citations"`
	Improvements []string             `json:"improvements"`
}

// ReviewOpinion reviews the stored opinion and adds the advisory citation
// and improvement checks.
func (s *Service) ReviewOpinion(ctx context.Context, draftID int64) (OpinionReview, error) {
	sections, err := s.opinion(ctx, draftID)
	if err != nil {
		return OpinionReview{}, err
	}
	feedback, err := s.reviewer.ReviewOpinion(ctx, sections)
	if err != nil {
		return OpinionReview{}, err
	}
	return OpinionReview{
		Feedback:     feedback,
		Citations:    s.reviewer.CheckCitations(ctx, sections),
		Improvements: s.reviewer.SuggestImprovements(ctx, sections),
	}, nil
}

func (s *Service) QualityCheck(ctx context.Context, draftID int64) (agent.QualityCheck, error) {
	sections, err := s.opinion(ctx, draftID)
	if err != nil {
		return agent.QualityCheck{}, err
	}
	return s.reviewer.FinalQualityCheck(ctx, sections)
}

func (s *Service) ReviewSection(ctx context.Context, draftID int64, order int) (agent.SectionReview, error) {
	sections, err := s.opinion(ctx, draftID)
	if err != nil {
		return agent.SectionReview{}, err
	}
	for _, sec := range sections {
		if sec.Order == order {
			return s.reviewer.ReviewSection(ctx, sec)
		}
	}
	return agent.SectionReview{}, domainError(http.StatusNotFound, "SECTION_NOT_FOUND", fmt.Sprintf("no section with order %d", order), nil)
}

func (s *Service) opinion(ctx context.Context, draftID int64) ([]agent.OpinionSection, error) {
	stored, err := s.store.ListSections(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, agent.ErrNoSections
	}
	return workflow.OpinionSections(stored), nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}
