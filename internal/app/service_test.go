package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"counsel/api/internal/agent"
	"counsel/api/internal/export"
	"counsel/api/internal/gitrepo"
	"counsel/api/internal/llm"
	"counsel/api/internal/search"
	"counsel/api/internal/section"
	"counsel/api/internal/session"
	"counsel/api/internal/store"
	"counsel/api/internal/workflow"
)

type fakeStore struct {
	mu       sync.Mutex
	messages []store.Message
	sections []store.Section
	chunks   []store.DocumentChunk
	pingFn   func(context.Context) error
	insertFn func(context.Context, store.Message) error
}

func (f *fakeStore) InsertMessage(ctx context.Context, m store.Message) (store.Message, error) {
	if f.insertFn != nil {
		if err := f.insertFn(ctx, m); err != nil {
			return store.Message{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = fmt.Sprintf("msg_%d", len(f.messages)+1)
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) ListMessages(_ context.Context, filter store.MessageFilter) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Message{}
	for _, m := range f.messages {
		if m.DraftID != filter.DraftID {
			continue
		}
		if filter.TopLevelOnly && m.GenerationID != "" {
			continue
		}
		if filter.GenerationID != "" && m.GenerationID != filter.GenerationID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) InsertSection(_ context.Context, s store.Section) (store.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.sections {
		if existing.DraftID == s.DraftID && existing.Order == s.Order {
			s.ID = existing.ID
			f.sections[i] = s
			return s, nil
		}
	}
	s.ID = fmt.Sprintf("sec_%d", len(f.sections)+1)
	f.sections = append(f.sections, s)
	return s, nil
}

func (f *fakeStore) ListSections(_ context.Context, draftID int64) ([]store.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Section{}
	for _, s := range f.sections {
		if s.DraftID == draftID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertDocumentChunk(_ context.Context, c store.DocumentChunk) (store.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = fmt.Sprintf("chk_%d", len(f.chunks)+1)
	f.chunks = append(f.chunks, c)
	return c, nil
}

func (f *fakeStore) ListDocumentChunks(_ context.Context, draftID int64) ([]store.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.DocumentChunk{}
	for _, c := range f.chunks {
		if c.DraftID == draftID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeConversation struct {
	handleFn func(context.Context, string, []store.Message, int64, workflow.Phase) (workflow.Response, error)
}

func (f *fakeConversation) HandleMessage(ctx context.Context, message string, history []store.Message, draftID int64, phase workflow.Phase) (workflow.Response, error) {
	if f.handleFn != nil {
		return f.handleFn(ctx, message, history, draftID, phase)
	}
	return workflow.Response{Message: "What happened?", Phase: workflow.PhaseInterview}, nil
}

type fakeSections struct {
	startFn    func(context.Context, agent.SectionType, int64, string) (section.StartResult, error)
	answerFn   func(context.Context, section.State, string, int64) (section.AnswerResult, error)
	generateFn func(context.Context, section.State, int64, []agent.OpinionSection) (string, error)
}

func (f *fakeSections) StartSection(ctx context.Context, t agent.SectionType, draftID int64, title string) (section.StartResult, error) {
	if f.startFn != nil {
		return f.startFn(ctx, t, draftID, title)
	}
	state := section.State{SectionType: t, CustomTitle: title, GenerationID: "gen-1", Questions: []section.QA{{Question: "Who is the taxpayer?"}}}
	return section.StartResult{Question: "Who is the taxpayer?", State: state}, nil
}

func (f *fakeSections) AnswerQuestion(ctx context.Context, state section.State, answer string, draftID int64) (section.AnswerResult, error) {
	if f.answerFn != nil {
		return f.answerFn(ctx, state, answer, draftID)
	}
	next := state
	next.Questions = append([]section.QA(nil), state.Questions...)
	next.Questions[state.CurrentQuestionIndex].Answer = answer
	next.Questions[state.CurrentQuestionIndex].Answered = true
	next.CurrentQuestionIndex++
	next.IsComplete = true
	return section.AnswerResult{Complete: true, State: next}, nil
}

func (f *fakeSections) GenerateContent(ctx context.Context, state section.State, draftID int64, previous []agent.OpinionSection) (string, error) {
	if f.generateFn != nil {
		return f.generateFn(ctx, state, draftID, previous)
	}
	if !state.IsComplete {
		return "", section.ErrNotComplete
	}
	return "Generated " + state.Title(), nil
}

type fakeReviewer struct {
	reviewFn  func(context.Context, []agent.OpinionSection) (agent.ReviewFeedback, error)
	sectionFn func(context.Context, agent.OpinionSection) (agent.SectionReview, error)
}

func (f *fakeReviewer) ReviewOpinion(ctx context.Context, sections []agent.OpinionSection) (agent.ReviewFeedback, error) {
	if f.reviewFn != nil {
		return f.reviewFn(ctx, sections)
	}
	return agent.ReviewFeedback{OverallScore: 80}, nil
}

func (f *fakeReviewer) ReviewSection(ctx context.Context, s agent.OpinionSection) (agent.SectionReview, error) {
	if f.sectionFn != nil {
		return f.sectionFn(ctx, s)
	}
	return agent.SectionReview{Score: 70}, nil
}

func (f *fakeReviewer) CheckCitations(context.Context, []agent.OpinionSection) agent.CitationCheck {
	return agent.CitationCheck{Valid: true, Issues: []string{}, MissingCitations: []string{}}
}

func (f *fakeReviewer) SuggestImprovements(context.Context, []agent.OpinionSection) []string {
	return []string{"Tighten the conclusion"}
}

func (f *fakeReviewer) FinalQualityCheck(context.Context, []agent.OpinionSection) (agent.QualityCheck, error) {
	return agent.QualityCheck{Score: 85, Ready: true, Blockers: []string{}}, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	records []search.ChunkRecord
}

func (f *fakeIndex) IndexChunk(c search.ChunkRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, c)
}

type fakeGit struct {
	commits  []gitrepo.SectionFile
	commitFn func(int64, gitrepo.SectionFile, string, string) (gitrepo.CommitInfo, error)
}

func (f *fakeGit) CommitSection(draftID int64, file gitrepo.SectionFile, author, message string) (gitrepo.CommitInfo, error) {
	if f.commitFn != nil {
		return f.commitFn(draftID, file, author, message)
	}
	f.commits = append(f.commits, file)
	return gitrepo.CommitInfo{Hash: "abc1234", Message: message, Author: author}, nil
}

func (f *fakeGit) History(int64, int) ([]gitrepo.CommitInfo, error) {
	return []gitrepo.CommitInfo{{Hash: "abc1234"}}, nil
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(ctx, req)
	}
	return &export.Result{Data: []byte("# Opinion\n"), Filename: "opinion.md", MimeType: "text/markdown; charset=utf-8"}, nil
}

type testDeps struct {
	store    *fakeStore
	convo    *fakeConversation
	sections *fakeSections
	reviewer *fakeReviewer
	sessions *session.MemoryStore
	index    *fakeIndex
	git      *fakeGit
	exporter *fakeExporter
}

func newTestService() (*Service, *testDeps) {
	deps := &testDeps{
		store:    &fakeStore{},
		convo:    &fakeConversation{},
		sections: &fakeSections{},
		reviewer: &fakeReviewer{},
		sessions: session.NewMemoryStore(time.Minute, time.Hour),
		index:    &fakeIndex{},
		git:      &fakeGit{},
		exporter: &fakeExporter{},
	}
	svc := New(deps.store, deps.convo, deps.sections, deps.reviewer, deps.sessions, deps.index, deps.git, deps.exporter)
	return svc, deps
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", want)
	}
	status, code, _, _ := mapError(err)
	if status != want {
		t.Fatalf("expected status %d, got %d (%s): %v", want, status, code, err)
	}
}

func TestPostMessageStoresExchangeAfterSuccess(t *testing.T) {
	svc, deps := newTestService()
	var seenHistory int
	deps.convo.handleFn = func(_ context.Context, message string, history []store.Message, draftID int64, phase workflow.Phase) (workflow.Response, error) {
		seenHistory = len(history)
		if phase != "" {
			t.Errorf("expected inferred phase, got %q", phase)
		}
		return workflow.Response{
			Message:  "Research summary",
			Phase:    workflow.PhaseResearch,
			Metadata: map[string]any{"stage": "research"},
		}, nil
	}
	deps.store.messages = []store.Message{
		{DraftID: 1, Role: store.RoleUser, Content: "earlier"},
		{DraftID: 1, Role: store.RoleAssistant, Content: "section question", GenerationID: "gen-x"},
	}

	resp, err := svc.PostMessage(context.Background(), 1, "  research the law  ", "")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if resp.Phase != workflow.PhaseResearch {
		t.Errorf("unexpected phase %q", resp.Phase)
	}
	if seenHistory != 1 {
		t.Errorf("expected only top-level history, got %d messages", seenHistory)
	}
	if len(deps.store.messages) != 4 {
		t.Fatalf("expected 2 new messages, got %d total", len(deps.store.messages))
	}
	user, assistant := deps.store.messages[2], deps.store.messages[3]
	if user.Role != store.RoleUser || user.Content != "research the law" {
		t.Errorf("unexpected user message %+v", user)
	}
	if assistant.Role != store.RoleAssistant || assistant.Metadata["stage"] != "research" {
		t.Errorf("unexpected assistant message %+v", assistant)
	}
}

func TestPostMessageFailureStoresNothing(t *testing.T) {
	svc, deps := newTestService()
	deps.convo.handleFn = func(context.Context, string, []store.Message, int64, workflow.Phase) (workflow.Response, error) {
		return workflow.Response{}, fmt.Errorf("%w: %w", workflow.ErrProcessing, errors.New("timeout"))
	}

	_, err := svc.PostMessage(context.Background(), 1, "hello", "")
	assertStatus(t, err, http.StatusBadGateway)
	if len(deps.store.messages) != 0 {
		t.Errorf("expected no stored messages, got %d", len(deps.store.messages))
	}
	if _, err := deps.sessions.AcquireTurn(context.Background(), 1); err != nil {
		t.Errorf("turn lock must be released after failure: %v", err)
	}
}

func TestPostMessageValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.PostMessage(context.Background(), 1, "   ", "")
	assertStatus(t, err, http.StatusBadRequest)
	_, err = svc.PostMessage(context.Background(), 1, "hi", "celebration")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestPostMessageRejectsBusyDraft(t *testing.T) {
	svc, deps := newTestService()
	if _, err := deps.sessions.AcquireTurn(context.Background(), 4); err != nil {
		t.Fatalf("AcquireTurn() error = %v", err)
	}
	called := false
	deps.convo.handleFn = func(context.Context, string, []store.Message, int64, workflow.Phase) (workflow.Response, error) {
		called = true
		return workflow.Response{}, nil
	}

	_, err := svc.PostMessage(context.Background(), 4, "hello", "")
	assertStatus(t, err, http.StatusConflict)
	if called {
		t.Error("a busy draft must not reach the workflow")
	}
	if _, err := svc.PostMessage(context.Background(), 5, "hello", ""); err != nil {
		t.Errorf("other drafts must not be blocked: %v", err)
	}
}

func TestPostMessageKeepsLockForTurnsLongerThanTTL(t *testing.T) {
	_, deps := newTestService()
	deps.sessions = session.NewMemoryStore(300*time.Millisecond, time.Hour)
	svc := New(deps.store, deps.convo, deps.sections, deps.reviewer, deps.sessions, deps.index, deps.git, deps.exporter)

	var concurrent error
	deps.convo.handleFn = func(context.Context, string, []store.Message, int64, workflow.Phase) (workflow.Response, error) {
		time.Sleep(700 * time.Millisecond)
		_, concurrent = deps.sessions.AcquireTurn(context.Background(), 9)
		return workflow.Response{Message: "done", Phase: workflow.PhaseDrafting}, nil
	}

	if _, err := svc.PostMessage(context.Background(), 9, "draft the opinion", ""); err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if !errors.Is(concurrent, session.ErrDraftBusy) {
		t.Fatalf("a second turn must be refused while a long turn runs, got %v", concurrent)
	}
	if _, err := deps.sessions.AcquireTurn(context.Background(), 9); err != nil {
		t.Errorf("turn lock must be released after the turn: %v", err)
	}
}

func TestPostMessagePassesExplicitPhase(t *testing.T) {
	svc, deps := newTestService()
	deps.convo.handleFn = func(_ context.Context, _ string, _ []store.Message, _ int64, phase workflow.Phase) (workflow.Response, error) {
		if phase != workflow.PhaseDrafting {
			t.Errorf("expected drafting phase, got %q", phase)
		}
		return workflow.Response{Message: "ok", Phase: phase}, nil
	}
	if _, err := svc.PostMessage(context.Background(), 1, "go", "drafting"); err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
}

func TestUploadDocumentChunksAndIndexes(t *testing.T) {
	svc, deps := newTestService()
	content := strings.Repeat("word ", 400) + "\n\nSecond paragraph about basis."

	result, err := svc.UploadDocument(context.Background(), 2, DocumentInput{FileName: " memo.txt ", Content: content})
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if result.FileName != "memo.txt" || result.Chunks != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(deps.index.records) != 2 {
		t.Fatalf("expected 2 indexed chunks, got %d", len(deps.index.records))
	}
	for i, rec := range deps.index.records {
		if rec.ID == "" || rec.DraftID != 2 || rec.Category != "general" || rec.ChunkIndex != i {
			t.Errorf("unexpected record %+v", rec)
		}
	}

	docs, err := svc.ListDocuments(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Chunks != 2 {
		t.Errorf("unexpected documents %+v", docs)
	}
}

func TestUploadDocumentValidation(t *testing.T) {
	svc, deps := newTestService()
	_, err := svc.UploadDocument(context.Background(), 2, DocumentInput{Content: "text"})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = svc.UploadDocument(context.Background(), 2, DocumentInput{FileName: "a.txt", Content: " \n\n "})
	assertStatus(t, err, http.StatusBadRequest)
	if len(deps.store.chunks) != 0 {
		t.Error("invalid uploads must store nothing")
	}
}

func TestSectionLifecycle(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()
	deps.store.sections = []store.Section{{DraftID: 3, SectionType: "facts", Title: "Statement of Facts", Content: "Facts.", Order: 1}}

	var previous []agent.OpinionSection
	deps.sections.generateFn = func(_ context.Context, state section.State, _ int64, prev []agent.OpinionSection) (string, error) {
		previous = prev
		return "The issue is whether the gain is excluded.", nil
	}

	started, err := svc.StartSection(ctx, 3, "issue", "")
	if err != nil {
		t.Fatalf("StartSection() error = %v", err)
	}
	if _, err := svc.GenerateSection(ctx, 3, started.State.GenerationID); err != nil {
		t.Fatalf("GenerateSection() on stored state error = %v", err)
	}

	deps.sections.generateFn = nil
	started, err = svc.StartSection(ctx, 3, "conclusion", "")
	if err != nil {
		t.Fatalf("StartSection() error = %v", err)
	}
	_, err = svc.GenerateSection(ctx, 3, started.State.GenerationID)
	assertStatus(t, err, http.StatusConflict)

	answered, err := svc.AnswerSection(ctx, 3, started.State.GenerationID, "More likely than not.")
	if err != nil {
		t.Fatalf("AnswerSection() error = %v", err)
	}
	if !answered.Complete {
		t.Fatal("expected completed thread")
	}
	stored, err := deps.sessions.LoadSectionState(ctx, 3, started.State.GenerationID)
	if err != nil || !stored.IsComplete {
		t.Fatalf("answered state must be saved: %+v %v", stored, err)
	}

	generated, err := svc.GenerateSection(ctx, 3, started.State.GenerationID)
	if err != nil {
		t.Fatalf("GenerateSection() error = %v", err)
	}
	if generated.Section.Order != 3 || generated.Section.Title != "Conclusion" {
		t.Errorf("unexpected section %+v", generated.Section)
	}
	if generated.Commit.Hash == "" || len(deps.git.commits) != 2 {
		t.Errorf("expected committed sections, got %+v", deps.git.commits)
	}
	if len(previous) != 1 || previous[0].SectionType != agent.SectionFacts {
		t.Errorf("expected stored sections as previous context, got %+v", previous)
	}
}

func TestGenerateSectionKeepsSectionWhenCommitFails(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()
	deps.git.commitFn = func(int64, gitrepo.SectionFile, string, string) (gitrepo.CommitInfo, error) {
		return gitrepo.CommitInfo{}, errors.New("disk full")
	}
	started, err := svc.StartSection(ctx, 8, "facts", "")
	if err != nil {
		t.Fatalf("StartSection() error = %v", err)
	}
	if _, err := svc.AnswerSection(ctx, 8, started.State.GenerationID, "The client sold shares."); err != nil {
		t.Fatalf("AnswerSection() error = %v", err)
	}
	generated, err := svc.GenerateSection(ctx, 8, started.State.GenerationID)
	if err != nil {
		t.Fatalf("GenerateSection() error = %v", err)
	}
	if generated.Section.ID == "" || generated.Commit.Hash != "" {
		t.Errorf("unexpected result %+v", generated)
	}
}

func TestSectionCallsWithUnknownGeneration(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.AnswerSection(context.Background(), 1, "missing", "answer")
	assertStatus(t, err, http.StatusNotFound)
	_, err = svc.GenerateSection(context.Background(), 1, "missing")
	assertStatus(t, err, http.StatusNotFound)
}

func TestStartSectionDomainErrors(t *testing.T) {
	svc, deps := newTestService()
	deps.sections.startFn = func(_ context.Context, sectionType agent.SectionType, _ int64, _ string) (section.StartResult, error) {
		return section.StartResult{}, fmt.Errorf("%w: %q", section.ErrUnknownSectionType, sectionType)
	}
	_, err := svc.StartSection(context.Background(), 1, "preamble", "")
	assertStatus(t, err, http.StatusBadRequest)

	deps.sections.startFn = nil
	deps.sections.answerFn = func(context.Context, section.State, string, int64) (section.AnswerResult, error) {
		return section.AnswerResult{}, section.ErrAlreadyComplete
	}
	started, err := svc.StartSection(context.Background(), 1, "facts", "")
	if err != nil {
		t.Fatalf("StartSection() error = %v", err)
	}
	_, err = svc.AnswerSection(context.Background(), 1, started.State.GenerationID, "more")
	assertStatus(t, err, http.StatusConflict)
}

func TestSectionOrder(t *testing.T) {
	stored := []store.Section{
		{SectionType: "facts", Title: "Statement of Facts", Order: 1},
		{SectionType: "custom", Title: "Penalties", Order: 2},
		{SectionType: "law", Title: "Applicable Law", Order: 4},
	}
	tests := []struct {
		name  string
		state section.State
		want  int
	}{
		{"existing standard type reuses slot", section.State{SectionType: agent.SectionFacts}, 1},
		{"new type appends", section.State{SectionType: agent.SectionConclusion}, 5},
		{"custom with same title reuses slot", section.State{SectionType: agent.SectionCustom, CustomTitle: "Penalties"}, 2},
		{"custom with new title appends", section.State{SectionType: agent.SectionCustom, CustomTitle: "State Tax"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sectionOrder(stored, tt.state); got != tt.want {
				t.Errorf("sectionOrder() = %d, want %d", got, tt.want)
			}
		})
	}
	if got := sectionOrder(nil, section.State{SectionType: agent.SectionIssue}); got != 1 {
		t.Errorf("sectionOrder(empty) = %d, want 1", got)
	}
}

func TestReviewOperations(t *testing.T) {
	svc, deps := newTestService()
	ctx := context.Background()

	_, err := svc.ReviewOpinion(ctx, 6)
	assertStatus(t, err, http.StatusConflict)
	_, err = svc.QualityCheck(ctx, 6)
	assertStatus(t, err, http.StatusConflict)

	deps.store.sections = []store.Section{
		{DraftID: 6, SectionType: "facts", Title: "Statement of Facts", Content: "Facts.", Order: 1},
		{DraftID: 6, SectionType: "conclusion", Title: "Conclusion", Content: "Yes.", Order: 2},
	}
	review, err := svc.ReviewOpinion(ctx, 6)
	if err != nil {
		t.Fatalf("ReviewOpinion() error = %v", err)
	}
	if review.Feedback.OverallScore != 80 || !review.Citations.Valid || len(review.Improvements) != 1 {
		t.Errorf("unexpected review %+v", review)
	}

	var reviewed agent.OpinionSection
	deps.reviewer.sectionFn = func(_ context.Context, s agent.OpinionSection) (agent.SectionReview, error) {
		reviewed = s
		return agent.SectionReview{Score: 90}, nil
	}
	if _, err := svc.ReviewSection(ctx, 6, 2); err != nil {
		t.Fatalf("ReviewSection() error = %v", err)
	}
	if reviewed.SectionType != agent.SectionConclusion {
		t.Errorf("reviewed wrong section %+v", reviewed)
	}
	_, err = svc.ReviewSection(ctx, 6, 9)
	assertStatus(t, err, http.StatusNotFound)

	deps.reviewer.reviewFn = func(context.Context, []agent.OpinionSection) (agent.ReviewFeedback, error) {
		return agent.ReviewFeedback{}, fmt.Errorf("review opinion: %w", llm.ErrMalformedOutput)
	}
	_, err = svc.ReviewOpinion(ctx, 6)
	assertStatus(t, err, http.StatusBadGateway)
}

func TestChunkText(t *testing.T) {
	if got := chunkText("", 10); len(got) != 0 {
		t.Errorf("expected no chunks, got %v", got)
	}
	got := chunkText("alpha beta\n\ngamma\n\n\n\ndelta", 12)
	want := []string{"alpha beta", "gamma\n\ndelta"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("chunkText() = %q, want %q", got, want)
	}
	long := chunkText("one two three four five", 9)
	if strings.Join(long, "|") != "one two|three|four five" {
		t.Errorf("chunkText(long) = %q", long)
	}
}
