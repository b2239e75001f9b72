package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"counsel/api/internal/agent"
	"counsel/api/internal/section"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), 2*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func sampleState() section.State {
	return section.State{
		SectionType:  agent.SectionIssue,
		GenerationID: "gen-1",
		Questions:    []section.QA{{Question: "What is the issue?", Answer: "Exclusion", Answered: true}},
		DocumentFindings: []section.Finding{
			{FileName: "memo.pdf", Category: "memo", Content: "excerpt", Score: 0.7},
		},
		CurrentQuestionIndex: 1,
		SearchQuery:          "tax issue",
	}
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", time.Minute, time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestTurnLockIsExclusive(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	token, err := store.AcquireTurn(ctx, 7)
	if err != nil {
		t.Fatalf("AcquireTurn failed: %v", err)
	}
	if _, err := store.AcquireTurn(ctx, 7); !errors.Is(err, ErrDraftBusy) {
		t.Fatalf("expected ErrDraftBusy, got %v", err)
	}
	if _, err := store.AcquireTurn(ctx, 8); err != nil {
		t.Fatalf("other drafts must not be blocked: %v", err)
	}

	if err := store.ReleaseTurn(ctx, 7, token); err != nil {
		t.Fatalf("ReleaseTurn failed: %v", err)
	}
	if _, err := store.AcquireTurn(ctx, 7); err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
}

func TestReleaseWithStaleTokenKeepsLock(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	stale, err := store.AcquireTurn(ctx, 1)
	if err != nil {
		t.Fatalf("AcquireTurn failed: %v", err)
	}
	s.FastForward(3 * time.Minute)

	if _, err := store.AcquireTurn(ctx, 1); err != nil {
		t.Fatalf("expected expired lock to be reacquired: %v", err)
	}
	if err := store.ReleaseTurn(ctx, 1, stale); err != nil {
		t.Fatalf("ReleaseTurn failed: %v", err)
	}
	if _, err := store.AcquireTurn(ctx, 1); !errors.Is(err, ErrDraftBusy) {
		t.Fatalf("stale release must not free the new holder's lock, got %v", err)
	}
}

func TestRefreshTurnKeepsLongTurnExclusive(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	token, err := store.AcquireTurn(ctx, 5)
	if err != nil {
		t.Fatalf("AcquireTurn failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		s.FastForward(90 * time.Second)
		if err := store.RefreshTurn(ctx, 5, token); err != nil {
			t.Fatalf("RefreshTurn %d failed: %v", i, err)
		}
		if _, err := store.AcquireTurn(ctx, 5); !errors.Is(err, ErrDraftBusy) {
			t.Fatalf("second turn must be refused after %d refreshes, got %v", i+1, err)
		}
	}
}

func TestRefreshTurnAfterExpiryReportsLost(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	token, err := store.AcquireTurn(ctx, 6)
	if err != nil {
		t.Fatalf("AcquireTurn failed: %v", err)
	}
	s.FastForward(3 * time.Minute)
	if _, err := store.AcquireTurn(ctx, 6); err != nil {
		t.Fatalf("expected expired lock to be reacquired: %v", err)
	}
	if err := store.RefreshTurn(ctx, 6, token); !errors.Is(err, ErrTurnLost) {
		t.Fatalf("expected ErrTurnLost, got %v", err)
	}
}

func TestSectionStateRoundTrip(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	state := sampleState()

	if err := store.SaveSectionState(ctx, 3, state); err != nil {
		t.Fatalf("SaveSectionState failed: %v", err)
	}
	got, err := store.LoadSectionState(ctx, 3, "gen-1")
	if err != nil {
		t.Fatalf("LoadSectionState failed: %v", err)
	}
	if got.SectionType != state.SectionType || got.CurrentQuestionIndex != 1 || len(got.DocumentFindings) != 1 {
		t.Errorf("unexpected state: %+v", got)
	}

	if _, err := store.LoadSectionState(ctx, 4, "gen-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("state must be scoped to its draft, got %v", err)
	}

	s.FastForward(2 * time.Hour)
	if _, err := store.LoadSectionState(ctx, 3, "gen-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected expired state, got %v", err)
	}
}
