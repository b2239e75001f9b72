package session

import (
	"context"
	"sync"
	"time"

	"counsel/api/internal/section"
	"counsel/api/internal/util"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

type memoryState struct {
	state     section.State
	expiresAt time.Time
}

type stateKey struct {
	draftID      int64
	generationID string
}

// MemoryStore is the single-process fallback used when REDIS_URL is unset.
type MemoryStore struct {
	mu       sync.Mutex
	locks    map[int64]memoryLock
	states   map[stateKey]memoryState
	lockTTL  time.Duration
	stateTTL time.Duration
	now      func() time.Time
}

func NewMemoryStore(lockTTL, stateTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:    make(map[int64]memoryLock),
		states:   make(map[stateKey]memoryState),
		lockTTL:  lockTTL,
		stateTTL: stateTTL,
		now:      time.Now,
	}
}

func (s *MemoryStore) AcquireTurn(_ context.Context, draftID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if held, ok := s.locks[draftID]; ok && now.Before(held.expiresAt) {
		return "", ErrDraftBusy
	}
	token := util.NewID("lock")
	s.locks[draftID] = memoryLock{token: token, expiresAt: now.Add(s.lockTTL)}
	return token, nil
}

func (s *MemoryStore) ReleaseTurn(_ context.Context, draftID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.locks[draftID]; ok && held.token == token {
		delete(s.locks, draftID)
	}
	return nil
}

func (s *MemoryStore) RefreshTurn(_ context.Context, draftID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	held, ok := s.locks[draftID]
	if !ok || held.token != token || !now.Before(held.expiresAt) {
		return ErrTurnLost
	}
	s.locks[draftID] = memoryLock{token: token, expiresAt: now.Add(s.lockTTL)}
	return nil
}

func (s *MemoryStore) LockTTL() time.Duration {
	return s.lockTTL
}

func (s *MemoryStore) SaveSectionState(_ context.Context, draftID int64, state section.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stateKey{draftID, state.GenerationID}] = memoryState{state: state, expiresAt: s.now().Add(s.stateTTL)}
	return nil
}

func (s *MemoryStore) LoadSectionState(_ context.Context, draftID int64, generationID string) (section.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stateKey{draftID, generationID}
	stored, ok := s.states[key]
	if !ok {
		return section.State{}, ErrStateNotFound
	}
	if !s.now().Before(stored.expiresAt) {
		delete(s.states, key)
		return section.State{}, ErrStateNotFound
	}
	return stored.state, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
