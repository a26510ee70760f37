package session

import (
	"context"
	"sync"

	sessionModel "github.com/lingobridge/backend/internal/model/session"
)

// MemoryStore keeps sessions in process memory. Suitable for single-node
// deployments and tests; sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionModel.Session
	byCode   map[string]string
}

// NewMemoryStore bootstraps the in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]sessionModel.Session),
		byCode:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *sessionModel.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicateID
	}
	m.sessions[s.ID] = *s
	if s.SessionCode != "" {
		m.byCode[s.SessionCode] = s.ID
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*sessionModel.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := s
	return &copied, nil
}

func (m *MemoryStore) GetByCode(ctx context.Context, code string) (*sessionModel.Session, error) {
	m.mu.RLock()
	id, ok := m.byCode[code]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) Update(_ context.Context, s *sessionModel.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return ErrUnknownID
	}
	m.sessions[s.ID] = *s
	if s.SessionCode != "" {
		m.byCode[s.SessionCode] = s.ID
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
