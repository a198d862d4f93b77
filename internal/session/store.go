package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists session state between requests.
type Store interface {
	// Get returns the state for id, creating a fresh one if id is unknown or empty.
	Get(ctx context.Context, id string) (*State, error)

	// Save stores the state under its ID.
	Save(ctx context.Context, state *State) error

	// Expire drops states not updated since before.
	Expire(ctx context.Context, before time.Time) (int, error)
}

// DefaultMaxSessions bounds a MemoryStore created by NewMemoryStore.
const DefaultMaxSessions = 10000

// MemoryStore is an in-memory Store. States are copied in and out so callers
// never share a *State across requests. Once MaxSessions states are held, saving a
// new ID evicts the least recently updated one.
type MemoryStore struct {
	MaxSessions int

	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		MaxSessions: DefaultMaxSessions,
		states:      make(map[string]State),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*State, error) {
	m.mu.RLock()
	st, exists := m.states[id]
	m.mu.RUnlock()

	if exists {
		return &st, nil
	}

	return NewState(uuid.NewString()), nil
}

func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.ID]; !exists && m.MaxSessions > 0 {
		for len(m.states) >= m.MaxSessions {
			m.evictOldest()
		}
	}
	m.states[state.ID] = *state
	return nil
}

// evictOldest drops the least recently updated state. The caller holds mu.
func (m *MemoryStore) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
		found    bool
	)
	for id, st := range m.states {
		if !found || st.UpdatedAt.Before(oldest) {
			oldestID, oldest, found = id, st.UpdatedAt, true
		}
	}
	delete(m.states, oldestID)
}

func (m *MemoryStore) Expire(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, st := range m.states {
		if st.UpdatedAt.Before(before) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

var _ Store = (*MemoryStore)(nil)
