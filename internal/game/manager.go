package game

import (
	"sync"

	"github.com/google/uuid"
)

// Manager indexes running session runners by session ID and by client.
type Manager struct {
	mu       sync.RWMutex
	runners  map[string]*runner
	byClient map[string]string
}

func NewManager() *Manager {
	return &Manager{
		runners:  make(map[string]*runner),
		byClient: make(map[string]string),
	}
}

// Add registers r under a fresh session ID. It fails if the client already
// has a runner.
func (m *Manager) Add(r *runner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byClient[r.clientID]; ok {
		return false
	}
	r.id = uuid.New().String()
	m.runners[r.id] = r
	m.byClient[r.clientID] = r.id
	return true
}

func (m *Manager) ByClient(clientID string) (*runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byClient[clientID]
	if !ok {
		return nil, false
	}
	r, ok := m.runners[id]
	return r, ok
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runners[id]; ok {
		delete(m.byClient, r.clientID)
		delete(m.runners, id)
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}
