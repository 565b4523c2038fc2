package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/atlas-delivery/atlas/internal/domain/chat"
)

// SessionStore keeps per-conversation context in memory.
// Each session is owned by one conversation at a time; the store itself
// is safe for concurrent lookups from parallel requests.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*chat.Session)}
}

// GetOrCreate returns the session with the given ID, creating it if needed.
// An empty ID allocates a fresh session with a generated UUID.
func (s *SessionStore) GetOrCreate(id string) *chat.Session {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess = &chat.Session{ID: id}
	s.sessions[id] = sess
	return sess
}

// Get returns the session with the given ID, or nil when unknown.
func (s *SessionStore) Get(id string) *chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Delete removes a session from the store.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
