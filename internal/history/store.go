package history

import (
	"sync"

	"github.com/google/uuid"
)

// Store keeps server-side conversations by ID
type Store struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Conversation
}

// NewStore creates an empty conversation store
func NewStore() *Store {
	return &Store{conversations: make(map[uuid.UUID]*Conversation)}
}

// Create starts and registers a new conversation
func (s *Store) Create() *Conversation {
	c := NewConversation()
	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()
	return c
}

// Get looks up a conversation by its string ID
func (s *Store) Get(id string) (*Conversation, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[parsed]
	return c, ok
}

// Delete removes a conversation and reports whether it existed
func (s *Store) Delete(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[parsed]
	delete(s.conversations, parsed)
	return ok
}

// Len returns the number of live conversations
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
