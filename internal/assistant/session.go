package assistant

import (
	"sync"
	"time"
)

// MaxSessionMessages is the sliding-window size of a conversation. Older
// messages fall off; the store enforces this, not the callers.
const MaxSessionMessages = 20

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one user conversation.
type Session struct {
	ID         string    `json:"id"`
	UserEmail  string    `json:"user_email"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionStore holds conversations. Implementations enforce the message
// window on append.
type SessionStore interface {
	GetOrCreate(sessionID, userEmail string) *Session
	Append(sessionID string, message Message)
	History(sessionID string) []Message
	Delete(sessionID string)
}

// InMemorySessionStore is the default SessionStore.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemorySessionStore creates an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*Session)}
}

// GetOrCreate implements SessionStore.
func (s *InMemorySessionStore) GetOrCreate(sessionID, userEmail string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		session.LastActive = time.Now().UTC()
		return session
	}

	session := &Session{
		ID:         sessionID,
		UserEmail:  userEmail,
		CreatedAt:  time.Now().UTC(),
		LastActive: time.Now().UTC(),
	}
	s.sessions[sessionID] = session
	return session
}

// Append implements SessionStore. Appending to an unknown session is a
// no-op.
func (s *InMemorySessionStore) Append(sessionID string, message Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	session.Messages = append(session.Messages, message)
	if excess := len(session.Messages) - MaxSessionMessages; excess > 0 {
		session.Messages = session.Messages[excess:]
	}
	session.LastActive = time.Now().UTC()
}

// History implements SessionStore: a copy of the current window.
func (s *InMemorySessionStore) History(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	history := make([]Message, len(session.Messages))
	copy(history, session.Messages)
	return history
}

// Delete implements SessionStore.
func (s *InMemorySessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
