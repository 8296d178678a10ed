package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/scene"
)

// ============================================================
// Session Manager
// ============================================================

var ErrSessionNotFound = errors.New("session not found")

// Session is one live editor bound to a stored template.
type Session struct {
	Token      string
	TemplateID string

	mu       sync.Mutex
	editor   *scene.Editor
	lastUsed time.Time
}

type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session // token -> session
	now      func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Issue opens an editor on doc and returns its token.
func (m *SessionManager) Issue(templateID string, doc *models.SceneDocument) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.NewString()
	m.sessions[token] = &Session{
		Token:      token,
		TemplateID: templateID,
		editor:     scene.NewEditor(doc),
		lastUsed:   m.now(),
	}
	return token
}

func (m *SessionManager) Resolve(token string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	return s, ok
}

// With runs fn against the session's editor. Calls on one session are
// serialized since the editor has a single writer.
func (m *SessionManager) With(token string, fn func(s *Session, ed *scene.Editor) error) error {
	s, ok := m.Resolve(token)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = m.now()
	return fn(s, s.editor)
}

func (m *SessionManager) Close(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok
}

// Expire drops sessions idle for longer than idle and returns how many
// were removed.
func (m *SessionManager) Expire(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	n := 0
	for token, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
