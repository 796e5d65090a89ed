// Package store owns the in-memory conversation state: the session list, the
// message log, the current selection and the in-flight stream buffer. Every
// mutation goes through one of the methods below and is atomic under the
// store's mutex; nothing is persisted beyond process memory.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatstream/internal/session"
)

const (
	titleMaxLen      = 30
	placeholderTitle = "New Chat"
)

type Store struct {
	logger *slog.Logger

	mu               sync.Mutex
	sessions         []session.Session
	messages         []session.Message
	currentSessionID string

	// in-flight stream, at most one at a time
	streamID      string
	streamContent string
	streaming     bool
	typing        bool
}

func New(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// EnsureSession returns the current session id, creating and selecting a new
// session when none is selected. The new session's title is derived from the
// first message content. This is the explicit create-if-absent step callers
// run before AddMessage.
func (s *Store) EnsureSession(content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSessionID != "" {
		return s.currentSessionID
	}

	id := uuid.NewString()
	s.sessions = append([]session.Session{{
		ID:          id,
		Title:       deriveTitle(content),
		Timestamp:   time.Now(),
		LastMessage: content,
	}}, s.sessions...)
	s.currentSessionID = id
	s.logger.Info("created session", "session_id", id)
	return id
}

// AddMessage stamps and appends a message to the currently selected session
// and updates that session's last-activity fields. Sessions are prepended at
// creation time only; activity updates do not re-sort the list.
func (s *Store) AddMessage(msg session.Message) (session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSessionID == "" {
		return session.Message{}, fmt.Errorf("no session selected")
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SessionID = s.currentSessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.IsUser = msg.Role == session.RoleUser

	s.messages = append(s.messages, msg)
	s.touchSessionLocked(msg.SessionID, msg.Content)
	return msg, nil
}

// CreateNewSession creates an empty session with a placeholder title,
// prepends it to the session list, selects it and returns its id.
func (s *Store) CreateNewSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions = append([]session.Session{{
		ID:        id,
		Title:     placeholderTitle,
		Timestamp: time.Now(),
	}}, s.sessions...)
	s.currentSessionID = id
	s.logger.Info("created session", "session_id", id)
	return id
}

// SetCurrentSession switches the selection. Any in-flight stream belongs to
// the session it started in, so switching away discards it.
func (s *Store) SetCurrentSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSessionID = id
	s.clearStreamLocked()
}

// DeleteSession removes the session and every message belonging to it. When
// the deleted session was selected the selection is cleared; there is no
// automatic fallback to another session.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	s.sessions = kept

	keptMsgs := s.messages[:0]
	for _, msg := range s.messages {
		if msg.SessionID != id {
			keptMsgs = append(keptMsgs, msg)
		}
	}
	s.messages = keptMsgs

	if s.currentSessionID == id {
		s.currentSessionID = ""
	}
	s.logger.Info("deleted session", "session_id", id)
}

// ClearMessages wipes all messages and the in-flight stream but leaves the
// session list untouched.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.clearStreamLocked()
}

func (s *Store) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSessionID
}

// Sessions returns a snapshot of the session list, most recently created
// first.
func (s *Store) Sessions() []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Messages returns a snapshot of the messages for one session, in append
// order.
func (s *Store) Messages(sessionID string) []session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Message
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out
}

func (s *Store) touchSessionLocked(id, lastMessage string) {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].LastMessage = lastMessage
			s.sessions[i].Timestamp = time.Now()
			return
		}
	}
}

func deriveTitle(content string) string {
	r := []rune(content)
	if len(r) > titleMaxLen {
		r = r[:titleMaxLen]
	}
	return string(r) + "..."
}
