package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatstream/internal/session"
)

// Stream operations. The in-progress assistant response lives only in the
// stream buffer until finalized; at most one stream is active at a time.

// StartStream opens a fresh stream buffer and raises the typing indicator,
// which stays up until the first token arrives. It fails when a stream is
// already active; the prior one must finalize or abort first.
func (s *Store) StartStream() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		return "", fmt.Errorf("stream %s already active", s.streamID)
	}
	s.streamID = uuid.NewString()
	s.streamContent = ""
	s.streaming = true
	s.typing = true
	return s.streamID, nil
}

// AppendToStream concatenates a chunk onto the stream buffer and drops the
// typing indicator. Chunks are applied in arrival order, no deduplication.
func (s *Store) AppendToStream(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamContent += chunk
	s.typing = false
}

// FinalizeStream converts the buffer into an assistant message appended to
// the current session. A buffer that trims to empty is discarded silently;
// the model produced no output and no message is recorded. The second return
// reports whether a message was appended.
func (s *Store) FinalizeStream() (session.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := strings.TrimSpace(s.streamContent)
	if content == "" {
		s.clearStreamLocked()
		return session.Message{}, false
	}

	msg := session.Message{
		ID:        s.streamID,
		SessionID: s.currentSessionID,
		Role:      session.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.touchSessionLocked(msg.SessionID, msg.Content)
	s.clearStreamLocked()
	return msg, true
}

// AbortStream discards the stream without producing a message. Partial
// content is never committed.
func (s *Store) AbortStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStreamLocked()
}

// ClearStream discards the in-flight stream; caller-initiated cancellation
// goes through this name, transport errors through AbortStream.
func (s *Store) ClearStream() {
	s.AbortStream()
}

// SetTyping toggles the waiting-for-first-token indicator.
func (s *Store) SetTyping(typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = typing
}

func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Store) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// StreamContent returns the raw buffer accumulated so far.
func (s *Store) StreamContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamContent
}

func (s *Store) clearStreamLocked() {
	s.streamID = ""
	s.streamContent = ""
	s.streaming = false
	s.typing = false
}
