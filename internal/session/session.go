package session

import "time"

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsUser    bool      `json:"is_user"`
}

// Session represents a chat session
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
	LastMessage string    `json:"last_message"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
