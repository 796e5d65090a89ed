// Package chat wires transport events into the conversation store: tokens
// grow the in-flight stream, completion finalizes it into an assistant
// message, transport errors abort it.
package chat

import (
	"fmt"
	"log/slog"
	"strings"

	"chatstream/internal/protocol"
	"chatstream/internal/session"
	"chatstream/internal/store"
	"chatstream/internal/transport"
)

// Transport is the slice of the websocket client the orchestrator needs.
type Transport interface {
	Send(env protocol.Envelope) bool
	OnSessionCreated(fn func(sessionID string)) func()
	OnMessageReceived(fn func()) func()
	OnToken(fn func(content string)) func()
	OnCompletion(fn func()) func()
	OnError(fn func(message string)) func()
}

var _ Transport = (*transport.Client)(nil)

// Callbacks surface outcomes the UI layer must report to the user.
type Callbacks struct {
	// AssistantMessage fires when a stream finalizes into a message.
	AssistantMessage func(msg session.Message)
	// Error fires for stream-aborting errors and failed sends.
	Error func(message string)
}

type Chat struct {
	transport Transport
	store     *store.Store
	logger    *slog.Logger
	callbacks Callbacks
	unsubs    []func()
}

func New(t Transport, st *store.Store, logger *slog.Logger, cb Callbacks) *Chat {
	c := &Chat{
		transport: t,
		store:     st,
		logger:    logger,
		callbacks: cb,
	}
	c.unsubs = []func(){
		t.OnSessionCreated(c.handleSessionCreated),
		t.OnMessageReceived(func() { st.SetTyping(true) }),
		t.OnToken(c.handleToken),
		t.OnCompletion(c.handleCompletion),
		t.OnError(c.handleError),
	}
	return c
}

// Close unsubscribes all transport handlers.
func (c *Chat) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// SendMessage records the user message, opens a stream for the reply and
// transmits the prompt. The session is resolved explicitly before the ledger
// is touched: when none is selected, one is created titled after this
// message.
func (c *Chat) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message is empty")
	}
	if c.store.IsStreaming() {
		return fmt.Errorf("a response is still streaming")
	}

	sessionID := c.store.EnsureSession(content)
	if _, err := c.store.AddMessage(session.Message{
		Role:    session.RoleUser,
		Content: content,
	}); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}

	if _, err := c.store.StartStream(); err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if !c.transport.Send(protocol.ChatMessage(content, sessionID)) {
		c.store.ClearStream()
		c.reportError("Failed to send message - not connected")
		return fmt.Errorf("failed to send message: not connected")
	}
	return nil
}

func (c *Chat) handleSessionCreated(sessionID string) {
	// The server assigns its own session id per connection; a local session
	// only needs to exist when nothing is selected yet.
	if c.store.CurrentSessionID() == "" {
		c.store.CreateNewSession()
	}
	c.logger.Debug("server session established", "session_id", sessionID)
}

func (c *Chat) handleToken(content string) {
	c.store.AppendToStream(content)
}

func (c *Chat) handleCompletion() {
	msg, ok := c.store.FinalizeStream()
	if !ok {
		c.logger.Debug("stream finalized empty, discarded")
		return
	}
	if c.callbacks.AssistantMessage != nil {
		c.callbacks.AssistantMessage(msg)
	}
}

func (c *Chat) handleError(message string) {
	c.store.ClearStream()
	c.reportError(message)
}

func (c *Chat) reportError(message string) {
	c.logger.Error("chat error", "message", message)
	if c.callbacks.Error != nil {
		c.callbacks.Error(message)
	}
}
