package chat

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/protocol"
	"chatstream/internal/session"
	"chatstream/internal/store"
)

// fakeTransport records outbound envelopes and lets tests fire inbound
// events directly.
type fakeTransport struct {
	sent   []protocol.Envelope
	sendOK bool

	sessionCreated  func(string)
	messageReceived func()
	token           func(string)
	completion      func()
	err             func(string)
}

func (f *fakeTransport) Send(env protocol.Envelope) bool {
	f.sent = append(f.sent, env)
	return f.sendOK
}

func (f *fakeTransport) OnSessionCreated(fn func(string)) func() {
	f.sessionCreated = fn
	return func() { f.sessionCreated = nil }
}

func (f *fakeTransport) OnMessageReceived(fn func()) func() {
	f.messageReceived = fn
	return func() { f.messageReceived = nil }
}

func (f *fakeTransport) OnToken(fn func(string)) func() {
	f.token = fn
	return func() { f.token = nil }
}

func (f *fakeTransport) OnCompletion(fn func()) func() {
	f.completion = fn
	return func() { f.completion = nil }
}

func (f *fakeTransport) OnError(fn func(string)) func() {
	f.err = fn
	return func() { f.err = nil }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(sendOK bool, cb Callbacks) (*fakeTransport, *store.Store, *Chat) {
	ft := &fakeTransport{sendOK: sendOK}
	st := store.New(testLogger())
	c := New(ft, st, testLogger(), cb)
	return ft, st, c
}

func TestSendMessageRecordsUserMessageAndOpensStream(t *testing.T) {
	ft, st, c := setup(true, Callbacks{})

	require.NoError(t, c.SendMessage("hello there"))

	sessionID := st.CurrentSessionID()
	require.NotEmpty(t, sessionID, "session resolved before the ledger is touched")

	msgs := st.Messages(sessionID)
	require.Len(t, msgs, 1)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.True(t, st.IsStreaming())

	require.Len(t, ft.sent, 1)
	assert.Equal(t, protocol.TypeChatMessage, ft.sent[0].Type)
	assert.Equal(t, "hello there", ft.sent[0].Message)
	assert.Equal(t, sessionID, ft.sent[0].SessionID)
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	ft, _, c := setup(true, Callbacks{})

	assert.Error(t, c.SendMessage("   "))
	assert.Empty(t, ft.sent)
}

func TestSendMessageRejectsWhileStreaming(t *testing.T) {
	ft, _, c := setup(true, Callbacks{})

	require.NoError(t, c.SendMessage("first"))
	assert.Error(t, c.SendMessage("second"))
	assert.Len(t, ft.sent, 1)
}

func TestSendFailureClearsStreamAndReportsError(t *testing.T) {
	var reported string
	ft, st, c := setup(false, Callbacks{
		Error: func(msg string) { reported = msg },
	})

	err := c.SendMessage("hello")
	require.Error(t, err)

	assert.False(t, st.IsStreaming(), "stream cleared on failed send")
	assert.NotEmpty(t, reported)
	assert.Len(t, ft.sent, 1)
}

func TestTokenCompletionFlowFinalizesAssistantMessage(t *testing.T) {
	var finalized session.Message
	ft, st, c := setup(true, Callbacks{
		AssistantMessage: func(msg session.Message) { finalized = msg },
	})

	require.NoError(t, c.SendMessage("question"))
	sessionID := st.CurrentSessionID()

	ft.messageReceived()
	assert.True(t, st.IsTyping())

	ft.token("Hel")
	assert.False(t, st.IsTyping())
	ft.token("lo")
	ft.completion()

	assert.Equal(t, "Hello", finalized.Content)
	assert.Equal(t, session.RoleAssistant, finalized.Role)
	assert.Equal(t, sessionID, finalized.SessionID)

	msgs := st.Messages(sessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.False(t, st.IsStreaming())
}

func TestCompletionWithoutTokensDiscardsQuietly(t *testing.T) {
	called := false
	ft, st, c := setup(true, Callbacks{
		AssistantMessage: func(session.Message) { called = true },
	})

	require.NoError(t, c.SendMessage("question"))
	ft.completion()

	assert.False(t, called, "empty stream must not produce a message")
	assert.Len(t, st.Messages(st.CurrentSessionID()), 1)
	assert.False(t, st.IsStreaming())
}

func TestTransportErrorAbortsStream(t *testing.T) {
	var reported string
	ft, st, c := setup(true, Callbacks{
		Error: func(msg string) { reported = msg },
	})

	require.NoError(t, c.SendMessage("question"))
	ft.token("partial content that will be lo")
	ft.err("Error generating response")

	assert.Equal(t, "Error generating response", reported)
	assert.False(t, st.IsStreaming())
	assert.Empty(t, st.StreamContent())
	// only the user message remains
	assert.Len(t, st.Messages(st.CurrentSessionID()), 1)
}

func TestServerSessionCreatesLocalSessionWhenNoneSelected(t *testing.T) {
	ft, st, _ := setup(true, Callbacks{})

	ft.sessionCreated("server-session-1")
	first := st.CurrentSessionID()
	assert.NotEmpty(t, first)

	// an existing selection is left alone
	ft.sessionCreated("server-session-2")
	assert.Equal(t, first, st.CurrentSessionID())
}

func TestCloseUnsubscribesHandlers(t *testing.T) {
	ft, _, c := setup(true, Callbacks{})

	c.Close()
	assert.Nil(t, ft.token)
	assert.Nil(t, ft.completion)
	assert.Nil(t, ft.err)
	assert.Nil(t, ft.sessionCreated)
	assert.Nil(t, ft.messageReceived)
}
