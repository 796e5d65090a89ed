package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/session"
)

func newTestStore() *Store {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnsureSessionDerivesTitleFromFirstMessage(t *testing.T) {
	st := newTestStore()

	content := "Hi there, how are you today friend"
	id := st.EnsureSession(content)
	require.NotEmpty(t, id)

	sessions := st.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "Hi there, how are you today fr...", sessions[0].Title)
	assert.Equal(t, content, sessions[0].LastMessage)
	assert.Equal(t, id, st.CurrentSessionID())
}

func TestEnsureSessionReturnsExistingSelection(t *testing.T) {
	st := newTestStore()

	first := st.EnsureSession("hello")
	second := st.EnsureSession("another message")

	assert.Equal(t, first, second)
	assert.Len(t, st.Sessions(), 1)
}

func TestAddMessageRequiresSelectedSession(t *testing.T) {
	st := newTestStore()

	_, err := st.AddMessage(session.Message{Role: session.RoleUser, Content: "hi"})
	require.Error(t, err)
}

func TestAddMessageStampsAndTouchesSession(t *testing.T) {
	st := newTestStore()
	id := st.EnsureSession("hi")

	msg, err := st.AddMessage(session.Message{Role: session.RoleUser, Content: "hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, id, msg.SessionID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.True(t, msg.IsUser)

	msgs := st.Messages(id)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	_, err = st.AddMessage(session.Message{Role: session.RoleAssistant, Content: "hello back"})
	require.NoError(t, err)
	assert.Equal(t, "hello back", st.Sessions()[0].LastMessage)
}

func TestCreateNewSessionPrependsAndSelects(t *testing.T) {
	st := newTestStore()

	old := st.CreateNewSession()
	fresh := st.CreateNewSession()

	sessions := st.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, fresh, sessions[0].ID)
	assert.Equal(t, old, sessions[1].ID)
	assert.Equal(t, "New Chat", sessions[0].Title)
	assert.Equal(t, fresh, st.CurrentSessionID())
}

func TestSetCurrentSessionClearsInFlightStream(t *testing.T) {
	st := newTestStore()
	st.CreateNewSession()

	_, err := st.StartStream()
	require.NoError(t, err)
	st.AppendToStream("partial")

	other := st.CreateNewSession()
	st.SetCurrentSession(other)

	assert.False(t, st.IsStreaming())
	assert.Empty(t, st.StreamContent())
	assert.Equal(t, other, st.CurrentSessionID())
}

func TestDeleteSessionCascadesAndClearsSelection(t *testing.T) {
	st := newTestStore()

	doomed := st.CreateNewSession()
	_, err := st.AddMessage(session.Message{Role: session.RoleUser, Content: "one"})
	require.NoError(t, err)
	_, err = st.AddMessage(session.Message{Role: session.RoleAssistant, Content: "two"})
	require.NoError(t, err)

	survivor := st.CreateNewSession()
	_, err = st.AddMessage(session.Message{Role: session.RoleUser, Content: "keep me"})
	require.NoError(t, err)

	st.SetCurrentSession(doomed)
	st.DeleteSession(doomed)

	assert.Empty(t, st.Messages(doomed))
	assert.Len(t, st.Messages(survivor), 1)
	assert.Len(t, st.Sessions(), 1)
	assert.Empty(t, st.CurrentSessionID())
}

func TestDeleteSessionKeepsUnrelatedSelection(t *testing.T) {
	st := newTestStore()

	other := st.CreateNewSession()
	current := st.CreateNewSession()
	st.DeleteSession(other)

	assert.Equal(t, current, st.CurrentSessionID())
}

func TestClearMessagesKeepsSessions(t *testing.T) {
	st := newTestStore()

	id := st.CreateNewSession()
	_, err := st.AddMessage(session.Message{Role: session.RoleUser, Content: "hi"})
	require.NoError(t, err)
	_, err = st.StartStream()
	require.NoError(t, err)

	st.ClearMessages()

	assert.Empty(t, st.Messages(id))
	assert.Len(t, st.Sessions(), 1)
	assert.False(t, st.IsStreaming())
}
