package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/session"
)

func TestStreamAppendAndFinalize(t *testing.T) {
	st := newTestStore()
	id := st.EnsureSession("hi")

	streamID, err := st.StartStream()
	require.NoError(t, err)
	assert.True(t, st.IsStreaming())
	assert.True(t, st.IsTyping())

	st.AppendToStream("Hel")
	assert.False(t, st.IsTyping(), "typing indicator drops on first token")
	st.AppendToStream("lo")

	msg, ok := st.FinalizeStream()
	require.True(t, ok)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, streamID, msg.ID)
	assert.Equal(t, id, msg.SessionID)
	assert.Equal(t, session.RoleAssistant, msg.Role)
	assert.False(t, msg.IsUser)

	msgs := st.Messages(id)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hello", st.Sessions()[0].LastMessage)

	assert.False(t, st.IsStreaming())
	assert.Empty(t, st.StreamContent())
}

func TestFinalizeEmptyStreamDiscards(t *testing.T) {
	st := newTestStore()
	id := st.EnsureSession("hi")

	_, err := st.StartStream()
	require.NoError(t, err)

	_, ok := st.FinalizeStream()
	assert.False(t, ok)
	assert.Empty(t, st.Messages(id))
	assert.False(t, st.IsStreaming())
	assert.False(t, st.IsTyping())
}

func TestFinalizeWhitespaceOnlyStreamDiscards(t *testing.T) {
	st := newTestStore()
	st.EnsureSession("hi")

	_, err := st.StartStream()
	require.NoError(t, err)
	st.AppendToStream("   \n\t ")

	_, ok := st.FinalizeStream()
	assert.False(t, ok)
}

func TestFinalizeTrimsContent(t *testing.T) {
	st := newTestStore()
	st.EnsureSession("hi")

	_, err := st.StartStream()
	require.NoError(t, err)
	st.AppendToStream("  answer \n")

	msg, ok := st.FinalizeStream()
	require.True(t, ok)
	assert.Equal(t, "answer", msg.Content)
}

func TestAbortStreamDiscardsPartialContent(t *testing.T) {
	st := newTestStore()
	id := st.EnsureSession("hi")

	_, err := st.StartStream()
	require.NoError(t, err)
	st.AppendToStream("partial answer that never completed")

	st.AbortStream()

	assert.Empty(t, st.Messages(id))
	assert.False(t, st.IsStreaming())
	assert.Empty(t, st.StreamContent())
}

func TestStartStreamRejectsSecondActiveStream(t *testing.T) {
	st := newTestStore()
	st.EnsureSession("hi")

	_, err := st.StartStream()
	require.NoError(t, err)

	_, err = st.StartStream()
	assert.Error(t, err)
}

func TestStartStreamAllowedAfterFinalize(t *testing.T) {
	st := newTestStore()
	st.EnsureSession("hi")

	first, err := st.StartStream()
	require.NoError(t, err)
	st.AppendToStream("one")
	_, ok := st.FinalizeStream()
	require.True(t, ok)

	second, err := st.StartStream()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSetTyping(t *testing.T) {
	st := newTestStore()

	st.SetTyping(true)
	assert.True(t, st.IsTyping())
	st.SetTyping(false)
	assert.False(t, st.IsTyping())
}
