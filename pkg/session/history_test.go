package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	appended []Message
	resets   [][]Message
}

func (f *fakeRecorder) OnAppend(msg Message) {
	f.appended = append(f.appended, msg)
}

func (f *fakeRecorder) OnReset(seed []Message) {
	f.resets = append(f.resets, seed)
}

func TestNewHistory(t *testing.T) {
	h := NewHistory("system prompt", ">")

	require.Equal(t, 2, h.Len())
	msgs := h.Messages()
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "system prompt", msgs[0].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, ">", msgs[1].Content)
}

func TestHistory_Append(t *testing.T) {
	t.Run("should append in order", func(t *testing.T) {
		h := NewHistory("sys", ">")

		err := h.Append(AssistantMessage("a1"), UserMessage("u1"))
		require.NoError(t, err)

		msgs := h.Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, "a1", msgs[2].Content)
		assert.Equal(t, "u1", msgs[3].Content)
	})

	t.Run("should reject system messages", func(t *testing.T) {
		h := NewHistory("sys", ">")

		err := h.Append(AssistantMessage("ok"), SystemMessage("late"))
		assert.Error(t, err)
		assert.Equal(t, 2, h.Len())
	})

	t.Run("should reject unknown roles", func(t *testing.T) {
		h := NewHistory("sys", ">")

		err := h.Append(Message{Role: "tool", Content: "x"})
		assert.Error(t, err)
		assert.Equal(t, 2, h.Len())
	})

	t.Run("should notify recorder", func(t *testing.T) {
		h := NewHistory("sys", ">")
		rec := &fakeRecorder{}
		h.SetRecorder(rec)

		require.NoError(t, h.Append(AssistantMessage("a")))

		require.Len(t, rec.resets, 1)
		assert.Len(t, rec.resets[0], 2)
		require.Len(t, rec.appended, 1)
		assert.Equal(t, "a", rec.appended[0].Content)
	})
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory("old system", ">")
	rec := &fakeRecorder{}
	h.SetRecorder(rec)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(AssistantMessage("cmd"), UserMessage("result")))
	}
	require.Equal(t, 12, h.Len())

	h.Reset("new system", ">")

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "new system", msgs[0].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Len(t, rec.resets, 2)
}

func TestHistory_MessagesIsCopy(t *testing.T) {
	h := NewHistory("sys", ">")

	msgs := h.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "sys", h.Messages()[0].Content)
}

func TestHistory_Tail(t *testing.T) {
	h := NewHistory("sys", ">")
	require.NoError(t, h.Append(AssistantMessage("a"), UserMessage("u")))

	tail := h.Tail()
	require.Len(t, tail, 3)
	for _, msg := range tail {
		assert.NotEqual(t, RoleSystem, msg.Role)
	}
	assert.Equal(t, 4, h.Len())
}

func TestHistory_SerializedSize(t *testing.T) {
	h := NewHistory("sys", ">")

	expected := 0
	for _, msg := range h.Messages() {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		expected += len(data)
	}
	assert.Equal(t, expected, h.SerializedSize())

	require.NoError(t, h.Append(AssistantMessage("more content")))
	assert.Greater(t, h.SerializedSize(), expected)
}
