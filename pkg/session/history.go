package session

import (
	"encoding/json"
	"fmt"
)

// Role tags the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single role-tagged turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Recorder observes history mutations, e.g. to persist a transcript.
type Recorder interface {
	OnAppend(msg Message)
	OnReset(seed []Message)
}

// History is the ordered message log forming the model's context window.
// It is owned by a single goroutine and is not safe for concurrent use.
type History struct {
	messages []Message
	recorder Recorder
}

// NewHistory creates a history seeded with a system prompt and the
// initiating user trigger.
func NewHistory(systemPrompt, trigger string) *History {
	h := &History{}
	h.messages = seed(systemPrompt, trigger)
	return h
}

func seed(systemPrompt, trigger string) []Message {
	return []Message{
		SystemMessage(systemPrompt),
		UserMessage(trigger),
	}
}

// SetRecorder attaches a recorder. The current seed is reported as a reset
// so the recorder sees the full history from the start.
func (h *History) SetRecorder(r Recorder) {
	h.recorder = r
	if r != nil {
		r.OnReset(h.Messages())
	}
}

// Append adds messages in order. Invalid roles and system messages after the
// seed are rejected and nothing is appended.
func (h *History) Append(msgs ...Message) error {
	for _, msg := range msgs {
		if !msg.Role.Valid() {
			return fmt.Errorf("invalid message role %q", msg.Role)
		}
		if msg.Role == RoleSystem {
			return fmt.Errorf("system messages can only be set by a reset")
		}
	}

	for _, msg := range msgs {
		h.messages = append(h.messages, msg)
		if h.recorder != nil {
			h.recorder.OnAppend(msg)
		}
	}
	return nil
}

// Reset truncates the history to a fresh system prompt and trigger.
func (h *History) Reset(systemPrompt, trigger string) {
	h.messages = seed(systemPrompt, trigger)
	if h.recorder != nil {
		h.recorder.OnReset(h.Messages())
	}
}

// Messages returns a copy of the current messages.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Tail returns a copy of every non-system message.
func (h *History) Tail() []Message {
	out := make([]Message, 0, len(h.messages))
	for _, msg := range h.messages {
		if msg.Role == RoleSystem {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}


// SerializedSize is the sum of the JSON-encoded lengths of all messages.
func (h *History) SerializedSize() int {
	total := 0
	for _, msg := range h.messages {
		data, err := json.Marshal(msg)
		if err != nil {
			total += len(msg.Content)
			continue
		}
		total += len(data)
	}
	return total
}
