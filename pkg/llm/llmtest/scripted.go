// Package llmtest provides a scripted llm.Client for loop and dispatch tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/harun/tradebrain/pkg/llm"
	"github.com/harun/tradebrain/pkg/session"
)

// Reply is one scripted answer: an object or an error.
type Reply struct {
	Object map[string]interface{}
	Err    error
}

// Scripted replays replies in order and records every request. Once the
// script is exhausted it keeps returning Fallback.
type Scripted struct {
	Name     string
	Fallback Reply

	mu       sync.Mutex
	replies  []Reply
	requests [][]session.Message
}

var _ llm.Client = (*Scripted)(nil)

// NewScripted returns a client answering with replies in order.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{Name: "scripted", replies: replies}
}

// Command is a reply carrying a command object.
func Command(name string, params map[string]interface{}) Reply {
	obj := map[string]interface{}{"command": name}
	if params != nil {
		obj["parameters"] = params
	}
	return Reply{Object: obj}
}

// Complete records a copy of messages and returns the next reply.
func (s *Scripted) Complete(ctx context.Context, messages []session.Message) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recorded := make([]session.Message, len(messages))
	copy(recorded, messages)
	s.requests = append(s.requests, recorded)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := s.Fallback
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	return reply.Object, reply.Err
}

// Provider returns the configured name.
func (s *Scripted) Provider() string {
	return s.Name
}

// Requests returns every recorded request.
func (s *Scripted) Requests() [][]session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]session.Message, len(s.requests))
	copy(out, s.requests)
	return out
}
