// Package session holds the cross-cycle context of a trading run: the
// conversation history shown to the model, the mutable session state
// (action plan and notes) and an optional JSONL transcript of both.
//
// Invariants:
// - History always starts with a system message while non-empty.
// - After a reset the history holds exactly a system message and the initiating user message.
// - Messages are never reordered or edited once appended.
// - State outlives history resets and changes only through explicit writes.
//
// Usage:
//
//	state := session.NewState()
//	history := session.NewHistory(systemPrompt, ">")
//	_ = history.Append(session.AssistantMessage(`>{"command":"getTickers"}`))
//	state.WriteNotes("watch funding", true)
package session
