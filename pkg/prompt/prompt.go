// Package prompt renders the system messages shown to the model.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/tradebrain/pkg/command"
	"github.com/harun/tradebrain/pkg/session"
)

// systemTemplate receives, in order: the command list, the completion
// keywords, the current time, the action plan and the notes.
const systemTemplate = `You are 'TradingBrain', an autonomous agent operating a trading account on Kraken Futures.

Your primary objective is to grow the portfolio's value by analyzing market data and executing profitable trades. Be diligent, analytical and risk-aware.

Each cycle you see your command history. Decide on the single next best action and reply with exactly one JSON object:

{"command": "<name>", "parameters": {...}}

Results of your previous command arrive as a user message starting with ">". Failures arrive as "ERROR: <message>"; read them and correct yourself.

## Commands

%s
## Housekeeping

- Keep your action plan current with writeActionPlan; it survives clearTerminal.
- Use writeNotes for observations worth keeping across resets.
- When the conversation grows long you will be told; call clearTerminal to start fresh.
- Call doNothing with a reason containing %s once the session goal is reached.

## Current time

%s

## Action plan

%s

## Notes

%s`

const delegateTemplate = `You are a trading analyst assisting an autonomous trading agent. Answer the question you are given.

Reply with exactly one JSON object. Put your answer in an "answer" field; add other fields only if they help the agent act on it.

Current time: %s`

const (
	emptyPlan  = "(no action plan yet)"
	emptyNotes = "(no notes yet)"
)

// DefaultCompletionKeywords are shown when none are configured.
var DefaultCompletionKeywords = []string{"complete"}

// Renderer builds system prompts from the vocabulary and session state.
type Renderer struct {
	vocabulary string
	keywords   string
	now        func() time.Time
}

// NewRenderer creates a renderer listing specs in the given order.
func NewRenderer(specs []command.Spec) *Renderer {
	return &Renderer{
		vocabulary: Vocabulary(specs),
		keywords:   quoteKeywords(DefaultCompletionKeywords),
		now:        time.Now,
	}
}

// WithCompletionKeywords sets the words the prompt tells the model to use
// when it is done. Blank entries are skipped; an empty list keeps the default.
func (r *Renderer) WithCompletionKeywords(keywords []string) *Renderer {
	if quoted := quoteKeywords(keywords); quoted != "" {
		r.keywords = quoted
	}
	return r
}

// WithClock replaces the wall clock, mainly for tests.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	r.now = now
	return r
}

// System renders the main system prompt for the given state.
func (r *Renderer) System(state session.Snapshot) string {
	plan := strings.TrimSpace(state.ActionPlan)
	if plan == "" {
		plan = emptyPlan
	}
	notes := strings.TrimSpace(state.Notes)
	if notes == "" {
		notes = emptyNotes
	}
	return fmt.Sprintf(systemTemplate, r.vocabulary, r.keywords, r.timestamp(), plan, notes)
}

// Delegate renders the system prompt of a callAI sub-call. A non-empty
// custom prompt replaces the built-in one.
func (r *Renderer) Delegate(custom string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return fmt.Sprintf(delegateTemplate, r.timestamp())
}

func (r *Renderer) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// Vocabulary lists commands grouped by category, one line per command:
//
//	- sendOrder({orderType, symbol, side, size, limitPrice?}): Place an order
func Vocabulary(specs []command.Spec) string {
	var b strings.Builder
	var current command.Category

	for _, spec := range specs {
		if spec.Category != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = spec.Category
			fmt.Fprintf(&b, "%s:\n", titleCase(string(current)))
		}
		fmt.Fprintf(&b, "- %s(%s): %s\n", spec.Name, Signature(spec), spec.Description)
	}
	return b.String()
}

// Signature renders the parameter list of a spec; optional parameters carry
// a trailing "?".
func Signature(spec command.Spec) string {
	if len(spec.Params) == 0 {
		return ""
	}
	names := make([]string, 0, len(spec.Params))
	for _, p := range spec.Params {
		if p.Required {
			names = append(names, p.Name)
		} else {
			names = append(names, p.Name+"?")
		}
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// quoteKeywords renders ["complete", "done"] as `"complete" or "done"`.
func quoteKeywords(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			quoted = append(quoted, fmt.Sprintf("%q", k))
		}
	}
	return strings.Join(quoted, " or ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
