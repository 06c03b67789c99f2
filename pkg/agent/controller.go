package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/tradebrain/internal/observability"
	"github.com/harun/tradebrain/internal/tracing"
	"github.com/harun/tradebrain/pkg/command"
	"github.com/harun/tradebrain/pkg/dispatch"
	"github.com/harun/tradebrain/pkg/llm"
	"github.com/harun/tradebrain/pkg/prompt"
	"github.com/harun/tradebrain/pkg/session"
)

// State is the controller's position in a cycle.
type State string

const (
	StateIdle        State = "idle"
	StateRequesting  State = "requesting"
	StateValidating  State = "validating"
	StateDispatching State = "dispatching"
	StateRecording   State = "recording"
	StatePacing      State = "pacing"
	StateTerminated  State = "terminated"
)

// Reason explains why a run ended.
type Reason string

const (
	ReasonBudgetExhausted Reason = "budget_exhausted"
	ReasonCompleted       Reason = "completed"
	ReasonCanceled        Reason = "canceled"
	ReasonFatal           Reason = "fatal"
)

// Cycle outcomes reported to metrics.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeCompleted = "completed"
)

const (
	noCommandTurn  = ">(no command)"
	errorPrefix    = "ERROR: "
	defaultTrigger = ">"
)

// Dispatcher executes one validated command.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command, history *session.History) (dispatch.Result, error)
}

// Config wires a Controller.
type Config struct {
	RunID      string
	Model      llm.Client
	Registry   *command.Registry
	Dispatcher Dispatcher
	State      *session.State
	Renderer   *prompt.Renderer
	// Recorder, when set, observes every history mutation.
	Recorder session.Recorder

	MaxIterations      int
	CycleInterval      time.Duration
	CompletionKeywords []string
	HistoryCharBudget  int
	InitialTrigger     string

	Sleep  dispatch.Sleeper
	Logger zerolog.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID           string        `json:"runId"`
	Cycles          int           `json:"cycles"`
	Failures        int           `json:"failures"`
	Reason          Reason        `json:"reason"`
	LastCommand     string        `json:"lastCommand,omitempty"`
	HistoryChars    int           `json:"historyChars"`
	HistoryMessages int           `json:"historyMessages"`
	Duration        time.Duration `json:"duration"`
}

// Controller runs the agent loop. It owns the conversation history.
type Controller struct {
	runID      string
	model      llm.Client
	registry   *command.Registry
	dispatcher Dispatcher
	state      *session.State
	renderer   *prompt.Renderer
	history    *session.History

	maxIterations int
	interval      time.Duration
	keywords      [][]string
	charBudget    int

	sleep  dispatch.Sleeper
	logger zerolog.Logger

	mu      sync.Mutex
	current State
}

// New validates cfg and seeds the history with the rendered system prompt
// and the initial trigger.
func New(cfg Config) (*Controller, error) {
	observability.EnsureRegistered()

	if cfg.Model == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("command registry is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("session state is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("prompt renderer is required")
	}
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.CycleInterval < 0 {
		return nil, fmt.Errorf("cycle interval must not be negative")
	}

	runID := cfg.RunID
	if runID == "" {
		runID = tracing.NewRunID()
	}
	trigger := cfg.InitialTrigger
	if trigger == "" {
		trigger = defaultTrigger
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = dispatch.SleepContext
	}

	keywords := make([][]string, 0, len(cfg.CompletionKeywords))
	for _, k := range cfg.CompletionKeywords {
		if words := splitWords(k); len(words) > 0 {
			keywords = append(keywords, words)
		}
	}

	history := session.NewHistory(cfg.Renderer.System(cfg.State.Snapshot()), trigger)
	if cfg.Recorder != nil {
		history.SetRecorder(cfg.Recorder)
	}

	return &Controller{
		runID:         runID,
		model:         cfg.Model,
		registry:      cfg.Registry,
		dispatcher:    cfg.Dispatcher,
		state:         cfg.State,
		renderer:      cfg.Renderer,
		history:       history,
		maxIterations: cfg.MaxIterations,
		interval:      cfg.CycleInterval,
		keywords:      keywords,
		charBudget:    cfg.HistoryCharBudget,
		sleep:         sleep,
		logger:        cfg.Logger.With().Str("component", "agent").Logger(),
		current:       StateIdle,
	}, nil
}

// RunID returns the run identifier.
func (c *Controller) RunID() string {
	return c.runID
}

// History returns the controller-owned history. It must not be mutated
// while Run is in progress.
func (c *Controller) History() *session.History {
	return c.history
}

// State returns the current loop state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

// cycleResult is the outcome of one cycle.
type cycleResult struct {
	command   string
	failed    bool
	completed bool
}

// Run executes cycles until the budget is spent, the model signals
// completion or ctx is canceled. The returned error is non-nil only when
// history could not be recorded.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if c.State() != StateIdle {
		return Summary{}, fmt.Errorf("controller already ran (state %s)", c.State())
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	}
	ctx = tracing.WithRunID(ctx, c.runID)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.run",
		attribute.Int("loop.max_iterations", c.maxIterations),
		attribute.String("llm.provider", c.model.Provider()),
	)
	log := tracing.LoggerFromContext(ctx, c.logger)

	start := time.Now()
	summary := Summary{RunID: c.runID}
	var runErr error

	log.Info().
		Int("max_iterations", c.maxIterations).
		Dur("cycle_interval", c.interval).
		Msg("Agent loop started")

	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			summary.Reason = ReasonCanceled
			break
		}

		result, err := c.runCycle(ctx, cycle)
		summary.Cycles = cycle
		if result.command != "" {
			summary.LastCommand = result.command
		}
		if result.failed {
			summary.Failures++
		}
		if err != nil {
			summary.Reason = ReasonFatal
			runErr = err
			break
		}
		if result.completed {
			summary.Reason = ReasonCompleted
			break
		}
		if cycle >= c.maxIterations {
			summary.Reason = ReasonBudgetExhausted
			break
		}
		if ctx.Err() != nil {
			summary.Reason = ReasonCanceled
			break
		}

		c.setState(StatePacing)
		if err := c.sleep(ctx, c.interval); err != nil {
			summary.Reason = ReasonCanceled
			break
		}
	}

	c.setState(StateTerminated)
	summary.HistoryChars = c.history.SerializedSize()
	summary.HistoryMessages = c.history.Len()
	summary.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("loop.cycles", summary.Cycles),
		attribute.String("loop.reason", string(summary.Reason)),
	)
	tracing.EndSpan(span, runErr)

	log.Info().
		Int("cycles", summary.Cycles).
		Int("failures", summary.Failures).
		Str("reason", string(summary.Reason)).
		Dur("duration", summary.Duration).
		Msg("Agent loop finished")

	return summary, runErr
}

func (c *Controller) runCycle(ctx context.Context, cycle int) (cycleResult, error) {
	ctx = tracing.WithCycle(ctx, cycle)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.cycle")
	log := tracing.LoggerFromContext(ctx, c.logger)

	log.Debug().Int("history_messages", c.history.Len()).Msg("Cycle started")

	result, assistant, user := c.step(ctx, log)

	c.setState(StateRecording)
	user = c.withGrowthNotice(assistant, user)
	if err := c.history.Append(session.AssistantMessage(assistant), session.UserMessage(user)); err != nil {
		err = fmt.Errorf("failed to record cycle %d: %w", cycle, err)
		tracing.EndSpan(span, err)
		return result, err
	}

	chars := c.history.SerializedSize()
	observability.SetHistorySize(chars, c.history.Len())
	log.Info().
		Int("history_chars", chars).
		Int("history_messages", c.history.Len()).
		Msg("Message history updated")

	outcome := outcomeSuccess
	switch {
	case result.failed:
		outcome = outcomeError
	case result.completed:
		outcome = outcomeCompleted
	}
	observability.RecordCycle(outcome)

	span.SetAttributes(attribute.String("cycle.outcome", outcome))
	if result.command != "" {
		span.SetAttributes(attribute.String("command", result.command))
	}
	tracing.EndSpan(span, nil)
	return result, nil
}

// step requests, validates and dispatches one command, returning the two
// turns to record.
func (c *Controller) step(ctx context.Context, log zerolog.Logger) (cycleResult, string, string) {
	c.setState(StateRequesting)
	obj, err := c.model.Complete(ctx, c.history.Messages())
	if err != nil {
		assistant := noCommandTurn
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && strings.TrimSpace(llmErr.Content) != "" {
			assistant = ">" + llmErr.Content
		}
		log.Error().Err(err).Msg("Model request failed")
		return cycleResult{failed: true}, assistant, errorPrefix + err.Error()
	}

	assistant := ">" + compactJSON(obj)

	c.setState(StateValidating)
	raw, err := command.ParseRaw(obj)
	if err != nil {
		log.Error().Err(err).Msg("Model output is not a command")
		return cycleResult{failed: true}, assistant, errorPrefix + err.Error()
	}

	cmd, err := c.registry.Validate(raw)
	if err != nil {
		log.Error().Err(err).Str("command", raw.Name).Msg("Command rejected")
		return cycleResult{command: raw.Name, failed: true}, assistant, errorPrefix + err.Error()
	}
	name := string(cmd.CommandName())

	c.setState(StateDispatching)
	out, err := c.dispatcher.Dispatch(ctx, cmd, c.history)
	if err != nil {
		log.Error().Err(err).Str("command", name).Msg("Command execution failed")
		return cycleResult{command: name, failed: true}, assistant, errorPrefix + err.Error()
	}

	result := cycleResult{command: name}
	if done, ok := cmd.(command.DoNothing); ok && c.signalsCompletion(done.Reason) {
		result.completed = true
		log.Info().Str("reason", done.Reason).Msg("Completion signaled")
	}
	return result, assistant, ">" + compactJSON(out)
}

// negations cancel a keyword within the two words before it.
var negations = map[string]bool{
	"not": true, "no": true, "never": true, "isn't": true, "isnt": true, "nothing": true,
}

// signalsCompletion reports whether reason contains a keyword as whole
// words, not shortly after a negation.
func (c *Controller) signalsCompletion(reason string) bool {
	words := splitWords(reason)
	for _, k := range c.keywords {
		for i := 0; i+len(k) <= len(words); i++ {
			if !equalWords(words[i:i+len(k)], k) {
				continue
			}
			if negated(words[max(0, i-2):i]) {
				continue
			}
			return true
		}
	}
	return false
}

// splitWords lowercases s and splits it on anything but letters, digits
// and apostrophes.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func negated(before []string) bool {
	for _, w := range before {
		if negations[w] {
			return true
		}
	}
	return false
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// withGrowthNotice appends a clearTerminal hint to the user turn when the
// history, including this cycle's turns, exceeds the character budget.
func (c *Controller) withGrowthNotice(assistant, user string) string {
	if c.charBudget <= 0 {
		return user
	}
	projected := c.history.SerializedSize() +
		messageSize(session.AssistantMessage(assistant)) +
		messageSize(session.UserMessage(user))
	if projected <= c.charBudget {
		return user
	}
	return user + fmt.Sprintf("\nNOTICE: conversation history is %d characters (budget %d). Save what matters with writeNotes or writeActionPlan, then call clearTerminal.", projected, c.charBudget)
}

func messageSize(msg session.Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		return len(msg.Content)
	}
	return len(data)
}

func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
