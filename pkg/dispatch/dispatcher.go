package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/tradebrain/internal/observability"
	"github.com/harun/tradebrain/internal/tracing"
	"github.com/harun/tradebrain/pkg/command"
	"github.com/harun/tradebrain/pkg/exchange"
	"github.com/harun/tradebrain/pkg/llm"
	"github.com/harun/tradebrain/pkg/notify"
	"github.com/harun/tradebrain/pkg/prompt"
	"github.com/harun/tradebrain/pkg/session"
)

// Delegation modes for callAI.
const (
	// ModeIsolated sends only the delegate system prompt and the question.
	ModeIsolated = "isolated"
	// ModeInherit places the non-system history before the question.
	ModeInherit = "inherit"
)

// DefaultMaxWait bounds the wait command when no limit is configured.
const DefaultMaxWait = 60 * time.Minute

// Result is the structured outcome of one command, serialized into history.
type Result = interface{}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config wires a Dispatcher to its collaborators.
type Config struct {
	Exchange exchange.Client
	State    *session.State
	Notifier notify.Notifier
	// Delegate answers callAI; it may be the main model client.
	Delegate llm.Client
	Renderer *prompt.Renderer

	DelegateSystemPrompt string
	DelegationMode       string
	MaxWait              time.Duration
	// InitialTrigger is the user message that follows the system prompt
	// after clearTerminal.
	InitialTrigger string

	Sleep  Sleeper
	Logger zerolog.Logger
}

// Dispatcher routes validated commands to exactly one collaborator.
type Dispatcher struct {
	exchange exchange.Client
	state    *session.State
	notifier notify.Notifier
	delegate llm.Client
	renderer *prompt.Renderer

	delegatePrompt string
	mode           string
	maxWait        time.Duration
	trigger        string
	sleep          Sleeper
	logger         zerolog.Logger
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange client is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("session state is required")
	}
	if cfg.Delegate == nil {
		return nil, fmt.Errorf("delegate model client is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("prompt renderer is required")
	}

	mode := cfg.DelegationMode
	switch mode {
	case "":
		mode = ModeIsolated
	case ModeIsolated, ModeInherit:
	default:
		return nil, fmt.Errorf("invalid delegation mode: %s", mode)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	trigger := cfg.InitialTrigger
	if trigger == "" {
		trigger = ">"
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	return &Dispatcher{
		exchange:       cfg.Exchange,
		state:          cfg.State,
		notifier:       notifier,
		delegate:       cfg.Delegate,
		renderer:       cfg.Renderer,
		delegatePrompt: cfg.DelegateSystemPrompt,
		mode:           mode,
		maxWait:        maxWait,
		trigger:        trigger,
		sleep:          sleep,
		logger:         cfg.Logger.With().Str("component", "dispatch").Logger(),
	}, nil
}

// Mode returns the configured delegation mode.
func (d *Dispatcher) Mode() string {
	return d.mode
}

// Dispatch executes cmd. history is touched only by clearTerminal (reset)
// and callAI in inherit mode (read). Collaborator failures are returned
// wrapped; notification failures are downgraded to an error-status result.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command, history *session.History) (Result, error) {
	if cmd == nil {
		return nil, &command.ValidationError{Kind: command.KindUnknownCommand, Reason: "nil command"}
	}
	name := string(cmd.CommandName())

	ctx = tracing.WithCommand(ctx, name)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerDispatch, "dispatch.command",
		attribute.String("command.category", string(categoryOf(cmd))),
	)
	start := time.Now()

	result, err := d.route(ctx, cmd, history)

	duration := time.Since(start)
	observability.RecordCommand(name, duration, err == nil)
	tracing.EndSpan(span, err)

	log := tracing.LoggerFromContext(ctx, d.logger)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Command failed")
		return nil, err
	}
	log.Info().Dur("duration", duration).Msg("Command executed")
	return result, nil
}

func (d *Dispatcher) route(ctx context.Context, cmd command.Command, history *session.History) (Result, error) {
	switch c := cmd.(type) {
	// market and account reads
	case command.GetInstruments:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetInstruments(ctx) })
	case command.GetTickers:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetTickers(ctx) })
	case command.GetNotifications:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetNotifications(ctx) })
	case command.GetAccounts:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetAccounts(ctx) })
	case command.GetAccountLog:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetAccountLog(ctx) })
	case command.GetOpenPositions:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetOpenPositions(ctx) })
	case command.GetOpenOrders:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetOpenOrders(ctx) })
	case command.GetAccountAvailableMargin:
		return d.read(c, func() (exchange.Payload, error) { return exchange.AvailableMargin(ctx, d.exchange) })
	case command.GetOrderbook:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetOrderbook(ctx, c.Symbol) })
	case command.GetHistory:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetHistory(ctx, c.Symbol, c.LastTime) })
	case command.GetRecentOrders:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetRecentOrders(ctx, c.Symbol) })
	case command.GetHistoricalPriceData:
		return d.read(c, func() (exchange.Payload, error) {
			return d.exchange.GetHistoricalPriceData(ctx, c.Pair, c.Interval, c.Since)
		})
	case command.GetFills:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetFills(ctx, c.LastTime) })
	case command.GetTransfers:
		return d.read(c, func() (exchange.Payload, error) { return d.exchange.GetTransfers(ctx, c.LastTime) })

	// order management
	case command.SendOrder:
		return d.write(ctx, c, orderMetadata(c), func() (exchange.Payload, error) {
			return d.exchange.SendOrder(ctx, exchange.OrderRequest{
				OrderType:  string(c.OrderType),
				Symbol:     c.Symbol,
				Side:       string(c.Side),
				Size:       c.Size,
				LimitPrice: c.LimitPrice,
				StopPrice:  c.StopPrice,
				ReduceOnly: c.ReduceOnly,
			})
		})
	case command.EditOrder:
		meta := map[string]interface{}{"orderId": c.OrderID, "size": c.Size, "limitPrice": c.LimitPrice}
		return d.write(ctx, c, meta, func() (exchange.Payload, error) {
			return d.exchange.EditOrder(ctx, exchange.EditRequest{OrderID: c.OrderID, Size: c.Size, LimitPrice: c.LimitPrice})
		})
	case command.CancelOrder:
		return d.write(ctx, c, map[string]interface{}{"order_id": c.OrderID}, func() (exchange.Payload, error) {
			return d.exchange.CancelOrder(ctx, c.OrderID)
		})
	case command.CancelAllOrders:
		return d.write(ctx, c, map[string]interface{}{"symbol": c.Symbol}, func() (exchange.Payload, error) {
			return d.exchange.CancelAllOrders(ctx, c.Symbol)
		})
	case command.CancelAllOrdersAfter:
		return d.write(ctx, c, map[string]interface{}{"timeout": c.TimeoutSeconds}, func() (exchange.Payload, error) {
			return d.exchange.CancelAllOrdersAfter(ctx, c.TimeoutSeconds)
		})
	case command.BatchOrder:
		return d.write(ctx, c, map[string]interface{}{"batchJson": c.BatchJSON}, func() (exchange.Payload, error) {
			return d.exchange.BatchOrder(ctx, c.BatchJSON)
		})

	// recursive reasoning
	case command.CallAI:
		return d.callAI(ctx, c, history)

	// history mutation
	case command.ClearTerminal:
		return d.clearTerminal(history)

	// state mutation
	case command.WriteActionPlan:
		plan := d.state.SetActionPlan(c.ActionPlan)
		return map[string]interface{}{
			"status":     "success",
			"message":    "Action plan updated",
			"actionPlan": plan,
		}, nil
	case command.ClearActionPlan:
		previous := d.state.ClearActionPlan()
		return map[string]interface{}{
			"status":     "success",
			"message":    "Action plan cleared",
			"actionPlan": d.state.ActionPlan(),
			"previous":   previous,
		}, nil
	case command.WriteNotes:
		notes := d.state.WriteNotes(c.Notes, c.Append)
		return map[string]interface{}{
			"status":  "success",
			"message": "Notes updated",
			"notes":   notes,
			"append":  c.Append,
		}, nil

	// pacing
	case command.Wait:
		return d.wait(ctx, c)

	// escalation
	case command.NotifyOperator:
		return d.notifyOperator(ctx, c), nil

	// no-op
	case command.DoNothing:
		return map[string]interface{}{
			"status": "No action taken",
			"reason": c.Reason,
		}, nil

	default:
		return nil, &command.ValidationError{
			Kind:    command.KindUnknownCommand,
			Command: string(cmd.CommandName()),
			Reason:  "no handler",
		}
	}
}

func (d *Dispatcher) read(cmd command.Command, call func() (exchange.Payload, error)) (Result, error) {
	payload, err := call()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.CommandName(), err)
	}
	return payload, nil
}

// write forwards an order-management call and records a trade audit event
// whatever the outcome.
func (d *Dispatcher) write(ctx context.Context, cmd command.Command, meta map[string]interface{}, call func() (exchange.Payload, error)) (Result, error) {
	name := string(cmd.CommandName())
	payload, err := call()

	status := "success"
	if err != nil {
		status = "failure"
		meta["error"] = err.Error()
	}
	observability.RecordTradeAudit(ctx, name, tracing.GetRunID(ctx), status, meta)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return payload, nil
}

func orderMetadata(c command.SendOrder) map[string]interface{} {
	meta := map[string]interface{}{
		"orderType": string(c.OrderType),
		"symbol":    c.Symbol,
		"side":      string(c.Side),
		"size":      c.Size,
	}
	if c.LimitPrice != nil {
		meta["limitPrice"] = *c.LimitPrice
	}
	if c.StopPrice != nil {
		meta["stopPrice"] = *c.StopPrice
	}
	if c.ReduceOnly {
		meta["reduceOnly"] = true
	}
	return meta
}

// callAI issues one model call on a freshly built message list. The result
// is returned as this command's outcome and never appended to history here.
func (d *Dispatcher) callAI(ctx context.Context, c command.CallAI, history *session.History) (Result, error) {
	if tracing.IsDelegate(ctx) {
		return nil, fmt.Errorf("callAI cannot be issued from a delegated call")
	}

	messages := []session.Message{session.SystemMessage(d.renderer.Delegate(d.delegatePrompt))}
	if d.mode == ModeInherit && history != nil {
		messages = append(messages, history.Tail()...)
	}
	messages = append(messages, session.UserMessage(c.Prompt))

	d.logger.Debug().
		Str("mode", d.mode).
		Int("messages", len(messages)).
		Str("provider", d.delegate.Provider()).
		Msg("Delegating to model")

	response, err := d.delegate.Complete(tracing.PropagateToDelegate(ctx), messages)
	if err != nil {
		return nil, fmt.Errorf("callAI: %w", err)
	}
	return response, nil
}

func (d *Dispatcher) clearTerminal(history *session.History) (Result, error) {
	if history == nil {
		return nil, fmt.Errorf("clearTerminal: no history to reset")
	}
	history.Reset(d.renderer.System(d.state.Snapshot()), d.trigger)
	return map[string]interface{}{
		"status":   "success",
		"message":  "Conversation history cleared; action plan and notes kept",
		"messages": history.Len(),
	}, nil
}

func (d *Dispatcher) wait(ctx context.Context, c command.Wait) (Result, error) {
	// compare in minutes first; huge values overflow time.Duration
	duration := d.maxWait
	clamped := true
	if c.Minutes <= d.maxWait.Minutes() {
		duration = time.Duration(c.Minutes * float64(time.Minute))
		clamped = false
	}

	if err := d.sleep(ctx, duration); err != nil {
		return nil, fmt.Errorf("wait interrupted: %w", err)
	}

	result := map[string]interface{}{
		"status":           "success",
		"message":          fmt.Sprintf("Waited %s", duration),
		"requestedMinutes": c.Minutes,
		"waitedMinutes":    duration.Minutes(),
	}
	if clamped {
		result["clamped"] = true
		result["message"] = fmt.Sprintf("Waited %s (requested %g minutes, capped at the maximum)", duration, c.Minutes)
	}
	return result, nil
}

func (d *Dispatcher) notifyOperator(ctx context.Context, c command.NotifyOperator) Result {
	err := d.notifier.Send(ctx, c.Message)
	observability.RecordNotification(err == nil)

	if err != nil {
		log := tracing.LoggerFromContext(ctx, d.logger)
		log.Warn().Err(err).Msg("Operator notification failed")
		return map[string]interface{}{
			"status":  "error",
			"message": fmt.Sprintf("notification not delivered: %v", err),
		}
	}
	return map[string]interface{}{
		"status":  "success",
		"message": "Operator notified",
	}
}

// SleepContext sleeps for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var categories = func() map[command.Name]command.Category {
	m := make(map[command.Name]command.Category)
	for _, spec := range command.DefaultVocabulary() {
		m[spec.Name] = spec.Category
	}
	return m
}()

func categoryOf(cmd command.Command) command.Category {
	if c, ok := categories[cmd.CommandName()]; ok {
		return c
	}
	return "unknown"
}
