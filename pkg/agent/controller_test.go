package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/tradebrain/pkg/command"
	"github.com/harun/tradebrain/pkg/dispatch"
	"github.com/harun/tradebrain/pkg/exchange"
	"github.com/harun/tradebrain/pkg/exchange/exchangetest"
	"github.com/harun/tradebrain/pkg/llm"
	"github.com/harun/tradebrain/pkg/llm/llmtest"
	"github.com/harun/tradebrain/pkg/prompt"
	"github.com/harun/tradebrain/pkg/session"
)

type recordingSleeper struct {
	calls []time.Duration
	err   error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return s.err
}

type recorder struct {
	appended []session.Message
	resets   int
}

func (r *recorder) OnAppend(msg session.Message) {
	r.appended = append(r.appended, msg)
}

func (r *recorder) OnReset(msgs []session.Message) {
	r.resets++
}

type fixture struct {
	model    *llmtest.Scripted
	delegate *llmtest.Scripted
	exchange *exchangetest.MockClient
	state    *session.State
	sleeper  *recordingSleeper
}

func newController(t *testing.T, model *llmtest.Scripted, mutate func(cfg *Config)) (*Controller, *fixture) {
	t.Helper()

	f := &fixture{
		model:    model,
		delegate: llmtest.NewScripted(),
		exchange: &exchangetest.MockClient{},
		state:    session.NewState(),
		sleeper:  &recordingSleeper{},
	}
	f.exchange.On("GetTickers", mock.Anything).Return(exchange.Payload{"tickers": []interface{}{}}, nil).Maybe()

	registry, err := command.NewRegistry()
	require.NoError(t, err)
	renderer := prompt.NewRenderer(registry.Specs())
	d, err := dispatch.New(dispatch.Config{
		Exchange: f.exchange,
		State:    f.state,
		Delegate: f.delegate,
		Renderer: renderer,
		Sleep:    f.sleeper.sleep,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	cfg := Config{
		RunID:              "run-test",
		Model:              model,
		Registry:           registry,
		Dispatcher:         d,
		State:              f.state,
		Renderer:           renderer,
		MaxIterations:      3,
		CycleInterval:      time.Second,
		CompletionKeywords: []string{"complete"},
		Sleep:              f.sleeper.sleep,
		Logger:             zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctrl, err := New(cfg)
	require.NoError(t, err)
	return ctrl, f
}

func lastMessage(t *testing.T, ctrl *Controller) session.Message {
	t.Helper()
	msgs := ctrl.History().Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func tickers() llmtest.Reply {
	return llmtest.Command("getTickers", nil)
}

func TestNew(t *testing.T) {
	t.Run("should seed history with system prompt and trigger", func(t *testing.T) {
		ctrl, _ := newController(t, llmtest.NewScripted(), nil)

		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, session.RoleSystem, msgs[0].Role)
		assert.Contains(t, msgs[0].Content, "getTickers")
		assert.Equal(t, session.UserMessage(">"), msgs[1])
		assert.Equal(t, StateIdle, ctrl.State())
		assert.Equal(t, "run-test", ctrl.RunID())
	})

	t.Run("should generate a run id when none is given", func(t *testing.T) {
		ctrl, _ := newController(t, llmtest.NewScripted(), func(cfg *Config) {
			cfg.RunID = ""
		})
		assert.NotEmpty(t, ctrl.RunID())
	})

	t.Run("should report the seed to the recorder", func(t *testing.T) {
		rec := &recorder{}
		newController(t, llmtest.NewScripted(), func(cfg *Config) {
			cfg.Recorder = rec
		})
		assert.Equal(t, 1, rec.resets)
	})

	t.Run("should reject incomplete configuration", func(t *testing.T) {
		cases := map[string]func(cfg *Config){
			"model":      func(cfg *Config) { cfg.Model = nil },
			"registry":   func(cfg *Config) { cfg.Registry = nil },
			"dispatcher": func(cfg *Config) { cfg.Dispatcher = nil },
			"state":      func(cfg *Config) { cfg.State = nil },
			"renderer":   func(cfg *Config) { cfg.Renderer = nil },
			"iterations": func(cfg *Config) { cfg.MaxIterations = 0 },
			"interval":   func(cfg *Config) { cfg.CycleInterval = -time.Second },
		}
		registry, err := command.NewRegistry()
		require.NoError(t, err)
		for name, mutate := range cases {
			cfg := Config{
				Model:         llmtest.NewScripted(),
				Registry:      registry,
				Dispatcher:    &dispatch.Dispatcher{},
				State:         session.NewState(),
				Renderer:      prompt.NewRenderer(command.DefaultVocabulary()),
				MaxIterations: 1,
			}
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err, name)
		}
	})
}

func TestRunBudget(t *testing.T) {
	t.Run("should stop after exactly max iterations", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = tickers()
		ctrl, f := newController(t, model, nil)

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, ReasonBudgetExhausted, summary.Reason)
		assert.Equal(t, 3, summary.Cycles)
		assert.Equal(t, 0, summary.Failures)
		assert.Equal(t, "getTickers", summary.LastCommand)
		assert.Len(t, model.Requests(), 3)
		f.exchange.AssertNumberOfCalls(t, "GetTickers", 3)
		assert.Equal(t, 8, ctrl.History().Len())
		assert.Equal(t, 8, summary.HistoryMessages)
		assert.Equal(t, ctrl.History().SerializedSize(), summary.HistoryChars)
		assert.Equal(t, StateTerminated, ctrl.State())
	})

	t.Run("should pace between cycles but not after the last", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = tickers()
		ctrl, f := newController(t, model, nil)

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, f.sleeper.calls)
	})

	t.Run("should refuse a second run", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = tickers()
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		_, err = ctrl.Run(context.Background())
		assert.Error(t, err)
	})
}

func TestRunHistory(t *testing.T) {
	t.Run("should append one assistant and one user turn per cycle", func(t *testing.T) {
		model := llmtest.NewScripted(tickers(), llmtest.Command("writeNotes", map[string]interface{}{"notes": "btc flat"}))
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 2 })

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 6)
		for i, msg := range msgs[2:] {
			if i%2 == 0 {
				assert.Equal(t, session.RoleAssistant, msg.Role)
			} else {
				assert.Equal(t, session.RoleUser, msg.Role)
			}
			assert.True(t, strings.HasPrefix(msg.Content, ">"), msg.Content)
		}
		assert.Equal(t, `>{"command":"getTickers"}`, msgs[2].Content)
		assert.Equal(t, `>{"tickers":[]}`, msgs[3].Content)
		assert.Contains(t, msgs[4].Content, `"writeNotes"`)
	})

	t.Run("should show the model the previous cycle", func(t *testing.T) {
		model := llmtest.NewScripted(tickers(), tickers())
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 2 })

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		requests := model.Requests()
		require.Len(t, requests, 2)
		assert.Len(t, requests[0], 2)
		require.Len(t, requests[1], 4)
		assert.Equal(t, `>{"tickers":[]}`, requests[1][3].Content)
	})

	t.Run("should grow history by two messages per state mutation", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Command("writeActionPlan", map[string]interface{}{"actionPlan": "buy dips"}))
		ctrl, f := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })

		before := ctrl.History().Len()
		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, before+2, ctrl.History().Len())
		assert.Equal(t, "buy dips", f.state.ActionPlan())
	})

	t.Run("should restart from a fresh seed after clearTerminal", func(t *testing.T) {
		model := llmtest.NewScripted(
			tickers(),
			llmtest.Command("writeNotes", map[string]interface{}{"notes": "keep me"}),
			llmtest.Command("clearTerminal", nil),
		)
		rec := &recorder{}
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.Recorder = rec })

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 4)
		assert.Contains(t, msgs[0].Content, "keep me")
		assert.Equal(t, `>{"command":"clearTerminal"}`, msgs[2].Content)
		assert.Equal(t, 2, rec.resets)
		assert.Len(t, rec.appended, 6)
	})

	t.Run("should notify the recorder of every appended turn", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = tickers()
		rec := &recorder{}
		ctrl, _ := newController(t, model, func(cfg *Config) {
			cfg.MaxIterations = 2
			cfg.Recorder = rec
		})

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, rec.appended, 4)
	})
}

func TestRunCallAI(t *testing.T) {
	t.Run("should record only the command and the delegated answer", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Command("callAI", map[string]interface{}{"prompt": "summarize"}))
		ctrl, f := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })
		f.delegate.Fallback = llmtest.Reply{Object: map[string]interface{}{"answer": "BTC is ranging"}}

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, session.RoleAssistant, msgs[2].Role)
		assert.Contains(t, msgs[2].Content, `"callAI"`)
		assert.Equal(t, session.UserMessage(`>{"answer":"BTC is ranging"}`), msgs[3])

		requests := f.delegate.Requests()
		require.Len(t, requests, 1)
		require.Len(t, requests[0], 2)
		assert.Equal(t, session.RoleSystem, requests[0][0].Role)
		assert.Equal(t, session.UserMessage("summarize"), requests[0][1])
		for _, msg := range msgs {
			assert.NotEqual(t, requests[0][0].Content, msg.Content)
			assert.NotEqual(t, "summarize", msg.Content)
		}
	})
}

func TestRunFailures(t *testing.T) {
	t.Run("should record an unknown command and keep going", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Command("fooBar", nil), tickers())
		ctrl, f := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 2 })

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Cycles)
		assert.Equal(t, 1, summary.Failures)
		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 6)
		assert.Equal(t, `>{"command":"fooBar"}`, msgs[2].Content)
		assert.Equal(t, session.RoleUser, msgs[3].Role)
		assert.True(t, strings.HasPrefix(msgs[3].Content, "ERROR: "), msgs[3].Content)
		assert.Contains(t, msgs[3].Content, "fooBar")
		f.exchange.AssertNumberOfCalls(t, "GetTickers", 1)
	})

	t.Run("should record a missing parameter without touching the exchange", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Command("getOrderbook", nil))
		ctrl, f := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failures)
		last := lastMessage(t, ctrl)
		assert.Contains(t, last.Content, "ERROR: missing parameter getOrderbook.symbol")
		f.exchange.AssertNotCalled(t, "GetOrderbook", mock.Anything, mock.Anything)
	})

	t.Run("should record raw output when the model reply is malformed", func(t *testing.T) {
		malformed := &llm.Error{Kind: llm.KindMalformedResponse, Provider: "scripted", Content: "I think we should buy", Err: errors.New("invalid character")}
		model := llmtest.NewScripted(llmtest.Reply{Err: malformed})
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failures)
		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, session.AssistantMessage(">I think we should buy"), msgs[2])
		assert.Equal(t, "ERROR: "+malformed.Error(), msgs[3].Content)
	})

	t.Run("should record a placeholder when the provider fails", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Reply{Err: &llm.Error{Kind: llm.KindProvider, Provider: "scripted", StatusCode: 502, Err: errors.New("bad gateway")}})
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		msgs := ctrl.History().Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, ">(no command)", msgs[2].Content)
		assert.Contains(t, msgs[3].Content, "status 502")
	})

	t.Run("should record exchange failures as error turns", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Command("getAccounts", nil))
		ctrl, f := newController(t, model, func(cfg *Config) { cfg.MaxIterations = 1 })
		f.exchange.On("GetAccounts", mock.Anything).Return(nil, &exchange.Error{Status: 500, Message: "down", Endpoint: "/accounts"})

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failures)
		last := lastMessage(t, ctrl)
		assert.True(t, strings.HasPrefix(last.Content, "ERROR: getAccounts: "), last.Content)
	})
}

func TestRunCompletion(t *testing.T) {
	t.Run("should stop when doNothing carries a completion keyword", func(t *testing.T) {
		model := llmtest.NewScripted(llmtest.Command("doNothing", map[string]interface{}{"reason": "Task COMPLETE for today"}))
		ctrl, f := newController(t, model, nil)

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, ReasonCompleted, summary.Reason)
		assert.Equal(t, 1, summary.Cycles)
		assert.Empty(t, f.sleeper.calls)
		last := lastMessage(t, ctrl)
		assert.Contains(t, last.Content, "No action taken")
	})

	t.Run("should keep going when doNothing has no keyword", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = llmtest.Command("doNothing", map[string]interface{}{"reason": "market closed"})
		ctrl, _ := newController(t, model, nil)

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ReasonBudgetExhausted, summary.Reason)
		assert.Equal(t, 3, summary.Cycles)
	})

	t.Run("should match keywords as whole words", func(t *testing.T) {
		ctrl, _ := newController(t, llmtest.NewScripted(), func(cfg *Config) {
			cfg.CompletionKeywords = []string{"complete", "all done"}
		})

		cases := map[string]bool{
			"session complete":                  true,
			"complete.":                         true,
			"trades closed, all done for today": true,
			"not complete yet":                  false,
			"not yet complete":                  false,
			"incomplete data, retrying":         false,
			"completed the first leg":           false,
			"done with all":                     false,
		}
		for reason, want := range cases {
			assert.Equal(t, want, ctrl.signalsCompletion(reason), reason)
		}
	})

	t.Run("should keep going when the keyword is negated", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = llmtest.Command("doNothing", map[string]interface{}{"reason": "analysis not complete yet"})
		ctrl, _ := newController(t, model, nil)

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ReasonBudgetExhausted, summary.Reason)
		assert.Equal(t, 3, summary.Cycles)
	})

	t.Run("should never complete without keywords", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = llmtest.Command("doNothing", map[string]interface{}{"reason": "complete"})
		ctrl, _ := newController(t, model, func(cfg *Config) { cfg.CompletionKeywords = []string{" ", ""} })

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ReasonBudgetExhausted, summary.Reason)
	})
}

func TestRunGrowthNotice(t *testing.T) {
	t.Run("should advise clearTerminal once history passes the budget", func(t *testing.T) {
		model := llmtest.NewScripted(tickers())
		ctrl, _ := newController(t, model, func(cfg *Config) {
			cfg.MaxIterations = 1
			cfg.HistoryCharBudget = 10
		})

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		last := lastMessage(t, ctrl)
		assert.True(t, strings.HasPrefix(last.Content, `>{"tickers":[]}`), last.Content)
		assert.Contains(t, last.Content, "clearTerminal")
		assert.Equal(t, 4, ctrl.History().Len())
	})

	t.Run("should stay quiet under the budget", func(t *testing.T) {
		model := llmtest.NewScripted(tickers())
		ctrl, _ := newController(t, model, func(cfg *Config) {
			cfg.MaxIterations = 1
			cfg.HistoryCharBudget = 1 << 20
		})

		_, err := ctrl.Run(context.Background())
		require.NoError(t, err)

		last := lastMessage(t, ctrl)
		assert.Equal(t, `>{"tickers":[]}`, last.Content)
	})
}

func TestRunCancellation(t *testing.T) {
	t.Run("should not start a cycle on a canceled context", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = tickers()
		ctrl, _ := newController(t, model, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := ctrl.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, ReasonCanceled, summary.Reason)
		assert.Equal(t, 0, summary.Cycles)
		assert.Empty(t, model.Requests())
	})

	t.Run("should stop when pacing is interrupted", func(t *testing.T) {
		model := llmtest.NewScripted()
		model.Fallback = tickers()
		ctrl, f := newController(t, model, nil)
		f.sleeper.err = context.Canceled

		summary, err := ctrl.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ReasonCanceled, summary.Reason)
		assert.Equal(t, 1, summary.Cycles)
		assert.Len(t, f.sleeper.calls, 1)
	})
}
