package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/tradebrain/internal/config"
	"github.com/harun/tradebrain/internal/logger"
	"github.com/harun/tradebrain/internal/observability"
	"github.com/harun/tradebrain/internal/tracing"
	"github.com/harun/tradebrain/pkg/agent"
	"github.com/harun/tradebrain/pkg/command"
	"github.com/harun/tradebrain/pkg/dispatch"
	"github.com/harun/tradebrain/pkg/exchange"
	"github.com/harun/tradebrain/pkg/llm"
	"github.com/harun/tradebrain/pkg/notify"
	"github.com/harun/tradebrain/pkg/prompt"
	"github.com/harun/tradebrain/pkg/session"
)

const serviceName = "tradebrain"

var (
	runMaxIterations  int
	runInterval       time.Duration
	runDelegationMode string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading agent loop",
	Long: `Run the trading agent in the foreground until the iteration budget is
spent, the model signals completion, or the process receives SIGINT/SIGTERM.`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "override loop.max_iterations")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "override loop.cycle_interval, e.g. 2m")
	runCmd.Flags().StringVar(&runDelegationMode, "delegation-mode", "", "override delegate.mode (isolated, inherit)")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	if r := log.Redactor(); r != nil {
		for _, secret := range cfg.Secrets() {
			r.AddSecret(secret)
		}
	}
	zl := log.GetZerolog()

	for _, warning := range config.NewValidator().ValidateConfig(cfg) {
		zl.Warn().Err(warning).Msg("Configuration warning")
	}

	release, err := acquirePIDFile(getPIDFilePath())
	if err != nil {
		return err
	}
	defer release()

	if err := tracing.InitOpenTelemetry(serviceName); err != nil {
		zl.Warn().Err(err).Msg("OpenTelemetry disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	if cfg.Audit.Enabled {
		path := auditPath(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
		if err := observability.InitAuditLogger(path); err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer observability.GetAuditLogger().Close()
	}

	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.Addr, zl)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rt, err := buildRuntime(cfg, tracing.NewRunID(), zl)
	if err != nil {
		return err
	}

	observability.RecordConfigAudit(context.Background(), "run_started", "cli", map[string]interface{}{
		"run_id":          rt.runID,
		"provider":        cfg.LLM.Provider,
		"model":           cfg.LLM.Model,
		"delegation_mode": rt.dispatcher.Mode(),
		"max_iterations":  cfg.Loop.MaxIterations,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := rt.controller.Run(ctx)
	printSummary(cmd, summary, rt.transcriptPath)
	if runErr != nil {
		return fmt.Errorf("agent run failed: %w", runErr)
	}
	return nil
}

// loadConfig loads configuration, applies command-line overrides and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	if f := cmd.Flag("max-iterations"); f != nil && f.Changed {
		cfg.Loop.MaxIterations = runMaxIterations
	}
	if f := cmd.Flag("interval"); f != nil && f.Changed {
		cfg.Loop.CycleInterval = runInterval
	}
	if f := cmd.Flag("delegation-mode"); f != nil && f.Changed {
		cfg.Delegate.Mode = runDelegationMode
	}
}

// runtime is a fully wired agent.
type runtime struct {
	runID          string
	controller     *agent.Controller
	dispatcher     *dispatch.Dispatcher
	transcriptPath string
}

func buildRuntime(cfg *config.Config, runID string, log zerolog.Logger) (*runtime, error) {
	model, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	delegate := model
	if cfg.Delegate.Provider != "" {
		delegate, err = llm.New(llm.Config{
			Provider:    cfg.Delegate.Provider,
			BaseURL:     cfg.Delegate.BaseURL,
			APIKey:      cfg.Delegate.APIKey,
			Model:       cfg.Delegate.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			Logger:      log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create delegate model client: %w", err)
		}
	}

	kraken, err := exchange.NewKrakenClient(exchange.KrakenConfig{
		BaseURL:     cfg.Exchange.BaseURL,
		SpotBaseURL: cfg.Exchange.SpotBaseURL,
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		Timeout:     cfg.Exchange.Timeout,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange client: %w", err)
	}

	notifier, err := newNotifier(cfg.Notify, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	state := session.NewState()
	registry, err := command.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build command registry: %w", err)
	}
	renderer := prompt.NewRenderer(registry.Specs()).WithCompletionKeywords(cfg.Loop.CompletionKeywords)

	dispatcher, err := dispatch.New(dispatch.Config{
		Exchange:             kraken,
		State:                state,
		Notifier:             notifier,
		Delegate:             delegate,
		Renderer:             renderer,
		DelegateSystemPrompt: cfg.Delegate.SystemPrompt,
		DelegationMode:       cfg.Delegate.Mode,
		MaxWait:              cfg.Loop.MaxWait,
		InitialTrigger:       cfg.Loop.InitialTrigger,
		Logger:               log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	rt := &runtime{runID: runID, dispatcher: dispatcher}

	var recorder session.Recorder
	if cfg.Transcript.Enabled {
		dir := transcriptDir(cfg)
		transcript, err := session.NewTranscript(dir, runID, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open transcript: %w", err)
		}
		if cfg.Transcript.Retention > 0 {
			retention := session.NewRetention(dir, cfg.Transcript.Retention, cfg.Transcript.MaxFiles)
			if _, err := retention.Prune(runID); err != nil {
				log.Warn().Err(err).Msg("Transcript cleanup failed")
			}
		}
		recorder = transcript
		rt.transcriptPath = transcript.Path()
	}

	rt.controller, err = agent.New(agent.Config{
		RunID:              runID,
		Model:              model,
		Registry:           registry,
		Dispatcher:         dispatcher,
		State:              state,
		Renderer:           renderer,
		Recorder:           recorder,
		MaxIterations:      cfg.Loop.MaxIterations,
		CycleInterval:      cfg.Loop.CycleInterval,
		CompletionKeywords: cfg.Loop.CompletionKeywords,
		HistoryCharBudget:  cfg.Loop.HistoryCharBudget,
		InitialTrigger:     cfg.Loop.InitialTrigger,
		Logger:             log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return rt, nil
}

func newNotifier(cfg config.NotifyConfig, log zerolog.Logger) (notify.Notifier, error) {
	switch cfg.Kind {
	case "", "none":
		return notify.Nop{}, nil
	case "http":
		return notify.NewHTTPNotifier(notify.HTTPConfig{
			URL:     cfg.URL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
			Logger:  log,
		})
	case "telegram":
		return notify.NewTelegramNotifier(notify.TelegramConfig{
			Token:    cfg.Token,
			ChatID:   cfg.ChatID,
			Endpoint: cfg.URL,
			Timeout:  cfg.Timeout,
			Logger:   log,
		})
	default:
		return nil, fmt.Errorf("unsupported notifier kind: %s", cfg.Kind)
	}
}

func dataDir(cfg *config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), serviceName)
	}
	return filepath.Join(home, ".tradebrain")
}

func transcriptDir(cfg *config.Config) string {
	if cfg.Transcript.Dir != "" {
		return cfg.Transcript.Dir
	}
	return filepath.Join(dataDir(cfg), "transcripts")
}

func auditPath(cfg *config.Config) string {
	if cfg.Audit.File != "" {
		return cfg.Audit.File
	}
	return filepath.Join(dataDir(cfg), "audit.log")
}

// serveMetrics exposes the Prometheus registry on addr until shut down.
func serveMetrics(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting metrics server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

func printSummary(cmd *cobra.Command, s agent.Summary, transcriptPath string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s finished: %s\n", s.RunID, s.Reason)
	fmt.Fprintf(out, "Cycles: %d (failed: %d)\n", s.Cycles, s.Failures)
	if s.LastCommand != "" {
		fmt.Fprintf(out, "Last command: %s\n", s.LastCommand)
	}
	fmt.Fprintf(out, "History: %d messages, %d chars\n", s.HistoryMessages, s.HistoryChars)
	fmt.Fprintf(out, "Duration: %s\n", formatDuration(s.Duration))
	if transcriptPath != "" {
		fmt.Fprintf(out, "Transcript: %s\n", transcriptPath)
	}
}
