package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading stdin and writing stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard on the given streams
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for credentials and loop settings, starting from defaults.
func (w *Wizard) Run() (*Config, error) {
	w.println("=== TradeBrain Configuration Wizard ===")
	w.println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Language model
	w.println("Language model:")
	provider, err := w.choose("Provider (openrouter/openai/anthropic)", cfg.LLM.Provider, "openrouter", "openai", "anthropic")
	if err != nil {
		return nil, err
	}
	if provider != cfg.LLM.Provider {
		cfg.LLM.Provider = provider
		cfg.LLM.BaseURL = ""
		cfg.LLM.Model = ""
	}

	for {
		w.printf("%s API key: ", provider)
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if key == "" {
			w.println("Error: API key is required")
			continue
		}
		if err := validator.ValidateAPIKey(key, provider); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.LLM.APIKey = key
		break
	}

	for {
		if cfg.LLM.Model != "" {
			w.printf("Model [%s]: ", cfg.LLM.Model)
		} else {
			w.print("Model: ")
		}
		model, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if model != "" {
			cfg.LLM.Model = model
		}
		if cfg.LLM.Model != "" {
			break
		}
		w.println("Error: model is required")
	}

	w.println()

	// Exchange
	w.println("Kraken Futures API:")
	for cfg.Exchange.APIKey == "" {
		w.print("API key: ")
		if cfg.Exchange.APIKey, err = w.readLine(); err != nil {
			return nil, err
		}
	}
	for cfg.Exchange.APISecret == "" {
		w.print("API secret (base64): ")
		if cfg.Exchange.APISecret, err = w.readLine(); err != nil {
			return nil, err
		}
	}

	w.println()

	// Notifications
	w.println("Operator notifications:")
	kind, err := w.choose("Channel (none/http/telegram)", "none", "none", "http", "telegram")
	if err != nil {
		return nil, err
	}
	cfg.Notify.Kind = kind

	switch kind {
	case "http":
		for {
			w.print("Webhook URL: ")
			url, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateURL("notify.url", url); err != nil {
				w.printf("Error: %v\n", err)
				continue
			}
			cfg.Notify.URL = url
			break
		}
		w.print("Bearer token (press Enter to skip): ")
		if cfg.Notify.Token, err = w.readLine(); err != nil {
			return nil, err
		}
	case "telegram":
		for {
			w.print("Telegram bot token: ")
			token, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateTelegramToken(token); err != nil {
				w.printf("Error: %v\n", err)
				continue
			}
			cfg.Notify.Token = token
			break
		}
		for {
			w.print("Telegram chat id: ")
			raw, err := w.readLine()
			if err != nil {
				return nil, err
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id == 0 {
				w.println("Error: chat id must be a non-zero integer")
				continue
			}
			cfg.Notify.ChatID = id
			break
		}
	}

	w.println()

	// Loop
	w.println("Agent loop:")
	for {
		w.printf("Max iterations [%d]: ", cfg.Loop.MaxIterations)
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			w.println("Error: max iterations must be a positive integer")
			continue
		}
		cfg.Loop.MaxIterations = n
		break
	}

	w.print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			w.printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	w.println()
	w.println("Configuration complete!")

	return cfg, nil
}

// choose prompts until the answer is one of allowed; empty selects def.
func (w *Wizard) choose(label, def string, allowed ...string) (string, error) {
	for {
		w.printf("%s [%s]: ", label, def)
		answer, err := w.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			return def, nil
		}
		answer = strings.ToLower(answer)
		if oneOf(answer, allowed...) {
			return answer, nil
		}
		w.printf("Error: must be one of %s\n", strings.Join(allowed, ", "))
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", fmt.Errorf("wizard input ended: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (w *Wizard) print(s string) {
	fmt.Fprint(w.out, s)
}

func (w *Wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *Wizard) println(args ...interface{}) {
	fmt.Fprintln(w.out, args...)
}
