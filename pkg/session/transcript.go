package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/tradebrain/internal/observability"
	"github.com/rs/zerolog"
)

// Entry kinds written to a transcript.
const (
	EntryMessage = "message"
	EntryReset   = "reset"
)

// TranscriptEntry is one JSONL line of a transcript.
type TranscriptEntry struct {
	RunID     string    `json:"runId"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Seed      []Message `json:"seed,omitempty"`
}

// Transcript appends history mutations of one run to a JSONL file.
// It implements Recorder; write failures are logged and never surface to
// the loop.
type Transcript struct {
	runID  string
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewTranscript creates the transcript directory and returns a recorder
// writing to <dir>/<runID>.jsonl.
func NewTranscript(dir, runID string, logger zerolog.Logger) (*Transcript, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".tradebrain", "transcripts")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	t := &Transcript{
		runID:  runID,
		path:   filepath.Join(dir, runID+".jsonl"),
		logger: logger.With().Str("component", "transcript").Logger(),
	}

	t.logger.Info().Str("path", t.path).Msg("Transcript initialized")
	return t, nil
}

func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if strings.Contains(runID, "..") {
		return fmt.Errorf("run id cannot contain '..'")
	}
	if strings.ContainsAny(runID, "/\\\x00") {
		return fmt.Errorf("run id cannot contain path separators or null bytes")
	}
	return nil
}

// Path returns the transcript file path.
func (t *Transcript) Path() string {
	return t.path
}

// OnAppend records an appended message.
func (t *Transcript) OnAppend(msg Message) {
	m := msg
	t.write(TranscriptEntry{Kind: EntryMessage, Message: &m})
}

// OnReset records the seed installed by a reset.
func (t *Transcript) OnReset(seed []Message) {
	t.write(TranscriptEntry{Kind: EntryReset, Seed: seed})
}

func (t *Transcript) write(entry TranscriptEntry) {
	start := time.Now()
	defer func() {
		observability.RecordTranscriptWrite(time.Since(start))
	}()

	entry.RunID = t.runID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to marshal transcript entry")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to open transcript file")
		return
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		t.logger.Error().Err(err).Msg("Failed to write transcript entry")
		return
	}

	t.logger.Debug().Str("kind", entry.Kind).Msg("Transcript entry written")
}

// LoadTranscript reads every entry of a transcript file.
func LoadTranscript(path string) ([]TranscriptEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	var entries []TranscriptEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse transcript line %d: %w", lineNum, err)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return entries, nil
}
