package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultRetention      = 7 * 24 * time.Hour
	DefaultMaxTranscripts = 500

	transcriptExt = ".jsonl"
)

// TranscriptInfo describes one transcript file on disk.
type TranscriptInfo struct {
	RunID    string
	Path     string
	Size     int64
	Modified time.Time
}

// ListTranscripts returns the transcripts in dir, newest first. A missing
// directory holds no transcripts.
func ListTranscripts(dir string) ([]TranscriptInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var out []TranscriptInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), transcriptExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, TranscriptInfo{
			RunID:    strings.TrimSuffix(entry.Name(), transcriptExt),
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}

// Retention prunes old transcripts so a long-lived deployment does not fill
// its data directory.
type Retention struct {
	dir    string
	maxAge time.Duration
	// maxFiles caps the number of transcripts kept, newest first.
	maxFiles int
	now      func() time.Time
}

// NewRetention creates a retention policy for dir. Zero values select the
// defaults.
func NewRetention(dir string, maxAge time.Duration, maxFiles int) *Retention {
	if maxAge == 0 {
		maxAge = DefaultRetention
	}
	if maxFiles == 0 {
		maxFiles = DefaultMaxTranscripts
	}

	return &Retention{
		dir:      dir,
		maxAge:   maxAge,
		maxFiles: maxFiles,
		now:      time.Now,
	}
}

// Prune deletes transcripts older than the retention age and any beyond the
// file cap. keep names a run whose transcript is never deleted, typically
// the one being written. It returns the number of deleted files.
func (r *Retention) Prune(keep string) (int, error) {
	transcripts, err := ListTranscripts(r.dir)
	if err != nil {
		return 0, err
	}

	now := r.now()
	deleted := 0
	kept := 0

	for _, t := range transcripts {
		if t.RunID == keep {
			kept++
			continue
		}

		age := now.Sub(t.Modified)
		if age < r.maxAge && (r.maxFiles < 0 || kept < r.maxFiles) {
			kept++
			continue
		}

		if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
			log.Error().
				Str("path", t.Path).
				Err(err).
				Msg("Failed to delete transcript")
			continue
		}
		deleted++

		log.Debug().
			Str("run_id", t.RunID).
			Dur("age", age).
			Msg("Transcript deleted")
	}

	if deleted > 0 {
		log.Info().
			Int("deleted", deleted).
			Int("kept", kept).
			Msg("Cleaned up old transcripts")
	}

	return deleted, nil
}

// MaxAge returns the retention age.
func (r *Retention) MaxAge() time.Duration {
	return r.maxAge
}

// MaxFiles returns the file cap; negative means unlimited.
func (r *Retention) MaxFiles() int {
	return r.maxFiles
}
