package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/tradebrain/internal/config"
	"github.com/harun/tradebrain/pkg/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long: `Show whether an agent is running on this host, with its PID and uptime,
and the most recent run transcript.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := printStatus(cmd, getPIDFilePath()); err != nil {
		return err
	}

	// status must work without a usable config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil
	}
	return printLastRun(cmd, transcriptDir(cfg))
}

func printStatus(cmd *cobra.Command, pidFile string) error {
	out := cmd.OutOrStdout()

	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", pid)

	// the PID file is written at startup
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func printLastRun(cmd *cobra.Command, dir string) error {
	transcripts, err := session.ListTranscripts(dir)
	if err != nil {
		return err
	}
	if len(transcripts) == 0 {
		return nil
	}

	last := transcripts[0]
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Last run: %s (%s ago)\n", last.RunID, formatDuration(time.Since(last.Modified)))
	fmt.Fprintf(out, "Transcript: %s\n", last.Path)
	fmt.Fprintf(out, "Transcripts on disk: %d\n", len(transcripts))
	return nil
}
