package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	RecordCycle("ok")
	RecordCommand("getTickers", 15*time.Millisecond, true)
	RecordLLMRequest("openrouter", 2*time.Second, false)
	SetHistorySize(1234, 5)
	RecordNotification(true)
	RecordTranscriptWrite(time.Millisecond)

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `tradebrain_cycles_total{outcome="ok"}`)
	assert.Contains(t, text, `tradebrain_command_total{command="getTickers",status="success"}`)
	assert.Contains(t, text, `tradebrain_llm_requests_total{provider="openrouter",status="error"}`)
	assert.Contains(t, text, "tradebrain_history_chars 1234")
	assert.Contains(t, text, "tradebrain_history_messages 5")
	assert.Contains(t, text, `tradebrain_notifications_total{status="success"}`)
	assert.Contains(t, text, "tradebrain_transcript_write_duration_seconds")
}

func TestAuditLogger(t *testing.T) {
	t.Run("should write trade events as JSON lines", func(t *testing.T) {
		var buf bytes.Buffer
		prev := GetAuditLogger()
		SetAuditLogger(NewAuditLogger(&buf))
		defer SetAuditLogger(prev)

		RecordTradeAudit(context.Background(), "sendOrder", "run-1", "success", map[string]interface{}{
			"symbol": "pf_xbtusd",
		})

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "trade", entry["type"])
		assert.Equal(t, "sendOrder", entry["action"])
		assert.Equal(t, "run-1", entry["actor"])
		assert.Equal(t, "success", entry["status"])
		assert.Equal(t, "pf_xbtusd", entry["metadata"].(map[string]interface{})["symbol"])
	})

	t.Run("should append to file", func(t *testing.T) {
		prev := GetAuditLogger()
		defer SetAuditLogger(prev)

		path := filepath.Join(t.TempDir(), "audit.log")
		require.NoError(t, InitAuditLogger(path))

		RecordTradeAudit(context.Background(), "cancelOrder", "run-2", "failure", nil)
		RecordConfigAudit(context.Background(), "startup", "run-2", map[string]interface{}{"model": "m"})
		require.NoError(t, GetAuditLogger().Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"action":"cancelOrder"`)
		assert.Contains(t, lines[1], `"type":"config"`)
	})
}
