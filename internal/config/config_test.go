package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("SERVER_ADDR", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.Equal(t, 500, cfg.Chat.MaxMessageLength)
	assert.Equal(t, "databases.lofi.collections.messages.documents", cfg.Collection.Channel())
	assert.Equal(t, 25, cfg.Companion.WorkMinutes)
	assert.Equal(t, 4*time.Second, cfg.Companion.ToastDuration)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	yml := `
server_addr: ":9090"
collection:
  database_id: study
  collection_id: chat
chat:
  history_limit: 20
  max_message_length: 300
companion:
  work_minutes: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CHAT_HISTORY_LIMIT", "10")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "study", cfg.Collection.DatabaseID)
	assert.Equal(t, "chat", cfg.Collection.CollectionID)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit, "env wins over yaml")
	assert.Equal(t, 300, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 50, cfg.Companion.WorkMinutes)
	assert.Equal(t, 5, cfg.Companion.BreakMinutes)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
}

func TestLoadIgnoresNonPositiveLimits(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CHAT_MAX_MESSAGE_LENGTH", "-1")
	t.Setenv("DB_MAX_CONNECTIONS", "0")

	cfg := Load()

	assert.Equal(t, 500, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 20, cfg.DBMaxConnections())
}
