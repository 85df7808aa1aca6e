package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExpandsEnvAndFillsDefaults(t *testing.T) {
	t.Setenv("TELECARE_TEST_TOKEN", "secret-token")
	dbPath := filepath.Join(t.TempDir(), "nested", "app.db")

	path := writeConfig(t, `
database:
  path: `+dbPath+`
telegram:
  bot_token: ${TELECARE_TEST_TOKEN}
schedule:
  timezone: Asia/Kolkata
server:
  api_keys: ["k1", "k2"]
admins:
  - id: admin-1
    name: Ops
    chat_id: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Telegram.BotToken)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, int64(42), cfg.Admins[0].ChatID)
	assert.DirExists(t, filepath.Dir(dbPath))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())

	assert.Equal(t, 8080, cfg.ServerPort())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, 30*time.Second, cfg.LockTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	rps, burst := cfg.RateLimit()
	assert.Equal(t, 20.0, rps)
	assert.Equal(t, 40, burst)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "app.db")+`
schedule:
  timezone: Mars/Olympus
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLocationDefaultsToUTC(t *testing.T) {
	var cfg Config
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
