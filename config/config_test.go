package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuepass/pass-engine/config"
)

func TestLoad_NoPath_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "passengine.db", cfg.Server.DBPath)
	assert.Equal(t, "0.5", cfg.Ledger.Granularity)
	assert.Equal(t, 2*time.Minute, cfg.Token.TTL.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Token.PurgeInterval.Duration)
	assert.Equal(t, "CZK", cfg.Payment.Currency)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passengine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[token]
ttl = "90s"

[payment]
bank_account = "CZ6508000000192000145399"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Token.TTL.Duration)
	assert.Equal(t, "CZ6508000000192000145399", cfg.Payment.BankAccount)

	// Untouched sections keep their defaults.
	assert.Equal(t, "passengine.db", cfg.Server.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.Token.PurgeInterval.Duration)
	assert.Equal(t, "CZK", cfg.Payment.Currency)
}

func TestLoad_MissingFile_Errors(t *testing.T) {
	_, err := config.Load("/does/not/exist.toml")
	assert.Error(t, err)
}

func TestLoad_BadDuration_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[token]\nttl = \"soon\"\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
