package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor" // no wallet configured in defaults
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Book.PollInterval.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "book: poll_interval")
}

func TestFullModeRequiresWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")

	cfg.Wallet.PrivateKey = "0xabc"
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesTOMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"
log_level = "debug"

[book]
poll_interval = "5s"
depth_limit = 25

[server]
port = 9001
`), 0o600))

	t.Setenv("MGLASS_SERVER_PORT", "9002")
	t.Setenv("MGLASS_BOOK_MAX_STALE", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "5s", cfg.Book.PollInterval.Duration.String())
	assert.Equal(t, 25, cfg.Book.DepthLimit)
	assert.Equal(t, 9002, cfg.Server.Port) // env wins over file
	assert.Equal(t, "45s", cfg.Book.MaxStale.Duration.String())
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Redis.Password = "hunter2"
	cfg.Server.APIToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Server.APIToken)

	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
