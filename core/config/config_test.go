package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Telegram.Token = "token"
	cfg.Ledger.BaseURL = "https://ledger.example.com/api/v1/"
	return cfg
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	require.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	require.Equal(t, "https://ledger.example.com/api/v1", cfg.Ledger.BaseURL, "trailing slash trimmed")
	require.Equal(t, cfg.Ledger.BaseURL, cfg.Catalog.BaseURL, "catalog defaults to the ledger host")
	require.Equal(t, "EUR", cfg.Ledger.SettlementCurrency)
	require.Equal(t, 3, cfg.Ledger.VerifyAttempts)
	require.Equal(t, 500, cfg.Ledger.VerifyDelayMS)
	require.Equal(t, CacheMemory, cfg.Cache.Backend)
	require.Equal(t, SnapshotFile, cfg.Snapshot.Backend)
	require.NotEmpty(t, cfg.Snapshot.Path)
}

func TestNormalizeRejectsMissingToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	require.Error(t, Normalize(cfg))
}

func TestNormalizeRejectsUnknownRunMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "carrier-pigeon"
	require.Error(t, Normalize(cfg))
}

func TestNormalizeWebhookNeedsURL(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	require.Error(t, Normalize(cfg))

	cfg.Webhook.URL = "https://bot.example.com/hook"
	require.NoError(t, Normalize(cfg))
}

func TestNormalizeUppercasesSettlementCurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.SettlementCurrency = " usd "
	require.NoError(t, Normalize(cfg))
	require.Equal(t, "USD", cfg.Ledger.SettlementCurrency)
}

func TestNormalizeRejectsUnknownBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Backend = "floppy"
	require.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Snapshot.Backend = "floppy"
	require.Error(t, Normalize(cfg))
}

func TestDatabaseEnabled(t *testing.T) {
	cfg := validConfig()
	require.False(t, cfg.DatabaseEnabled())
	cfg.Database.Host = "localhost"
	require.True(t, cfg.DatabaseEnabled())
}
