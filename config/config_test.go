package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
account:
  id: TEST-1
  currency: USD
  balance: 25000
friction:
  slippage_min_pips: 0.5
  slippage_max_pips: 2.0
  spread_pips: 1.5
  commission_per_lot: 7
  swap_per_lot_day: 2
  leverage: 100
risk:
  max_daily_drawdown: 750
  max_open_positions: 4
  max_risk_per_trade: 2
  trading_enabled: true
journal:
  type: csv
  trades_file: trades.csv
  equity_file: equity.csv
server:
  addr: ":5000"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "TEST-1", cfg.Account.ID)
	assert.Equal(t, 25000.0, cfg.Account.Balance)
	assert.Equal(t, 1.5, cfg.Friction.SpreadPips)
	assert.Equal(t, 4, cfg.Risk.MaxOpenPositions)
	assert.True(t, cfg.Risk.TradingEnabled)
	assert.Equal(t, ":5000", cfg.Server.Addr)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
  "account": {"id": "J-1", "currency": "USD", "balance": 5000},
  "journal": {"type": "none"}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "J-1", cfg.Account.ID)
	assert.Equal(t, 5000.0, cfg.Account.Balance)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 100.0, cfg.Friction.Leverage)
	assert.Equal(t, 500.0, cfg.Risk.MaxDailyDrawdown)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_balance", func(c *Config) { c.Account.Balance = 0 }},
		{"missing_currency", func(c *Config) { c.Account.Currency = "" }},
		{"inverted_slippage", func(c *Config) {
			c.Friction.SlippageMinPips = 2
			c.Friction.SlippageMaxPips = 1
		}},
		{"zero_leverage", func(c *Config) { c.Friction.Leverage = 0 }},
		{"zero_max_positions", func(c *Config) { c.Risk.MaxOpenPositions = 0 }},
		{"csv_without_files", func(c *Config) { c.Journal = JournalConfig{Type: "csv"} }},
		{"sqlite_without_path", func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} }},
		{"bad_journal_type", func(c *Config) { c.Journal.Type = "parquet" }},
		{"unknown_sim_symbol", func(c *Config) { c.Simulation.Symbol = "DOGEUSD" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAPERTRADER_ADDR", ":9999")
	t.Setenv("PAPERTRADER_DB", "/tmp/override.db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  id: E-1\n  currency: USD\n  balance: 1000\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "/tmp/override.db", cfg.Journal.DBPath)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.yaml")

	cfg := Default()
	cfg.Account.ID = "RT-1"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RT-1", loaded.Account.ID)
	assert.Equal(t, cfg.Risk, loaded.Risk)
}
