package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliosim/internal/engine"
	"portfoliosim/internal/fixed"
	"portfoliosim/strategies"
	"portfoliosim/types"
)

const sample = `
data:
  source: parquet
  dir: ./data
results:
  sqlite_path: runs.db
simulation:
  start: 2015-01-02
  end: 2020-12-31
  guide: SPY
  assets: [SPY, AGG]
account:
  initial_cash: "10000.50"
  monthly_deposit: "500"
broker:
  valuation: adj_close
  quote: close
  slippage: {pct: 0.001}
  cash_interest_rate: "0.02"
  dividends: true
reporting:
  risk_free_rate: "0.01"
strategy:
  kind: sma
  sma: {asset: SPY, safe: AGG, window: 200}
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceParquet, cfg.Data.Source)
	assert.Equal(t, 4, cfg.Data.LoadWorkers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, string(types.AccountCash), cfg.Account.Type)
	assert.Equal(t, 0.001, cfg.Broker.Slippage.Pct)
	assert.Equal(t, strategies.KindSMA, cfg.Strategy.Kind)
	require.NotNil(t, cfg.Strategy.SMA)
	assert.Equal(t, 200, cfg.Strategy.SMA.Window)

	start, end, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), end)

	iv, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, types.Day, iv)
	assert.Equal(t, []string{"SPY", "AGG"}, cfg.Tickers())

	_, err = cfg.BrokerConfig()
	require.NoError(t, err)
	_, err = cfg.SimulationConfig()
	require.NoError(t, err)
	_, err = cfg.ReportingConfig()
	require.NoError(t, err)

	_, err = strategies.NewRegistry().Build(cfg.Strategy)
	require.NoError(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/prices")
	t.Setenv("DATA_DIR", "/srv/data")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RESULTS_DB", "/tmp/results.db")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/prices", cfg.Data.DatabaseURL)
	assert.Equal(t, "/srv/data", cfg.Data.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/results.db", cfg.Results.SQLitePath)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("simulation: {assets: [QQQ]}\naccount: {initial_cash: '1000'}\n"))
	require.NoError(t, err)
	assert.Equal(t, "QQQ", cfg.Simulation.Guide)
	assert.Equal(t, "adj_close", cfg.Broker.Quote)
	assert.Equal(t, engine.DefaultEpsilon, cfg.Account.Epsilon)

	start, end, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, engine.TimeBegin, start)
	assert.Equal(t, engine.TimeEnd, end)
	assert.Equal(t, []string{"QQQ"}, cfg.Tickers())
}

func TestSeparateGuideIsLoaded(t *testing.T) {
	cfg := &Config{Simulation: Simulation{Guide: "CAL", Assets: []string{"SPY"}}}
	assert.Equal(t, []string{"SPY", "CAL"}, cfg.Tickers())
}

func TestAmount(t *testing.T) {
	p, err := amount("x", "12.5")
	require.NoError(t, err)
	assert.Equal(t, fixed.Must(fixed.FromString("12.5")), p)

	p, err = amount("x", "")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	_, err = amount("x", "twelve")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		build func(*Config) error
	}{
		{"zero initial cash", "simulation: {assets: [SPY]}\naccount: {initial_cash: '0'}", func(c *Config) error { _, err := c.SimulationConfig(); return err }},
		{"unknown account type", "simulation: {assets: [SPY]}\naccount: {initial_cash: '1', type: futures}", func(c *Config) error { _, err := c.SimulationConfig(); return err }},
		{"no assets", "account: {initial_cash: '1'}", func(c *Config) error { _, err := c.SimulationConfig(); return err }},
		{"negative deposit", "simulation: {assets: [SPY]}\naccount: {initial_cash: '1', monthly_deposit: '-5'}", func(c *Config) error { _, err := c.SimulationConfig(); return err }},
		{"unknown price field", "broker: {valuation: mid}", func(c *Config) error { _, err := c.BrokerConfig(); return err }},
		{"negative slippage", "broker: {slippage: {pct: -0.1}}", func(c *Config) error { _, err := c.BrokerConfig(); return err }},
		{"bad dividend field", "broker: {dividends: true, dividend_field: payout}", func(c *Config) error { _, err := c.BrokerConfig(); return err }},
		{"bad date", "simulation: {start: 01/02/2015}", func(c *Config) error { _, _, err := c.Window(); return err }},
		{"inverted window", "simulation: {start: 2020-01-01, end: 2019-01-01}", func(c *Config) error { _, _, err := c.Window(); return err }},
		{"unknown interval", "data: {interval: \"7\"}", func(c *Config) error { _, err := c.Interval(); return err }},
		{"bad risk free rate", "reporting: {risk_free_rate: abc}", func(c *Config) error { _, err := c.ReportingConfig(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.ErrorIs(t, tt.build(cfg), ErrInvalid)
		})
	}
}
