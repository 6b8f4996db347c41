// Package config reads the YAML run configuration and turns it into engine
// configs and a predictor factory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"portfoliosim/internal/engine"
	"portfoliosim/internal/fixed"
	"portfoliosim/internal/pricing"
	"portfoliosim/strategies"
	"portfoliosim/types"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	SourceCSV      = "csv"
	SourceParquet  = "parquet"
	SourcePostgres = "postgres"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

type Config struct {
	Data       Data              `yaml:"data"`
	Results    Results           `yaml:"results"`
	Logging    Logging           `yaml:"logging"`
	Simulation Simulation        `yaml:"simulation"`
	Account    Account           `yaml:"account"`
	Broker     Broker            `yaml:"broker"`
	Reporting  Reporting         `yaml:"reporting"`
	Strategy   strategies.Config `yaml:"strategy"`
}

// Data selects where candles are loaded from.
type Data struct {
	Source      string `yaml:"source"`
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
	Interval    string `yaml:"interval"`
	LoadWorkers int    `yaml:"load_workers"`
}

type Results struct {
	SQLitePath string `yaml:"sqlite_path"`
	CSVDir     string `yaml:"csv_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Simulation holds the run window and the assets. Dates are YYYY-MM-DD and
// may be left empty for an open bound.
type Simulation struct {
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Guide    string   `yaml:"guide"`
	Assets   []string `yaml:"assets"`
	Fast     bool     `yaml:"fast"`
	Progress bool     `yaml:"progress"`
}

// Account amounts are decimal strings.
type Account struct {
	InitialCash       string  `yaml:"initial_cash"`
	Type              string  `yaml:"type"`
	AllowShortSelling bool    `yaml:"allow_short_selling"`
	Epsilon           float64 `yaml:"epsilon"`
	MonthlyDeposit    string  `yaml:"monthly_deposit"`
}

type Broker struct {
	Valuation        string           `yaml:"valuation"`
	Quote            string           `yaml:"quote"`
	Slippage         pricing.Slippage `yaml:"slippage"`
	CashInterestRate string           `yaml:"cash_interest_rate"`
	Dividends        bool             `yaml:"dividends"`
	DividendField    string           `yaml:"dividend_field"`
}

type Reporting struct {
	RiskFreeRate string `yaml:"risk_free_rate"`
	PrintTrades  bool   `yaml:"print_trades"`
	Name         string `yaml:"name"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path, fills in defaults and then
// applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Data.Source == "" {
		c.Data.Source = SourceCSV
	}
	if c.Data.Interval == "" {
		c.Data.Interval = string(types.Day)
	}
	if c.Data.LoadWorkers == 0 {
		c.Data.LoadWorkers = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Account.Type == "" {
		c.Account.Type = string(types.AccountCash)
	}
	if c.Account.Epsilon == 0 {
		c.Account.Epsilon = engine.DefaultEpsilon
	}
	if c.Broker.Valuation == "" {
		c.Broker.Valuation = "adj_close"
	}
	if c.Broker.Quote == "" {
		c.Broker.Quote = c.Broker.Valuation
	}
	if c.Broker.DividendField == "" {
		c.Broker.DividendField = "dividend"
	}
	if c.Reporting.Name == "" {
		c.Reporting.Name = "Report"
	}
	if c.Simulation.Guide == "" && len(c.Simulation.Assets) > 0 {
		c.Simulation.Guide = c.Simulation.Assets[0]
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Data.DatabaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RESULTS_DB"); v != "" {
		cfg.Results.SQLitePath = v
	}
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func invalid(field string, err error) error {
	return fmt.Errorf("%s: %w: %w", field, ErrInvalid, err)
}

// amount parses s as a fixed point value. Empty means zero.
func amount(field, s string) (fixed.Point, error) {
	if strings.TrimSpace(s) == "" {
		return fixed.Zero, nil
	}
	p, err := fixed.FromString(s)
	if err != nil {
		return 0, invalid(field, err)
	}
	return p, nil
}

func date(field, s string, open time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return open, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, invalid(field, err)
	}
	return t, nil
}

func priceModel(field, name string) (pricing.PriceModel, error) {
	f, err := types.ParseField(name)
	if err != nil {
		return nil, invalid(field, err)
	}
	return pricing.FieldPrice{Field: f}, nil
}

// Interval returns the candle interval to load.
func (c *Config) Interval() (types.Interval, error) {
	iv, err := types.ParseInterval(c.Data.Interval)
	if err != nil {
		return "", invalid("data.interval", err)
	}
	return iv, nil
}

// Window returns the simulation bounds. Empty bounds are open.
func (c *Config) Window() (time.Time, time.Time, error) {
	start, err := date("simulation.start", c.Simulation.Start, engine.TimeBegin)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := date("simulation.end", c.Simulation.End, engine.TimeEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, invalid("simulation", fmt.Errorf("end %s before start %s", c.Simulation.End, c.Simulation.Start))
	}
	return start, end, nil
}

// Tickers is every series the run needs: the assets plus the guide.
func (c *Config) Tickers() []string {
	out := append([]string(nil), c.Simulation.Assets...)
	for _, a := range out {
		if a == c.Simulation.Guide {
			return out
		}
	}
	if c.Simulation.Guide != "" {
		out = append(out, c.Simulation.Guide)
	}
	return out
}

func (c *Config) BrokerConfig() (*engine.BrokerConfig, error) {
	valuation, err := priceModel("broker.valuation", c.Broker.Valuation)
	if err != nil {
		return nil, err
	}
	quote, err := priceModel("broker.quote", c.Broker.Quote)
	if err != nil {
		return nil, err
	}
	if c.Broker.Slippage.Pct < 0 || c.Broker.Slippage.Const < 0 {
		return nil, invalid("broker.slippage", fmt.Errorf("negative slippage %+v", c.Broker.Slippage))
	}
	cfg := engine.NewBrokerConfig(valuation, quote, c.Broker.Slippage)

	rate, err := amount("broker.cash_interest_rate", c.Broker.CashInterestRate)
	if err != nil {
		return nil, err
	}
	if !rate.IsZero() {
		cfg.WithCashInterest(rate)
	}
	if c.Broker.Dividends {
		f, err := types.ParseField(c.Broker.DividendField)
		if err != nil {
			return nil, invalid("broker.dividend_field", err)
		}
		cfg.WithDividends(f)
	}
	return cfg, nil
}

func (c *Config) AccountConfig() (*engine.AccountConfig, error) {
	initial, err := amount("account.initial_cash", c.Account.InitialCash)
	if err != nil {
		return nil, err
	}
	if initial.Sign() <= 0 {
		return nil, invalid("account.initial_cash", fmt.Errorf("must be positive, got %q", c.Account.InitialCash))
	}
	var typ types.AccountType
	switch types.AccountType(strings.ToUpper(c.Account.Type)) {
	case types.AccountCash:
		typ = types.AccountCash
	case types.AccountMargin:
		typ = types.AccountMargin
	default:
		return nil, invalid("account.type", fmt.Errorf("unknown account type %q", c.Account.Type))
	}
	return engine.NewAccountConfig(initial, typ, c.Account.AllowShortSelling).WithEpsilon(c.Account.Epsilon), nil
}

func (c *Config) SimulationConfig() (*engine.SimulationConfig, error) {
	if len(c.Simulation.Assets) == 0 {
		return nil, invalid("simulation.assets", errors.New("no assets"))
	}
	account, err := c.AccountConfig()
	if err != nil {
		return nil, err
	}
	deposit, err := amount("account.monthly_deposit", c.Account.MonthlyDeposit)
	if err != nil {
		return nil, err
	}
	if deposit.Sign() < 0 {
		return nil, invalid("account.monthly_deposit", fmt.Errorf("negative deposit %s", deposit))
	}
	return engine.NewSimulationConfig(c.Simulation.Guide, c.Simulation.Assets, account).
		WithMonthlyDeposit(deposit).
		WithProgress(c.Simulation.Progress), nil
}

func (c *Config) ReportingConfig() (*engine.ReportingConfig, error) {
	rf := decimal.Zero
	if s := strings.TrimSpace(c.Reporting.RiskFreeRate); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, invalid("reporting.risk_free_rate", err)
		}
		rf = d
	}
	return engine.NewReportingConfig(rf, c.Reporting.PrintTrades, c.Reporting.Name, c.Results.CSVDir), nil
}
