package engine

import (
	"portfoliosim/internal/fixed"
	"portfoliosim/internal/pricing"
	"portfoliosim/types"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon is the weight below which a target allocation counts as no
// position.
const DefaultEpsilon = 1e-5

type BrokerConfig struct {
	valuation        pricing.PriceModel
	quote            pricing.PriceModel
	slippage         pricing.Slippage
	cashInterestRate fixed.Point
	dividendField    types.Field
	payDividends     bool
}

func NewBrokerConfig(valuation, quote pricing.PriceModel, slippage pricing.Slippage) *BrokerConfig {
	return &BrokerConfig{
		valuation: valuation,
		quote:     quote,
		slippage:  slippage,
	}
}

// WithCashInterest accrues annualRate on positive cash every business day.
func (c *BrokerConfig) WithCashInterest(annualRate fixed.Point) *BrokerConfig {
	c.cashInterestRate = annualRate
	return c
}

// WithDividends credits field (per share) of every held asset's row at the
// end of each day.
func (c *BrokerConfig) WithDividends(field types.Field) *BrokerConfig {
	c.dividendField = field
	c.payDividends = true
	return c
}

type AccountConfig struct {
	initialCash       fixed.Point
	accountType       types.AccountType
	allowShortSelling bool
	epsilon           float64
}

func NewAccountConfig(initialCash fixed.Point, accountType types.AccountType, allowShortSelling bool) *AccountConfig {
	return &AccountConfig{
		initialCash:       initialCash,
		accountType:       accountType,
		allowShortSelling: allowShortSelling,
		epsilon:           DefaultEpsilon,
	}
}

func (c *AccountConfig) WithEpsilon(eps float64) *AccountConfig {
	c.epsilon = eps
	return c
}

func (c *AccountConfig) flags() AccountFlags {
	return AccountFlags{AllowShortSelling: c.allowShortSelling, Epsilon: c.epsilon}
}

type SimulationConfig struct {
	guide          string
	assets         []string
	account        *AccountConfig
	monthlyDeposit fixed.Point
	showProgress   bool
}

func NewSimulationConfig(guide string, assets []string, account *AccountConfig) *SimulationConfig {
	return &SimulationConfig{
		guide:   guide,
		assets:  append([]string(nil), assets...),
		account: account,
	}
}

// WithMonthlyDeposit deposits amount on the last business day of each month.
func (c *SimulationConfig) WithMonthlyDeposit(amount fixed.Point) *SimulationConfig {
	c.monthlyDeposit = amount
	return c
}

func (c *SimulationConfig) WithProgress(show bool) *SimulationConfig {
	c.showProgress = show
	return c
}

type ReportingConfig struct {
	sharpeRiskFreeRate decimal.Decimal
	printTrades        bool
	reportName         string
	filePath           string
}

func NewReportingConfig(sharpeRiskFreeRate decimal.Decimal, printTrades bool, reportName string, filePath string) *ReportingConfig {
	return &ReportingConfig{
		sharpeRiskFreeRate: sharpeRiskFreeRate,
		printTrades:        printTrades,
		reportName:         reportName,
		filePath:           filePath,
	}
}
