package engine

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"portfoliosim/internal/series"
	"portfoliosim/types"
)

type Report struct {
	Name string

	// Meta / period info
	StartDate         time.Time
	TotalPeriod       time.Duration
	TotalTransactions int

	// Absolute performance
	InitialCash   decimal.Decimal
	TotalDeposits decimal.Decimal
	FinalValue    decimal.Decimal
	NetProfit     decimal.Decimal
	TotalReturn   decimal.Decimal
	CAGR          decimal.Decimal

	// Drawdown metrics, on the equity curve normalized to the initial cash
	MaxDrawdown        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MaxDrawdownDays    time.Duration

	// Risk-adjusted metrics
	SharpeRatio decimal.Decimal
	Volatility  decimal.Decimal
	BestMonth   decimal.Decimal
	WorstMonth  decimal.Decimal
}

type equityPoint struct {
	Time  time.Time
	Value decimal.Decimal
}

// GenerateReport summarizes a finished run.
func (e *Engine) GenerateReport(res *Result) *Report {
	return NewReport(res, e.reportingConfig)
}

// NewReport summarizes res without an Engine, e.g. for a run read back from
// storage. cfg may be nil.
func NewReport(res *Result, cfg *ReportingConfig) *Report {
	curve := equityCurve(res.ReturnsDaily, res.InitialCash.Decimal())
	monthly := periodReturns(res.ReturnsMonthly)
	daily := periodReturns(res.ReturnsDaily)

	report := &Report{
		Name:              res.Name,
		StartDate:         res.Start,
		TotalPeriod:       res.End.Sub(res.Start).Truncate(24 * time.Hour),
		TotalTransactions: countTrades(res.Transactions),
		InitialCash:       res.InitialCash.Decimal(),
		TotalDeposits:     res.Deposits.Decimal(),
		FinalValue:        res.Final.Decimal(),
		NetProfit:         res.Final.Decimal().Sub(res.Deposits.Decimal()),
		TotalReturn:       decimal.NewFromFloat(res.Multiplier() - 1),
	}

	riskFree := decimal.Zero
	if cfg != nil {
		riskFree = cfg.sharpeRiskFreeRate
	}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		report.CAGR = calcCAGR(curve, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(curve, &wg)
	}()
	go func() {
		report.SharpeRatio = calcSharpeRatio(monthly, riskFree, &wg)
	}()
	go func() {
		report.Volatility = calcVolatility(daily, &wg)
	}()
	go func() {
		report.BestMonth, report.WorstMonth = calcBestWorstMonth(monthly, &wg)
	}()
	wg.Wait()

	return report
}

func countTrades(txs []types.Transaction) int {
	n := 0
	for _, tx := range txs {
		if tx.Kind == types.TransactionBuy || tx.Kind == types.TransactionSell {
			n++
		}
	}
	return n
}

// equityCurve scales a cumulative multiplier series by base.
func equityCurve(multipliers *series.Series, base decimal.Decimal) []equityPoint {
	if multipliers == nil {
		return nil
	}
	out := make([]equityPoint, 0, multipliers.Len())
	for i := 0; i < multipliers.Len(); i++ {
		t, _ := multipliers.Time(i)
		m, _ := multipliers.Get(i, 0)
		out = append(out, equityPoint{Time: t, Value: base.Mul(decimal.NewFromFloat(m))})
	}
	return out
}

// periodReturns turns cumulative multipliers into simple returns between
// consecutive rows. The first row is the 1.0 anchor at the start of the run.
func periodReturns(multipliers *series.Series) []float64 {
	if multipliers == nil || multipliers.Len() == 0 {
		return nil
	}
	out := make([]float64, 0, multipliers.Len()-1)
	prev, _ := multipliers.Get(0, 0)
	for i := 1; i < multipliers.Len(); i++ {
		m, _ := multipliers.Get(i, 0)
		if prev > 0 {
			out = append(out, m/prev-1)
		}
		prev = m
	}
	return out
}

func calcCAGR(curve []equityPoint, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(curve) < 2 {
		return decimal.Zero
	}

	startVal := curve[0].Value
	endVal := curve[len(curve)-1].Value
	if !startVal.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	// using 365.25 days to account for leap years
	duration := curve[len(curve)-1].Time.Sub(curve[0].Time)
	years := duration.Hours() / (24.0 * 365.25)
	if years <= 0 {
		return decimal.Zero
	}

	ratio := endVal.Div(startVal)
	if !ratio.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0)
}

func calcDrawdownMetrics(curve []equityPoint, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()

	peak := decimal.Zero
	var peakTime time.Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for i, p := range curve {
		if i == 0 || p.Value.GreaterThan(peak) || peak.IsZero() {
			peak = p.Value
			peakTime = p.Time
		}
		if !peak.GreaterThan(decimal.Zero) {
			continue
		}
		dd := peak.Sub(p.Value)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = p.Time.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

// calcSharpeRatio annualizes the Sharpe ratio of monthly returns.
func calcSharpeRatio(monthlyReturns []float64, annualRiskFree decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(monthlyReturns) < 2 {
		return decimal.Zero
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0
	excess := make(stats.Float64Data, 0, len(monthlyReturns))
	for _, r := range monthlyReturns {
		excess = append(excess, r-rfMonthly)
	}

	mean, err := stats.Mean(excess)
	if err != nil {
		return decimal.Zero
	}
	sd, err := stats.StandardDeviationSample(excess)
	if err != nil || sd == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(mean / sd * math.Sqrt(12.0))
}

// calcVolatility annualizes the sample deviation of daily returns.
func calcVolatility(dailyReturns []float64, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(dailyReturns) < 2 {
		return decimal.Zero
	}
	sd, err := stats.StandardDeviationSample(dailyReturns)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(sd * math.Sqrt(tradingDaysPerYear))
}

func calcBestWorstMonth(monthlyReturns []float64, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()
	if len(monthlyReturns) == 0 {
		return decimal.Zero, decimal.Zero
	}
	best, _ := stats.Max(monthlyReturns)
	worst, _ := stats.Min(monthlyReturns)
	return decimal.NewFromFloat(best), decimal.NewFromFloat(worst)
}

// PrintReport writes one column per report.
func (e *Engine) PrintReport(w io.Writer, reports ...*Report) {
	caption := ""
	if e.reportingConfig != nil {
		caption = e.reportingConfig.reportName
	}
	WriteReportTable(w, caption, reports...)
}

func WriteReportTable(w io.Writer, caption string, reports ...*Report) {
	table := tablewriter.NewWriter(w)
	if caption != "" {
		table.SetCaption(true, caption)
	}
	header := []string{"Metric"}
	for _, r := range reports {
		header = append(header, r.Name)
	}
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	rows := []struct {
		label string
		value func(r *Report) string
	}{
		{"Start Date", func(r *Report) string { return r.StartDate.Format(time.DateOnly) }},
		{"Total Period", func(r *Report) string { return fmt.Sprintf("%d days", r.TotalPeriod/(24*time.Hour)) }},
		{"Trades", func(r *Report) string { return fmt.Sprintf("%d", r.TotalTransactions) }},
		{"Initial Cash", func(r *Report) string { return r.InitialCash.StringFixed(2) }},
		{"Deposits", func(r *Report) string { return r.TotalDeposits.StringFixed(2) }},
		{"Final Value", func(r *Report) string { return r.FinalValue.StringFixed(2) }},
		{"Net Profit", func(r *Report) string { return r.NetProfit.StringFixed(2) }},
		{"Total Return", func(r *Report) string { return percent(r.TotalReturn) }},
		{"CAGR", func(r *Report) string { return percent(r.CAGR) }},
		{"Max Drawdown", func(r *Report) string { return percent(r.MaxDrawdownPercent) }},
		{"Max Drawdown Days", func(r *Report) string { return fmt.Sprintf("%d", r.MaxDrawdownDays/(24*time.Hour)) }},
		{"Sharpe Ratio", func(r *Report) string { return r.SharpeRatio.StringFixed(2) }},
		{"Volatility", func(r *Report) string { return percent(r.Volatility) }},
		{"Best Month", func(r *Report) string { return percent(r.BestMonth) }},
		{"Worst Month", func(r *Report) string { return percent(r.WorstMonth) }},
	}
	for _, row := range rows {
		line := []string{row.label}
		for _, r := range reports {
			line = append(line, row.value(r))
		}
		table.Append(line)
	}
	table.Render()
}

// PrintTransactions writes the ledger of res when trade printing is enabled.
func (e *Engine) PrintTransactions(w io.Writer, res *Result) {
	if e.reportingConfig == nil || !e.reportingConfig.printTrades {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Kind", "Symbol", "Shares", "Price", "Amount", "Memo"})
	for _, tx := range res.Transactions {
		table.Append([]string{
			tx.Time.Format(time.DateOnly),
			string(tx.Kind),
			tx.Symbol,
			tx.Shares.String(),
			tx.Price.String(),
			tx.Amount.String(),
			tx.Memo,
		})
	}
	table.Render()
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
