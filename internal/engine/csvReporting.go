package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"portfoliosim/internal/series"
	"portfoliosim/types"
)

type returnRow struct {
	Date       string  `csv:"date"`
	Multiplier float64 `csv:"multiplier"`
}

type transactionRow struct {
	Time   string `csv:"time"`
	Kind   string `csv:"kind"`
	Flow   string `csv:"flow"`
	Symbol string `csv:"symbol"`
	Shares string `csv:"shares"`
	Price  string `csv:"price"`
	Amount string `csv:"amount"`
	Memo   string `csv:"memo"`
}

// WriteReturnsCSV writes a single-column return series to any io.Writer.
func WriteReturnsCSV(w io.Writer, returns *series.Series) error {
	rows := make([]*returnRow, 0, returns.Len())
	for i := 0; i < returns.Len(); i++ {
		t, err := returns.Time(i)
		if err != nil {
			return err
		}
		m, err := returns.Get(i, 0)
		if err != nil {
			return err
		}
		rows = append(rows, &returnRow{Date: t.Format(time.DateOnly), Multiplier: m})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("write returns: %w", err)
	}
	return nil
}

func WriteTransactionsCSV(w io.Writer, txs []types.Transaction) error {
	rows := make([]*transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &transactionRow{
			Time:   tx.Time.Format(time.DateOnly),
			Kind:   string(tx.Kind),
			Flow:   string(tx.Flow),
			Symbol: tx.Symbol,
			Shares: tx.Shares.String(),
			Price:  tx.Price.String(),
			Amount: tx.Amount.String(),
			Memo:   tx.Memo,
		})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("write transactions: %w", err)
	}
	return nil
}

// WriteResultCSVFiles writes <name>_daily.csv, <name>_monthly.csv and
// <name>_transactions.csv into dir.
func WriteResultCSVFiles(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	write := func(suffix string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, res.Name+"_"+suffix+".csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		return fn(f)
	}
	if err := write("daily", func(w io.Writer) error { return WriteReturnsCSV(w, res.ReturnsDaily) }); err != nil {
		return err
	}
	if err := write("monthly", func(w io.Writer) error { return WriteReturnsCSV(w, res.ReturnsMonthly) }); err != nil {
		return err
	}
	return write("transactions", func(w io.Writer) error { return WriteTransactionsCSV(w, res.Transactions) })
}

// ExportCSV writes res into the configured report directory. It does nothing
// when no directory is configured.
func (e *Engine) ExportCSV(res *Result) error {
	if e.reportingConfig == nil || e.reportingConfig.filePath == "" {
		return nil
	}
	return WriteResultCSVFiles(e.reportingConfig.filePath, res)
}
