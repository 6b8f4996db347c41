package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"portfoliosim/types"
)

// Source loads the candles of one ticker stamped within [start, end].
type Source interface {
	LoadCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

var (
	_ Source = (*CSVSource)(nil)
	_ Source = (*ParquetSource)(nil)
)

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

// CSVSource reads daily candles from <Dir>/<TICKER>.csv. Empty adj_close and
// dividend cells are read as zero.
type CSVSource struct {
	Dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

type csvCandle struct {
	Date     string `csv:"date"`
	Open     string `csv:"open"`
	High     string `csv:"high"`
	Low      string `csv:"low"`
	Close    string `csv:"close"`
	AdjClose string `csv:"adj_close"`
	Volume   string `csv:"volume"`
	Dividend string `csv:"dividend"`
}

func (s *CSVSource) path(ticker string) string {
	return filepath.Join(s.Dir, strings.ToUpper(ticker)+".csv")
}

func (s *CSVSource) LoadCandles(_ context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if interval != types.Day {
		return nil, fmt.Errorf("csv %s: %w", interval, ErrIntervalNotSupported)
	}
	f, err := os.Open(s.path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	defer f.Close()

	var rows []*csvCandle
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	var candles []types.Candle
	for i, r := range rows {
		c, err := r.candle(ticker)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Name(), i+2, err)
		}
		if inRange(c.Timestamp, start, end) {
			candles = append(candles, c)
		}
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
	}
	return candles, nil
}

func (r *csvCandle) candle(ticker string) (types.Candle, error) {
	ts, err := time.Parse(time.DateOnly, strings.TrimSpace(r.Date))
	if err != nil {
		return types.Candle{}, err
	}
	c := types.Candle{Ticker: ticker, Interval: types.Day, Timestamp: ts}
	fields := []struct {
		dst      *decimal.Decimal
		raw      string
		optional bool
	}{
		{&c.Open, r.Open, false},
		{&c.High, r.High, false},
		{&c.Low, r.Low, false},
		{&c.Close, r.Close, false},
		{&c.AdjClose, r.AdjClose, true},
		{&c.Volume, r.Volume, true},
		{&c.Dividend, r.Dividend, true},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" && f.optional {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return types.Candle{}, err
		}
		*f.dst = d
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Parquet
// ---------------------------------------------------------------------------

// ParquetSource reads daily candles from <Dir>/<TICKER>.parquet.
type ParquetSource struct {
	Dir string
}

func NewParquetSource(dir string) *ParquetSource {
	return &ParquetSource{Dir: dir}
}

// CandleRecord is the on-disk Parquet schema.
type CandleRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	AdjClose  float64 `parquet:"adj_close"`
	Volume    float64 `parquet:"volume"`
	Dividend  float64 `parquet:"dividend"`
}

func (s *ParquetSource) path(ticker string) string {
	return filepath.Join(s.Dir, strings.ToUpper(ticker)+".parquet")
}

// WriteCandles replaces the file of ticker with candles, sorted by time.
func (s *ParquetSource) WriteCandles(ticker string, candles []types.Candle) error {
	records := make([]CandleRecord, 0, len(candles))
	for _, c := range candles {
		records = append(records, CandleRecord{
			Timestamp: c.Timestamp.UnixMilli(),
			Open:      c.Open.InexactFloat64(),
			High:      c.High.InexactFloat64(),
			Low:       c.Low.InexactFloat64(),
			Close:     c.Close.InexactFloat64(),
			AdjClose:  c.AdjClose.InexactFloat64(),
			Volume:    c.Volume.InexactFloat64(),
			Dividend:  c.Dividend.InexactFloat64(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(s.path(ticker), records)
}

func (s *ParquetSource) LoadCandles(_ context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if interval != types.Day {
		return nil, fmt.Errorf("parquet %s: %w", interval, ErrIntervalNotSupported)
	}
	path := s.path(ticker)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
	}
	records, err := parquet.ReadFile[CandleRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var candles []types.Candle
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !inRange(ts, start, end) {
			continue
		}
		candles = append(candles, types.Candle{
			Ticker:    ticker,
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			AdjClose:  decimal.NewFromFloat(r.AdjClose),
			Volume:    decimal.NewFromFloat(r.Volume),
			Dividend:  decimal.NewFromFloat(r.Dividend),
			Interval:  types.Day,
			Timestamp: ts,
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
	}
	return candles, nil
}

// inRange reports whether start <= t <= end. A zero bound is open.
func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
