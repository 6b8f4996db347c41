package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Candle struct {
	AssetId   int             `json:"id"`
	Ticker    string          `json:"ticker"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high" `
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	AdjClose  decimal.Decimal `json:"adjClose"`
	Dividend  decimal.Decimal `json:"dividend"`
	Interval  Interval        `json:"interval"`
	Timestamp time.Time       `json:"timestamp"`
}

// Row flattens the candle into the series row layout described by Field.
// A zero AdjClose falls back to Close.
func (c Candle) Row() []float64 {
	adj := c.AdjClose
	if adj.IsZero() {
		adj = c.Close
	}
	return []float64{
		FieldOpen:     c.Open.InexactFloat64(),
		FieldHigh:     c.High.InexactFloat64(),
		FieldLow:      c.Low.InexactFloat64(),
		FieldClose:    c.Close.InexactFloat64(),
		FieldVolume:   c.Volume.InexactFloat64(),
		FieldAdjClose: adj.InexactFloat64(),
		FieldDividend: c.Dividend.InexactFloat64(),
	}
}
