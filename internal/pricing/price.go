// Package pricing turns a market data row into a transaction price and
// applies slippage to it.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"portfoliosim/internal/fixed"
	"portfoliosim/types"
)

var ErrNoPrice = errors.New("no usable price in row")

// PriceModel picks the transaction-relevant price out of a row. The broker
// keeps one for valuation (mark-to-market) and one for quotes (execution).
type PriceModel interface {
	Price(row []float64) (float64, error)
}

// FieldPrice reads a single column of the row.
type FieldPrice struct {
	Field types.Field
}

func (m FieldPrice) Price(row []float64) (float64, error) {
	i := int(m.Field)
	if i < 0 || i >= len(row) {
		return 0, fmt.Errorf("%s not present in row of width %d: %w", m.Field, len(row), ErrNoPrice)
	}
	p := row[i]
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, fmt.Errorf("%s = %v: %w", m.Field, p, ErrNoPrice)
	}
	return p, nil
}

// FixedPrice evaluates m and converts the result to a fixed.Point.
func FixedPrice(m PriceModel, row []float64) (fixed.Point, error) {
	p, err := m.Price(row)
	if err != nil {
		return 0, err
	}
	return fixed.FromFloat(p)
}

var (
	AdjustedClose PriceModel = FieldPrice{Field: types.FieldAdjClose}
	Close         PriceModel = FieldPrice{Field: types.FieldClose}
	Open          PriceModel = FieldPrice{Field: types.FieldOpen}
)
