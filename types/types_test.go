package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDistribution(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		weights []float64
		wantErr bool
	}{
		{"valid", []string{"SPY", "AGG"}, []float64{0.6, 0.4}, false},
		{"length mismatch", []string{"SPY"}, []float64{0.6, 0.4}, true},
		{"duplicate", []string{"SPY", "SPY"}, []float64{0.5, 0.5}, true},
		{"empty", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDistribution(tt.names, tt.weights)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestDistributionOps(t *testing.T) {
	d, err := NewDistribution([]string{"SPY", "AGG", "GLD"}, []float64{0.6, -0.2, 1e-9})
	require.NoError(t, err)

	assert.Equal(t, 0.6, d.Weight("SPY"))
	assert.Equal(t, 0.0, d.Weight("QQQ"))
	assert.InDelta(t, 0.4, d.Sum(), 1e-8)

	trimmed := d.RemoveZeroWeights(1e-5)
	assert.Equal(t, []string{"SPY", "AGG"}, trimmed.Names)
	assert.Equal(t, 3, d.Len())

	n := trimmed.Normalize()
	assert.InDelta(t, 0.75, n.Weight("SPY"), 1e-12)
	assert.InDelta(t, -0.25, n.Weight("AGG"), 1e-12)
	assert.Equal(t, 0.6, trimmed.Weight("SPY"))

	blended := Single("SPY").Blend(Single("AGG"), 0.5).Blend(Single("SPY"), 0.5)
	assert.Equal(t, 1.5, blended.Weight("SPY"))
	assert.Equal(t, 0.5, blended.Weight("AGG"))

	assert.Equal(t, 0, Distribution{}.Normalize().Len())
}

func TestParseField(t *testing.T) {
	f, err := ParseField(" Adj_Close ")
	require.NoError(t, err)
	assert.Equal(t, FieldAdjClose, f)
	assert.Equal(t, "adj_close", f.String())
	_, err = ParseField("mid")
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("D")
	require.NoError(t, err)
	assert.Equal(t, Day, iv)
	_, err = ParseInterval("2D")
	assert.Error(t, err)
}

func TestCandleRow(t *testing.T) {
	c := Candle{
		Open:  decimal.NewFromInt(10),
		High:  decimal.NewFromInt(12),
		Low:   decimal.NewFromInt(9),
		Close: decimal.NewFromInt(11),
	}
	row := c.Row()
	require.Len(t, row, NumFields)
	assert.Equal(t, 11.0, row[FieldAdjClose])

	c.AdjClose = decimal.RequireFromString("10.5")
	assert.Equal(t, 10.5, c.Row()[FieldAdjClose])
}

func TestCalendarHelpers(t *testing.T) {
	sat := time.Date(2021, time.January, 2, 0, 0, 0, 0, time.UTC)
	assert.False(t, IsWeekday(sat))
	assert.True(t, IsWeekday(sat.AddDate(0, 0, 2)))
	assert.True(t, SameMonth(sat, sat.AddDate(0, 0, 20)))
	assert.False(t, SameMonth(sat, sat.AddDate(0, 0, 30)))
}
