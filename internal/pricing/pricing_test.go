package pricing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliosim/internal/fixed"
	"portfoliosim/types"
)

func TestFieldPrice(t *testing.T) {
	row := []float64{10, 12, 9, 11, 1000, 10.5, 0}
	tests := []struct {
		name    string
		model   PriceModel
		want    float64
		wantErr bool
	}{
		{"close", Close, 11, false},
		{"adjusted close", AdjustedClose, 10.5, false},
		{"open", Open, 10, false},
		{"dividend column is zero", FieldPrice{Field: types.FieldDividend}, 0, true},
		{"missing column", FieldPrice{Field: types.Field(12)}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.model.Price(row)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoPrice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	p, err := FixedPrice(AdjustedClose, row)
	require.NoError(t, err)
	assert.Equal(t, fixed.Must(fixed.FromString("10.5")), p)
}

func TestSlippageMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		s := Slippage{Pct: r.Float64() * 0.01, Const: r.Float64() * 0.05}
		p := 1 + r.Float64()*500
		assert.GreaterOrEqual(t, s.Buy(p), p)
		assert.LessOrEqual(t, s.Sell(p), p)

		fs, err := s.Fixed()
		require.NoError(t, err)
		fp := fixed.Must(fixed.FromFloat(p))
		buy, err := fs.Buy(fp)
		require.NoError(t, err)
		sell, err := fs.Sell(fp)
		require.NoError(t, err)
		assert.True(t, buy.Gte(fp))
		assert.True(t, sell.Lte(fp))
	}
}

func TestNoSlippageIsIdentity(t *testing.T) {
	assert.True(t, NoSlippage.IsZero())
	assert.Equal(t, 123.45, NoSlippage.Buy(123.45))
	assert.Equal(t, 123.45, NoSlippage.Sell(123.45))

	fs, err := NoSlippage.Fixed()
	require.NoError(t, err)
	p := fixed.Must(fixed.FromString("123.45"))
	got, err := fs.Buy(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	got, err = fs.Sell(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFixedSlippageAgreesWithFloat(t *testing.T) {
	s := Slippage{Pct: 0.001, Const: 0.02}
	fs, err := s.Fixed()
	require.NoError(t, err)
	for _, p := range []float64{1, 17.33, 99.99, 250, 4321.5} {
		buy, err := fs.Buy(fixed.Must(fixed.FromFloat(p)))
		require.NoError(t, err)
		sell, err := fs.Sell(fixed.Must(fixed.FromFloat(p)))
		require.NoError(t, err)
		assert.InDelta(t, s.Buy(p), buy.Float(), 2.0/fixed.Scale)
		assert.InDelta(t, s.Sell(p), sell.Float(), 2.0/fixed.Scale)
	}
}

func TestSellFloorsAtZero(t *testing.T) {
	s := Slippage{Const: 5}
	assert.Equal(t, 0.0, s.Sell(1))
	fs, err := s.Fixed()
	require.NoError(t, err)
	got, err := fs.Sell(fixed.One)
	require.NoError(t, err)
	assert.Equal(t, fixed.Zero, got)
}
