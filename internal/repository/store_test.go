package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliosim/internal/series"
	"portfoliosim/types"
)

type mockSource struct {
	candles  map[string][]types.Candle
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockSource) LoadCandles(_ context.Context, ticker string, _ types.Interval, _, _ time.Time) ([]types.Candle, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	c, ok := m.candles[ticker]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return c, nil
}

func closes(ticker string, days []string, prices ...int64) []types.Candle {
	var out []types.Candle
	for i, d := range days {
		p := decimal.NewFromInt(prices[i])
		out = append(out, types.Candle{Ticker: ticker, Open: p, High: p, Low: p, Close: p, Timestamp: date(d)})
	}
	return out
}

func TestBuildStore(t *testing.T) {
	days := []string{"2021-01-04", "2021-01-05", "2021-01-06"}
	src := &mockSource{candles: map[string][]types.Candle{
		"SPY": closes("SPY", days, 100, 101, 102),
		"AGG": closes("AGG", days, 50, 51, 52),
		"TLT": closes("TLT", days, 140, 141, 142),
	}}
	st, err := BuildStore(context.Background(), src, []string{"SPY", "AGG", "TLT"}, types.Day, time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AGG", "SPY", "TLT"}, st.Names())
	assert.LessOrEqual(t, src.maxSeen.Load(), int32(2))

	spy, err := st.Get("SPY")
	require.NoError(t, err)
	assert.Equal(t, 3, spy.Len())
	adj, err := spy.Get(2, int(types.FieldAdjClose))
	require.NoError(t, err)
	assert.Equal(t, 102.0, adj)
}

func TestBuildStoreErrors(t *testing.T) {
	days := []string{"2021-01-04", "2021-01-05"}
	tests := []struct {
		name    string
		candles map[string][]types.Candle
		tickers []string
		wantErr error
	}{
		{"missing ticker", map[string][]types.Candle{"SPY": closes("SPY", days, 1, 2)}, []string{"SPY", "QQQ"}, ErrAssetNotFound},
		{"unsorted candles", map[string][]types.Candle{"SPY": closes("SPY", []string{"2021-01-05", "2021-01-04"}, 1, 2)}, []string{"SPY"}, series.ErrNotMonotonic},
		{"duplicate stamp", map[string][]types.Candle{"SPY": closes("SPY", []string{"2021-01-04", "2021-01-04"}, 1, 2)}, []string{"SPY"}, series.ErrNotMonotonic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildStore(context.Background(), &mockSource{candles: tt.candles}, tt.tickers, types.Day, time.Time{}, time.Time{}, 0)
			assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
		})
	}

	_, err := BuildStore(context.Background(), &mockSource{candles: map[string][]types.Candle{"SPY": closes("SPY", days, 1, 2)}}, []string{"SPY", "SPY"}, types.Day, time.Time{}, time.Time{}, 0)
	assert.ErrorContains(t, err, "already in store")
}
