package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfoliosim/internal/fixed"
	"portfoliosim/internal/pricing"
	"portfoliosim/internal/series"
	"portfoliosim/types"
)

// day0 is a Monday.
var day0 = time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC)

func businessDays(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := from; len(out) < n; d = d.AddDate(0, 0, 1) {
		if types.IsWeekday(d) {
			out = append(out, d)
		}
	}
	return out
}

func priceRow(p float64) []float64 {
	row := make([]float64, types.NumFields)
	row[types.FieldOpen] = p
	row[types.FieldHigh] = p
	row[types.FieldLow] = p
	row[types.FieldClose] = p
	row[types.FieldAdjClose] = p
	row[types.FieldVolume] = 1000
	return row
}

func mockSeries(t *testing.T, name string, days []time.Time, prices []float64) *series.Series {
	t.Helper()
	require.Equal(t, len(days), len(prices))
	s := series.New(name)
	for i, d := range days {
		require.NoError(t, s.Add(d, priceRow(prices[i])...))
	}
	return s
}

// mockStore puts every price list on consecutive business days from day0.
func mockStore(t *testing.T, prices map[string][]float64) *series.Store {
	t.Helper()
	st := series.NewStore()
	for name, ps := range prices {
		require.NoError(t, st.Put(mockSeries(t, name, businessDays(day0, len(ps)), ps)))
	}
	return st
}

func mockBroker(t *testing.T, st *series.Store) *Broker {
	t.Helper()
	b, err := NewBroker(st, NewBrokerConfig(pricing.AdjustedClose, pricing.AdjustedClose, pricing.NoSlippage))
	require.NoError(t, err)
	return b
}

func cash(s string) fixed.Point {
	return fixed.Must(fixed.FromString(s))
}

func simConfig(guide string, assets []string, initial string) *SimulationConfig {
	return NewSimulationConfig(guide, assets, NewAccountConfig(cash(initial), types.AccountCash, false))
}

type constantPredictor struct {
	dist types.Distribution
}

func (p *constantPredictor) Init(BrokerView, []string) error { return nil }

func (p *constantPredictor) SelectDistribution() (types.Distribution, error) { return p.dist, nil }

func constant(names []string, weights []float64) PredictorFactory {
	return func() (Predictor, error) {
		d, err := types.NewDistribution(names, weights)
		if err != nil {
			return nil, err
		}
		return &constantPredictor{dist: d}, nil
	}
}

// smaPredictor holds asset while its close is above the mean of the last
// window closes, and safe otherwise.
type smaPredictor struct {
	view   BrokerView
	asset  string
	safe   string
	window int
}

func (p *smaPredictor) Init(view BrokerView, _ []string) error {
	p.view = view
	return nil
}

func (p *smaPredictor) SelectDistribution() (types.Distribution, error) {
	s, err := p.view.Series(p.asset)
	if err != nil {
		return types.Distribution{}, err
	}
	n := s.Len()
	if n < p.window {
		return types.Single(p.safe), nil
	}
	g, err := s.Lock(n-p.window, n-1, p.view.NewLockKey())
	if err != nil {
		return types.Distribution{}, err
	}
	defer g.Release()

	var sum float64
	for i := 0; i < s.Len(); i++ {
		v, err := s.Get(i, int(types.FieldClose))
		if err != nil {
			return types.Distribution{}, err
		}
		sum += v
	}
	last, _ := s.Get(s.Len()-1, int(types.FieldClose))
	if last > sum/float64(p.window) {
		return types.Single(p.asset), nil
	}
	return types.Single(p.safe), nil
}

func sma(asset, safe string, window int) PredictorFactory {
	return func() (Predictor, error) {
		return &smaPredictor{asset: asset, safe: safe, window: window}, nil
	}
}

func multipliers(t *testing.T, s *series.Series) []float64 {
	t.Helper()
	out := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		v, err := s.Get(i, 0)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}
