// Package strategytest builds broker views over in-memory prices for
// predictor tests.
package strategytest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfoliosim/internal/engine"
	"portfoliosim/internal/fixed"
	"portfoliosim/internal/pricing"
	"portfoliosim/internal/series"
	"portfoliosim/types"
)

// Day0 is a Monday.
var Day0 = time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC)

func BusinessDays(n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := Day0; len(out) < n; d = d.AddDate(0, 0, 1) {
		if types.IsWeekday(d) {
			out = append(out, d)
		}
	}
	return out
}

// Row returns a row with every price column set to p.
func Row(p float64) []float64 {
	row := make([]float64, types.NumFields)
	for _, f := range []types.Field{types.FieldOpen, types.FieldHigh, types.FieldLow, types.FieldClose, types.FieldAdjClose} {
		row[f] = p
	}
	row[types.FieldVolume] = 1000
	return row
}

// Store puts every row list on consecutive business days from Day0.
func Store(t testing.TB, rows map[string][][]float64) *series.Store {
	t.Helper()
	st := series.NewStore()
	for name, rs := range rows {
		s := series.New(name)
		for i, d := range BusinessDays(len(rs)) {
			require.NoError(t, s.Add(d, rs[i]...))
		}
		require.NoError(t, st.Put(s))
	}
	return st
}

// Prices is Store for rows built by Row.
func Prices(t testing.TB, prices map[string][]float64) *series.Store {
	t.Helper()
	rows := make(map[string][][]float64, len(prices))
	for name, ps := range prices {
		for _, p := range ps {
			rows[name] = append(rows[name], Row(p))
		}
	}
	return Store(t, rows)
}

func Broker(t testing.TB, st *series.Store) *engine.Broker {
	t.Helper()
	b, err := engine.NewBroker(st, engine.NewBrokerConfig(pricing.AdjustedClose, pricing.AdjustedClose, pricing.NoSlippage))
	require.NoError(t, err)
	return b
}

// Walk builds a predictor from factory and asks it for a distribution on each
// of the first n business days.
func Walk(t testing.TB, st *series.Store, factory engine.PredictorFactory, n int) []types.Distribution {
	t.Helper()
	b := Broker(t, st)
	p, err := factory()
	require.NoError(t, err)
	require.NoError(t, p.Init(b.View(), st.Names()))

	var out []types.Distribution
	for i, d := range BusinessDays(n) {
		require.NoError(t, b.SetNewDay(types.TimeInfo{Time: d, BusinessDay: true}))
		dist, err := p.SelectDistribution()
		require.NoError(t, err, "day %d", i)
		out = append(out, dist)
		require.NoError(t, b.DoEndOfDayBusiness())
		require.NoError(t, b.FinishDay(false))
	}
	return out
}

// Run simulates factory over the whole store with guide as the calendar.
func Run(t testing.TB, st *series.Store, guide string, factory engine.PredictorFactory) *engine.Result {
	t.Helper()
	cfg := engine.NewSimulationConfig(guide, st.Names(), engine.NewAccountConfig(fixed.Must(fixed.FromInt(10000)), types.AccountCash, false))
	res, err := engine.NewSimulation(Broker(t, st), cfg).Run(factory, engine.TimeBegin, engine.TimeEnd, "test")
	require.NoError(t, err)
	return res
}
