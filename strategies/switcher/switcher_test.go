package switcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliosim/internal/engine"
	"portfoliosim/strategies/constant"
	"portfoliosim/strategies/strategytest"
	"portfoliosim/types"
)

type countingPredictor struct {
	name  string
	calls *int
}

func (p *countingPredictor) Init(engine.BrokerView, []string) error { return nil }

func (p *countingPredictor) SelectDistribution() (types.Distribution, error) {
	*p.calls++
	return types.Single(p.name), nil
}

func TestSwitchFollowsSignal(t *testing.T) {
	st := strategytest.Prices(t, map[string][]float64{
		"IDX": {100, 100, 104, 106, 90, 85},
		"SPY": {10, 10, 10, 10, 10, 10},
		"AGG": {5, 5, 5, 5, 5, 5},
	})
	var onCalls, offCalls int
	factory := New(Config{Signal: "IDX", Window: 2},
		func() (engine.Predictor, error) { return &countingPredictor{name: "SPY", calls: &onCalls}, nil },
		func() (engine.Predictor, error) { return &countingPredictor{name: "AGG", calls: &offCalls}, nil },
	)

	dists := strategytest.Walk(t, st, factory, 6)
	var got []string
	for _, d := range dists {
		got = append(got, d.Names[0])
	}
	assert.Equal(t, []string{"AGG", "AGG", "SPY", "SPY", "AGG", "AGG"}, got)
	assert.Equal(t, 6, onCalls)
	assert.Equal(t, 6, offCalls)
}

func TestSwitchBuildErrors(t *testing.T) {
	ok := constant.New(constant.Config{Weights: map[string]float64{"SPY": 1}})
	_, err := New(Config{Signal: "IDX"}, ok, ok)()
	assert.Error(t, err)
	_, err = New(Config{Signal: "IDX", Window: 3, Field: "nope"}, ok, ok)()
	assert.Error(t, err)

	p, err := New(Config{Signal: "IDX", Window: 3}, ok, ok)()
	require.NoError(t, err)
	assert.NotNil(t, p)

	failing := func() (engine.Predictor, error) { return nil, assert.AnError }
	_, err = New(Config{Signal: "IDX", Window: 3}, ok, failing)()
	assert.ErrorIs(t, err, assert.AnError)
}
