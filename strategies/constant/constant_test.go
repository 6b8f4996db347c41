package constant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliosim/strategies/strategytest"
)

func TestConstant(t *testing.T) {
	st := strategytest.Prices(t, map[string][]float64{
		"SPY": {100, 110, 99, 120},
		"AGG": {50, 50, 50, 50},
	})
	factory := New(Config{Weights: map[string]float64{"SPY": 0.6, "AGG": 0.4}})

	for _, d := range strategytest.Walk(t, st, factory, 4) {
		assert.Equal(t, []string{"AGG", "SPY"}, d.Names)
		assert.Equal(t, []float64{0.4, 0.6}, d.Weights)
	}

	res := strategytest.Run(t, st, "SPY", factory)
	assert.Equal(t, 4, res.ReturnsDaily.Len())
}

func TestConstantRejectsUnknownAsset(t *testing.T) {
	st := strategytest.Prices(t, map[string][]float64{"SPY": {1}})
	p, err := New(Config{Weights: map[string]float64{"QQQ": 1}})()
	require.NoError(t, err)
	assert.Error(t, p.Init(strategytest.Broker(t, st).View(), st.Names()))
}
