package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"portfoliosim/internal/engine"
	"portfoliosim/strategies/strategytest"
)

const nested = `
kind: mixed
mixed:
  members:
    - weight: 0.5
      strategy:
        kind: constant
        constant:
          weights: {SPY: 0.6, AGG: 0.4}
    - weight: 0.5
      strategy:
        kind: switch
        switch:
          signal: SPY
          window: 3
          risk_on:
            kind: sma
            sma: {asset: SPY, safe: AGG, window: 2}
          risk_off:
            kind: donchian
            donchian: {assets: [AGG], window: 2}
`

func TestBuildNestedConfig(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(nested), &cfg))
	require.Equal(t, KindMixed, cfg.Kind)
	require.Len(t, cfg.Mixed.Members, 2)
	sw := cfg.Mixed.Members[1].Strategy.Switch
	require.NotNil(t, sw)
	assert.Equal(t, "SPY", sw.Signal)
	assert.Equal(t, 3, sw.Window)
	assert.Equal(t, KindDonchian, sw.RiskOff.Kind)

	factory, err := NewRegistry().Build(cfg)
	require.NoError(t, err)

	st := strategytest.Prices(t, map[string][]float64{
		"SPY": {100, 101, 103, 102, 99, 98, 104, 107},
		"AGG": {50, 50.5, 50.2, 50.1, 50.6, 50.9, 50.4, 50.3},
	})
	for i, d := range strategytest.Walk(t, st, factory, 8) {
		assert.LessOrEqual(t, d.Sum(), 1.0+1e-9, "day %d", i)
		// the constant half is always present
		assert.GreaterOrEqual(t, d.Weight("SPY"), 0.3-1e-9, "day %d", i)
		assert.GreaterOrEqual(t, d.Weight("AGG"), 0.2-1e-9, "day %d", i)
	}
	res := strategytest.Run(t, st, "SPY", factory)
	assert.Equal(t, 8, res.ReturnsDaily.Len())
}

func TestBuildErrors(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"unknown kind", Config{Kind: "momentum"}, ErrUnknownKind},
		{"constant without settings", Config{Kind: KindConstant}, ErrMissingVariant},
		{"sma without settings", Config{Kind: KindSMA}, ErrMissingVariant},
		{"donchian without settings", Config{Kind: KindDonchian}, ErrMissingVariant},
		{"switch without settings", Config{Kind: KindSwitch}, ErrMissingVariant},
		{"mixed without settings", Config{Kind: KindMixed}, ErrMissingVariant},
		{"bad switch member", Config{Kind: KindSwitch, Switch: &SwitchConfig{RiskOn: Config{Kind: "x"}}}, ErrUnknownKind},
		{"bad mixed member", Config{Kind: KindMixed, Mixed: &MixedConfig{Members: []MixedMember{{Weight: 1}}}}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Build(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistryExtension(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []Kind{KindConstant, KindDonchian, KindMixed, KindSMA, KindSwitch}, r.Kinds())
	assert.ErrorIs(t, r.Register(KindSMA, buildSMA), ErrDuplicateKind)

	called := false
	require.NoError(t, r.Register("cash", func(Config, *Registry) (engine.PredictorFactory, error) {
		called = true
		return nil, nil
	}))
	_, err := r.Build(Config{Kind: "cash"})
	require.NoError(t, err)
	assert.True(t, called)
}
