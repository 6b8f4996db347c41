// Package constant holds the same allocation every day.
package constant

import (
	"fmt"
	"sort"

	"portfoliosim/internal/engine"
	"portfoliosim/types"
)

type Config struct {
	Weights map[string]float64 `yaml:"weights"`
}

type Predictor struct {
	dist types.Distribution
}

func New(cfg Config) engine.PredictorFactory {
	return func() (engine.Predictor, error) {
		names := make([]string, 0, len(cfg.Weights))
		for n := range cfg.Weights {
			names = append(names, n)
		}
		sort.Strings(names)
		weights := make([]float64, len(names))
		for i, n := range names {
			weights[i] = cfg.Weights[n]
		}
		dist, err := types.NewDistribution(names, weights)
		if err != nil {
			return nil, fmt.Errorf("constant: %w", err)
		}
		return &Predictor{dist: dist}, nil
	}
}

func (p *Predictor) Init(view engine.BrokerView, assets []string) error {
	for _, n := range p.dist.Names {
		if !contains(assets, n) {
			return fmt.Errorf("constant: %q is not a simulated asset", n)
		}
	}
	return nil
}

func (p *Predictor) SelectDistribution() (types.Distribution, error) {
	return p.dist, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
