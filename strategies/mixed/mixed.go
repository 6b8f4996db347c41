// Package mixed blends the distributions of several member predictors.
package mixed

import (
	"errors"
	"fmt"

	"portfoliosim/internal/engine"
	"portfoliosim/types"
)

var ErrNoMembers = errors.New("mixed predictor needs at least one member")

type Member struct {
	Weight  float64
	Factory engine.PredictorFactory
}

type Predictor struct {
	weights []float64
	members []engine.Predictor
}

func New(members ...Member) engine.PredictorFactory {
	return func() (engine.Predictor, error) {
		if len(members) == 0 {
			return nil, ErrNoMembers
		}
		p := &Predictor{}
		for i, m := range members {
			mp, err := m.Factory()
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			p.weights = append(p.weights, m.Weight)
			p.members = append(p.members, mp)
		}
		return p, nil
	}
}

func (p *Predictor) Init(view engine.BrokerView, assets []string) error {
	for i, m := range p.members {
		if err := m.Init(view, assets); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
	}
	return nil
}

// SelectDistribution returns the weighted sum of the member distributions.
func (p *Predictor) SelectDistribution() (types.Distribution, error) {
	var out types.Distribution
	for i, m := range p.members {
		d, err := m.SelectDistribution()
		if err != nil {
			return types.Distribution{}, fmt.Errorf("member %d: %w", i, err)
		}
		out = out.Blend(d, p.weights[i])
	}
	return out, nil
}
