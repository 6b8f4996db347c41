// Package switcher composes two predictors and follows one of them depending
// on whether a signal series trades above its moving average.
package switcher

import (
	"fmt"

	"portfoliosim/internal/engine"
	"portfoliosim/strategies/sma"
	"portfoliosim/types"
)

type Config struct {
	Signal string `yaml:"signal"`
	Window int    `yaml:"window"`
	Field  string `yaml:"field"`
}

type Predictor struct {
	cfg     Config
	field   types.Field
	view    engine.BrokerView
	riskOn  engine.Predictor
	riskOff engine.Predictor
}

// New builds fresh members from riskOn and riskOff for every run.
func New(cfg Config, riskOn, riskOff engine.PredictorFactory) engine.PredictorFactory {
	return func() (engine.Predictor, error) {
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("switch on %s: %w", cfg.Signal, sma.ErrWindow)
		}
		field, err := sma.ParseField(cfg.Field)
		if err != nil {
			return nil, err
		}
		on, err := riskOn()
		if err != nil {
			return nil, fmt.Errorf("risk on: %w", err)
		}
		off, err := riskOff()
		if err != nil {
			return nil, fmt.Errorf("risk off: %w", err)
		}
		return &Predictor{cfg: cfg, field: field, riskOn: on, riskOff: off}, nil
	}
}

func (p *Predictor) Init(view engine.BrokerView, assets []string) error {
	p.view = view
	if err := p.riskOn.Init(view, assets); err != nil {
		return err
	}
	return p.riskOff.Init(view, assets)
}

// SelectDistribution asks both members every day so that stateful members see
// an unbroken sequence of days.
func (p *Predictor) SelectDistribution() (types.Distribution, error) {
	on, err := p.riskOn.SelectDistribution()
	if err != nil {
		return types.Distribution{}, err
	}
	off, err := p.riskOff.SelectDistribution()
	if err != nil {
		return types.Distribution{}, err
	}
	above, ready, err := sma.Above(p.view, p.cfg.Signal, p.cfg.Window, p.field)
	if err != nil {
		return types.Distribution{}, err
	}
	if ready && above {
		return on, nil
	}
	return off, nil
}
