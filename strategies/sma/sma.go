// Package sma holds an asset while its price is above its simple moving
// average and moves to a safe asset, or cash, otherwise.
package sma

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"

	"portfoliosim/internal/engine"
	"portfoliosim/types"
)

var ErrWindow = errors.New("sma window must be positive")

type Config struct {
	Asset  string `yaml:"asset"`
	Safe   string `yaml:"safe"`
	Window int    `yaml:"window"`
	Field  string `yaml:"field"`
}

// ParseField resolves the configured price column, adj_close by default.
func ParseField(name string) (types.Field, error) {
	if name == "" {
		return types.FieldAdjClose, nil
	}
	return types.ParseField(name)
}

type Predictor struct {
	cfg   Config
	field types.Field
	view  engine.BrokerView
}

func New(cfg Config) engine.PredictorFactory {
	return func() (engine.Predictor, error) {
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("%s: %w", cfg.Asset, ErrWindow)
		}
		field, err := ParseField(cfg.Field)
		if err != nil {
			return nil, err
		}
		return &Predictor{cfg: cfg, field: field}, nil
	}
}

func (p *Predictor) Init(view engine.BrokerView, _ []string) error {
	p.view = view
	return nil
}

func (p *Predictor) SelectDistribution() (types.Distribution, error) {
	above, ready, err := Above(p.view, p.cfg.Asset, p.cfg.Window, p.field)
	if err != nil {
		return types.Distribution{}, err
	}
	if ready && above {
		return types.Single(p.cfg.Asset), nil
	}
	if p.cfg.Safe == "" {
		return types.Distribution{}, nil
	}
	return types.Single(p.cfg.Safe), nil
}

// Above reports whether the latest value of field in the named series is
// above the mean of its last window values. ready is false until window
// rows are visible. The series is read under a lock narrowed to the window.
func Above(view engine.BrokerView, name string, window int, field types.Field) (above, ready bool, err error) {
	s, err := view.Series(name)
	if err != nil {
		return false, false, err
	}
	n := s.Len()
	if n < window {
		return false, false, nil
	}
	g, err := s.Lock(n-window, n-1, view.NewLockKey())
	if err != nil {
		return false, false, err
	}
	defer func() {
		if rerr := g.Release(); err == nil {
			err = rerr
		}
	}()

	values := make(stats.Float64Data, 0, window)
	for i := 0; i < s.Len(); i++ {
		v, err := s.Get(i, int(field))
		if err != nil {
			return false, false, err
		}
		values = append(values, v)
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return false, false, err
	}
	return values[len(values)-1] > mean, true, nil
}
