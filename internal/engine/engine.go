package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"portfoliosim/internal/series"
)

var ErrSeriesMismatch = errors.New("return series do not line up")

// Engine runs predictors against one store through a shared broker. Runs are
// sequential.
type Engine struct {
	broker           *Broker
	simulationConfig *SimulationConfig
	reportingConfig  *ReportingConfig
}

func NewEngine(store *series.Store, brokerConfig *BrokerConfig, simulationConfig *SimulationConfig, reportingConfig *ReportingConfig) (*Engine, error) {
	b, err := NewBroker(store, brokerConfig)
	if err != nil {
		return nil, err
	}
	return &Engine{
		broker:           b,
		simulationConfig: simulationConfig,
		reportingConfig:  reportingConfig,
	}, nil
}

func (e *Engine) Run(factory PredictorFactory, start, end time.Time, name string, fast bool) (*Result, error) {
	if fast {
		return NewFastSim(e.broker, e.simulationConfig).Run(factory, start, end, name)
	}
	return NewSimulation(e.broker, e.simulationConfig).Run(factory, start, end, name)
}

// Comparison holds both drivers' results for the same run and the largest
// relative difference between their daily or monthly returns.
type Comparison struct {
	Full            *Result
	Fast            *Result
	MaxRelativeDiff float64
	At              time.Time
}

// Compare runs factory through Simulation and then FastSim.
func (e *Engine) Compare(factory PredictorFactory, start, end time.Time, name string) (*Comparison, error) {
	full, err := e.Run(factory, start, end, name, false)
	if err != nil {
		return nil, fmt.Errorf("full run: %w", err)
	}
	fast, err := e.Run(factory, start, end, name, true)
	if err != nil {
		return nil, fmt.Errorf("fast run: %w", err)
	}
	diff, at, err := compareReturns(full, fast)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"run": name, "maxRelDiff": diff}).Info("compared drivers")
	return &Comparison{Full: full, Fast: fast, MaxRelativeDiff: diff, At: at}, nil
}

// compareReturns takes the larger of the daily and the monthly divergence.
func compareReturns(a, b *Result) (float64, time.Time, error) {
	daily, at, err := MaxRelativeDiff(a.ReturnsDaily, b.ReturnsDaily)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("daily returns: %w", err)
	}
	monthly, monthAt, err := MaxRelativeDiff(a.ReturnsMonthly, b.ReturnsMonthly)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("monthly returns: %w", err)
	}
	if monthly > daily {
		return monthly, monthAt, nil
	}
	return daily, at, nil
}

// MaxRelativeDiff compares two single-column series tick by tick.
func MaxRelativeDiff(a, b *series.Series) (float64, time.Time, error) {
	if a.Len() != b.Len() {
		return 0, time.Time{}, fmt.Errorf("%d vs %d rows: %w", a.Len(), b.Len(), ErrSeriesMismatch)
	}
	var worst float64
	var at time.Time
	for i := 0; i < a.Len(); i++ {
		ta, _ := a.Time(i)
		tb, _ := b.Time(i)
		if !ta.Equal(tb) {
			return 0, time.Time{}, fmt.Errorf("row %d at %s vs %s: %w", i, ta, tb, ErrSeriesMismatch)
		}
		va, err := a.Get(i, 0)
		if err != nil {
			return 0, time.Time{}, err
		}
		vb, err := b.Get(i, 0)
		if err != nil {
			return 0, time.Time{}, err
		}
		d := math.Abs(va - vb)
		if scale := math.Max(math.Abs(va), math.Abs(vb)); scale > 0 {
			d /= scale
		}
		if d > worst {
			worst, at = d, ta
		}
	}
	return worst, at, nil
}
