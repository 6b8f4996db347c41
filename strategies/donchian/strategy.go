package donchian

import (
	"errors"
	"fmt"
	"math"

	"portfoliosim/internal/engine"
	"portfoliosim/types"
)

var ErrConfig = errors.New("invalid donchian config")

type Config struct {
	Assets []string `yaml:"assets"`
	// Window is the number of completed rows before today that form the
	// channel.
	Window int `yaml:"window"`
	// ATRPeriod enables a stop at ATRMultiple average true ranges below the
	// entry close. Zero disables the stop.
	ATRPeriod   int     `yaml:"atr_period"`
	ATRMultiple float64 `yaml:"atr_multiple"`
	// PositionPercent is the weight of each long position. Zero splits the
	// account equally.
	PositionPercent float64 `yaml:"position_percent"`
}

type bar struct {
	high, low, close float64
}

// Strategy goes long an asset when it breaks above the highest high of the
// channel and exits on a break below the lowest low or on the ATR stop. It
// never goes short.
type Strategy struct {
	cfg      Config
	view     engine.BrokerView
	long     map[string]bool
	stopLoss map[string]float64
}

func New(cfg Config) engine.PredictorFactory {
	return func() (engine.Predictor, error) {
		if cfg.Window <= 0 || cfg.ATRPeriod < 0 || cfg.PositionPercent < 0 || cfg.PositionPercent > 1 {
			return nil, fmt.Errorf("window %d, atr period %d, position %v: %w", cfg.Window, cfg.ATRPeriod, cfg.PositionPercent, ErrConfig)
		}
		if len(cfg.Assets) == 0 {
			return nil, fmt.Errorf("no assets: %w", ErrConfig)
		}
		return &Strategy{cfg: cfg}, nil
	}
}

func (s *Strategy) Init(view engine.BrokerView, _ []string) error {
	s.view = view
	s.long = make(map[string]bool)
	s.stopLoss = make(map[string]float64)
	return nil
}

func (s *Strategy) SelectDistribution() (types.Distribution, error) {
	var held []string
	for _, asset := range s.cfg.Assets {
		if err := s.onDay(asset); err != nil {
			return types.Distribution{}, err
		}
		if s.long[asset] {
			held = append(held, asset)
		}
	}
	if len(held) == 0 {
		return types.Distribution{}, nil
	}

	w := s.cfg.PositionPercent
	if w == 0 || w*float64(len(held)) > 1 {
		w = 1 / float64(len(held))
	}
	weights := make([]float64, len(held))
	for i := range weights {
		weights[i] = w
	}
	return types.NewDistribution(held, weights)
}

func (s *Strategy) onDay(asset string) error {
	hist, err := s.history(asset)
	if err != nil || len(hist) < s.cfg.Window+1 {
		return err
	}
	today := hist[len(hist)-1]
	highestHigh, lowestLow := donchianHighLow(hist[len(hist)-1-s.cfg.Window : len(hist)-1])

	switch {
	case today.high > highestHigh:
		s.long[asset] = true
		s.stopLoss[asset] = 0
		if s.cfg.ATRPeriod > 0 {
			if atr := calcATR(hist, s.cfg.ATRPeriod); atr > 0 {
				s.stopLoss[asset] = today.close - atr*s.cfg.ATRMultiple
			}
		}
	case today.low < lowestLow:
		s.long[asset] = false
		s.stopLoss[asset] = 0
	case s.long[asset] && s.stopLoss[asset] > 0 && today.close < s.stopLoss[asset]:
		s.long[asset] = false
		s.stopLoss[asset] = 0
	}
	return nil
}

// history copies the last rows of asset needed for the channel and the ATR,
// read under a lock narrowed to those rows.
func (s *Strategy) history(asset string) ([]bar, error) {
	ser, err := s.view.Series(asset)
	if err != nil {
		return nil, err
	}
	need := max(s.cfg.Window+1, s.cfg.ATRPeriod+1)
	n := ser.Len()
	if n < need {
		need = n
	}
	if need == 0 {
		return nil, nil
	}
	g, err := ser.Lock(n-need, n-1, s.view.NewLockKey())
	if err != nil {
		return nil, err
	}
	defer g.Release()

	out := make([]bar, 0, need)
	for i := 0; i < ser.Len(); i++ {
		row, err := ser.Row(i)
		if err != nil {
			return nil, err
		}
		out = append(out, bar{high: row[types.FieldHigh], low: row[types.FieldLow], close: row[types.FieldClose]})
	}
	return out, nil
}

// Utility: Donchian Channel High/Low
func donchianHighLow(bars []bar) (float64, float64) {
	if len(bars) == 0 {
		return 0, 0
	}

	highest := bars[0].high
	lowest := bars[0].low

	for _, b := range bars {
		if b.high > highest {
			highest = b.high
		}
		if b.low < lowest {
			lowest = b.low
		}
	}
	return highest, lowest
}

func calcATR(bars []bar, period int) float64 {
	if len(bars) < period+1 {
		return 0 // need enough data (prev bar + period)
	}

	trueRanges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].close
		trueRanges = append(trueRanges, math.Max(bars[i].high-bars[i].low,
			math.Max(math.Abs(bars[i].high-prevClose), math.Abs(bars[i].low-prevClose))))
	}

	atr := 0.0
	for _, tr := range trueRanges[:period] {
		atr += tr
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr
}
