package engine

import (
	"time"

	"portfoliosim/internal/series"
	"portfoliosim/types"
)

// Predictor is a decision policy. A driver builds a fresh Predictor for every
// run through a PredictorFactory, so implementations may keep state freely.
type Predictor interface {
	// Init hands the predictor its restricted view of the broker and the
	// assets it may allocate to. It is called once, before the first tick.
	Init(view BrokerView, assets []string) error
	// SelectDistribution returns the target allocation for the current day.
	SelectDistribution() (types.Distribution, error)
}

type PredictorFactory func() (Predictor, error)

// BrokerView is what a Predictor can see of the broker: the current day and
// the market data visible as of that day.
type BrokerView interface {
	Today() types.TimeInfo
	Series(name string) (series.View, error)
	// Price is the valuation price of symbol as of today.
	Price(symbol string) (float64, error)
	Assets() []string
	NewLockKey() series.Key
}

type brokerView struct {
	b *Broker
}

var _ BrokerView = brokerView{}

func (v brokerView) Today() types.TimeInfo { return v.b.today }

func (v brokerView) Series(name string) (series.View, error) {
	if err := v.b.requireDay("read series"); err != nil {
		return nil, err
	}
	return v.b.store.Get(name)
}

func (v brokerView) Price(symbol string) (float64, error) {
	p, err := v.b.ValuationPrice(symbol)
	if err != nil {
		return 0, err
	}
	return p.Float(), nil
}

func (v brokerView) Assets() []string { return v.b.store.Names() }

func (v brokerView) NewLockKey() series.Key { return v.b.NewLockKey() }

// Sentinels for the run window bounds.
var (
	TimeBegin = time.Time{}
	TimeEnd   = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)
