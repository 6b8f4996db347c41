package repository

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"portfoliosim/internal/series"
	"portfoliosim/types"
)

// CandlesToSeries appends every candle as one row in the layout of
// types.Field. Candles must be in strictly increasing time order.
func CandlesToSeries(name string, candles []types.Candle) (*series.Series, error) {
	s := series.New(name)
	for _, c := range candles {
		if err := s.Add(c.Timestamp, c.Row()...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BuildStore loads tickers from src with at most limit loads in flight and
// puts each under its ticker name. limit <= 0 means no limit. The first
// failure cancels the remaining loads.
func BuildStore(ctx context.Context, src Source, tickers []string, interval types.Interval, start, end time.Time, limit int) (*series.Store, error) {
	loaded := make([]*series.Series, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ticker := range tickers {
		g.Go(func() error {
			candles, err := src.LoadCandles(gctx, ticker, interval, start, end)
			if err != nil {
				return fmt.Errorf("load %s: %w", ticker, err)
			}
			s, err := CandlesToSeries(ticker, candles)
			if err != nil {
				return fmt.Errorf("load %s: %w", ticker, err)
			}
			loaded[i] = s
			log.WithFields(log.Fields{"ticker": ticker, "rows": s.Len()}).Debug("loaded series")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st := series.NewStore()
	for _, s := range loaded {
		if err := st.Put(s); err != nil {
			return nil, err
		}
	}
	log.Infof("loaded %d series", len(loaded))
	return st, nil
}
