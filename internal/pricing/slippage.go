package pricing

import (
	"fmt"

	"portfoliosim/internal/fixed"
)

// Slippage models spread and market impact: buys pay Pct above the price
// plus Const per share, sells receive the same amount less.
type Slippage struct {
	Pct   float64
	Const float64
}

// NoSlippage is the identity model.
var NoSlippage = Slippage{}

func (s Slippage) IsZero() bool {
	return s.Pct == 0 && s.Const == 0
}

func (s Slippage) Buy(price float64) float64 {
	return price*(1+s.Pct) + s.Const
}

// Sell never returns a negative price.
func (s Slippage) Sell(price float64) float64 {
	p := price*(1-s.Pct) - s.Const
	if p < 0 {
		return 0
	}
	return p
}

// Fixed converts the model to fixed point arithmetic.
func (s Slippage) Fixed() (FixedSlippage, error) {
	pct, err := fixed.FromFloat(s.Pct)
	if err != nil {
		return FixedSlippage{}, fmt.Errorf("slippage pct: %w", err)
	}
	c, err := fixed.FromFloat(s.Const)
	if err != nil {
		return FixedSlippage{}, fmt.Errorf("slippage const: %w", err)
	}
	return FixedSlippage{Pct: pct, Const: c}, nil
}

type FixedSlippage struct {
	Pct   fixed.Point
	Const fixed.Point
}

func (s FixedSlippage) Buy(price fixed.Point) (fixed.Point, error) {
	if s.Pct == 0 && s.Const == 0 {
		return price, nil
	}
	f, err := fixed.Add(fixed.One, s.Pct)
	if err != nil {
		return 0, err
	}
	p, err := fixed.Mul(price, f)
	if err != nil {
		return 0, err
	}
	return fixed.Add(p, s.Const)
}

func (s FixedSlippage) Sell(price fixed.Point) (fixed.Point, error) {
	if s.Pct == 0 && s.Const == 0 {
		return price, nil
	}
	f, err := fixed.Sub(fixed.One, s.Pct)
	if err != nil {
		return 0, err
	}
	p, err := fixed.Mul(price, f)
	if err != nil {
		return 0, err
	}
	p, err = fixed.Sub(p, s.Const)
	if err != nil {
		return 0, err
	}
	if p < 0 {
		return 0, nil
	}
	return p, nil
}
