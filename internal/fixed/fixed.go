// Package fixed implements scaled-integer money arithmetic. A Point holds a
// value multiplied by Scale; every operation that can leave the int64 range
// returns ErrOverflow instead of wrapping.
package fixed

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// Scale is the number of Point units in one currency unit.
const Scale = 100_000

const scaleExp = -5

var (
	ErrOverflow     = errors.New("fixed point overflow")
	ErrDivideByZero = errors.New("fixed point division by zero")
	ErrInvalidUnit  = errors.New("fixed point quantization unit must be positive")
	ErrNotFinite    = errors.New("value is not a finite number")
)

type Point int64

const (
	Zero Point = 0
	One  Point = Scale
	Cent Point = Scale / 100
)

// Must panics if err is non-nil. Intended for constants and tests.
func Must(p Point, err error) Point {
	if err != nil {
		panic(err)
	}
	return p
}

func FromInt(n int64) (Point, error) {
	hi, lo := bits.Mul64(absU(n), Scale)
	return fromMagnitude(hi, lo, n < 0)
}

// FromFloat rounds f*Scale half away from zero.
func FromFloat(f float64) (Point, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v: %w", f, ErrNotFinite)
	}
	scaled := math.Round(f * Scale)
	if scaled >= math.MaxInt64 || scaled < math.MinInt64+1 {
		return 0, fmt.Errorf("%v: %w", f, ErrOverflow)
	}
	return Point(scaled), nil
}

func FromDecimal(d decimal.Decimal) (Point, error) {
	scaled := d.Shift(-scaleExp).Round(0)
	if !scaled.IsInteger() || scaled.GreaterThan(maxDecimal) || scaled.LessThan(minDecimal) {
		return 0, fmt.Errorf("%s: %w", d, ErrOverflow)
	}
	return Point(scaled.IntPart()), nil
}

func FromString(s string) (Point, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

var (
	maxDecimal = decimal.NewFromInt(math.MaxInt64)
	minDecimal = decimal.NewFromInt(math.MinInt64 + 1)
)

func (p Point) Float() float64 {
	return float64(p) / Scale
}

func (p Point) Decimal() decimal.Decimal {
	return decimal.New(int64(p), scaleExp)
}

func (p Point) String() string {
	return p.Decimal().StringFixed(-scaleExp)
}

func (p Point) IsZero() bool     { return p == 0 }
func (p Point) Lt(o Point) bool  { return p < o }
func (p Point) Lte(o Point) bool { return p <= o }
func (p Point) Gt(o Point) bool  { return p > o }
func (p Point) Gte(o Point) bool { return p >= o }

func (p Point) Sign() int {
	switch {
	case p > 0:
		return 1
	case p < 0:
		return -1
	}
	return 0
}

func (p Point) Neg() Point { return -p }

func (p Point) Abs() Point {
	if p < 0 {
		return -p
	}
	return p
}

func Add(a, b Point) (Point, error) {
	s := a + b
	if (s > a) != (b > 0) {
		return 0, fmt.Errorf("%s + %s: %w", a, b, ErrOverflow)
	}
	return s, nil
}

func Sub(a, b Point) (Point, error) {
	d := a - b
	if (d < a) != (b > 0) {
		return 0, fmt.Errorf("%s - %s: %w", a, b, ErrOverflow)
	}
	return d, nil
}

// Mul returns a*b rounded half away from zero.
func Mul(a, b Point) (Point, error) {
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absU(int64(a)), absU(int64(b)))
	lo, carry := bits.Add64(lo, Scale/2, 0)
	hi += carry
	if hi >= Scale {
		return 0, fmt.Errorf("%s * %s: %w", a, b, ErrOverflow)
	}
	q, _ := bits.Div64(hi, lo, Scale)
	p, err := fromMagnitude(0, q, neg)
	if err != nil {
		return 0, fmt.Errorf("%s * %s: %w", a, b, ErrOverflow)
	}
	return p, nil
}

// Div returns a/b rounded half away from zero.
func Div(a, b Point) (Point, error) {
	return div(a, b, true)
}

// DivTrunc returns a/b truncated toward zero.
func DivTrunc(a, b Point) (Point, error) {
	return div(a, b, false)
}

func div(a, b Point, round bool) (Point, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	neg := (a < 0) != (b < 0)
	den := absU(int64(b))
	hi, lo := bits.Mul64(absU(int64(a)), Scale)
	if round {
		var carry uint64
		lo, carry = bits.Add64(lo, den/2, 0)
		hi += carry
	}
	if hi >= den {
		return 0, fmt.Errorf("%s / %s: %w", a, b, ErrOverflow)
	}
	q, _ := bits.Div64(hi, lo, den)
	p, err := fromMagnitude(0, q, neg)
	if err != nil {
		return 0, fmt.Errorf("%s / %s: %w", a, b, ErrOverflow)
	}
	return p, nil
}

// Truncate quantizes x to a multiple of unit, toward zero.
func Truncate(x, unit Point) (Point, error) {
	if unit <= 0 {
		return 0, ErrInvalidUnit
	}
	return x / unit * unit, nil
}

// Round quantizes x to the nearest multiple of unit, half away from zero.
func Round(x, unit Point) (Point, error) {
	if unit <= 0 {
		return 0, ErrInvalidUnit
	}
	m := absU(int64(x))
	u := uint64(unit)
	q := (m + u/2) / u
	hi, lo := bits.Mul64(q, u)
	p, err := fromMagnitude(hi, lo, x < 0)
	if err != nil {
		return 0, fmt.Errorf("round %s to %s: %w", x, unit, ErrOverflow)
	}
	return p, nil
}

func absU(n int64) uint64 {
	if n < 0 {
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}

// fromMagnitude converts a 128-bit magnitude and a sign to a Point. The
// magnitude of MinInt64 is rejected so that Neg and Abs stay total.
func fromMagnitude(hi, lo uint64, neg bool) (Point, error) {
	if hi != 0 || lo > math.MaxInt64 {
		return 0, ErrOverflow
	}
	if neg {
		return Point(-int64(lo)), nil
	}
	return Point(lo), nil
}
