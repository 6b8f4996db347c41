package types

import (
	"errors"
	"fmt"
	"math"
)

var ErrDistributionMismatch = errors.New("distribution names and weights differ in length")

// Distribution is a target allocation: parallel slices of asset names and
// weights. Weights are not required to sum to exactly one.
type Distribution struct {
	Names   []string
	Weights []float64
}

func NewDistribution(names []string, weights []float64) (Distribution, error) {
	if len(names) != len(weights) {
		return Distribution{}, fmt.Errorf("%d names, %d weights: %w", len(names), len(weights), ErrDistributionMismatch)
	}
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if _, ok := seen[n]; ok {
			return Distribution{}, fmt.Errorf("duplicate asset %q in distribution", n)
		}
		if math.IsNaN(weights[i]) || math.IsInf(weights[i], 0) {
			return Distribution{}, fmt.Errorf("asset %q has non-finite weight %v", n, weights[i])
		}
		seen[n] = struct{}{}
	}
	return Distribution{
		Names:   append([]string(nil), names...),
		Weights: append([]float64(nil), weights...),
	}, nil
}

// Single returns a distribution holding everything in one asset.
func Single(name string) Distribution {
	return Distribution{Names: []string{name}, Weights: []float64{1}}
}

func (d Distribution) Len() int { return len(d.Names) }

func (d Distribution) Weight(name string) float64 {
	for i, n := range d.Names {
		if n == name {
			return d.Weights[i]
		}
	}
	return 0
}

func (d Distribution) Sum() float64 {
	var s float64
	for _, w := range d.Weights {
		s += w
	}
	return s
}

// RemoveZeroWeights drops entries whose absolute weight is below eps. The
// remaining weights are left untouched.
func (d Distribution) RemoveZeroWeights(eps float64) Distribution {
	out := Distribution{}
	for i, w := range d.Weights {
		if math.Abs(w) < eps {
			continue
		}
		out.Names = append(out.Names, d.Names[i])
		out.Weights = append(out.Weights, w)
	}
	return out
}

// Normalize scales the weights so their absolute values sum to one. An empty
// or all-zero distribution is returned unchanged.
func (d Distribution) Normalize() Distribution {
	var total float64
	for _, w := range d.Weights {
		total += math.Abs(w)
	}
	if total == 0 {
		return d
	}
	out := Distribution{Names: append([]string(nil), d.Names...), Weights: make([]float64, len(d.Weights))}
	for i, w := range d.Weights {
		out.Weights[i] = w / total
	}
	return out
}

// Blend adds w times every weight of other into d.
func (d Distribution) Blend(other Distribution, w float64) Distribution {
	out := Distribution{Names: append([]string(nil), d.Names...), Weights: append([]float64(nil), d.Weights...)}
	for i, n := range other.Names {
		found := false
		for j, m := range out.Names {
			if m == n {
				out.Weights[j] += w * other.Weights[i]
				found = true
				break
			}
		}
		if !found {
			out.Names = append(out.Names, n)
			out.Weights = append(out.Weights, w*other.Weights[i])
		}
	}
	return out
}
