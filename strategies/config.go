// Package strategies builds predictors from configuration. Each Kind names
// one variant of Config; builders are looked up in a Registry so new
// predictors can be added without touching the engine.
package strategies

import (
	"errors"
	"fmt"
	"sort"

	"portfoliosim/internal/engine"
	"portfoliosim/strategies/constant"
	"portfoliosim/strategies/donchian"
	"portfoliosim/strategies/mixed"
	"portfoliosim/strategies/sma"
	"portfoliosim/strategies/switcher"
)

var (
	ErrUnknownKind    = errors.New("unknown strategy kind")
	ErrMissingVariant = errors.New("strategy config has no settings for its kind")
	ErrDuplicateKind  = errors.New("strategy kind already registered")
)

type Kind string

const (
	KindConstant Kind = "constant"
	KindSMA      Kind = "sma"
	KindSwitch   Kind = "switch"
	KindMixed    Kind = "mixed"
	KindDonchian Kind = "donchian"
)

// Config is a tagged union: Kind selects which of the variant fields is read.
type Config struct {
	Kind     Kind             `yaml:"kind"`
	Constant *constant.Config `yaml:"constant,omitempty"`
	SMA      *sma.Config      `yaml:"sma,omitempty"`
	Switch   *SwitchConfig    `yaml:"switch,omitempty"`
	Mixed    *MixedConfig     `yaml:"mixed,omitempty"`
	Donchian *donchian.Config `yaml:"donchian,omitempty"`
}

type SwitchConfig struct {
	switcher.Config `yaml:",inline"`
	RiskOn          Config `yaml:"risk_on"`
	RiskOff         Config `yaml:"risk_off"`
}

type MixedConfig struct {
	Members []MixedMember `yaml:"members"`
}

type MixedMember struct {
	Weight   float64 `yaml:"weight"`
	Strategy Config  `yaml:"strategy"`
}

// Builder turns a config into a factory. Composite builders use r to build
// their members.
type Builder func(cfg Config, r *Registry) (engine.PredictorFactory, error)

type Registry struct {
	builders map[Kind]Builder
}

// NewRegistry returns a registry with every built-in kind.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[Kind]Builder)}
	_ = r.Register(KindConstant, buildConstant)
	_ = r.Register(KindSMA, buildSMA)
	_ = r.Register(KindSwitch, buildSwitch)
	_ = r.Register(KindMixed, buildMixed)
	_ = r.Register(KindDonchian, buildDonchian)
	return r
}

func (r *Registry) Register(kind Kind, b Builder) error {
	if _, ok := r.builders[kind]; ok {
		return fmt.Errorf("%q: %w", kind, ErrDuplicateKind)
	}
	r.builders[kind] = b
	return nil
}

func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Build(cfg Config) (engine.PredictorFactory, error) {
	b, ok := r.builders[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.Kind, ErrUnknownKind)
	}
	return b(cfg, r)
}

func missing(kind Kind) error {
	return fmt.Errorf("%q: %w", kind, ErrMissingVariant)
}

func buildConstant(cfg Config, _ *Registry) (engine.PredictorFactory, error) {
	if cfg.Constant == nil {
		return nil, missing(cfg.Kind)
	}
	return constant.New(*cfg.Constant), nil
}

func buildSMA(cfg Config, _ *Registry) (engine.PredictorFactory, error) {
	if cfg.SMA == nil {
		return nil, missing(cfg.Kind)
	}
	return sma.New(*cfg.SMA), nil
}

func buildDonchian(cfg Config, _ *Registry) (engine.PredictorFactory, error) {
	if cfg.Donchian == nil {
		return nil, missing(cfg.Kind)
	}
	return donchian.New(*cfg.Donchian), nil
}

func buildSwitch(cfg Config, r *Registry) (engine.PredictorFactory, error) {
	if cfg.Switch == nil {
		return nil, missing(cfg.Kind)
	}
	on, err := r.Build(cfg.Switch.RiskOn)
	if err != nil {
		return nil, fmt.Errorf("risk_on: %w", err)
	}
	off, err := r.Build(cfg.Switch.RiskOff)
	if err != nil {
		return nil, fmt.Errorf("risk_off: %w", err)
	}
	return switcher.New(cfg.Switch.Config, on, off), nil
}

func buildMixed(cfg Config, r *Registry) (engine.PredictorFactory, error) {
	if cfg.Mixed == nil {
		return nil, missing(cfg.Kind)
	}
	members := make([]mixed.Member, 0, len(cfg.Mixed.Members))
	for i, m := range cfg.Mixed.Members {
		f, err := r.Build(m.Strategy)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		members = append(members, mixed.Member{Weight: m.Weight, Factory: f})
	}
	return mixed.New(members...), nil
}
