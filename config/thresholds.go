package config

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Alert type keys for the severity map. Kept as plain strings so the config
// layer stays free of pipeline imports.
const (
	KeyBBUpperCross  = "bb_upper_cross"
	KeyBBLowerCross  = "bb_lower_cross"
	KeyRSIOverbought = "rsi_overbought"
	KeyRSIOversold   = "rsi_oversold"
	KeyGap           = "gap"
)

var defaultSeverities = map[string]string{
	KeyBBUpperCross:  "critical",
	KeyBBLowerCross:  "critical",
	KeyRSIOverbought: "warn",
	KeyRSIOversold:   "warn",
	KeyGap:           "info",
}

// Thresholds are the tunables read at indicator/signal/alert evaluation time.
// They are swapped atomically as a whole; a change takes effect on the next
// tick with no coordination beyond the pointer swap.
type Thresholds struct {
	GapPct          float64 `yaml:"gap_pct" json:"gapPct" default:"2.0" validate:"gte=0"`
	RSIOverbought   float64 `yaml:"rsi_overbought" json:"rsiOverbought" default:"70" validate:"gt=0,lte=100"`
	RSIOversold     float64 `yaml:"rsi_oversold" json:"rsiOversold" default:"30" validate:"gte=0,lt=100"`
	CooldownSeconds int     `yaml:"cooldown_seconds" json:"cooldownSeconds" default:"300" validate:"gte=0"`
	RiskPct         float64 `yaml:"risk_pct" json:"riskPct" default:"0.05" validate:"gt=0,lt=1"`
	RewardPct       float64 `yaml:"reward_pct" json:"rewardPct" default:"0.05" validate:"gt=0,lt=1"`

	// Severities maps alert type → severity (info|warn|critical). Missing
	// entries fall back to the built-in mapping.
	Severities map[string]string `yaml:"severities" json:"severities"`
}

// Cooldown returns the alert cooldown as a duration.
func (t Thresholds) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// SeverityFor returns the configured severity for an alert type key.
func (t Thresholds) SeverityFor(key string) string {
	if s, ok := t.Severities[key]; ok {
		return s
	}
	return defaultSeverities[key]
}

// Validate checks cross-field rules and the severity map.
func (t Thresholds) Validate() error {
	if t.RSIOversold >= t.RSIOverbought {
		return fmt.Errorf("thresholds: rsi_oversold (%.1f) must be below rsi_overbought (%.1f)",
			t.RSIOversold, t.RSIOverbought)
	}
	for key, sev := range t.Severities {
		if _, ok := defaultSeverities[key]; !ok {
			return fmt.Errorf("thresholds: unknown alert type %q in severities", key)
		}
		switch sev {
		case "info", "warn", "critical":
		default:
			return fmt.Errorf("thresholds: invalid severity %q for %s", sev, key)
		}
	}
	return nil
}

func (t *Thresholds) fillSeverities() {
	if t.Severities == nil {
		t.Severities = make(map[string]string, len(defaultSeverities))
	}
	for key, sev := range defaultSeverities {
		if _, ok := t.Severities[key]; !ok {
			t.Severities[key] = sev
		}
	}
}

// ThresholdStore publishes the active Thresholds to the hot path. Readers get
// a consistent snapshot with a single atomic load; writers validate before
// swapping.
type ThresholdStore struct {
	p atomic.Pointer[Thresholds]
}

// NewThresholdStore seeds the store with an initial snapshot.
func NewThresholdStore(t Thresholds) *ThresholdStore {
	s := &ThresholdStore{}
	t.fillSeverities()
	s.p.Store(&t)
	return s
}

// Get returns the current snapshot.
func (s *ThresholdStore) Get() Thresholds {
	return *s.p.Load()
}

// Set validates and atomically swaps in a new snapshot.
func (s *ThresholdStore) Set(t Thresholds) error {
	t.fillSeverities()
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	s.p.Store(&t)
	return nil
}
