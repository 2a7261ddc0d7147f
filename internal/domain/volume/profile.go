package volume

import (
	"fmt"
	"sort"
	"strings"
)

// Profile is a named bundle of detector thresholds. Profiles differ only in
// values, never in behavior.
type Profile struct {
	Name           string  `json:"name" yaml:"name"`
	Multiplier     float64 `json:"multiplier" yaml:"multiplier"`             // current/mean volume ratio
	MinIncreasePct float64 `json:"min_increase_pct" yaml:"min_increase_pct"` // increase over mean, in percent
	Lookback       int     `json:"lookback" yaml:"lookback"`                 // baseline buckets, excluding the current one
}

var presets = map[string]Profile{
	"conservative": {Name: "conservative", Multiplier: 3.0, MinIncreasePct: 200, Lookback: 30},
	"balanced":     {Name: "balanced", Multiplier: 2.5, MinIncreasePct: 150, Lookback: 20},
	"aggressive":   {Name: "aggressive", Multiplier: 2.0, MinIncreasePct: 100, Lookback: 14},
}

// ProfileByName returns a preset profile
func ProfileByName(name string) (Profile, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Presets lists the preset profiles ordered from least to most sensitive
func Presets() []Profile {
	out := make([]Profile, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Multiplier > out[j].Multiplier })
	return out
}

// Validate checks the profile values are usable
func (p Profile) Validate() error {
	switch {
	case p.Multiplier <= 1:
		return fmt.Errorf("profile %q: multiplier must be > 1", p.Name)
	case p.MinIncreasePct <= 0:
		return fmt.Errorf("profile %q: min increase must be positive", p.Name)
	case p.Lookback < 2:
		return fmt.Errorf("profile %q: lookback must be at least 2", p.Name)
	}
	return nil
}
