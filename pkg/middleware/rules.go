package middleware

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/axle/pkg/plans"
)

// Limit is a request allowance: a sustained per-minute rate plus a burst
// cushion on top of it.
type Limit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// capacity is the most tokens a bucket under this limit can hold.
func (l Limit) capacity() int {
	return l.RequestsPerMinute + l.Burst
}

// Rules maps plan tiers to limits. Default applies to anonymous callers
// and to any plan without an explicit entry.
type Rules struct {
	Default Limit
	Plans   map[plans.Plan]Limit
}

// LimitFor returns the limit tier for a plan.
func (r Rules) LimitFor(p plans.Plan) Limit {
	if limit, ok := r.Plans[p]; ok {
		return limit
	}
	return r.Default
}

// DefaultRules returns the built-in plan tiers over the given base limit.
// The base covers anonymous callers and unrecognized plans.
func DefaultRules(base Limit) Rules {
	return Rules{
		Default: base,
		Plans: map[plans.Plan]Limit{
			plans.PlanStarter:    {RequestsPerMinute: 300, Burst: 60},
			plans.PlanGrowth:     {RequestsPerMinute: 1200, Burst: 240},
			plans.PlanEnterprise: {RequestsPerMinute: 6000, Burst: 1200},
		},
	}
}

// rulesFile is the YAML shape of the overrides file:
//
//	default:
//	  requests_per_minute: 120
//	  burst: 60
//	plans:
//	  enterprise:
//	    requests_per_minute: 10000
//	    burst: 2000
type rulesFile struct {
	Default *Limit           `yaml:"default"`
	Plans   map[string]Limit `yaml:"plans"`
}

// LoadRules reads per-plan overrides from a YAML file and merges them over
// the built-in tiers. An empty path returns the defaults unchanged. Pair
// with WatchRules to pick up edits without a restart.
func LoadRules(path string, base Limit) (Rules, error) {
	rules := DefaultRules(base)
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rate limit rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rate limit rules: %w", err)
	}

	if file.Default != nil {
		rules.Default = *file.Default
	}
	for name, limit := range file.Plans {
		plan := plans.Plan(name)
		if !plans.IsValid(plan) {
			return Rules{}, fmt.Errorf("rate limit rules reference unknown plan %q", name)
		}
		rules.Plans[plan] = limit
	}

	if err := rules.validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) validate() error {
	if err := r.Default.validate(); err != nil {
		return fmt.Errorf("default rate limit: %w", err)
	}
	for plan, limit := range r.Plans {
		if err := limit.validate(); err != nil {
			return fmt.Errorf("rate limit for plan %s: %w", plan, err)
		}
	}
	return nil
}

func (l Limit) validate() error {
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive")
	}
	if l.Burst < 0 {
		return fmt.Errorf("burst must not be negative")
	}
	return nil
}
