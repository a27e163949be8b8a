// Package config provides configuration loading utilities.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InterviewPolicy holds the tunable interview rules loaded from YAML.
// Everything the orchestrator treats as "fixed" in one deployment lives
// here so audits can review the rules without reading code.
type InterviewPolicy struct {
	// MinQuestions/MaxQuestions bound the generated plan.
	MinQuestions int `yaml:"min_questions"`
	MaxQuestions int `yaml:"max_questions"`
	// FollowUpThreshold: a follow-up is issued when the turn mean is
	// strictly below this value and none was issued yet.
	FollowUpThreshold float64 `yaml:"follow_up_threshold"`
	// FollowUpWeight scales follow-up turns in report aggregation.
	// 1.0 treats both turns as independently scored equals.
	FollowUpWeight float64 `yaml:"follow_up_weight"`
	// EvidenceRetryBudget bounds score-answer re-queries after an
	// evidence rejection before the unverifiable sentinel is stored.
	EvidenceRetryBudget int `yaml:"evidence_retry_budget"`
	// Recommendation bands over the overall mean: >= HireBand is a hire,
	// >= ConsiderBand a consider, anything lower a reject.
	HireBand     float64 `yaml:"hire_band"`
	ConsiderBand float64 `yaml:"consider_band"`
}

// DefaultPolicy returns the built-in interview policy.
func DefaultPolicy() InterviewPolicy {
	return InterviewPolicy{
		MinQuestions:        6,
		MaxQuestions:        8,
		FollowUpThreshold:   3.0,
		FollowUpWeight:      1.0,
		EvidenceRetryBudget: 2,
		HireBand:            4.0,
		ConsiderBand:        2.75,
	}
}

// LoadPolicy reads the interview policy from path, falling back to the
// defaults when the file is absent. A malformed file is an error; silently
// interviewing under the wrong rules is worse than failing startup.
func LoadPolicy(path string) (InterviewPolicy, error) {
	p := DefaultPolicy()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return InterviewPolicy{}, fmt.Errorf("op=config.LoadPolicy: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return InterviewPolicy{}, fmt.Errorf("op=config.LoadPolicy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return InterviewPolicy{}, err
	}
	return p, nil
}

// Validate rejects policies that cannot drive a coherent interview.
func (p InterviewPolicy) Validate() error {
	if p.MinQuestions < 2 || p.MaxQuestions < p.MinQuestions {
		return fmt.Errorf("op=config.LoadPolicy: invalid question window [%d,%d]", p.MinQuestions, p.MaxQuestions)
	}
	if p.FollowUpThreshold < 0 || p.FollowUpThreshold > 5 {
		return fmt.Errorf("op=config.LoadPolicy: follow_up_threshold %v out of [0,5]", p.FollowUpThreshold)
	}
	if p.FollowUpWeight < 0 {
		return fmt.Errorf("op=config.LoadPolicy: follow_up_weight must be non-negative")
	}
	if p.ConsiderBand > p.HireBand {
		return fmt.Errorf("op=config.LoadPolicy: consider_band above hire_band")
	}
	return nil
}
