package evaluator

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// RuleSpec is the YAML form of a confidence adjustment rule. Rules are pure
// transforms that may only push confidence toward the extremes; they carry
// no business logic of their own.
type RuleSpec struct {
	ID     string  `yaml:"id"`
	Kind   string  `yaml:"kind"`
	Amount float64 `yaml:"amount,omitempty"`
	Pivot  float64 `yaml:"pivot,omitempty"`
}

// Rule is a compiled adjustment rule.
type Rule struct {
	ID      string
	Applies func(model.FieldResult) bool
	Adjust  func(confidence float64, res model.FieldResult) float64
}

// BuildRules compiles rule specs. Unknown kinds are a configuration error.
func BuildRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		r, err := buildRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func buildRule(s RuleSpec) (Rule, error) {
	if s.ID == "" {
		return Rule{}, eris.New("evaluator: rule without id")
	}
	switch s.Kind {
	case "warning_penalty":
		// Conflicting signals leave warnings on the result; each one
		// pushes confidence down.
		amount := s.Amount
		if amount <= 0 {
			amount = 0.1
		}
		return Rule{
			ID:      s.ID,
			Applies: func(res model.FieldResult) bool { return len(res.Warnings) > 0 },
			Adjust: func(c float64, res model.FieldResult) float64 {
				return c - amount*float64(len(res.Warnings))
			},
		}, nil
	case "empty_value_floor":
		// A result without a value can never be confident.
		return Rule{
			ID:      s.ID,
			Applies: func(res model.FieldResult) bool { return res.Value == nil },
			Adjust:  func(float64, model.FieldResult) float64 { return 0 },
		}, nil
	case "corroboration_boost":
		// A clean result already above the pivot gets pushed further up.
		pivot := s.Pivot
		if pivot <= 0 {
			pivot = 0.8
		}
		amount := s.Amount
		if amount <= 0 {
			amount = 0.05
		}
		return Rule{
			ID: s.ID,
			Applies: func(res model.FieldResult) bool {
				return len(res.Warnings) == 0 && res.Confidence >= pivot
			},
			Adjust: func(c float64, _ model.FieldResult) float64 { return c + amount },
		}, nil
	default:
		return Rule{}, eris.Errorf("evaluator: unknown rule kind %q for %s", s.Kind, s.ID)
	}
}

// LoadRules reads rule specs from a YAML file. The file has a top-level
// "rules" key.
func LoadRules(path string) ([]RuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "evaluator: read rules %s", path)
	}

	var wrapper struct {
		Rules []RuleSpec `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "evaluator: parse rules")
	}
	return wrapper.Rules, nil
}

// DefaultRuleSpecs returns the stock rule set used when no rules file is
// configured.
func DefaultRuleSpecs() []RuleSpec {
	return []RuleSpec{
		{ID: "warning_penalty", Kind: "warning_penalty", Amount: 0.1},
		{ID: "empty_value_floor", Kind: "empty_value_floor"},
	}
}
