// Package evaluator applies the per-field threshold policy to extraction
// results and decides whether a value is applied, escalated to fallback
// inference, or routed to human review.
package evaluator

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// DefaultGlobalThreshold is the threshold the config layer applies when
// pipeline.global_threshold is absent.
const DefaultGlobalThreshold = 0.7

// Config holds the threshold policy and adjustment rule set.
type Config struct {
	GlobalThreshold float64
	FieldThresholds map[string]float64
	Rules           []RuleSpec
}

// Evaluator is a pure decision component; it is safe for concurrent use.
type Evaluator struct {
	global          float64
	fieldThresholds map[string]float64
	rules           []Rule
}

// New builds an Evaluator, compiling the rule set. Rule or threshold
// misconfiguration is reported at startup. The global threshold is taken
// as configured; zero is a valid value that auto-applies every result.
// Defaulting for an absent key happens at the config layer.
func New(cfg Config) (*Evaluator, error) {
	global := cfg.GlobalThreshold
	if global < 0 || global > 1 {
		return nil, eris.Errorf("evaluator: global threshold %.2f outside [0,1]", global)
	}

	rules, err := BuildRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		global:          global,
		fieldThresholds: cfg.FieldThresholds,
		rules:           rules,
	}, nil
}

// Evaluate judges a field result against its resolved threshold. If
// evaluation itself fails (malformed per-field threshold, a rule panicking),
// the returned decision forces needs_review at confidence 0 and the error is
// returned for the caller to surface as a warning; evaluator failures must
// never silently auto-apply.
func (e *Evaluator) Evaluate(res model.FieldResult) (decision model.EvaluationDecision, err error) {
	decision = model.EvaluationDecision{
		Field:         res.Field,
		RawConfidence: res.Confidence,
	}

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("evaluator: panic evaluating %s: %v", res.Field, r)
		}
		if err != nil {
			decision.FinalConfidence = 0
			decision.Action = model.ActionNeedsReview
		}
	}()

	threshold, thErr := e.resolveThreshold(res.Field)
	if thErr != nil {
		decision.Threshold = e.global
		return decision, thErr
	}
	decision.Threshold = threshold

	final := model.ClampConfidence(res.Confidence)
	for _, rule := range e.rules {
		if !rule.Applies(res) {
			continue
		}
		final = model.ClampConfidence(rule.Adjust(final, res))
		decision.RulesApplied = append(decision.RulesApplied, rule.ID)
	}
	decision.FinalConfidence = final

	// Boundary is inclusive: confidence equal to the threshold auto-applies.
	switch {
	case final >= threshold:
		decision.Action = model.ActionAutoApply
	case res.Source == model.SourceDeterministic:
		decision.Action = model.ActionNeedsFallback
	default:
		// Fallback output is never re-escalated to fallback.
		decision.Action = model.ActionNeedsReview
	}
	return decision, nil
}

// Threshold returns the threshold that would be resolved for a field.
func (e *Evaluator) Threshold(field string) float64 {
	th, err := e.resolveThreshold(field)
	if err != nil {
		return e.global
	}
	return th
}

func (e *Evaluator) resolveThreshold(field string) (float64, error) {
	th, ok := e.fieldThresholds[field]
	if !ok {
		return e.global, nil
	}
	if math.IsNaN(th) || th < 0 || th > 1 {
		return 0, eris.Errorf("evaluator: threshold %v for field %q outside [0,1]", th, field)
	}
	return th, nil
}
