package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roastcraft/enrich-cli/internal/model"
)

func newEvaluator(t *testing.T, cfg Config) *Evaluator {
	t.Helper()
	ev, err := New(cfg)
	require.NoError(t, err)
	return ev
}

func detResult(field string, confidence float64) model.FieldResult {
	return model.FieldResult{
		Field:      field,
		Value:      "something",
		Confidence: confidence,
		Source:     model.SourceDeterministic,
	}
}

func TestEvaluate_ThresholdBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{GlobalThreshold: 0.7})

	dec, err := ev.Evaluate(detResult("weight", 0.7))
	require.NoError(t, err)
	assert.Equal(t, model.ActionAutoApply, dec.Action)
	assert.Equal(t, 0.7, dec.Threshold)
}

func TestEvaluate_ZeroThresholdAutoAppliesEverything(t *testing.T) {
	t.Parallel()

	// An explicit zero is honored, not replaced with the default.
	ev := newEvaluator(t, Config{GlobalThreshold: 0})

	dec, err := ev.Evaluate(detResult("weight", 0))
	require.NoError(t, err)
	assert.Equal(t, model.ActionAutoApply, dec.Action)
	assert.Equal(t, 0.0, dec.Threshold)
}

func TestEvaluate_DeterministicBelowThreshold_NeedsFallback(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{GlobalThreshold: 0.7})

	dec, err := ev.Evaluate(detResult("weight", 0.65))
	require.NoError(t, err)
	assert.Equal(t, model.ActionNeedsFallback, dec.Action)
	assert.Equal(t, 0.65, dec.RawConfidence)
	assert.Equal(t, 0.65, dec.FinalConfidence)
}

func TestEvaluate_FallbackBelowThreshold_NeedsReview(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{GlobalThreshold: 0.7})

	dec, err := ev.Evaluate(model.FieldResult{
		Field:      "variety",
		Value:      "Gesha",
		Confidence: 0.4,
		Source:     model.SourceFallback,
	})
	require.NoError(t, err)
	// Fallback output is never escalated to fallback again.
	assert.Equal(t, model.ActionNeedsReview, dec.Action)
}

func TestEvaluate_FieldThresholdOverride(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{
		GlobalThreshold: 0.7,
		FieldThresholds: map[string]float64{"origin": 0.9},
	})

	dec, err := ev.Evaluate(detResult("origin", 0.85))
	require.NoError(t, err)
	assert.Equal(t, 0.9, dec.Threshold)
	assert.Equal(t, model.ActionNeedsFallback, dec.Action)

	dec, err = ev.Evaluate(detResult("weight", 0.85))
	require.NoError(t, err)
	assert.Equal(t, 0.7, dec.Threshold)
	assert.Equal(t, model.ActionAutoApply, dec.Action)
}

func TestEvaluate_WarningPenaltyRule(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{
		GlobalThreshold: 0.7,
		Rules:           []RuleSpec{{ID: "warn", Kind: "warning_penalty", Amount: 0.2}},
	})

	res := detResult("weight", 0.8)
	res.Warnings = []string{"conflicting weight matches"}

	dec, err := ev.Evaluate(res)
	require.NoError(t, err)
	assert.Equal(t, 0.8, dec.RawConfidence)
	assert.InDelta(t, 0.6, dec.FinalConfidence, 1e-9)
	assert.Equal(t, []string{"warn"}, dec.RulesApplied)
	assert.Equal(t, model.ActionNeedsFallback, dec.Action)
}

func TestEvaluate_EmptyValueFloorRule(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{
		GlobalThreshold: 0.7,
		Rules:           DefaultRuleSpecs(),
	})

	res := model.FieldResult{Field: "roast_level", Value: nil, Confidence: 0.9, Source: model.SourceDeterministic}
	dec, err := ev.Evaluate(res)
	require.NoError(t, err)
	assert.Zero(t, dec.FinalConfidence)
	assert.Contains(t, dec.RulesApplied, "empty_value_floor")
	assert.Equal(t, model.ActionNeedsFallback, dec.Action)
}

func TestEvaluate_CorroborationBoost(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{
		GlobalThreshold: 0.9,
		Rules:           []RuleSpec{{ID: "boost", Kind: "corroboration_boost", Pivot: 0.85, Amount: 0.05}},
	})

	dec, err := ev.Evaluate(detResult("origin", 0.86))
	require.NoError(t, err)
	assert.InDelta(t, 0.91, dec.FinalConfidence, 1e-9)
	assert.Equal(t, model.ActionAutoApply, dec.Action)
}

func TestEvaluate_MalformedFieldThreshold_ForcesReview(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{
		GlobalThreshold: 0.7,
		FieldThresholds: map[string]float64{"weight": 1.5},
	})

	dec, err := ev.Evaluate(detResult("weight", 0.99))
	require.Error(t, err)
	assert.Equal(t, model.ActionNeedsReview, dec.Action)
	assert.Zero(t, dec.FinalConfidence)
}

func TestEvaluate_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	ev := newEvaluator(t, Config{GlobalThreshold: 0.7})

	dec, err := ev.Evaluate(detResult("weight", 1.7))
	require.NoError(t, err)
	assert.Equal(t, 1.0, dec.FinalConfidence)
	assert.Equal(t, model.ActionAutoApply, dec.Action)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{GlobalThreshold: 2})
	assert.Error(t, err)

	_, err = New(Config{Rules: []RuleSpec{{ID: "x", Kind: "mystery"}}})
	assert.Error(t, err)

	_, err = New(Config{Rules: []RuleSpec{{Kind: "warning_penalty"}}})
	assert.Error(t, err)
}

func TestBuildRules_Defaults(t *testing.T) {
	t.Parallel()

	rules, err := BuildRules(DefaultRuleSpecs())
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}
