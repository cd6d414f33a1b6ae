package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roastcraft/enrich-cli/internal/model"
)

func input(fields map[string]string) Input {
	return Input{Fields: fields}
}

func TestRegistry_ResolveAndLookup(t *testing.T) {
	t.Parallel()

	r := Default()
	assert.NotNil(t, r.Get("weight"))
	assert.Nil(t, r.Get("nope"))

	stages, err := r.Resolve([]string{"normalize", "weight", "origin"})
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, "normalize", stages[0].ID())

	_, err = r.Resolve([]string{"normalize", "missing"})
	assert.Error(t, err)
}

func TestRegistry_DuplicateID(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(NewWeight(), NewWeight())
	assert.Error(t, err)
}

func TestNormalize_StripsMarkupAndWhitespace(t *testing.T) {
	t.Parallel()

	n := NewNormalize()
	res, err := n.Extract(input(map[string]string{
		"title":       "Ethiopia   Guji",
		"description": "<p>Washed   process,\n\nfloral &amp; bright</p>",
	}))
	require.NoError(t, err)
	assert.Equal(t, "clean_text", res.Field)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, "Ethiopia Guji Washed process, floral &amp; bright", res.Value)
}

func TestNormalize_NoText(t *testing.T) {
	t.Parallel()

	res, err := NewNormalize().Extract(input(map[string]string{}))
	require.NoError(t, err)
	assert.Zero(t, res.Confidence)
	assert.Nil(t, res.Value)
}

func TestWeight_ExplicitField(t *testing.T) {
	t.Parallel()

	res, err := NewWeight().Extract(input(map[string]string{"weight": "250g"}))
	require.NoError(t, err)
	assert.Equal(t, 250.0, res.Value)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestWeight_FromText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		grams float64
	}{
		{"grams", "whole bean, 250g bag", 250},
		{"kilograms", "bulk 1 kg option", 1000},
		{"ounces", "12 oz resealable bag", 12 * 28.3495},
		{"pounds", "5 lb wholesale", 5 * 453.592},
		{"decimal comma", "0,5 kg", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewWeight().Extract(input(map[string]string{"clean_text": tt.text}))
			require.NoError(t, err)
			assert.InDelta(t, tt.grams, res.Value.(float64), 0.01)
			assert.Equal(t, 0.8, res.Confidence)
		})
	}
}

func TestWeight_ConflictingMatchesLowerConfidence(t *testing.T) {
	t.Parallel()

	res, err := NewWeight().Extract(input(map[string]string{
		"clean_text": "available as 250g or 1 kg bags",
	}))
	require.NoError(t, err)
	assert.Equal(t, 0.55, res.Confidence)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "conflicting weight")
}

func TestWeight_NoMatchIsUnknown(t *testing.T) {
	t.Parallel()

	res, err := NewWeight().Extract(input(map[string]string{"clean_text": "a lovely coffee"}))
	require.NoError(t, err)
	assert.Zero(t, res.Confidence)
	assert.Nil(t, res.Value)
	assert.Equal(t, model.SourceDeterministic, res.Source)
	assert.NotEmpty(t, res.Warnings)
}

func TestRoast_Extraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    map[string]string
		value any
		conf  float64
	}{
		{"explicit field", map[string]string{"roast_level": "Medium"}, "medium", 0.95},
		{"phrase in text", map[string]string{"clean_text": "a classic light roast"}, "light", 0.85},
		{"hyphen variant", map[string]string{"roast_level": "medium-dark"}, "medium-dark", 0.95},
		{"weak mention", map[string]string{"clean_text": "we roast this dark and sweet"}, "dark", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewRoast().Extract(input(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.value, res.Value)
			assert.Equal(t, tt.conf, res.Confidence)
		})
	}
}

func TestRoast_NoMention(t *testing.T) {
	t.Parallel()

	res, err := NewRoast().Extract(input(map[string]string{"clean_text": "fruity and clean"}))
	require.NoError(t, err)
	assert.Zero(t, res.Confidence)
}

func TestOrigin_SingleCountry(t *testing.T) {
	t.Parallel()

	res, err := NewOrigin().Extract(input(map[string]string{
		"clean_text": "grown in the highlands of Ethiopia",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Ethiopia", res.Value)
	assert.Equal(t, 0.85, res.Confidence)
}

func TestOrigin_MultipleCountriesAmbiguous(t *testing.T) {
	t.Parallel()

	res, err := NewOrigin().Extract(input(map[string]string{
		"clean_text": "a blend of Brazil and Colombia lots",
	}))
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Confidence)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "multiple origins")
}

func TestVariety_CanonicalizesGesha(t *testing.T) {
	t.Parallel()

	res, err := NewVariety().Extract(input(map[string]string{
		"clean_text": "a stunning Geisha lot",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Gesha"}, res.Value)
	assert.Equal(t, 0.7, res.Confidence)
}

func TestVariety_DedicatedFieldHigherConfidence(t *testing.T) {
	t.Parallel()

	res, err := NewVariety().Extract(input(map[string]string{
		"variety": "SL28, SL34",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"SL28", "SL34"}, res.Value)
	assert.Equal(t, 0.85, res.Confidence)
}

func TestProcess_Extraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    map[string]string
		value any
		conf  float64
	}{
		{"explicit field", map[string]string{"process": "washed"}, "washed", 0.95},
		{"specific first", map[string]string{"clean_text": "black honey process lot"}, "black honey", 0.8},
		{"weak natural mention", map[string]string{"clean_text": "natural sweetness throughout"}, "natural", 0.5},
		{"strong natural mention", map[string]string{"clean_text": "natural process from Sidama"}, "natural", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewProcess().Extract(input(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.value, res.Value)
			assert.Equal(t, tt.conf, res.Confidence)
		})
	}
}
