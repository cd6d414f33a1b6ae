package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// weightRe matches a quantity with a mass unit, e.g. "250g", "12 oz",
// "1.5 lb", "0.5 kg".
var weightRe = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*(kg|kilograms?|g|grams?|oz|ounces?|lbs?|pounds?)\b`)

// gramsPerUnit converts matched units to grams.
var gramsPerUnit = map[string]float64{
	"g": 1, "gram": 1, "grams": 1,
	"kg": 1000, "kilogram": 1000, "kilograms": 1000,
	"oz": 28.3495, "ounce": 28.3495, "ounces": 28.3495,
	"lb": 453.592, "lbs": 453.592, "pound": 453.592, "pounds": 453.592,
}

// Weight extracts the package weight in grams. A dedicated weight field is
// trusted more than a match buried in free text; multiple disagreeing
// matches lower confidence and leave a warning for the evaluator to act on.
type Weight struct{}

// NewWeight creates the weight extractor.
func NewWeight() *Weight { return &Weight{} }

func (w *Weight) ID() string { return "weight" }

func (w *Weight) Reads() []string { return []string{"weight", "clean_text"} }

func (w *Weight) Extract(in Input) (model.FieldResult, error) {
	if raw := strings.TrimSpace(in.Get("weight")); raw != "" {
		grams, ok := parseWeight(raw)
		if ok {
			return model.FieldResult{
				Field:      "weight",
				Value:      grams,
				Confidence: 0.95,
				Source:     model.SourceDeterministic,
			}, nil
		}
		// A weight field that does not parse is suspicious enough to warn
		// about, but free text may still carry the answer.
	}

	matches := weightRe.FindAllStringSubmatch(in.Get("clean_text"), -1)
	if len(matches) == 0 {
		return model.Unknown("weight", model.SourceDeterministic, "no weight pattern matched"), nil
	}

	grams := make([]float64, 0, len(matches))
	for _, m := range matches {
		if g, ok := toGrams(m[1], m[2]); ok {
			grams = append(grams, g)
		}
	}
	if len(grams) == 0 {
		return model.Unknown("weight", model.SourceDeterministic, "weight pattern did not parse"), nil
	}

	res := model.FieldResult{
		Field:      "weight",
		Value:      grams[0],
		Confidence: 0.8,
		Source:     model.SourceDeterministic,
	}
	for _, g := range grams[1:] {
		if g != grams[0] {
			res.Confidence = 0.55
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("conflicting weight matches: %.0fg vs %.0fg", grams[0], g))
			break
		}
	}
	return res, nil
}

// parseWeight parses a standalone weight value like "250g" or "250".
// A bare number is assumed to be grams.
func parseWeight(raw string) (float64, bool) {
	if m := weightRe.FindStringSubmatch(raw); m != nil {
		return toGrams(m[1], m[2])
	}
	if n, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}

func toGrams(num, unit string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	mul, ok := gramsPerUnit[strings.ToLower(unit)]
	if !ok {
		return 0, false
	}
	return n * mul, true
}
