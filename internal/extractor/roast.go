package extractor

import (
	"strings"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// roastLevels is ordered from most to least specific so "medium-dark"
// matches before "medium" and "dark".
var roastLevels = []string{
	"medium-light", "medium light",
	"medium-dark", "medium dark",
	"light", "medium", "dark",
	"espresso", "filter", "omni",
}

// canonicalRoast collapses spelling variants.
var canonicalRoast = map[string]string{
	"medium light": "medium-light",
	"medium dark":  "medium-dark",
}

// Roast extracts the roast level classification.
type Roast struct{}

// NewRoast creates the roast level extractor.
func NewRoast() *Roast { return &Roast{} }

func (r *Roast) ID() string { return "roast" }

func (r *Roast) Reads() []string { return []string{"roast_level", "clean_text"} }

func (r *Roast) Extract(in Input) (model.FieldResult, error) {
	if raw := strings.ToLower(strings.TrimSpace(in.Get("roast_level"))); raw != "" {
		for _, lvl := range roastLevels {
			if raw == lvl {
				return roastResult(lvl, 0.95), nil
			}
		}
		// Unrecognized explicit value: fall through to text, but remember it.
		if res, ok := scanRoast(in.Get("clean_text")); ok {
			res.Warnings = append(res.Warnings, "roast_level field value not recognized: "+raw)
			res.Confidence = model.ClampConfidence(res.Confidence - 0.1)
			return res, nil
		}
		return model.Unknown("roast_level", model.SourceDeterministic,
			"roast_level field value not recognized: "+raw), nil
	}

	if res, ok := scanRoast(in.Get("clean_text")); ok {
		return res, nil
	}
	return model.Unknown("roast_level", model.SourceDeterministic, "no roast level mentioned"), nil
}

func scanRoast(text string) (model.FieldResult, bool) {
	lower := strings.ToLower(text)
	for _, lvl := range roastLevels {
		if strings.Contains(lower, lvl+" roast") || strings.Contains(lower, "roast: "+lvl) ||
			strings.Contains(lower, "roasted "+lvl) || strings.Contains(lower, lvl+" roasted") {
			return roastResult(lvl, 0.85), true
		}
	}
	// A bare mention without the word "roast" nearby is weaker evidence.
	for _, lvl := range roastLevels {
		if strings.Contains(lower, lvl) && strings.Contains(lower, "roast") {
			return roastResult(lvl, 0.6), true
		}
	}
	return model.FieldResult{}, false
}

func roastResult(level string, confidence float64) model.FieldResult {
	if c, ok := canonicalRoast[level]; ok {
		level = c
	}
	return model.FieldResult{
		Field:      "roast_level",
		Value:      level,
		Confidence: confidence,
		Source:     model.SourceDeterministic,
	}
}
