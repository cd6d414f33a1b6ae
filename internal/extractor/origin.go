package extractor

import (
	"strings"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// producingCountries covers the origins that show up in practice; the
// fallback service handles anything rarer.
var producingCountries = []string{
	"Ethiopia", "Kenya", "Colombia", "Brazil", "Guatemala", "Honduras",
	"El Salvador", "Costa Rica", "Nicaragua", "Panama", "Peru", "Bolivia",
	"Ecuador", "Mexico", "Rwanda", "Burundi", "Uganda", "Tanzania",
	"Indonesia", "Vietnam", "India", "Yemen", "Papua New Guinea",
	"Democratic Republic of Congo", "China", "Thailand", "Myanmar",
}

// Origin extracts the producing country.
type Origin struct{}

// NewOrigin creates the origin extractor.
func NewOrigin() *Origin { return &Origin{} }

func (o *Origin) ID() string { return "origin" }

func (o *Origin) Reads() []string { return []string{"origin", "clean_text"} }

func (o *Origin) Extract(in Input) (model.FieldResult, error) {
	if raw := strings.TrimSpace(in.Get("origin")); raw != "" {
		for _, c := range producingCountries {
			if strings.EqualFold(raw, c) {
				return originResult(c, 0.95), nil
			}
		}
	}

	lower := strings.ToLower(in.Get("clean_text"))
	var found []string
	for _, c := range producingCountries {
		if strings.Contains(lower, strings.ToLower(c)) {
			found = append(found, c)
		}
	}

	switch len(found) {
	case 0:
		return model.Unknown("origin", model.SourceDeterministic, "no producing country mentioned"), nil
	case 1:
		return originResult(found[0], 0.85), nil
	default:
		// Blends legitimately mention several countries; without blend
		// detection this is ambiguous.
		res := originResult(found[0], 0.5)
		res.Warnings = append(res.Warnings,
			"multiple origins mentioned: "+strings.Join(found, ", "))
		return res, nil
	}
}

func originResult(country string, confidence float64) model.FieldResult {
	return model.FieldResult{
		Field:      "origin",
		Value:      country,
		Confidence: confidence,
		Source:     model.SourceDeterministic,
	}
}
