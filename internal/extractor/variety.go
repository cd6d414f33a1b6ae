package extractor

import (
	"strings"

	"github.com/roastcraft/enrich-cli/internal/model"
)

var knownVarieties = []string{
	"Gesha", "Geisha", "Bourbon", "Typica", "Caturra", "Catuai", "Pacamara",
	"Pacas", "Maragogipe", "SL28", "SL34", "Ruiru 11", "Batian", "Heirloom",
	"Castillo", "Pink Bourbon", "Yellow Bourbon", "Red Bourbon", "Mundo Novo",
	"Catimor", "Sarchimor", "Java", "Sidra", "Wush Wush", "74110", "74158",
}

// Variety extracts the coffee variety (cultivar). Listings often name more
// than one; all matches are kept in mention order.
type Variety struct{}

// NewVariety creates the variety extractor.
func NewVariety() *Variety { return &Variety{} }

func (v *Variety) ID() string { return "variety" }

func (v *Variety) Reads() []string { return []string{"variety", "clean_text"} }

func (v *Variety) Extract(in Input) (model.FieldResult, error) {
	text := in.First("variety", "clean_text")
	if text == "" {
		return model.Unknown("variety", model.SourceDeterministic, "no text to scan"), nil
	}

	lower := strings.ToLower(text)
	var found []string
	seen := make(map[string]bool)
	for _, kv := range knownVarieties {
		if strings.Contains(lower, strings.ToLower(kv)) {
			canon := canonicalVariety(kv)
			if !seen[canon] {
				seen[canon] = true
				found = append(found, canon)
			}
		}
	}

	if len(found) == 0 {
		return model.Unknown("variety", model.SourceDeterministic, "no known variety mentioned"), nil
	}

	confidence := 0.85
	if in.Get("variety") == "" {
		// Scanned out of free text rather than a dedicated field.
		confidence = 0.7
	}
	return model.FieldResult{
		Field:      "variety",
		Value:      found,
		Confidence: confidence,
		Source:     model.SourceDeterministic,
	}, nil
}

// canonicalVariety folds the Gesha/Geisha spelling split.
func canonicalVariety(v string) string {
	if v == "Geisha" {
		return "Gesha"
	}
	return v
}
