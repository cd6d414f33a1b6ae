package extractor

import (
	"regexp"
	"strings"

	"github.com/roastcraft/enrich-cli/internal/model"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize is the text-cleaning stage. It strips markup and collapses
// whitespace from the record's free-text fields into a single clean_text
// field that later parsing stages read. It is meant to run first in
// stage_order.
type Normalize struct{}

// NewNormalize creates the normalize stage.
func NewNormalize() *Normalize { return &Normalize{} }

func (n *Normalize) ID() string { return "normalize" }

func (n *Normalize) Reads() []string { return []string{"title", "description"} }

func (n *Normalize) Extract(in Input) (model.FieldResult, error) {
	parts := make([]string, 0, 2)
	for _, f := range n.Reads() {
		if v := strings.TrimSpace(in.Get(f)); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return model.Unknown("clean_text", model.SourceDeterministic, "no text fields present"), nil
	}

	text := strings.Join(parts, "\n")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return model.FieldResult{
		Field:      "clean_text",
		Value:      text,
		Confidence: 1.0,
		Source:     model.SourceDeterministic,
	}, nil
}
