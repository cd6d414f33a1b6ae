package extractor

import (
	"strings"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// processMethods ordered most specific first.
var processMethods = []string{
	"anaerobic natural", "anaerobic washed", "carbonic maceration",
	"black honey", "red honey", "yellow honey", "white honey",
	"wet-hulled", "wet hulled", "double fermented",
	"washed", "natural", "honey",
}

var canonicalProcess = map[string]string{
	"wet hulled": "wet-hulled",
}

// Process extracts the processing method.
type Process struct{}

// NewProcess creates the processing method extractor.
func NewProcess() *Process { return &Process{} }

func (p *Process) ID() string { return "process" }

func (p *Process) Reads() []string { return []string{"process", "clean_text"} }

func (p *Process) Extract(in Input) (model.FieldResult, error) {
	if raw := strings.ToLower(strings.TrimSpace(in.Get("process"))); raw != "" {
		for _, m := range processMethods {
			if raw == m {
				return processResult(m, 0.95), nil
			}
		}
	}

	lower := strings.ToLower(in.Get("clean_text"))
	for _, m := range processMethods {
		if strings.Contains(lower, m) {
			conf := 0.8
			// "natural" and "honey" are everyday words; a bare mention in
			// prose is weak evidence without the word "process" nearby.
			if (m == "natural" || m == "honey") && !strings.Contains(lower, "process") {
				conf = 0.5
			}
			return processResult(m, conf), nil
		}
	}
	return model.Unknown("process", model.SourceDeterministic, "no processing method mentioned"), nil
}

func processResult(method string, confidence float64) model.FieldResult {
	if c, ok := canonicalProcess[method]; ok {
		method = c
	}
	return model.FieldResult{
		Field:      "process",
		Value:      method,
		Confidence: confidence,
		Source:     model.SourceDeterministic,
	}
}
