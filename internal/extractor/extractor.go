// Package extractor defines the deterministic field extraction capability
// and the registry the orchestrator dispatches through. Extractors are pure,
// CPU-bound, and never call out to the network.
package extractor

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// Input is the view of a record an extractor sees: the raw fields overlaid
// with string renderings of values produced by earlier stages. Stage order
// is caller-controlled precisely so that a cleaning stage can feed later
// parsers.
type Input struct {
	Fields map[string]string
}

// Get returns the named field, or "" if absent.
func (in Input) Get(name string) string {
	return in.Fields[name]
}

// First returns the first non-empty value among names.
func (in Input) First(names ...string) string {
	for _, n := range names {
		if v := in.Fields[n]; v != "" {
			return v
		}
	}
	return ""
}

// Extractor is a single deterministic field extractor. A failed match is
// reported as a confidence-0 result, not an error; Extract errors are
// reserved for real faults and are classified by the configured error policy.
type Extractor interface {
	// ID is the stable identifier referenced by pipeline.stage_order.
	ID() string
	// Reads lists the input fields this extractor consumes.
	Reads() []string
	// Extract produces the result for this extractor's target field.
	Extract(in Input) (model.FieldResult, error)
}

// Error is a classified extraction failure. Kind keys into the configured
// error policy to decide whether the failure is recoverable or fatal.
type Error struct {
	Kind string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as an extraction failure of the given kind.
func NewError(kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Registry is a lookup of extractors keyed by identifier.
type Registry struct {
	byID map[string]Extractor
}

// NewRegistry creates a registry from the given extractors. Duplicate ids
// are a programming error.
func NewRegistry(extractors ...Extractor) (*Registry, error) {
	r := &Registry{byID: make(map[string]Extractor, len(extractors))}
	for _, ex := range extractors {
		if _, dup := r.byID[ex.ID()]; dup {
			return nil, eris.Errorf("extractor: duplicate id %q", ex.ID())
		}
		r.byID[ex.ID()] = ex
	}
	return r, nil
}

// Get returns the extractor for id, or nil.
func (r *Registry) Get(id string) Extractor {
	return r.byID[id]
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve maps a stage order to extractors, failing on unknown ids so
// misconfiguration is caught at startup rather than mid-run.
func (r *Registry) Resolve(stageOrder []string) ([]Extractor, error) {
	out := make([]Extractor, 0, len(stageOrder))
	for _, id := range stageOrder {
		ex := r.byID[id]
		if ex == nil {
			return nil, eris.Errorf("extractor: unknown stage %q", id)
		}
		out = append(out, ex)
	}
	return out, nil
}

// Default returns the registry of built-in extractors.
func Default() *Registry {
	r, err := NewRegistry(
		NewNormalize(),
		NewWeight(),
		NewRoast(),
		NewOrigin(),
		NewVariety(),
		NewProcess(),
	)
	if err != nil {
		// Built-in ids are unique by construction.
		panic(err)
	}
	return r
}
