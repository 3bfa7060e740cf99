// Package source defines the structured-data source record store: the
// collection the structured-data executor queries. Query specifications are
// produced by the completion service and validated here before execution.
package source

import (
	"context"

	"github.com/procagent/procagent/pkg/errors"
)

// Operation is the kind of a query specification.
type Operation string

const (
	// OpRetrieve returns matching records.
	OpRetrieve Operation = "retrieve"

	// OpAggregate runs a transform pipeline over the records.
	OpAggregate Operation = "aggregate"

	// OpCount returns only the number of matching records.
	OpCount Operation = "count"
)

// Record is a single source document.
type Record map[string]interface{}

// QuerySpec is a validated, executable query against the source store.
type QuerySpec struct {
	// Operation is the query kind
	Operation Operation `json:"operation"`

	// Filter is the predicate for retrieve/count operations and is also
	// honored before any pipeline runs
	Filter map[string]interface{} `json:"filter,omitempty"`

	// Pipeline is the transform stage list for aggregate operations
	Pipeline []map[string]interface{} `json:"pipeline,omitempty"`

	// Sort maps field names to direction (1 ascending, -1 descending)
	Sort map[string]int `json:"sort,omitempty"`

	// Limit caps the number of returned rows; zero means unbounded
	Limit int `json:"limit,omitempty"`
}

// Validate rejects malformed specs. Unknown operation kinds are rejected so
// that a bad translation surfaces as a failure rather than a guess.
func (s QuerySpec) Validate() error {
	switch s.Operation {
	case OpRetrieve, OpAggregate:
		// valid
	case OpCount:
		if s.Limit != 0 {
			return errors.Wrap(errors.ErrInvalidInput, "count operation must not carry a row cap")
		}
	case "":
		return errors.Wrap(errors.ErrInvalidInput, "missing operation")
	default:
		return errors.Wrap(errors.ErrInvalidInput, "unknown operation %q", s.Operation)
	}

	if s.Operation == OpAggregate && len(s.Pipeline) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "aggregate operation requires a pipeline")
	}

	return nil
}

// WithLimit returns a copy of the spec with the given row cap.
func (s QuerySpec) WithLimit(limit int) QuerySpec {
	out := s
	out.Limit = limit
	return out
}

// CountSpec returns the count-only variant of the spec's predicate. An
// aggregate's predicate lives in its leading $match stage when no top-level
// filter is present.
func (s QuerySpec) CountSpec() QuerySpec {
	out := QuerySpec{Operation: OpCount, Filter: s.Filter}
	if len(out.Filter) == 0 && len(s.Pipeline) > 0 {
		if match, ok := s.Pipeline[0]["$match"].(map[string]interface{}); ok {
			out.Filter = match
		}
	}
	return out
}

// Store is the interface to the source record collection.
type Store interface {
	// Execute runs a retrieve or aggregate spec and returns the rows.
	Execute(ctx context.Context, spec QuerySpec) ([]Record, error)

	// Count returns the authoritative number of rows the spec's predicate
	// matches, ignoring any row cap.
	Count(ctx context.Context, spec QuerySpec) (int, error)

	// Close releases resources associated with the store.
	Close() error
}
