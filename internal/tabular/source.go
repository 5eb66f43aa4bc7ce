package tabular

import (
	"context"
	"time"
)

// Record is one row of a tabular relation with every value carried as text,
// the common denominator across the backends this service has run against
// (spreadsheet ranges, raw SQL joins, stored procedures). Missing values are
// the empty string, never a null marker.
type Record map[string]string

// Relation names understood by the concrete sources.
const (
	RelExperimenterLog   = "experimenter_log"
	RelMessageCandidates = "message_candidates"
	RelExperimentPrompts = "experiment_prompts"
)

// Source delivers the rows of a named relation. Implementations must
// preserve the row order produced by the underlying store's ORDER BY;
// display-order semantics live in the query, and nothing downstream
// re-sorts.
type Source interface {
	Fetch(ctx context.Context, relation string, params map[string]any) ([]Record, error)
}

// Get returns the named column, with the empty-string sentinel for columns
// the source never delivered.
func (r Record) Get(col string) string {
	return r[col]
}

// Time parses a column previously canonicalized by the normalizer. The zero
// time is returned for the empty sentinel.
func (r Record) Time(col string) time.Time {
	v := r[col]
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
