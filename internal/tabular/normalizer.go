package tabular

import (
	"fmt"
	"time"

	"github.com/tryexperimenter/experimenter-api/internal/textutil"
)

// ColumnKind selects the transform applied to a column during
// normalization.
type ColumnKind int

const (
	// KindRaw copies the value through untouched (ids, statuses, emails).
	KindRaw ColumnKind = iota
	// KindSmartText is free text shown to users; straight quotes become
	// typographic ones.
	KindSmartText
	// KindDatetime parses the value and canonicalizes it to RFC 3339.
	// An unparseable non-empty value is fatal for the request.
	KindDatetime
)

// ColumnSpec declares one column of a normalized relation: where it comes
// from, what it is called downstream, and how it is cleaned. The per-request
// pipelines each own a static []ColumnSpec table instead of generating
// rename/parse code on the fly.
type ColumnSpec struct {
	Source string
	Target string
	Kind   ColumnKind
}

// DataShapeError reports a row that does not match its declared shape,
// currently always a date that failed to parse. It is fatal for the single
// request it occurred in.
type DataShapeError struct {
	Column string
	Value  string
	Err    error
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("column %q: cannot normalize %q: %v", e.Column, e.Value, e.Err)
}

func (e *DataShapeError) Unwrap() error { return e.Err }

// Accepted inbound datetime layouts, most specific first. Sources deliver a
// mix of RFC 3339 (Postgres json), space-separated timestamps (psql text
// output) and bare dates (spreadsheet cells).
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDatetime parses a source datetime value in UTC.
func ParseDatetime(v string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", v)
}

// Normalize applies a column table to raw source records: renames columns,
// substitutes the empty-string sentinel for anything missing, prettifies
// free text and canonicalizes datetimes. Columns not named in the table are
// dropped. The input slice is not modified and row order is preserved.
func Normalize(records []Record, table []ColumnSpec) ([]Record, error) {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		norm := make(Record, len(table))
		for _, spec := range table {
			v := rec.Get(spec.Source)
			switch spec.Kind {
			case KindSmartText:
				v = textutil.SmartQuotes(v)
			case KindDatetime:
				if v != "" {
					t, err := ParseDatetime(v)
					if err != nil {
						return nil, &DataShapeError{Column: spec.Source, Value: v, Err: err}
					}
					v = t.UTC().Format(time.RFC3339Nano)
				}
			}
			norm[spec.Target] = v
		}
		out = append(out, norm)
	}
	return out, nil
}
