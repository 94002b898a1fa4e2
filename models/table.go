// Package models defines data structures for the converter.
package models

import "time"

// Table is a grid of cell text extracted from one HTML table. Header holds
// the first row; Rows holds every subsequent row in document order.
type Table struct {
	Header []string
	Rows   [][]string
}

// Width returns the number of columns.
func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.Header)
}

// Records returns the header followed by the data rows, ready for a CSV writer.
func (t *Table) Records() [][]string {
	if t == nil {
		return nil
	}
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	out = append(out, t.Rows...)
	return out
}

// Outcome is the terminal state of a conversion.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNoTables
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoTables:
		return "no_tables"
	default:
		return "error"
	}
}

// ConversionResult holds the overall result of a conversion.
type ConversionResult struct {
	Outcome     Outcome
	Input       string
	Output      string
	TablesFound int
	RowsWritten int
	StartTime   time.Time
	EndTime     time.Time
}

// Duration returns how long the conversion took.
func (r *ConversionResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
