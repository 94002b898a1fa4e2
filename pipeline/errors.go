package pipeline

import (
	"fmt"

	"github.com/aluiziolira/htmltable2csv/source"
)

// Stage names the step of a conversion that failed.
type Stage string

const (
	StageLoad  Stage = "load"
	StageParse Stage = "parse"
	StageWrite Stage = "write"
)

// ConversionError is the single error kind returned by Convert.
type ConversionError struct {
	Stage Stage
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Errorf("%s: %w", e.Stage, e.Err).Error()
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Label returns a metric label for the failure.
func (e *ConversionError) Label() string {
	if e.Stage == StageLoad {
		return source.ErrorTypeLabel(e.Err)
	}
	return string(e.Stage)
}
