package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/company-aggregator/internal/model"
)

// ErrorKind names the stage family a run failed in.
type ErrorKind string

const (
	KindResolution     ErrorKind = "ResolutionError"
	KindExtraction     ErrorKind = "ExtractionError"
	KindMerge          ErrorKind = "MergeError"
	KindClassification ErrorKind = "ClassificationError"
)

// Error is the single failure type surfaced by Invoke. It records the
// stage that was about to be reached when the run failed.
type Error struct {
	Kind  ErrorKind
	Stage model.Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func resolutionError(err error) *Error {
	return &Error{Kind: KindResolution, Stage: model.StageNameResolved, Err: err}
}

func extractionError(err error) *Error {
	return &Error{Kind: KindExtraction, Stage: model.StageFactsGathered, Err: err}
}

func mergeError(err error) *Error {
	return &Error{Kind: KindMerge, Stage: model.StageMerged, Err: err}
}

func classificationError(err error) *Error {
	return &Error{Kind: KindClassification, Stage: model.StageClassified, Err: err}
}
