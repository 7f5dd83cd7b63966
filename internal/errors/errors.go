package errors

import (
	stderrors "errors"
	"fmt"
)

// Stage identifies where in the pipeline an error originated.
type Stage int

const (
	// StageArticle - reading the article from the publishing store
	StageArticle Stage = iota
	// StageExtraction - the external entity extractor call
	StageExtraction
	// StageMerge - the graph store transaction
	StageMerge
	// StageQueue - queue bookkeeping itself
	StageQueue
)

// Error is a per-job pipeline failure. Every failure is caught at the
// dispatcher boundary and handed to the retry controller; timeouts carry
// no special retry semantics, only the Timeout flag for diagnostics.
type Error struct {
	Stage   Stage
	Timeout bool
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on stage, so callers can test errors.Is(err, &Error{Stage: StageMerge}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Stage == t.Stage
}

func stageString(s Stage) string {
	switch s {
	case StageArticle:
		return "article"
	case StageExtraction:
		return "extraction"
	case StageMerge:
		return "merge"
	case StageQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ArticleFailure wraps a failure to read the article content.
func ArticleFailure(err error) *Error {
	return &Error{Stage: StageArticle, Message: "article read failed", Cause: err}
}

// ExtractionFailure wraps a non-timeout extractor failure.
func ExtractionFailure(err error) *Error {
	return &Error{Stage: StageExtraction, Message: "entity extraction failed", Cause: err}
}

// ExtractionTimeout wraps an extractor deadline expiry.
func ExtractionTimeout(err error) *Error {
	return &Error{Stage: StageExtraction, Timeout: true, Message: "entity extraction timed out", Cause: err}
}

// MergeFailure wraps a graph transaction rejection or abort.
func MergeFailure(err error) *Error {
	return &Error{Stage: StageMerge, Message: "graph merge failed", Cause: err}
}

// MergeTimeout wraps a graph transaction deadline expiry.
func MergeTimeout(err error) *Error {
	return &Error{Stage: StageMerge, Timeout: true, Message: "graph merge timed out", Cause: err}
}

// QueueFailure wraps a queue bookkeeping failure.
func QueueFailure(err error) *Error {
	return &Error{Stage: StageQueue, Message: "queue operation failed", Cause: err}
}

// GetStage returns the pipeline stage of an error, or StageQueue for
// errors that did not originate in the pipeline.
func GetStage(err error) Stage {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stage
	}
	return StageQueue
}

// IsTimeout reports whether err is a deadline-expiry pipeline error.
func IsTimeout(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Timeout
	}
	return false
}

// StageName returns a log-friendly stage label for err.
func StageName(err error) string {
	return stageString(GetStage(err))
}
