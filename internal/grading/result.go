package grading

import (
	"context"
	"time"

	"github.com/tagrade/tagrade/internal/roster"
)

// Status is the outcome of one fetch attempt.
type Status int

const (
	// StatusUnknown is the zero value; a Result nobody filled in is never OK.
	StatusUnknown Status = iota
	StatusOK
	StatusNoSubmission
	StatusCompileError
	StatusTransientError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoSubmission:
		return "no_submission"
	case StatusCompileError:
		return "compile_error"
	case StatusTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the lock session. Only transient
// errors are worth another attempt.
func (s Status) Terminal() bool {
	return s != StatusTransientError
}

// File is one downloaded submission file.
type File struct {
	Part        string
	Name        string
	Path        string // where it was written; empty when not persisted
	Size        int64
	MIME        string
	Score       float64
	SubmittedAt time.Time
}

// Result is what a Fetcher returns for one (student, lab).
type Result struct {
	Status Status
	Files  []File
	Detail string
}

// Fetcher downloads a student's submission for a lab.
//
// Transient conditions should be reported as a Result with
// StatusTransientError. A returned error that errors.IsRetryable treats as
// retryable is handled the same way; any other error aborts the fetch.
type Fetcher interface {
	Fetch(ctx context.Context, student roster.Student, lab roster.Lab) (Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, student roster.Student, lab roster.Lab) (Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, student roster.Student, lab roster.Lab) (Result, error) {
	return f(ctx, student, lab)
}
