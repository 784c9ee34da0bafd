// Package errors provides centralized error definitions and error handling utilities
// for tagrade. It defines the lock and fetch error taxonomy, semantic error types,
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - AlreadyLockedError: a grading or e-mail lock is held by someone else
//   - StaleArtifactError: a lock artifact whose owning process is gone
//   - FetchError: the submission fetch collaborator failed
//   - FilesystemError: the shared filesystem refused an operation
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewAlreadyLockedError("Lab3", "42", "alice")
//	if errors.Is(err, errors.ErrAlreadyLocked) { ... }
//
//	var locked *errors.AlreadyLockedError
//	if errors.As(err, &locked) {
//	    fmt.Printf("%s is already grading this student\n", locked.Holder)
//	}
//
//	if errors.IsRetryable(err) { ... }
//	if errors.IsUserFacing(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Lock-related sentinel errors
var (
	// ErrAlreadyLocked indicates that a lock slot is held by another process.
	ErrAlreadyLocked = New("already locked")
	// ErrStaleArtifact indicates that a lock artifact outlived its owning process.
	ErrStaleArtifact = New("stale lock artifact")
	// ErrMalformedArtifact indicates an entry in the locks directory that does
	// not follow the artifact naming scheme.
	ErrMalformedArtifact = New("malformed lock artifact")
	// ErrNotOwner indicates that the slot now belongs to a different lock.
	ErrNotOwner = New("lock is owned by a different artifact")
)

// Fetch-related sentinel errors
var (
	// ErrTransientFetch indicates a fetch failure that may succeed on retry.
	ErrTransientFetch = New("transient fetch failure")
	// ErrFetchFailed indicates a fetch failure that will not succeed on retry.
	ErrFetchFailed = New("fetch failed")
)

// General sentinel errors
var (
	// ErrFilesystem indicates that the shared filesystem refused an operation.
	ErrFilesystem = New("filesystem error")
	// ErrNotFound indicates that a resource could not be found.
	ErrNotFound = New("not found")
	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TagradeError is the base interface for all tagrade errors.
type TagradeError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to show to a TA.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// AlreadyLockedError reports that a lock slot is held. It is informational:
// the caller shows "X is already grading this student" and never retries.
//
// Example:
//
//	err := errors.NewAlreadyLockedError("Lab3", "42", "alice")
//	fmt.Println(err) // "Lab3/42 is locked by alice: already locked"
type AlreadyLockedError struct {
	baseError
	Lab     string // Empty for e-mail locks
	Student string
	Holder  string
}

// NewAlreadyLockedError creates a new AlreadyLockedError.
func NewAlreadyLockedError(lab, student, holder string) *AlreadyLockedError {
	return &AlreadyLockedError{
		baseError: baseError{
			message:    "already locked",
			cause:      ErrAlreadyLocked,
			severity:   SeverityInfo,
			userFacing: true,
		},
		Lab:     lab,
		Student: student,
		Holder:  holder,
	}
}

// Error returns the formatted error message.
func (e *AlreadyLockedError) Error() string {
	target := "email for " + e.Student
	if e.Lab != "" {
		target = e.Lab + "/" + e.Student
	}
	holder := e.Holder
	if holder == "" {
		holder = "another grader"
	}
	return fmt.Sprintf("%s is locked by %s: %s", target, holder, e.message)
}

// StaleArtifactError reports a lock artifact whose recorded process is
// verifiably gone. Detection is best effort and only possible on the host
// that created the artifact.
type StaleArtifactError struct {
	baseError
	Artifact string
	Host     string
	PID      int
}

// NewStaleArtifactError creates a new StaleArtifactError.
func NewStaleArtifactError(artifact, host string, pid int) *StaleArtifactError {
	return &StaleArtifactError{
		baseError: baseError{
			message:    "owning process is gone",
			cause:      ErrStaleArtifact,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Artifact: artifact,
		Host:     host,
		PID:      pid,
	}
}

// Error returns the formatted error message.
func (e *StaleArtifactError) Error() string {
	return fmt.Sprintf("stale lock %s [host=%s, pid=%d]: %s", e.Artifact, e.Host, e.PID, e.message)
}

// FetchError represents a failure reported by the submission fetch collaborator.
//
// Example:
//
//	err := errors.NewFetchError("download interrupted", io.ErrUnexpectedEOF).
//		WithTarget("Lab3", "42").WithTransient(true)
type FetchError struct {
	baseError
	Lab     string
	Student string
}

// NewFetchError creates a new, non-transient FetchError.
func NewFetchError(message string, cause error) *FetchError {
	return &FetchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithTarget records which submission was being fetched.
func (e *FetchError) WithTarget(lab, student string) *FetchError {
	e.Lab = lab
	e.Student = student
	return e
}

// WithTransient marks the error as retryable (connection reset, 5xx, timeout).
func (e *FetchError) WithTransient(transient bool) *FetchError {
	e.retryable = transient
	if transient {
		e.severity = SeverityWarning
	}
	return e
}

// Error returns the formatted error message.
func (e *FetchError) Error() string {
	var parts []string
	if e.Lab != "" {
		parts = append(parts, fmt.Sprintf("lab=%s", e.Lab))
	}
	if e.Student != "" {
		parts = append(parts, fmt.Sprintf("student=%s", e.Student))
	}

	prefix := "fetch error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("fetch error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches ErrTransientFetch for transient errors and ErrFetchFailed otherwise.
func (e *FetchError) Is(target error) bool {
	if e.retryable && target == ErrTransientFetch {
		return true
	}
	if !e.retryable && target == ErrFetchFailed {
		return true
	}
	return false
}

// FilesystemError represents a failed operation on the shared directory tree.
// It is fatal to the current operation and shown to the TA as a blocking error.
type FilesystemError struct {
	baseError
	Op   string
	Path string
}

// NewFilesystemError creates a new FilesystemError.
func NewFilesystemError(op, path string, cause error) *FilesystemError {
	return &FilesystemError{
		baseError: baseError{
			message:    "filesystem operation failed",
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Op:   op,
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *FilesystemError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("filesystem error [op=%s, path=%s]: %v", e.Op, e.Path, e.cause)
	}
	return fmt.Sprintf("filesystem error [op=%s, path=%s]: %s", e.Op, e.Path, e.message)
}

// Is matches ErrFilesystem.
func (e *FilesystemError) Is(target error) bool {
	return target == ErrFilesystem
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		cause:        ErrNotFound,
	}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error {
	return e.cause
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	Field   string
	Value   any
	Message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
		cause:   ErrInvalidInput,
	}
}

// WithField adds the field name to the error.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Value != nil:
		return fmt.Sprintf("validation error [field=%s, value=%v]: %s", e.Field, e.Value, e.Message)
	case e.Field != "":
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("validation error: %s", e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. Lock contention is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var tagradeErr TagradeError
	if As(err, &tagradeErr) {
		return tagradeErr.IsRetryable()
	}

	return Is(err, ErrTransientFetch)
}

// IsUserFacing returns true if the error message is safe to display to a TA.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var tagradeErr TagradeError
	if As(err, &tagradeErr) {
		return tagradeErr.IsUserFacing()
	}

	var notFound *NotFoundError
	var validation *ValidationError
	return As(err, &notFound) || As(err, &validation)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TagradeError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var tagradeErr TagradeError
	if As(err, &tagradeErr) {
		return tagradeErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
