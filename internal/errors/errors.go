// Package errors provides centralized error definitions and error handling utilities
// for teambot. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - PlatformError: a call to the chat platform failed (member fetch, member move)
//   - PersistenceError: reading or writing the team state snapshot failed
//
// Semantic errors represent common error conditions:
//   - NotFoundError: a record or resource does not exist
//   - ValidationError: invalid input (bad captains, roster too small, bad IDs)
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewPlatformError("move member", errors.ErrPermissionDenied).WithMember("1234")
//
//	// Semantic error
//	err := errors.NewValidationError("red and blue captains must be different members")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrInvalidInput) { ... }
//
//	var platformErr *errors.PlatformError
//	if errors.As(err, &platformErr) { ... }
//
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// Per-member platform failures never abort a batch; they are converted into
// skip reasons by the relocation orchestrator. Persistence failures are logged
// and absorbed. Only validation failures and missing records propagate to the
// command caller.
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

// Platform-related sentinel errors
var (
	// ErrNotFound indicates that a member or channel does not exist on the platform.
	ErrNotFound = New("not found")
	// ErrPermissionDenied indicates the bot lacks permission for the operation.
	ErrPermissionDenied = New("permission denied")
	// ErrTransport indicates a network or platform-side failure.
	ErrTransport = New("transport error")
	// ErrNotInLocation indicates the member is not connected to any voice channel.
	ErrNotInLocation = New("not in a voice channel")
)

// State-related sentinel errors
var (
	// ErrNoRecord indicates that no (unexpired) record exists for an origin.
	ErrNoRecord = New("no record for origin")
	// ErrPersistence indicates that the state snapshot could not be read or written.
	ErrPersistence = New("persistence failure")
	// ErrFormatMismatch indicates the snapshot was written with another format version.
	ErrFormatMismatch = New("snapshot format version mismatch")
	// ErrCorruptSnapshot indicates that the snapshot could not be parsed.
	ErrCorruptSnapshot = New("snapshot corrupted")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BotError is the base interface for all teambot errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type BotError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

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

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
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

// PlatformError represents a failed call to the chat platform.
//
// Example:
//
//	err := errors.NewPlatformError("move member", errors.ErrPermissionDenied)
//	err = err.WithMember("1234").WithLocation("5678")
//	fmt.Println(err) // "platform error [member=1234, location=5678]: move member: permission denied"
type PlatformError struct {
	baseError
	MemberID   string
	LocationID string
	StatusCode int
}

// NewPlatformError creates a new PlatformError. Transport failures are
// marked retryable; everything else is terminal.
func NewPlatformError(operation string, cause error) *PlatformError {
	return &PlatformError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  errors.Is(cause, ErrTransport),
			userFacing: true,
		},
	}
}

// WithMember adds a member ID to the error context.
func (e *PlatformError) WithMember(id string) *PlatformError {
	e.MemberID = id
	return e
}

// WithLocation adds a voice channel ID to the error context.
func (e *PlatformError) WithLocation(id string) *PlatformError {
	e.LocationID = id
	return e
}

// WithStatusCode records the HTTP status returned by the platform.
func (e *PlatformError) WithStatusCode(code int) *PlatformError {
	e.StatusCode = code
	return e
}

// Error returns the formatted error message.
func (e *PlatformError) Error() string {
	var parts []string
	if e.MemberID != "" {
		parts = append(parts, fmt.Sprintf("member=%s", e.MemberID))
	}
	if e.LocationID != "" {
		parts = append(parts, fmt.Sprintf("location=%s", e.LocationID))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "platform error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("platform error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PlatformError) Is(target error) bool {
	if _, ok := target.(*PlatformError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PersistenceError represents a failure to read or write the state snapshot.
//
// Example:
//
//	err := errors.NewPersistenceError("rename temp file", osErr).WithPath("/var/lib/teambot/team_state.json")
type PersistenceError struct {
	baseError
	Path string
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(operation string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: false,
		},
	}
}

// WithPath adds the snapshot path to the error context.
func (e *PersistenceError) WithPath(path string) *PersistenceError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	prefix := "persistence error"
	if e.Path != "" {
		prefix = fmt.Sprintf("persistence error [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PersistenceError) Is(target error) bool {
	if _, ok := target.(*PersistenceError); ok {
		return true
	}
	if target == ErrPersistence {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("team assignment", "987654321")
//	fmt.Println(err) // "team assignment '987654321' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("captain must be in the voice channel")
//	err = err.WithField("red_captain").WithValue("1234")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Message returns the bare message without the field/value prefix, suitable
// for replying to a user.
func (e *ValidationError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. The relocation orchestrator never retries within
// a session; this is used for logging and metrics labels.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var botErr BotError
	if As(err, &botErr) {
		return botErr.IsRetryable()
	}

	return Is(err, ErrTransport)
}

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    reply(err.Error())
//	} else {
//	    reply("Something went wrong.")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var botErr BotError
	if As(err, &botErr) {
		return botErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BotError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var botErr BotError
	if As(err, &botErr) {
		return botErr.Severity()
	}

	return SeverityError
}

// Kind returns the platform sentinel an error wraps (ErrNotFound,
// ErrPermissionDenied, ErrNotInLocation or ErrTransport). Unclassified errors
// are reported as ErrTransport.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case Is(err, ErrNotFound):
		return ErrNotFound
	case Is(err, ErrPermissionDenied):
		return ErrPermissionDenied
	case Is(err, ErrNotInLocation):
		return ErrNotInLocation
	default:
		return ErrTransport
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load team state")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to move member %s", memberID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
