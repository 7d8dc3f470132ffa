// Package errors provides typed errors for the self-healing monitor.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the category an Error belongs to
type ErrorType string

const (
	// ErrorTypeCheck is a failure inside a health check function
	ErrorTypeCheck ErrorType = "check"
	// ErrorTypeRepair is a failure inside a repair action
	ErrorTypeRepair ErrorType = "repair"
	// ErrorTypeRegistration is a setup-time registration conflict
	ErrorTypeRegistration ErrorType = "registration"
	ErrorTypeConfig       ErrorType = "config"
	// ErrorTypeStorage covers object storage and cloud credential probes
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal is a recovered panic or an unclassified failure
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeTimeout  ErrorType = "timeout"
)

// Severity ranks how urgently an error needs attention
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes shared across packages.
const (
	CodeDuplicateCheck  = "DUPLICATE_CHECK"
	CodeDuplicateRepair = "DUPLICATE_REPAIR"
	CodeDuplicateJob    = "DUPLICATE_JOB"
	CodeCheckFailed     = "CHECK_FAILED"
	CodeRepairFailed    = "REPAIR_FAILED"
	CodePanic           = "PANIC"
	CodeTimeout         = "TIMEOUT"
)

// Sentinels for errors.Is comparisons. Matching is by type and code.
var (
	ErrDuplicateCheck  = &Error{Type: ErrorTypeRegistration, Code: CodeDuplicateCheck, Message: "health check already registered"}
	ErrDuplicateRepair = &Error{Type: ErrorTypeRegistration, Code: CodeDuplicateRepair, Message: "repair already registered"}
	ErrDuplicateJob    = &Error{Type: ErrorTypeRegistration, Code: CodeDuplicateJob, Message: "job already scheduled"}
)

// Error is a categorized error owned by a check, repair or job
type Error struct {
	Type     ErrorType `json:"type"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	// Component is the check, repair or job the error belongs to
	Component string `json:"component,omitempty"`
	Cause     error  `json:"-"`
}

// Error renders as "[component/code] message: cause"
func (e *Error) Error() string {
	var b strings.Builder

	tag := e.Code
	if e.Component != "" {
		tag = e.Component + "/" + e.Code
	}
	if tag != "" {
		b.WriteString("[" + tag + "] ")
	}

	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by type and code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// New creates an Error of medium severity
func New(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Severity: SeverityMedium,
	}
}

// Wrap attaches type, code and message to err. An *Error keeps its own
// type and code and gains message as a prefix. Wrap(nil, ...) is nil.
func Wrap(err error, errorType ErrorType, code, message string) *Error {
	if err == nil {
		return nil
	}

	if existing, ok := err.(*Error); ok {
		enhanced := *existing
		if enhanced.Type == "" {
			enhanced.Type = errorType
		}
		if enhanced.Code == "" {
			enhanced.Code = code
		}
		if message != "" {
			enhanced.Message = message + ": " + enhanced.Message
		}
		return &enhanced
	}

	wrapped := New(errorType, code, message)
	wrapped.Cause = err
	return wrapped
}

// WithSeverity sets the severity in place and returns err
func WithSeverity(err *Error, severity Severity) *Error {
	if err != nil {
		err.Severity = severity
	}
	return err
}

// WithComponent sets the owning check, repair or job name in place
func WithComponent(err *Error, component string) *Error {
	if err != nil {
		err.Component = component
	}
	return err
}

func NewDuplicateCheckError(name string) *Error {
	return WithComponent(New(ErrorTypeRegistration, CodeDuplicateCheck,
		fmt.Sprintf("health check %q already registered", name)), name)
}

func NewDuplicateRepairError(name string) *Error {
	return WithComponent(New(ErrorTypeRegistration, CodeDuplicateRepair,
		fmt.Sprintf("repair %q already registered", name)), name)
}

func NewDuplicateJobError(id string) *Error {
	return WithComponent(New(ErrorTypeRegistration, CodeDuplicateJob,
		fmt.Sprintf("job %q already scheduled", id)), id)
}

// NewCheckError wraps a failure raised by a health check
func NewCheckError(name string, cause error) *Error {
	return WithComponent(Wrap(cause, ErrorTypeCheck, CodeCheckFailed, "health check failed"), name)
}

// NewRepairError wraps a failure raised by a repair action
func NewRepairError(name string, cause error) *Error {
	return WithSeverity(
		WithComponent(Wrap(cause, ErrorTypeRepair, CodeRepairFailed, "repair failed"), name),
		SeverityHigh)
}

// NewPanicError converts a recovered panic value into an Error
func NewPanicError(component string, value interface{}) *Error {
	return WithSeverity(
		WithComponent(New(ErrorTypeInternal, CodePanic, fmt.Sprintf("panic: %v", value)), component),
		SeverityCritical)
}

func NewConfigError(code, message string) *Error {
	return WithSeverity(New(ErrorTypeConfig, code, message), SeverityCritical)
}

func NewValidationError(code, message string) *Error {
	return New(ErrorTypeValidation, code, message)
}

// NewStorageError wraps an object storage or credential probe failure
func NewStorageError(code string, cause error) *Error {
	return Wrap(cause, ErrorTypeStorage, code, "storage probe failed")
}

// NewTimeoutError reports that component gave up waiting; cause is
// usually the expired context's error
func NewTimeoutError(component string, cause error) *Error {
	err := New(ErrorTypeTimeout, CodeTimeout, "timed out")
	err.Cause = cause
	return WithComponent(err, component)
}

// IsType reports whether any *Error in err's chain has the given type
func IsType(err error, errorType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}
