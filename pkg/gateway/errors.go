package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ============================================================
// ERROR CONTRACT
// ============================================================

// GatewayError is implemented by every error the gateway can surface.
// Code returns a stable machine-readable identifier.
type GatewayError interface {
	error
	Code() string
}

// ============================================================
// CLIENT INPUT ERRORS
// ============================================================

// NotAllowedError reports a field name that is absent from the
// corresponding SecurityPolicy allow-list.
type NotAllowedError struct {
	Op    string // "Filtering", "Sorting", "Including", "Selecting"
	Field string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("%s by '%s' is not allowed", e.Op, e.Field)
}

func (e *NotAllowedError) Code() string { return "FIELD_NOT_ALLOWED" }

// BadParamError reports a query parameter that failed to parse.
type BadParamError struct {
	Param string
	Err   error
}

func (e *BadParamError) Error() string {
	return fmt.Sprintf("invalid JSON parameter '%s': %v", e.Param, e.Err)
}

func (e *BadParamError) Code() string { return "INVALID_PARAMETER" }

func (e *BadParamError) Unwrap() error { return e.Err }

// IncludeDepthError reports an inclusion tree deeper than the policy allows.
type IncludeDepthError struct {
	Max int
}

func (e *IncludeDepthError) Error() string {
	return fmt.Sprintf("Include depth exceeds maximum allowed (%d)", e.Max)
}

func (e *IncludeDepthError) Code() string { return "INCLUDE_DEPTH_EXCEEDED" }

// NestedDepthError reports a nested-write payload whose relation hops
// exceed the policy budget.
type NestedDepthError struct {
	Field string
	Max   int
}

func (e *NestedDepthError) Error() string {
	return fmt.Sprintf("nested write on '%s' exceeds maximum relation depth (%d)", e.Field, e.Max)
}

func (e *NestedDepthError) Code() string { return "NESTED_DEPTH_EXCEEDED" }

// LimitExceededError reports an explicitly requested page size above the cap.
type LimitExceededError struct {
	Requested int
	Max       int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("requested limit %d exceeds maximum allowed %d", e.Requested, e.Max)
}

func (e *LimitExceededError) Code() string { return "LIMIT_EXCEEDED" }

// ============================================================
// VALIDATION ERRORS
// ============================================================

// FieldError is a single schema-validation failure.
type FieldError struct {
	Path    string `json:"fieldPath"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationErrors is the structured list returned when a payload does not
// match its declared schema.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, fe := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		if fe.Path != "" {
			fmt.Fprintf(&b, "%s: ", fe.Path)
		}
		b.WriteString(fe.Message)
	}
	return b.String()
}

func (e ValidationErrors) Code() string { return "VALIDATION_ERROR" }

// ============================================================
// NOT FOUND
// ============================================================

type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// ============================================================
// STORE ERRORS
// ============================================================

// UniqueConstraintError represents a unique constraint violation.
type UniqueConstraintError struct {
	Entity string
	Field  string
	Value  interface{}
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violation on field '%s' in entity '%s'", e.Field, e.Entity)
}

func (e *UniqueConstraintError) Code() string { return "UNIQUE_VIOLATION" }

// ForeignKeyError represents a foreign key constraint violation.
type ForeignKeyError struct {
	Entity          string
	Field           string
	ReferencedTable string
}

func (e *ForeignKeyError) Error() string {
	return fmt.Sprintf("foreign key constraint violation on field '%s': referenced %s does not exist", e.Field, e.ReferencedTable)
}

func (e *ForeignKeyError) Code() string { return "FOREIGN_KEY_VIOLATION" }

// NotNullError represents a NOT NULL constraint violation.
type NotNullError struct {
	Entity string
	Field  string
}

func (e *NotNullError) Error() string {
	return fmt.Sprintf("field '%s' in entity '%s' is required", e.Field, e.Entity)
}

func (e *NotNullError) Code() string { return "NOT_NULL_VIOLATION" }

// TransientError wraps a store failure that is safe to retry.
type TransientError struct {
	PgCode string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error (code %s): %v", e.PgCode, e.Err)
}

func (e *TransientError) Code() string { return "TRANSIENT_STORE_ERROR" }

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps an unclassified store failure. The underlying error is
// kept for logging but the message is opaque to callers.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *FatalError) Code() string { return "STORE_ERROR" }

func (e *FatalError) Unwrap() error { return e.Err }

// ============================================================
// CLASSIFICATION
// ============================================================

// IsClientError reports whether an error was caused by caller input and
// must not be retried.
func IsClientError(err error) bool {
	var ge GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	switch ge.Code() {
	case "FIELD_NOT_ALLOWED", "INVALID_PARAMETER", "INCLUDE_DEPTH_EXCEEDED",
		"NESTED_DEPTH_EXCEEDED", "LIMIT_EXCEEDED", "VALIDATION_ERROR":
		return true
	}
	return false
}

// IsRetryable reports whether an error is eligible for automatic retry by
// the transaction runner. A per-attempt timeout counts as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if code := pgErrorCode(err); code != "" {
		return retryablePgCodes[code]
	}
	return false
}
