package engine

import (
	"errors"
	"fmt"

	"github.com/heraerp/hera-engine/internal/store"
)

// Stable error codes returned to callers. Callers branch on these strings;
// they never change between versions.
const (
	CodeMissingTenantContext = "MISSING_TENANT_CONTEXT"
	CodeCrossTenantViolation = "CROSS_TENANT_VIOLATION"
	CodeInvalidSmartCode     = "INVALID_SMART_CODE"
	CodeNotFound             = "NOT_FOUND"
	CodeEndpointNotFound     = "ENDPOINT_NOT_FOUND"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodeUnbalancedLedger     = "UNBALANCED_LEDGER"
	CodeMissingActor         = "MISSING_ACTOR"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInternalError        = "INTERNAL_ERROR"

	// CodeDuplicateSuppressed is informational, not fatal. It is surfaced
	// on successful results whose write was suppressed by an idempotency
	// key, never as an error.
	CodeDuplicateSuppressed = "DUPLICATE_SUPPRESSED"
)

// Error is an engine failure carrying a stable code. The wrapped cause, if
// any, is for logging only and never part of the caller contract.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a coded engine error.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a coded engine error around a cause.
func WrapError(code string, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the stable code from an error, defaulting to
// INTERNAL_ERROR for anything the engine did not classify.
func CodeOf(err error) string {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return CodeInternalError
}

// mapStoreError converts store sentinels into coded engine errors.
// notFoundCode lets operations choose between NOT_FOUND and
// ENDPOINT_NOT_FOUND for a missing entity.
func mapStoreError(err error, notFoundCode string) *Error {
	switch {
	case errors.Is(err, store.ErrEntityNotFound),
		errors.Is(err, store.ErrRelationshipNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrOrganizationNotFound):
		return WrapError(notFoundCode, err, "record not found")
	case errors.Is(err, store.ErrEndpointNotFound):
		return WrapError(CodeEndpointNotFound, err, "relationship endpoint not found")
	case errors.Is(err, store.ErrWrongOrganization):
		return WrapError(CodeCrossTenantViolation, err, "operation crosses the tenant boundary")
	default:
		return WrapError(CodeInternalError, err, "store failure")
	}
}
