package domainerrors

import "errors"

// Code represents a pipeline error category independent of transport layer.
// These codes describe what went wrong in issuance terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"

	// Issuance pipeline error codes.
	CodeTemplateNotFound       Code = "template_not_found"       // Requested template id not registered
	CodeProviderNotFound       Code = "provider_not_found"       // No provider can serve the requested data type
	CodeRateLimitExceeded      Code = "rate_limit_exceeded"      // Provider token bucket exhausted
	CodeRetryExhausted         Code = "retry_exhausted"          // All retry attempts consumed; wraps last transient error
	CodeSchemaValidationFailed Code = "schema_validation_failed" // Claims failed template schema validation
	CodeIssuanceRuleRejected   Code = "issuance_rule_rejected"   // A reject rule fired; carries rule-supplied reason
	CodeProofAttachmentFailed  Code = "proof_attachment_failed"  // Signing collaborator failed; credential left unsigned
	CodeBatchAborted           Code = "batch_aborted"            // Batch stopped after first failure (stop mode)
	CodeRollbackFailure        Code = "rollback_failure"         // A compensating revoke itself failed
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		// Preserve the original domain code, update message
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
