package core

import (
	"errors"
	"fmt"

	"agentchat.io/agent-chat/internal/store"
)

// ErrNotFoundOrForbidden is returned both when a record does not exist and
// when it belongs to another user. The two cases are never told apart.
var ErrNotFoundOrForbidden = errors.New("not found or access denied")

// Validation reasons.
const (
	ReasonUnsupportedType = "unsupported_type"
	ReasonEmptyExtraction = "empty_extraction"
	ReasonEncodingFailure = "encoding_failure"
	ReasonOversized       = "oversized"
	ReasonEmptyFile       = "empty_file"
	ReasonInvalidLimit    = "invalid_limit"
	ReasonInvalidInput    = "invalid_input"
)

// ValidationError rejects bad input before any side effect.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

func newValidationError(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Collaborator names.
const (
	CollaboratorStore   = "record_store"
	CollaboratorEncoder = "vector_encoder"
	CollaboratorBackend = "completion_backend"
)

// CollaboratorError wraps a failure of the store, encoder or backend.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// storeErr maps store.ErrNotFound onto ErrNotFoundOrForbidden and anything
// else onto a CollaboratorError.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFoundOrForbidden
	}
	return &CollaboratorError{Collaborator: CollaboratorStore, Err: err}
}
