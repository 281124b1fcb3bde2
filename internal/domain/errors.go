package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. Missing or malformed genotype
// data is deliberately not an error anywhere: matching degrades to "no
// match" so one bad gene entry never aborts a patient's whole computation.
var (
	// ErrUnknownVocabulary signals a categorical label that was never
	// registered in the cross-source vocabulary table. It means the
	// static table is stale relative to upstream data and must fail
	// loudly at normalization time, never be dropped silently.
	ErrUnknownVocabulary = errors.New("unknown factor vocabulary")

	// ErrSnapshotNotFound signals that a snapshot store has no database
	// snapshot to load.
	ErrSnapshotNotFound = errors.New("recommendation database snapshot not found")
)

// VocabularyError carries the offending label alongside ErrUnknownVocabulary.
type VocabularyError struct {
	Gene  string
	Label string
}

// Error implements the error interface.
func (e *VocabularyError) Error() string {
	if e.Gene == "" {
		return fmt.Sprintf("unknown factor vocabulary: %q", e.Label)
	}
	return fmt.Sprintf("unknown factor vocabulary for %s: %q", e.Gene, e.Label)
}

// Unwrap makes the error match ErrUnknownVocabulary with errors.Is.
func (e *VocabularyError) Unwrap() error {
	return ErrUnknownVocabulary
}

// Error codes for API failure responses.
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeSnapshot       = "SNAPSHOT_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// APIError is the standardized error envelope returned by the HTTP surface.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError stamped with the current time.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
