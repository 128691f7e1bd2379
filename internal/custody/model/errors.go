package model

import "fmt"

// Typed failures returned by the custody engine. Handlers convert these to
// HTTP statuses (validation → 400, not found → 404, exists/state → 409)
// rather than 500.

// ValidationError reports a missing or malformed input field.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports that no record exists for an evidence id.
type NotFoundError struct{ EvidenceID string }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("evidence %q not found", e.EvidenceID)
}

// AlreadyExistsError reports a Create against an id that is already present.
type AlreadyExistsError struct{ EvidenceID string }

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("evidence %q already exists", e.EvidenceID)
}

// InvalidStateError reports a transition attempted against a record whose
// current status forbids it.
type InvalidStateError struct {
	EvidenceID string
	Status     Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("evidence %q is %s and cannot be modified", e.EvidenceID, e.Status)
}
