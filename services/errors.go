package services

import (
	"fmt"

	"school-game-platform/storage"

	"github.com/pkg/errors"
)

// ErrForbidden is returned when the caller's role does not cover the requested resource.
var ErrForbidden = errors.New("forbidden")

// ValidationError rejects malformed input at the boundary. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError means the referenced user, school or game does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// PartialDataError describes a stored record aggregation had to skip or
// degrade. It is logged, never returned to callers.
type PartialDataError struct {
	UserID  string
	GameKey string
	Reason  string
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("partial data for user %s, game %q: %s", e.UserID, e.GameKey, e.Reason)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// notFoundOr converts storage.ErrNotFound into a NotFoundError and wraps anything else.
func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return errors.Wrapf(err, "load %s %s", resource, id)
}
