package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: tidak ada record untuk id tersebut.
	ErrNotFound = errors.New("analysis not found")

	// ErrNoTemplateGenerated is the soft failure when the completion never produced a usable template.
	ErrNoTemplateGenerated = errors.New("no template generated")

	// ErrNoTemplateAvailable means the record has no cached template pair to package.
	ErrNoTemplateAvailable = errors.New("no template available to package")

	// ErrConcurrentUpdate is returned when every optimistic merge attempt lost the race.
	ErrConcurrentUpdate = errors.New("concurrent update: retries exhausted")
)

// ValidationError is malformed caller input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failed adapter call (storage, completion, registry).
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}
