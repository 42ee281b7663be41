package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrProvider   = errors.New("provider error")
	ErrStorage    = errors.New("storage error")
	ErrDecoding   = errors.New("decoding error")
)

type AppError struct {
	Err     error  // sentinel kind (ErrValidation, ErrStorage, ...)
	Cause   error  // optional underlying error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// Provider failures only: HTTP status and error code returned by the provider.
	Status int
	Code   string
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel kind and the cause, so errors.Is matches
// either one.
func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict is a storage failure caused by a uniqueness constraint.
// It matches both ErrStorage and ErrConflict.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Cause:   ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// StorageFailed wraps a store read/write failure.
func StorageFailed(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Cause:   cause,
		Message: fmt.Sprintf("storage: %s: %v", op, cause),
	}
}

// ProviderFailed reports a failed call to the identity provider. status is
// zero for network failures that never produced a response.
func ProviderFailed(status int, code string, cause error) *AppError {
	msg := "provider request failed"
	switch {
	case status != 0 && code != "":
		msg = fmt.Sprintf("provider returned status %d (%s)", status, code)
	case status != 0:
		msg = fmt.Sprintf("provider returned status %d", status)
	case cause != nil:
		msg = fmt.Sprintf("provider request failed: %v", cause)
	}
	return &AppError{
		Err:     ErrProvider,
		Cause:   cause,
		Message: msg,
		Status:  status,
		Code:    code,
	}
}

// DecodingFailed records a payload that could not be parsed. Callers log it
// and continue with an empty payload.
func DecodingFailed(source string, cause error) *AppError {
	return &AppError{
		Err:     ErrDecoding,
		Cause:   cause,
		Message: fmt.Sprintf("could not decode %s", source),
		Field:   source,
	}
}
