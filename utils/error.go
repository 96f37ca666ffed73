package utils

import "errors"

var (
	ErrorRecordNotFound   = errors.New("record not found")
	ErrPhoneNormalization = errors.New("phone number could not be normalized")
)

// validationError marks a caller mistake so handlers can answer 400 instead of 500.
type validationError struct {
	err error
}

func (e validationError) Error() string { return e.err.Error() }

func (e validationError) Unwrap() error { return e.err }

func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	return validationError{err: err}
}

func Invalid(msg string) error {
	return validationError{err: errors.New(msg)}
}

func IsValidation(err error) bool {
	var v validationError
	return errors.As(err, &v)
}
