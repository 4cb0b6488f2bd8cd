package service

import (
	"errors"
	"fmt"
)

// Domain errors returned by the seat service and the controller.  The
// HTTP layer maps them to status codes with errors.Is.
var (
	ErrNotFound            = errors.New("seat not found")
	ErrInvalidCode         = errors.New("invalid code")
	ErrAlreadyUsed         = errors.New("code already used")
	ErrExpired             = errors.New("code expired")
	ErrNoActiveSession     = errors.New("no active session")
	ErrConflict            = errors.New("conflict")
	ErrStorage             = errors.New("storage failure")
	ErrHardwareUnavailable = errors.New("hardware unavailable")
)

var domainErrors = []error{
	ErrNotFound, ErrInvalidCode, ErrAlreadyUsed, ErrExpired,
	ErrNoActiveSession, ErrConflict, ErrStorage, ErrHardwareUnavailable,
}

// storageError wraps an unexpected store failure with the operation
// name.  Domain errors pass through unchanged.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
