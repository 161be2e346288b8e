package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password alike, so callers cannot probe which usernames exist.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrUnauthorized is returned when a bearer token cannot be resolved to a user.
	ErrUnauthorized = errors.New("could not validate credentials")

	ErrUsernameTaken = errors.New("username already registered")
	ErrEmailTaken    = errors.New("email already registered")

	// ErrBookNotFound covers both missing books and books owned by someone else.
	ErrBookNotFound = errors.New("book not found")
	ErrPDFNotFound  = errors.New("pdf not found")

	// ErrInvalidInput is wrapped with a detail message by invalidf.
	ErrInvalidInput = errors.New("invalid input")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
