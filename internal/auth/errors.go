package auth

import "errors"

var (
	// ErrDuplicateCredential indicates a credential with the email already exists.
	ErrDuplicateCredential = errors.New("auth: user already exists")
	// ErrUserNotFound indicates no credential matches the email.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidPassword indicates the stored password does not match.
	ErrInvalidPassword = errors.New("auth: invalid password")
	// ErrNoActiveSession indicates an operation required a signed-in user.
	ErrNoActiveSession = errors.New("auth: no user is currently signed in")
	// ErrInvalidCredentials indicates email or password input was empty.
	ErrInvalidCredentials = errors.New("auth: email and password are required")
)
