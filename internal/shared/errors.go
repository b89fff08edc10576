package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Deliberately generic:
	// callers must not learn whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates an authenticated principal lacking access.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicateName indicates a role or department name collision.
	ErrDuplicateName = errors.New("name already exists")
	// ErrProtectedRole indicates an attempt to delete the Admin role.
	ErrProtectedRole = errors.New("role is protected")
	// ErrProtectedAccount indicates an attempt to delete an admin account.
	ErrProtectedAccount = errors.New("account is protected")
	// ErrInvalidArchive indicates a restore upload missing the database snapshot.
	ErrInvalidArchive = errors.New("invalid backup archive")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
