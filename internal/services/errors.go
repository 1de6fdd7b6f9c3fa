package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrInvalidInput is returned when a required field is blank or a count is
	// out of range.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateEntity is returned when a username or a
	// (title, author, category) triple is already taken.
	ErrDuplicateEntity = errors.New("already exists")

	// ErrNotFound is returned when an operation references a missing member,
	// book or borrow request.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned by Authenticate for an unknown username
	// or a wrong secret. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrDuplicateRequest is returned when the member already has a Pending or
	// Borrowed request for the same book.
	ErrDuplicateRequest = errors.New("member already has a pending or borrowed request for this book")

	// ErrNoAvailableCopies is returned when an approval finds every copy lent out.
	ErrNoAvailableCopies = errors.New("no available copies")

	// ErrInvalidTransition is returned when a request is not in the state the
	// operation starts from, e.g. approving a request that is already Borrowed.
	ErrInvalidTransition = errors.New("request status does not allow this action")
)

// isUniqueViolation covers drivers that do not translate their constraint
// errors into gorm.ErrDuplicatedKey.
// PostgreSQL error code 23505 = unique_violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint failed")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
