package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when a user's username collides with an
// existing row, including races detected only at insert time.
var ErrUsernameTaken = errors.New("username already taken")

// ErrEmailTaken is returned when a user's email collides with an existing row.
var ErrEmailTaken = errors.New("email already in use")

const uniqueViolation = pq.ErrorCode("23505")

// mapUniqueViolation translates a postgres unique-constraint violation into
// the matching domain error. Two concurrent registrations can both pass the
// pre-insert checks; the constraint is the source of truth.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_username_key":
		return ErrUsernameTaken
	case "users_email_key":
		return ErrEmailTaken
	}
	return err
}
