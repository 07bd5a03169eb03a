package attendance

import "errors"

var (
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrAlreadyCheckedOut = errors.New("already checked out today")
	ErrNotCheckedIn      = errors.New("not checked in yet")
	ErrInvalidStatus     = errors.New("invalid attendance status")
	ErrCheckOutTooEarly  = errors.New("check-out must be later than check-in")
	ErrUnknownStudent    = errors.New("student not found")
	ErrDayNotOver        = errors.New("the day is not over yet")

	// ErrConstraintViolation is returned by repositories when the (student, date) uniqueness is violated.
	// The Ledger never returns it.
	ErrConstraintViolation = errors.New("attendance record already exists")
)
