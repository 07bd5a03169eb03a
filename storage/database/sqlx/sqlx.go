// Package sqlxrepos implements the repositories on Postgres with sqlx.
package sqlxrepos

import (
	"time"

	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// isViolation reports whether err is a postgres `code` error, on one of the given constraints if any.
func isViolation(err error, code string, constraint ...string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || string(pqErr.Code) != code {
		return false
	}
	if len(constraint) == 0 {
		return true
	}
	for _, c := range constraint {
		if pqErr.Constraint == c {
			return true
		}
	}
	return false
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
