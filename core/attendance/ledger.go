package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
)

type (
	Repository interface {
		// CheckIn sets the check-in of (StudentID, Date) in one atomic statement, creating the record if needed.
		// It returns ErrAlreadyCheckedIn when the record already holds a check-in.
		CheckIn(ctx context.Context, rec Record) (Record, error)
		// CheckOut sets the check-out of (studentID, date) only if checked in, not checked out and at is later
		// than the check-in. updated is false when any of those conditions does not hold.
		CheckOut(ctx context.Context, studentID int, date core.Date, at time.Time, in CheckInput) (rec Record, updated bool, err error)
		Get(ctx context.Context, studentID int, date core.Date) (Record, bool, error)
		// SetStatus upserts status and note of (studentID, date), leaving check-in/out untouched.
		SetStatus(ctx context.Context, studentID int, date core.Date, status Status, note string, at time.Time) (Record, error)
		Query(ctx context.Context, filter QueryFilter) ([]RecordView, int, error)
		// InsertAbsences stores an absent record for every active student enrolled before enrolledBefore
		// without a record on date.
		InsertAbsences(ctx context.Context, date core.Date, enrolledBefore, at time.Time) (int, error)

		// CountByDay counts records per day and status over active students (of classID, if set).
		CountByDay(ctx context.Context, from, to core.Date, classID *int) (map[core.Date]StatusCounts, error)
		CountForStudent(ctx context.Context, studentID int, from, to core.Date) (StatusCounts, error)
		CountActiveStudents(ctx context.Context, classID *int) (int, error)
	}

	// Ledger records check-ins, check-outs and manual statuses.
	Ledger struct {
		repo   Repository
		clock  core.Clock
		loc    *time.Location
		logger core.Logger
	}
)

func NewLedger(repo Repository, clock core.Clock, conf *core.Config, logger core.Logger) *Ledger {
	return &Ledger{repo: repo, clock: clock, loc: conf.Location, logger: logger}
}

// Today is the current school day.
func (l *Ledger) Today() core.Date {
	return core.Today(l.clock, l.loc)
}

func (l *Ledger) CheckIn(ctx context.Context, studentID int, date core.Date, in CheckInput) (Record, error) {
	now := l.clock.Now()
	rec, err := l.repo.CheckIn(ctx, Record{
		StudentID:       studentID,
		Date:            date,
		CheckInAt:       &now,
		Status:          StatusPresent,
		CheckInLocation: in.Location,
		CheckInPhoto:    in.PhotoRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrConstraintViolation):
		return Record{}, l.translateViolation(ctx, studentID, date, err)
	case errors.Is(err, ErrAlreadyCheckedIn), errors.Is(err, ErrUnknownStudent):
		return Record{}, err
	}
	return Record{}, errors.Wrap(err, "checking in")
}

// translateViolation turns a uniqueness violation from a racing check-in into ErrAlreadyCheckedIn.
func (l *Ledger) translateViolation(ctx context.Context, studentID int, date core.Date, cause error) error {
	rec, found, err := l.repo.Get(ctx, studentID, date)
	if err != nil || !found || !rec.CheckedIn() {
		l.logger.Warn(
			fmt.Sprintf("attendance: unresolved check-in conflict for student %d on %s", studentID, date),
			cause, map[string]interface{}{"found": found, "reread_error": err},
		)
	}
	return ErrAlreadyCheckedIn
}

func (l *Ledger) CheckOut(ctx context.Context, studentID int, date core.Date, in CheckInput) (Record, error) {
	now := l.clock.Now()
	rec, updated, err := l.repo.CheckOut(ctx, studentID, date, now, in)
	if err != nil {
		return Record{}, errors.Wrap(err, "checking out")
	}
	if updated {
		return rec, nil
	}

	// find out which condition failed
	rec, found, err := l.repo.Get(ctx, studentID, date)
	if err != nil {
		return Record{}, errors.Wrap(err, "reading record")
	}
	switch {
	case !found || !rec.CheckedIn():
		return Record{}, ErrNotCheckedIn
	case rec.CheckedOut():
		return Record{}, ErrAlreadyCheckedOut
	default:
		return Record{}, ErrCheckOutTooEarly
	}
}

// GetForDay returns the record of studentID on date; found is false when there is none.
func (l *Ledger) GetForDay(ctx context.Context, studentID int, date core.Date) (Record, bool, error) {
	rec, found, err := l.repo.Get(ctx, studentID, date)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "reading record")
	}
	return rec, found, nil
}

// SetManualStatus assigns status to (studentID, date) without touching check-in/out timestamps.
func (l *Ledger) SetManualStatus(ctx context.Context, studentID int, date core.Date, status Status, note string) (Record, error) {
	if !status.Valid() {
		return Record{}, ErrInvalidStatus
	}
	rec, err := l.repo.SetStatus(ctx, studentID, date, status, note, l.clock.Now())
	if err != nil {
		if errors.Is(err, ErrUnknownStudent) {
			return Record{}, err
		}
		return Record{}, errors.Wrap(err, "setting status")
	}
	return rec, nil
}

func (l *Ledger) Query(ctx context.Context, filter QueryFilter) (Page, error) {
	filter.Clean()
	records, total, err := l.repo.Query(ctx, filter)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying records")
	}
	if records == nil {
		records = []RecordView{}
	}
	return Page{Records: records, PageInfo: core.NewPageInfo(filter.Pagination, total)}, nil
}

// History returns the latest records of studentID, newest first.
func (l *Ledger) History(ctx context.Context, studentID int, filter QueryFilter) (Page, error) {
	filter.StudentID = studentID
	filter.ClassID = 0
	filter.Search = ""
	return l.Query(ctx, filter)
}

// FinalizeDay stores absent records for the active students who have none on date.
// Only past days can be finalized and students enrolled after date are skipped.
func (l *Ledger) FinalizeDay(ctx context.Context, date core.Date) (int, error) {
	if !date.Before(l.Today()) {
		return 0, ErrDayNotOver
	}
	n, err := l.repo.InsertAbsences(ctx, date, date.AddDays(1).In(l.loc), l.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "inserting absences")
	}
	l.logger.Info(fmt.Sprintf("attendance: finalized %s, %d absence(s) recorded", date, n))
	return n, nil
}
