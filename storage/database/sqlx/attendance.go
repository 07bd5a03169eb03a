package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
)

const recordColumns = `id, student_id, date, check_in_at, check_out_at, status, check_in_location, check_out_location,
	check_in_photo, check_out_photo, note, created_at, updated_at`

// recordOrderColumns whitelists the client orderings.
var recordOrderColumns = map[string]string{
	"date":   "a.date",
	"name":   "s.name",
	"nis":    "s.nis",
	"status": "a.status",
}

type (
	recordRow struct {
		ID               int       `db:"id"`
		StudentID        int       `db:"student_id"`
		Date             core.Date `db:"date"`
		CheckInAt        null.Time `db:"check_in_at"`
		CheckOutAt       null.Time `db:"check_out_at"`
		Status           string    `db:"status"`
		CheckInLocation  string    `db:"check_in_location"`
		CheckOutLocation string    `db:"check_out_location"`
		CheckInPhoto     string    `db:"check_in_photo"`
		CheckOutPhoto    string    `db:"check_out_photo"`
		Note             string    `db:"note"`
		CreatedAt        time.Time `db:"created_at"`
		UpdatedAt        time.Time `db:"updated_at"`
	}

	recordViewRow struct {
		recordRow
		NIS         string      `db:"nis"`
		StudentName string      `db:"student_name"`
		ClassID     null.Int    `db:"class_id"`
		ClassName   null.String `db:"class_name"`
	}

	statusCountRow struct {
		Date   core.Date `db:"date"`
		Status string    `db:"status"`
		N      int       `db:"n"`
	}
)

func (r recordRow) model() attendance.Record {
	return attendance.Record{
		ID:               r.ID,
		StudentID:        r.StudentID,
		Date:             r.Date,
		CheckInAt:        utcPtr(r.CheckInAt),
		CheckOutAt:       utcPtr(r.CheckOutAt),
		Status:           attendance.Status(r.Status),
		CheckInLocation:  r.CheckInLocation,
		CheckOutLocation: r.CheckOutLocation,
		CheckInPhoto:     r.CheckInPhoto,
		CheckOutPhoto:    r.CheckOutPhoto,
		Note:             r.Note,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r recordViewRow) view() attendance.RecordView {
	return attendance.RecordView{
		Record:      r.recordRow.model(),
		NIS:         r.NIS,
		StudentName: r.StudentName,
		ClassID:     r.ClassID.Ptr(),
		ClassName:   r.ClassName.String,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

// writeError maps constraint violations of writes to the attendance errors.
func writeError(err error, msg string) error {
	switch {
	case isViolation(err, foreignKeyViolation):
		return attendance.ErrUnknownStudent
	case isViolation(err, uniqueViolation):
		return attendance.ErrConstraintViolation
	}
	return errors.Wrap(err, msg)
}

// CheckIn relies on the (student_id, date) key: the upsert only fills a record without check-in,
// so of two racing check-ins exactly one gets a row back.
func (repo *attendanceRepository) CheckIn(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	q := `INSERT INTO attendance AS a (student_id, date, check_in_at, status, check_in_location, check_in_photo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, date) DO UPDATE SET
			check_in_at = EXCLUDED.check_in_at,
			status = EXCLUDED.status,
			check_in_location = EXCLUDED.check_in_location,
			check_in_photo = EXCLUDED.check_in_photo,
			updated_at = EXCLUDED.updated_at
		WHERE a.check_in_at IS NULL
		RETURNING ` + recordColumns
	var row recordRow
	err := repo.db.GetContext(ctx, &row, q,
		rec.StudentID, rec.Date, null.TimeFromPtr(rec.CheckInAt), string(rec.Status),
		rec.CheckInLocation, rec.CheckInPhoto, rec.CreatedAt, rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return attendance.Record{}, attendance.ErrAlreadyCheckedIn
	}
	if err != nil {
		return attendance.Record{}, writeError(err, "upserting check-in")
	}
	return row.model(), nil
}

func (repo *attendanceRepository) CheckOut(
	ctx context.Context,
	studentID int,
	date core.Date,
	at time.Time,
	in attendance.CheckInput,
) (attendance.Record, bool, error) {
	q := `UPDATE attendance SET check_out_at = $3, check_out_location = $4, check_out_photo = $5, updated_at = $3
		WHERE student_id = $1 AND date = $2
			AND check_in_at IS NOT NULL AND check_out_at IS NULL AND check_in_at < $3
		RETURNING ` + recordColumns
	var row recordRow
	err := repo.db.GetContext(ctx, &row, q, studentID, date, at, in.Location, in.PhotoRef)
	if err == sql.ErrNoRows {
		return attendance.Record{}, false, nil
	}
	if err != nil {
		return attendance.Record{}, false, errors.Wrap(err, "updating check-out")
	}
	return row.model(), true, nil
}

func (repo *attendanceRepository) Get(ctx context.Context, studentID int, date core.Date) (attendance.Record, bool, error) {
	q := `SELECT ` + recordColumns + ` FROM attendance WHERE student_id = $1 AND date = $2`
	var row recordRow
	err := repo.db.GetContext(ctx, &row, q, studentID, date)
	if err == sql.ErrNoRows {
		return attendance.Record{}, false, nil
	}
	if err != nil {
		return attendance.Record{}, false, errors.Wrap(err, "selecting record")
	}
	return row.model(), true, nil
}

func (repo *attendanceRepository) SetStatus(
	ctx context.Context,
	studentID int,
	date core.Date,
	status attendance.Status,
	note string,
	at time.Time,
) (attendance.Record, error) {
	q := `INSERT INTO attendance (student_id, date, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns
	var row recordRow
	if err := repo.db.GetContext(ctx, &row, q, studentID, date, string(status), note, at); err != nil {
		return attendance.Record{}, writeError(err, "upserting status")
	}
	return row.model(), nil
}

func (repo *attendanceRepository) Query(ctx context.Context, filter attendance.QueryFilter) ([]attendance.RecordView, int, error) {
	var w where
	if !filter.Date.IsZero() {
		w.add(`a.date = ?`, filter.Date)
	}
	if !filter.From.IsZero() {
		w.add(`a.date >= ?`, filter.From)
	}
	if !filter.To.IsZero() {
		w.add(`a.date <= ?`, filter.To)
	}
	if filter.StudentID > 0 {
		w.add(`a.student_id = ?`, filter.StudentID)
	}
	if filter.ClassID > 0 {
		w.add(`s.class_id = ?`, filter.ClassID)
	}
	if filter.Status != "" {
		w.add(`a.status = ?`, string(filter.Status))
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add(`(s.name ILIKE ? OR s.nis ILIKE ?)`, pattern, pattern)
	}
	from := ` FROM attendance a JOIN student s ON s.id = a.student_id LEFT JOIN classroom c ON c.id = s.class_id`

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*)`+from+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting records")
	}

	orderBy := core.OrderBy(filter.Orderings, recordOrderColumns, "a.date DESC")
	q := `SELECT a.id, a.student_id, a.date, a.check_in_at, a.check_out_at, a.status, a.check_in_location,
			a.check_out_location, a.check_in_photo, a.check_out_photo, a.note, a.created_at, a.updated_at,
			s.nis, s.name AS student_name, s.class_id, c.name AS class_name` +
		from + w.String() + ` ORDER BY ` + orderBy + `, a.id DESC LIMIT ? OFFSET ?`
	var rows []recordViewRow
	args := append(w.args, filter.Limit(), filter.Offset())
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting records")
	}
	views := make([]attendance.RecordView, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.view())
	}
	return views, total, nil
}

func (repo *attendanceRepository) InsertAbsences(ctx context.Context, date core.Date, enrolledBefore, at time.Time) (int, error) {
	q := `INSERT INTO attendance (student_id, date, status, created_at, updated_at)
		SELECT s.id, $1::date, $2, $3::timestamptz, $3::timestamptz FROM student s
		WHERE s.status = 'active' AND s.created_at < $4::timestamptz
		ON CONFLICT (student_id, date) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, q, date, string(attendance.StatusAbsent), at, enrolledBefore)
	if err != nil {
		return 0, errors.Wrap(err, "inserting absences")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting inserted absences")
}

func (repo *attendanceRepository) CountByDay(ctx context.Context, from, to core.Date, classID *int) (map[core.Date]attendance.StatusCounts, error) {
	q := `SELECT a.date, a.status, COUNT(*) AS n
		FROM attendance a JOIN student s ON s.id = a.student_id
		WHERE a.date BETWEEN $1 AND $2 AND s.status = 'active' AND ($3::int IS NULL OR s.class_id = $3)
		GROUP BY a.date, a.status`
	var rows []statusCountRow
	if err := repo.db.SelectContext(ctx, &rows, q, from, to, null.IntFromPtr(classID)); err != nil {
		return nil, errors.Wrap(err, "counting records by day")
	}
	counts := make(map[core.Date]attendance.StatusCounts)
	for _, r := range rows {
		c := counts[r.Date]
		c.Add(attendance.Status(r.Status), r.N)
		counts[r.Date] = c
	}
	return counts, nil
}

func (repo *attendanceRepository) CountForStudent(ctx context.Context, studentID int, from, to core.Date) (attendance.StatusCounts, error) {
	q := `SELECT status, COUNT(*) AS n FROM attendance
		WHERE student_id = $1 AND date BETWEEN $2 AND $3
		GROUP BY status`
	var rows []statusCountRow
	if err := repo.db.SelectContext(ctx, &rows, q, studentID, from, to); err != nil {
		return attendance.StatusCounts{}, errors.Wrap(err, "counting student records")
	}
	var counts attendance.StatusCounts
	for _, r := range rows {
		counts.Add(attendance.Status(r.Status), r.N)
	}
	return counts, nil
}

func (repo *attendanceRepository) CountActiveStudents(ctx context.Context, classID *int) (int, error) {
	return countActiveStudents(ctx, repo.db, classID)
}
