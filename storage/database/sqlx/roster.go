package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/roster"
)

const (
	classRoomColumns = `c.id, c.name, c.grade, c.track, c.homeroom_teacher, c.capacity, c.created_at, c.updated_at`
	studentColumns   = `s.id, s.nis, s.nisn, s.name, s.class_id, s.gender, s.birth_date, s.address, s.phone,
		s.parent_name, s.parent_phone, s.photo_ref, s.status, s.created_at, s.updated_at`
	studentReturning = `id, nis, nisn, name, class_id, gender, birth_date, address, phone,
		parent_name, parent_phone, photo_ref, status, created_at, updated_at`
)

type (
	classRoomRow struct {
		ID              int       `db:"id"`
		Name            string    `db:"name"`
		Grade           string    `db:"grade"`
		Track           string    `db:"track"`
		HomeroomTeacher string    `db:"homeroom_teacher"`
		Capacity        int       `db:"capacity"`
		CreatedAt       time.Time `db:"created_at"`
		UpdatedAt       time.Time `db:"updated_at"`
		StudentCount    int       `db:"student_count"`
	}

	studentRow struct {
		ID          int         `db:"id"`
		NIS         string      `db:"nis"`
		NISN        null.String `db:"nisn"`
		Name        string      `db:"name"`
		ClassID     null.Int    `db:"class_id"`
		Gender      null.String `db:"gender"`
		BirthDate   core.Date   `db:"birth_date"`
		Address     string      `db:"address"`
		Phone       string      `db:"phone"`
		ParentName  string      `db:"parent_name"`
		ParentPhone string      `db:"parent_phone"`
		PhotoRef    string      `db:"photo_ref"`
		Status      string      `db:"status"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
		ClassName   null.String `db:"class_name"`
	}
)

func (r classRoomRow) model() roster.ClassRoom {
	return roster.ClassRoom{
		ID:              r.ID,
		Name:            r.Name,
		Grade:           r.Grade,
		Track:           r.Track,
		HomeroomTeacher: r.HomeroomTeacher,
		Capacity:        r.Capacity,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (r studentRow) model() roster.Student {
	return roster.Student{
		ID:          r.ID,
		NIS:         r.NIS,
		NISN:        r.NISN.Ptr(),
		Name:        r.Name,
		ClassID:     r.ClassID.Ptr(),
		Gender:      roster.Gender(r.Gender.String),
		BirthDate:   r.BirthDate,
		Address:     r.Address,
		Phone:       r.Phone,
		ParentName:  r.ParentName,
		ParentPhone: r.ParentPhone,
		PhotoRef:    r.PhotoRef,
		Status:      roster.StudentStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r studentRow) view() roster.StudentView {
	return roster.StudentView{Student: r.model(), ClassName: r.ClassName.String}
}

func nullGender(g roster.Gender) null.String {
	return null.NewString(string(g), g != "")
}

type rosterRepository struct {
	db *sqlx.DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *sqlx.DB) roster.Repository {
	return &rosterRepository{db: db}
}

// classRoomError maps store errors to roster errors, wrapping anything else with msg.
func classRoomError(err error, msg string) error {
	switch {
	case err == sql.ErrNoRows:
		return roster.ErrClassRoomNotFound
	case isViolation(err, uniqueViolation, "classroom_name_key"):
		return roster.ErrClassRoomExists
	}
	return errors.Wrap(err, msg)
}

func (repo *rosterRepository) CreateClassRoom(ctx context.Context, class roster.ClassRoom) (roster.ClassRoom, error) {
	q := `INSERT INTO classroom (name, grade, track, homeroom_teacher, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q,
		class.Name, class.Grade, class.Track, class.HomeroomTeacher, class.Capacity, class.CreatedAt, class.UpdatedAt,
	).Scan(&class.ID)
	if err != nil {
		return roster.ClassRoom{}, classRoomError(err, "inserting class")
	}
	return class, nil
}

func (repo *rosterRepository) UpdateClassRoom(ctx context.Context, class roster.ClassRoom) (roster.ClassRoom, error) {
	q := `UPDATE classroom c SET name = $2, grade = $3, track = $4, homeroom_teacher = $5, capacity = $6, updated_at = $7
		WHERE c.id = $1 RETURNING ` + classRoomColumns
	var row classRoomRow
	err := repo.db.GetContext(ctx, &row, q,
		class.ID, class.Name, class.Grade, class.Track, class.HomeroomTeacher, class.Capacity, class.UpdatedAt,
	)
	if err != nil {
		return roster.ClassRoom{}, classRoomError(err, "updating class")
	}
	return row.model(), nil
}

const classRoomSelect = `SELECT ` + classRoomColumns + `,
	(SELECT COUNT(*) FROM student s WHERE s.class_id = c.id) AS student_count
	FROM classroom c`

func (repo *rosterRepository) GetClassRoom(ctx context.Context, id int) (roster.ClassRoomView, error) {
	var row classRoomRow
	if err := repo.db.GetContext(ctx, &row, classRoomSelect+` WHERE c.id = $1`, id); err != nil {
		return roster.ClassRoomView{}, classRoomError(err, "selecting class")
	}
	return roster.NewClassRoomView(row.model(), row.StudentCount), nil
}

func (repo *rosterRepository) QueryClassRooms(ctx context.Context, filter roster.ClassRoomFilter) ([]roster.ClassRoomView, error) {
	var w where
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add(`(c.name ILIKE ? OR c.homeroom_teacher ILIKE ?)`, pattern, pattern)
	}
	if filter.Grade != "" {
		w.add(`c.grade = ?`, filter.Grade)
	}

	var rows []classRoomRow
	q := repo.db.Rebind(classRoomSelect + w.String() + ` ORDER BY c.name, c.id`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]roster.ClassRoomView, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, roster.NewClassRoomView(r.model(), r.StudentCount))
	}
	return classes, nil
}

func (repo *rosterRepository) DeleteClassRoom(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM classroom WHERE id = $1`, id)
	if err != nil {
		if isViolation(err, foreignKeyViolation) {
			return roster.ErrClassRoomNotEmpty
		}
		return errors.Wrap(err, "deleting class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.ErrClassRoomNotFound
	}
	return nil
}

func (repo *rosterRepository) CheckStudentUniqueness(ctx context.Context, nis string, nisn *string, excludedID int) error {
	q := `SELECT
		EXISTS (SELECT 1 FROM student WHERE nis = $1 AND id <> $3),
		EXISTS (SELECT 1 FROM student WHERE $2::text IS NOT NULL AND nisn = $2 AND id <> $3)`
	var nisTaken, nisnTaken bool
	if err := repo.db.QueryRowxContext(ctx, q, nis, null.StringFromPtr(nisn), excludedID).Scan(&nisTaken, &nisnTaken); err != nil {
		return errors.Wrap(err, "checking student uniqueness")
	}
	switch {
	case nisTaken:
		return roster.ErrNISExists
	case nisnTaken:
		return roster.ErrNISNExists
	}
	return nil
}

func studentError(err error, msg string) error {
	switch {
	case err == sql.ErrNoRows:
		return roster.ErrStudentNotFound
	case isViolation(err, uniqueViolation, "student_nis_key"):
		return roster.ErrNISExists
	case isViolation(err, uniqueViolation, "student_nisn_key"):
		return roster.ErrNISNExists
	case isViolation(err, foreignKeyViolation, "student_class_id_fkey"):
		return roster.ErrClassRoomNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *rosterRepository) CreateStudent(ctx context.Context, student roster.Student) (roster.Student, error) {
	q := `INSERT INTO student (nis, nisn, name, class_id, gender, birth_date, address, phone,
			parent_name, parent_phone, photo_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q,
		student.NIS, null.StringFromPtr(student.NISN), student.Name, null.IntFromPtr(student.ClassID),
		nullGender(student.Gender), student.BirthDate, student.Address, student.Phone,
		student.ParentName, student.ParentPhone, student.PhotoRef, string(student.Status),
		student.CreatedAt, student.UpdatedAt,
	).Scan(&student.ID)
	if err != nil {
		return roster.Student{}, studentError(err, "inserting student")
	}
	return student, nil
}

func (repo *rosterRepository) UpdateStudent(ctx context.Context, student roster.Student) (roster.Student, error) {
	q := `UPDATE student SET nis = $2, nisn = $3, name = $4, class_id = $5, gender = $6, birth_date = $7,
			address = $8, phone = $9, parent_name = $10, parent_phone = $11, updated_at = $12
		WHERE id = $1 RETURNING ` + studentReturning
	var row studentRow
	err := repo.db.GetContext(ctx, &row, q,
		student.ID, student.NIS, null.StringFromPtr(student.NISN), student.Name, null.IntFromPtr(student.ClassID),
		nullGender(student.Gender), student.BirthDate, student.Address, student.Phone,
		student.ParentName, student.ParentPhone, student.UpdatedAt,
	)
	if err != nil {
		return roster.Student{}, studentError(err, "updating student")
	}
	return row.model(), nil
}

const studentSelect = `SELECT ` + studentColumns + `, c.name AS class_name
	FROM student s LEFT JOIN classroom c ON c.id = s.class_id`

func (repo *rosterRepository) GetStudent(ctx context.Context, id int) (roster.StudentView, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, studentSelect+` WHERE s.id = $1`, id); err != nil {
		return roster.StudentView{}, studentError(err, "selecting student")
	}
	return row.view(), nil
}

func (repo *rosterRepository) FilterStudents(ctx context.Context, filter roster.StudentFilter) ([]roster.StudentView, int, error) {
	var w where
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add(`(s.name ILIKE ? OR s.nis ILIKE ?)`, pattern, pattern)
	}
	if filter.ClassID > 0 {
		w.add(`s.class_id = ?`, filter.ClassID)
	}
	if filter.Status != "" {
		w.add(`s.status = ?`, string(filter.Status))
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*) FROM student s`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting students")
	}

	var rows []studentRow
	q := repo.db.Rebind(studentSelect + w.String() + ` ORDER BY s.name, s.id LIMIT ? OFFSET ?`)
	args := append(w.args, filter.Limit(), filter.Offset())
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting students")
	}
	students := make([]roster.StudentView, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.view())
	}
	return students, total, nil
}

func (repo *rosterRepository) updateStudentColumn(ctx context.Context, id int, column string, value interface{}) (roster.Student, error) {
	q := `UPDATE student SET ` + column + ` = $2 WHERE id = $1 RETURNING ` + studentReturning
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, q, id, value); err != nil {
		return roster.Student{}, studentError(err, "updating student "+column)
	}
	return row.model(), nil
}

func (repo *rosterRepository) SetStudentStatus(ctx context.Context, id int, status roster.StudentStatus) (roster.Student, error) {
	return repo.updateStudentColumn(ctx, id, "status", string(status))
}

func (repo *rosterRepository) SetStudentPhoto(ctx context.Context, id int, ref string) (roster.Student, error) {
	return repo.updateStudentColumn(ctx, id, "photo_ref", ref)
}

func (repo *rosterRepository) DeleteStudent(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM student WHERE id = $1`, id)
	if err != nil {
		return studentDeleteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.ErrStudentNotFound
	}
	return nil
}

// studentDeleteError maps an attendance row still referencing the student to roster.ErrStudentHasAttendance.
func studentDeleteError(err error) error {
	if isViolation(err, foreignKeyViolation, "attendance_student_id_fkey") {
		return roster.ErrStudentHasAttendance
	}
	return errors.Wrap(err, "deleting student")
}

func (repo *rosterRepository) StudentHasAttendance(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM attendance WHERE student_id = $1)`, id)
	return exists, errors.Wrap(err, "checking attendance history")
}

func (repo *rosterRepository) CountActiveStudents(ctx context.Context, classID *int) (int, error) {
	return countActiveStudents(ctx, repo.db, classID)
}

func countActiveStudents(ctx context.Context, db *sqlx.DB, classID *int) (int, error) {
	var n int
	q := `SELECT COUNT(*) FROM student WHERE status = 'active' AND ($1::int IS NULL OR class_id = $1)`
	err := db.GetContext(ctx, &n, q, null.IntFromPtr(classID))
	return n, errors.Wrap(err, "counting active students")
}
