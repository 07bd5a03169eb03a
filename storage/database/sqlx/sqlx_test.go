package sqlxrepos

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/roster"
)

func Test_isViolation(t *testing.T) {
	nisErr := &pq.Error{Code: uniqueViolation, Constraint: "student_nis_key"}
	fkErr := &pq.Error{Code: foreignKeyViolation, Constraint: "attendance_student_id_fkey"}

	assert.True(t, isViolation(nisErr, uniqueViolation))
	assert.True(t, isViolation(nisErr, uniqueViolation, "student_nisn_key", "student_nis_key"))
	assert.False(t, isViolation(nisErr, uniqueViolation, "student_nisn_key"))
	assert.False(t, isViolation(nisErr, foreignKeyViolation))
	assert.False(t, isViolation(errors.New("boom"), uniqueViolation))
	assert.False(t, isViolation(nil, uniqueViolation))

	assert.Equal(t, attendance.ErrUnknownStudent, writeError(fkErr, "writing"))
	assert.Equal(t, attendance.ErrConstraintViolation, writeError(&pq.Error{Code: uniqueViolation}, "writing"))
	assert.EqualError(t, writeError(errors.New("boom"), "writing"), "writing: boom")

	assert.Equal(t, roster.ErrStudentHasAttendance, studentDeleteError(fkErr))
	assert.EqualError(t, studentDeleteError(errors.New("boom")), "deleting student: boom")
}

func Test_where(t *testing.T) {
	var w where
	assert.Equal(t, "", w.String())

	w.add("a.date = ?", core.NewDate(2024, time.March, 4))
	w.add("(s.name ILIKE ? OR s.nis ILIKE ?)", "%a%", "%a%")
	assert.Equal(t, " WHERE a.date = ? AND (s.name ILIKE ? OR s.nis ILIKE ?)", w.String())
	assert.Len(t, w.args, 3)
}

func Test_likePattern(t *testing.T) {
	assert.Equal(t, "%ani%", likePattern("ani"))
	assert.Equal(t, `%100\%\_x\\%`, likePattern(`100%_x\`))
}

func Test_recordRow_model(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	in := time.Date(2024, time.March, 4, 7, 0, 0, 0, jakarta)
	row := recordRow{
		ID:        1,
		StudentID: 2,
		Date:      core.NewDate(2024, time.March, 4),
		CheckInAt: null.TimeFrom(in),
		Status:    "present",
		CreatedAt: in,
		UpdatedAt: in,
	}
	rec := row.model()
	if assert.NotNil(t, rec.CheckInAt) {
		assert.Equal(t, time.UTC, rec.CheckInAt.Location())
		assert.True(t, rec.CheckInAt.Equal(in))
	}
	assert.Nil(t, rec.CheckOutAt)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
}
