package sqlxrepos_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/roster"
	"github.com/trezcool/absensi/storage/database"
	sqlxrepos "github.com/trezcool/absensi/storage/database/sqlx"
	"github.com/trezcool/absensi/tests"
)

var monday = core.NewDate(2024, time.March, 4)

type pgFixture struct {
	clock      *testutil.Clock
	rosterRepo roster.Repository
	attRepo    attendance.Repository
	ledger     *attendance.Ledger
}

// setupPostgres migrates and empties the database at TEST_DATABASE_URL, skipping the test when unset.
func setupPostgres(t *testing.T) *pgFixture {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db, "up"))
	_, err = db.Exec(`TRUNCATE attendance, student, classroom RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	f := &pgFixture{
		clock:      testutil.NewClock(testutil.At(monday, 7, 0)),
		rosterRepo: sqlxrepos.NewRosterRepository(db),
		attRepo:    sqlxrepos.NewAttendanceRepository(db),
	}
	f.ledger = attendance.NewLedger(f.attRepo, f.clock, testutil.Config(), new(testutil.Logger))
	return f
}

func TestPostgres_CheckIn_concurrent(t *testing.T) {
	f := setupPostgres(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{Location: "gerbang"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.True(t, errors.Is(err, attendance.ErrAlreadyCheckedIn), "got %v", err)
	}
}

func TestPostgres_CheckIn_fillsManualStatus(t *testing.T) {
	f := setupPostgres(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	_, err := f.ledger.SetManualStatus(ctx, student.ID, monday, attendance.StatusSick, "flu")
	require.NoError(t, err)

	rec, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	assert.NotNil(t, rec.CheckInAt)
	assert.Equal(t, "flu", rec.Note)

	_, err = f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
	assert.Equal(t, attendance.ErrAlreadyCheckedIn, err)

	_, err = f.ledger.CheckIn(ctx, 404, monday, attendance.CheckInput{})
	assert.Equal(t, attendance.ErrUnknownStudent, err)
}

func TestPostgres_CheckOut_conditional(t *testing.T) {
	f := setupPostgres(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	_, updated, err := f.attRepo.CheckOut(ctx, student.ID, monday, f.clock.Now(), attendance.CheckInput{})
	require.NoError(t, err)
	assert.False(t, updated, "not checked in")

	_, err = f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
	require.NoError(t, err)

	_, updated, err = f.attRepo.CheckOut(ctx, student.ID, monday, f.clock.Now(), attendance.CheckInput{})
	require.NoError(t, err)
	assert.False(t, updated, "same instant as check-in")

	out := testutil.At(monday, 14, 0)
	rec, updated, err := f.attRepo.CheckOut(ctx, student.ID, monday, out, attendance.CheckInput{Location: "gerbang"})
	require.NoError(t, err)
	assert.True(t, updated)
	if assert.NotNil(t, rec.CheckOutAt) {
		assert.True(t, out.Equal(*rec.CheckOutAt))
	}
	assert.Equal(t, "gerbang", rec.CheckOutLocation)

	_, updated, err = f.attRepo.CheckOut(ctx, student.ID, monday, testutil.At(monday, 15, 0), attendance.CheckInput{})
	require.NoError(t, err)
	assert.False(t, updated, "already checked out")
}

func TestPostgres_FinalizeAndCount(t *testing.T) {
	f := setupPostgres(t)
	ctx := context.Background()
	students := testutil.CreateStudents(t, f.rosterRepo, 3, nil)
	testutil.CreateStudent(t, f.rosterRepo, "9999", "Gone", nil, false)

	created := testutil.At(monday.AddDays(1), 7, 0)
	_, err := f.rosterRepo.CreateStudent(ctx, roster.Student{
		NIS:       "2001",
		Name:      "Baru",
		Gender:    roster.GenderFemale,
		Status:    roster.StatusActive,
		CreatedAt: created,
		UpdatedAt: created,
	})
	require.NoError(t, err)

	_, err = f.ledger.CheckIn(ctx, students[0].ID, monday, attendance.CheckInput{})
	require.NoError(t, err)
	_, err = f.ledger.SetManualStatus(ctx, students[1].ID, monday, attendance.StatusExcused, "")
	require.NoError(t, err)

	f.clock.Set(testutil.At(monday.AddDays(2), 0, 5))
	n, err := f.ledger.FinalizeDay(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the student enrolled on tuesday is skipped")

	n, err = f.ledger.FinalizeDay(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	counts, err := f.attRepo.CountByDay(ctx, monday, monday.AddDays(1), nil)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusCounts{Present: 1, Excused: 1, Absent: 1}, counts[monday])
	assert.Equal(t, attendance.StatusCounts{}, counts[monday.AddDays(1)])

	err = f.rosterRepo.DeleteStudent(ctx, students[0].ID)
	assert.Equal(t, roster.ErrStudentHasAttendance, err)
}
