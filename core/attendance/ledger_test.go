package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/roster"
	"github.com/trezcool/absensi/storage/database/dummy"
	"github.com/trezcool/absensi/tests"
)

var monday = core.NewDate(2024, time.March, 4)

type fixture struct {
	clock      *testutil.Clock
	logger     *testutil.Logger
	repo       attendance.Repository
	rosterRepo roster.Repository
	ledger     *attendance.Ledger
	aggregator *attendance.Aggregator
}

func setup(t *testing.T) *fixture {
	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := testutil.Config()
	f := &fixture{
		clock:      testutil.NewClock(testutil.At(monday, 7, 0)),
		logger:     new(testutil.Logger),
		repo:       dummydb.NewAttendanceRepository(db),
		rosterRepo: dummydb.NewRosterRepository(db),
	}
	f.ledger = attendance.NewLedger(f.repo, f.clock, conf, f.logger)
	f.aggregator = attendance.NewAggregator(f.repo, f.clock, conf)
	return f
}

func TestLedger_Today(t *testing.T) {
	f := setup(t)
	// 23:30 UTC on Monday is already Tuesday in Jakarta
	f.clock.Set(time.Date(2024, time.March, 4, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, monday.AddDays(1), f.ledger.Today())
}

func TestLedger_CheckIn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	rec, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{Location: "-6.2,106.8", PhotoRef: "checkins/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, student.ID, rec.StudentID)
	assert.Equal(t, monday, rec.Date)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	require.NotNil(t, rec.CheckInAt)
	assert.True(t, rec.CheckInAt.Equal(testutil.At(monday, 7, 0)))
	assert.Nil(t, rec.CheckOutAt)
	assert.Equal(t, "-6.2,106.8", rec.CheckInLocation)
	assert.Equal(t, "checkins/a.jpg", rec.CheckInPhoto)

	got, found, err := f.ledger.GetForDay(ctx, student.ID, monday)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)
}

func TestLedger_CheckIn_twice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	first, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{Location: "gate A"})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{Location: "gate B"})
	assert.Equal(t, attendance.ErrAlreadyCheckedIn, err)

	got, found, err := f.ledger.GetForDay(ctx, student.ID, monday)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, got, "a failed check-in must not overwrite the record")
}

func TestLedger_CheckIn_unknownStudent(t *testing.T) {
	f := setup(t)
	_, err := f.ledger.CheckIn(context.Background(), 404, monday, attendance.CheckInput{})
	assert.Equal(t, attendance.ErrUnknownStudent, err)
}

func TestLedger_CheckIn_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				successes++
			case attendance.ErrAlreadyCheckedIn:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

// racingRepository simulates a store reporting a raw uniqueness violation.
type racingRepository struct {
	attendance.Repository
	reread bool // whether the re-read finds the winning check-in
}

func (r *racingRepository) CheckIn(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	if r.reread {
		if _, err := r.Repository.CheckIn(ctx, rec); err != nil {
			return attendance.Record{}, err
		}
	}
	return attendance.Record{}, attendance.ErrConstraintViolation
}

func TestLedger_CheckIn_constraintViolation(t *testing.T) {
	tests := []struct {
		name     string
		reread   bool
		wantWarn int
	}{
		{name: "translated silently", reread: true, wantWarn: 0},
		{name: "translated and logged when unresolved", reread: false, wantWarn: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
			ledger := attendance.NewLedger(&racingRepository{Repository: f.repo, reread: tt.reread}, f.clock, testutil.Config(), f.logger)

			_, err := ledger.CheckIn(context.Background(), student.ID, monday, attendance.CheckInput{})
			assert.Equal(t, attendance.ErrAlreadyCheckedIn, err)
			assert.Equal(t, tt.wantWarn, f.logger.Count("WARN"))
		})
	}
}

func TestLedger_CheckOut(t *testing.T) {
	ctx := context.Background()

	t.Run("not checked in", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

		_, err := f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{})
		assert.Equal(t, attendance.ErrNotCheckedIn, err)

		_, found, err := f.ledger.GetForDay(ctx, student.ID, monday)
		require.NoError(t, err)
		assert.False(t, found, "a failed check-out must not create a record")
	})

	t.Run("manual status without check-in", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
		_, err := f.ledger.SetManualStatus(ctx, student.ID, monday, attendance.StatusSick, "flu")
		require.NoError(t, err)

		_, err = f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{})
		assert.Equal(t, attendance.ErrNotCheckedIn, err)
	})

	t.Run("checked out", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
		in, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{Location: "gate"})
		require.NoError(t, err)

		f.clock.Set(testutil.At(monday, 14, 30))
		rec, err := f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{Location: "hall", PhotoRef: "out.jpg"})
		require.NoError(t, err)
		require.NotNil(t, rec.CheckOutAt)
		assert.True(t, rec.CheckOutAt.After(*rec.CheckInAt))
		assert.True(t, rec.CheckOutAt.Equal(testutil.At(monday, 14, 30)))
		assert.Equal(t, "hall", rec.CheckOutLocation)
		assert.Equal(t, "out.jpg", rec.CheckOutPhoto)
		// check-in side untouched
		assert.Equal(t, in.CheckInAt, rec.CheckInAt)
		assert.Equal(t, "gate", rec.CheckInLocation)
		assert.Equal(t, attendance.StatusPresent, rec.Status)

		f.clock.Advance(time.Minute)
		_, err = f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{})
		assert.Equal(t, attendance.ErrAlreadyCheckedOut, err)

		got, _, err := f.ledger.GetForDay(ctx, student.ID, monday)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("not later than check-in", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
		_, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
		require.NoError(t, err)

		// same instant
		_, err = f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{})
		assert.Equal(t, attendance.ErrCheckOutTooEarly, err)

		// clock skew between instances
		f.clock.Advance(-time.Minute)
		_, err = f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{})
		assert.Equal(t, attendance.ErrCheckOutTooEarly, err)
	})
}

func TestLedger_GetForDay_absent(t *testing.T) {
	f := setup(t)
	rec, found, err := f.ledger.GetForDay(context.Background(), 1, monday)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, attendance.Record{}, rec)
}

func TestLedger_SetManualStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid status writes nothing", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

		for _, status := range []attendance.Status{"", "late", "PRESENT"} {
			_, err := f.ledger.SetManualStatus(ctx, student.ID, monday, status, "")
			assert.Equal(t, attendance.ErrInvalidStatus, err, "status %q", status)
		}
		_, found, err := f.ledger.GetForDay(ctx, student.ID, monday)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("creates a record without timestamps", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

		rec, err := f.ledger.SetManualStatus(ctx, student.ID, monday, attendance.StatusExcused, "family event")
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusExcused, rec.Status)
		assert.Equal(t, "family event", rec.Note)
		assert.Nil(t, rec.CheckInAt)
		assert.Nil(t, rec.CheckOutAt)
	})

	t.Run("keeps check-in and check-out", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
		in, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
		require.NoError(t, err)
		f.clock.Set(testutil.At(monday, 12, 0))
		out, err := f.ledger.CheckOut(ctx, student.ID, monday, attendance.CheckInput{})
		require.NoError(t, err)

		rec, err := f.ledger.SetManualStatus(ctx, student.ID, monday, attendance.StatusSick, "went home sick")
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusSick, rec.Status)
		assert.Equal(t, in.CheckInAt, rec.CheckInAt)
		assert.Equal(t, out.CheckOutAt, rec.CheckOutAt)
		assert.Equal(t, in.ID, rec.ID)
	})

	t.Run("check-in fills a manual record", func(t *testing.T) {
		f := setup(t)
		student := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
		manual, err := f.ledger.SetManualStatus(ctx, student.ID, monday, attendance.StatusAbsent, "")
		require.NoError(t, err)

		rec, err := f.ledger.CheckIn(ctx, student.ID, monday, attendance.CheckInput{})
		require.NoError(t, err)
		assert.Equal(t, manual.ID, rec.ID)
		assert.Equal(t, attendance.StatusPresent, rec.Status)
		assert.NotNil(t, rec.CheckInAt)
	})

	t.Run("unknown student", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.SetManualStatus(ctx, 404, monday, attendance.StatusSick, "")
		assert.Equal(t, attendance.ErrUnknownStudent, err)
	})
}

func TestLedger_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	classA := testutil.CreateClassRoom(t, f.rosterRepo, "X IPA 1")
	classB := testutil.CreateClassRoom(t, f.rosterRepo, "X IPS 1")
	ani := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", &classA, true)
	budi := testutil.CreateStudent(t, f.rosterRepo, "1002", "Budi", &classB, true)

	tuesday := monday.AddDays(1)
	_, err := f.ledger.CheckIn(ctx, ani.ID, monday, attendance.CheckInput{})
	require.NoError(t, err)
	_, err = f.ledger.SetManualStatus(ctx, budi.ID, monday, attendance.StatusSick, "")
	require.NoError(t, err)
	_, err = f.ledger.CheckIn(ctx, ani.ID, tuesday, attendance.CheckInput{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter attendance.QueryFilter
		want   []string // "<nis>@<date>"
	}{
		{name: "all, newest first", want: []string{"1001@2024-03-05", "1002@2024-03-04", "1001@2024-03-04"}},
		{name: "by date", filter: attendance.QueryFilter{Date: monday}, want: []string{"1002@2024-03-04", "1001@2024-03-04"}},
		{name: "by class", filter: attendance.QueryFilter{ClassID: classB.ID}, want: []string{"1002@2024-03-04"}},
		{name: "by status", filter: attendance.QueryFilter{Status: attendance.StatusPresent}, want: []string{"1001@2024-03-05", "1001@2024-03-04"}},
		{name: "unknown status ignored", filter: attendance.QueryFilter{Status: "late"}, want: []string{"1001@2024-03-05", "1002@2024-03-04", "1001@2024-03-04"}},
		{name: "search name", filter: attendance.QueryFilter{Search: " bud "}, want: []string{"1002@2024-03-04"}},
		{name: "search nis", filter: attendance.QueryFilter{Search: "1001"}, want: []string{"1001@2024-03-05", "1001@2024-03-04"}},
		{name: "range", filter: attendance.QueryFilter{From: tuesday, To: tuesday}, want: []string{"1001@2024-03-05"}},
		{name: "month", filter: attendance.QueryFilter{Month: 3, Year: 2024, StudentID: budi.ID}, want: []string{"1002@2024-03-04"}},
		{name: "other month", filter: attendance.QueryFilter{Month: 2, Year: 2024}, want: []string{}},
		{
			name:   "order by name",
			filter: attendance.QueryFilter{Orderings: []core.DBOrdering{{Field: "name", Ascending: true}}},
			want:   []string{"1001@2024-03-05", "1001@2024-03-04", "1002@2024-03-04"},
		},
		{name: "paginated", filter: attendance.QueryFilter{Pagination: core.Pagination{Page: 2, PerPage: 2}}, want: []string{"1001@2024-03-04"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.ledger.Query(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(page.Records))
			for _, r := range page.Records {
				got = append(got, r.NIS+"@"+r.Date.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}

	page, err := f.ledger.Query(ctx, attendance.QueryFilter{Date: monday, ClassID: classA.ID})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Ani", page.Records[0].StudentName)
	assert.Equal(t, "X IPA 1", page.Records[0].ClassName)
	assert.Equal(t, 1, page.PageInfo.Total)
}

func TestLedger_History(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ani := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
	budi := testutil.CreateStudent(t, f.rosterRepo, "1002", "Budi", nil, true)
	for i := 0; i < 3; i++ {
		_, err := f.ledger.CheckIn(ctx, ani.ID, monday.AddDays(i), attendance.CheckInput{})
		require.NoError(t, err)
	}
	_, err := f.ledger.CheckIn(ctx, budi.ID, monday, attendance.CheckInput{})
	require.NoError(t, err)

	// a student cannot widen their history through the filter
	page, err := f.ledger.History(ctx, ani.ID, attendance.QueryFilter{StudentID: budi.ID, Search: "Budi"})
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	assert.Equal(t, monday.AddDays(2), page.Records[0].Date)
	for _, r := range page.Records {
		assert.Equal(t, ani.ID, r.StudentID)
	}
}

func TestLedger_FinalizeDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	students := testutil.CreateStudents(t, f.rosterRepo, 4, nil)
	testutil.CreateStudent(t, f.rosterRepo, "9999", "Gone", nil, false)

	_, err := f.ledger.CheckIn(ctx, students[0].ID, monday, attendance.CheckInput{})
	require.NoError(t, err)
	_, err = f.ledger.SetManualStatus(ctx, students[1].ID, monday, attendance.StatusSick, "")
	require.NoError(t, err)

	_, err = f.ledger.FinalizeDay(ctx, monday)
	assert.Equal(t, attendance.ErrDayNotOver, err)

	before, err := f.aggregator.DailySummary(ctx, monday, nil)
	require.NoError(t, err)

	f.clock.Set(testutil.At(monday.AddDays(1), 0, 5))
	n, err := f.ledger.FinalizeDay(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// idempotent
	n, err = f.ledger.FinalizeDay(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// summaries are the same whether absences are derived or stored
	after, err := f.aggregator.DailySummary(ctx, monday, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rec, found, err := f.ledger.GetForDay(ctx, students[3].ID, monday)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
}

func TestLedger_FinalizeDay_enrolledLater(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	enrolled := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	// enrolled on tuesday morning, school time
	created := testutil.At(monday.AddDays(1), 7, 0)
	late, err := f.rosterRepo.CreateStudent(ctx, roster.Student{
		NIS:       "1002",
		Name:      "Budi",
		Gender:    roster.GenderMale,
		Status:    roster.StatusActive,
		CreatedAt: created,
		UpdatedAt: created,
	})
	require.NoError(t, err)

	f.clock.Set(testutil.At(monday.AddDays(2), 0, 5))
	n, err := f.ledger.FinalizeDay(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, err := f.ledger.GetForDay(ctx, enrolled.ID, monday)
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = f.ledger.GetForDay(ctx, late.ID, monday)
	require.NoError(t, err)
	assert.False(t, found, "no absence before enrolment")

	n, err = f.ledger.FinalizeDay(ctx, monday.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
