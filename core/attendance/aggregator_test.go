package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/tests"
)

var march1 = core.NewDate(2024, time.March, 1)

func TestAggregator_DailySummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	classA := testutil.CreateClassRoom(t, f.rosterRepo, "X IPA 1")
	classB := testutil.CreateClassRoom(t, f.rosterRepo, "X IPS 1")
	a := testutil.CreateStudents(t, f.rosterRepo, 5, &classA)
	b := testutil.CreateStudents(t, f.rosterRepo, 3, &classB)
	testutil.CreateStudent(t, f.rosterRepo, "7777", "Inactive", &classA, false)

	before, err := f.aggregator.DailySummary(ctx, march1, &classA.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.Summary{Date: march1, Total: 5, Absent: 5}, before)

	// student X of class A checks in
	f.clock.Set(testutil.At(march1, 6, 45))
	_, err = f.ledger.CheckIn(ctx, a[0].ID, march1, attendance.CheckInput{})
	require.NoError(t, err)

	after, err := f.aggregator.DailySummary(ctx, march1, &classA.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Present)
	assert.Equal(t, before.Absent-1, after.Absent)

	_, err = f.ledger.SetManualStatus(ctx, a[1].ID, march1, attendance.StatusSick, "")
	require.NoError(t, err)
	_, err = f.ledger.SetManualStatus(ctx, a[2].ID, march1, attendance.StatusExcused, "")
	require.NoError(t, err)
	_, err = f.ledger.SetManualStatus(ctx, a[3].ID, march1, attendance.StatusAbsent, "")
	require.NoError(t, err)
	_, err = f.ledger.CheckIn(ctx, b[0].ID, march1, attendance.CheckInput{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		classID *int
		want    attendance.Summary
	}{
		{
			name:    "class A",
			classID: &classA.ID,
			want:    attendance.Summary{Date: march1, Total: 5, Present: 1, Excused: 1, Sick: 1, Absent: 2},
		},
		{
			name:    "class B",
			classID: &classB.ID,
			want:    attendance.Summary{Date: march1, Total: 3, Present: 1, Absent: 2},
		},
		{
			name: "whole school",
			want: attendance.Summary{Date: march1, Total: 8, Present: 2, Excused: 1, Sick: 1, Absent: 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.aggregator.DailySummary(ctx, march1, tt.classID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.Total, got.Present+got.Excused+got.Sick+got.Absent)
		})
	}
}

func TestAggregator_DailySummary_excludesInactive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	active := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
	gone := testutil.CreateStudent(t, f.rosterRepo, "1002", "Budi", nil, true)

	_, err := f.ledger.CheckIn(ctx, active.ID, march1, attendance.CheckInput{})
	require.NoError(t, err)
	_, err = f.ledger.CheckIn(ctx, gone.ID, march1, attendance.CheckInput{})
	require.NoError(t, err)
	_, err = f.rosterRepo.SetStudentStatus(ctx, gone.ID, "inactive")
	require.NoError(t, err)

	got, err := f.aggregator.DailySummary(ctx, march1, nil)
	require.NoError(t, err)
	assert.Equal(t, attendance.Summary{Date: march1, Total: 1, Present: 1}, got)
}

func TestAggregator_RangeSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	x := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)
	y := testutil.CreateStudent(t, f.rosterRepo, "1002", "Budi", nil, true)

	// 22 recorded days in March: 20 present, 1 sick, 1 excused
	for i := 0; i < 22; i++ {
		d := march1.AddDays(i)
		switch i {
		case 20:
			_, err := f.ledger.SetManualStatus(ctx, x.ID, d, attendance.StatusSick, "")
			require.NoError(t, err)
		case 21:
			_, err := f.ledger.SetManualStatus(ctx, x.ID, d, attendance.StatusExcused, "")
			require.NoError(t, err)
		default:
			f.clock.Set(testutil.At(d, 7, 0))
			_, err := f.ledger.CheckIn(ctx, x.ID, d, attendance.CheckInput{})
			require.NoError(t, err)
		}
	}
	// another student's records never leak in
	_, err := f.ledger.SetManualStatus(ctx, y.ID, march1, attendance.StatusAbsent, "")
	require.NoError(t, err)
	// nor do records outside the range
	_, err = f.ledger.SetManualStatus(ctx, x.ID, core.NewDate(2024, time.April, 1), attendance.StatusAbsent, "")
	require.NoError(t, err)

	end := core.NewDate(2024, time.March, 31)
	got, err := f.aggregator.RangeSummary(ctx, x.ID, march1, end)
	require.NoError(t, err)
	assert.Equal(t, attendance.RangeSummary{
		StudentID:  x.ID,
		From:       march1,
		To:         end,
		Total:      22,
		Present:    20,
		Excused:    1,
		Sick:       1,
		Percentage: 90.91,
	}, got)

	monthly, err := f.aggregator.MonthlySummary(ctx, x.ID, 2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, got, monthly)

	t.Run("inverted range", func(t *testing.T) {
		got, err := f.aggregator.RangeSummary(ctx, x.ID, end, march1)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Total)
		assert.Equal(t, 0.0, got.Percentage)
	})

	t.Run("no records", func(t *testing.T) {
		got, err := f.aggregator.RangeSummary(ctx, x.ID, core.NewDate(2023, time.January, 1), core.NewDate(2023, time.January, 31))
		require.NoError(t, err)
		assert.Equal(t, 0, got.Total)
		assert.Equal(t, 0.0, got.Percentage)
	})
}

func TestAggregator_Trend(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	students := testutil.CreateStudents(t, f.rosterRepo, 3, nil)

	// one more check-in each day, ending today
	for i := 0; i < 3; i++ {
		day := monday.AddDays(-2 + i)
		for _, s := range students[:i+1] {
			_, err := f.ledger.CheckIn(ctx, s.ID, day, attendance.CheckInput{})
			require.NoError(t, err)
		}
	}
	f.clock.Set(testutil.At(monday, 15, 0))

	trend, err := f.aggregator.Trend(ctx, 5, nil)
	require.NoError(t, err)
	require.Len(t, trend, 5)
	for i, s := range trend {
		assert.Equal(t, monday.AddDays(i-4), s.Date, "oldest first")
		assert.Equal(t, 3, s.Total)
		assert.Equal(t, s.Total, s.Present+s.Excused+s.Sick+s.Absent)
	}
	assert.Equal(t, []int{0, 0, 1, 2, 3}, []int{trend[0].Present, trend[1].Present, trend[2].Present, trend[3].Present, trend[4].Present})

	t.Run("non-positive days", func(t *testing.T) {
		for _, days := range []int{0, -3} {
			trend, err := f.aggregator.Trend(ctx, days, nil)
			require.NoError(t, err)
			assert.Empty(t, trend)
			assert.NotNil(t, trend)
		}
	})

	t.Run("capped", func(t *testing.T) {
		conf := testutil.Config()
		conf.Attendance.TrendMaxDays = 10
		agg := attendance.NewAggregator(f.repo, f.clock, conf)
		trend, err := agg.Trend(ctx, 365, nil)
		require.NoError(t, err)
		require.Len(t, trend, 10)
		assert.Equal(t, monday, trend[9].Date)
	})
}

func TestAggregator_Dashboard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	students := testutil.CreateStudents(t, f.rosterRepo, 12, nil)
	for _, s := range students {
		_, err := f.ledger.CheckIn(ctx, s.ID, monday, attendance.CheckInput{})
		require.NoError(t, err)
	}

	dash, err := f.aggregator.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.Summary{Date: monday, Total: 12, Present: 12}, dash.Today)
	assert.Len(t, dash.Trend, 7)
	assert.Equal(t, dash.Today, dash.Trend[6])
	assert.Len(t, dash.Recent, 10)
}

func TestAggregator_StudentDashboard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ani := testutil.CreateStudent(t, f.rosterRepo, "1001", "Ani", nil, true)

	dash, err := f.aggregator.StudentDashboard(ctx, ani.ID)
	require.NoError(t, err)
	assert.Nil(t, dash.Today)
	assert.Empty(t, dash.Recent)
	assert.Equal(t, 0, dash.Month.Total)

	_, err = f.ledger.SetManualStatus(ctx, ani.ID, monday.AddDays(-1), attendance.StatusSick, "")
	require.NoError(t, err)
	rec, err := f.ledger.CheckIn(ctx, ani.ID, monday, attendance.CheckInput{})
	require.NoError(t, err)

	dash, err = f.aggregator.StudentDashboard(ctx, ani.ID)
	require.NoError(t, err)
	require.NotNil(t, dash.Today)
	assert.Equal(t, rec, *dash.Today)
	assert.Equal(t, 2, dash.Month.Total)
	assert.Equal(t, 50.0, dash.Month.Percentage)
	require.Len(t, dash.Recent, 2)
	assert.Equal(t, monday, dash.Recent[0].Date)
}
