package schedsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/absensi/core"
	testutil "github.com/trezcool/absensi/tests"
)

type finalizerStub struct {
	today core.Date
	days  []core.Date
	err   error
}

func (f *finalizerStub) Today() core.Date { return f.today }

func (f *finalizerStub) FinalizeDay(_ context.Context, date core.Date) (int, error) {
	f.days = append(f.days, date)
	return 3, f.err
}

func TestScheduler_Start(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := New(new(finalizerStub), testutil.Config(), new(testutil.Logger))
		require.NoError(t, s.Start())
		assert.Empty(t, s.Entries())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		conf := testutil.Config()
		conf.Attendance.FinalizeAbsences = true
		conf.Attendance.FinalizeSchedule = "every day"
		s := New(new(finalizerStub), conf, new(testutil.Logger))
		assert.Error(t, s.Start())
	})

	t.Run("enabled", func(t *testing.T) {
		conf := testutil.Config()
		conf.Attendance.FinalizeAbsences = true
		conf.Attendance.FinalizeSchedule = "5 0 * * *"
		s := New(new(finalizerStub), conf, new(testutil.Logger))
		require.NoError(t, s.Start())
		defer func() { _ = s.Stop(context.Background()) }()

		entries := s.Entries()
		require.Len(t, entries, 1)
		next := entries[0].Next.In(testutil.Jakarta)
		assert.Equal(t, 0, next.Hour())
		assert.Equal(t, 5, next.Minute())
	})
}

func TestScheduler_finalizeYesterday(t *testing.T) {
	today := core.NewDate(2024, time.March, 5)

	t.Run("ok", func(t *testing.T) {
		f := &finalizerStub{today: today}
		logger := new(testutil.Logger)
		New(f, testutil.Config(), logger).finalizeYesterday()
		assert.Equal(t, []core.Date{core.NewDate(2024, time.March, 4)}, f.days)
		assert.Zero(t, logger.Count("ERROR"))
	})

	t.Run("error is logged", func(t *testing.T) {
		f := &finalizerStub{today: today, err: errors.New("db down")}
		logger := new(testutil.Logger)
		New(f, testutil.Config(), logger).finalizeYesterday()
		assert.Len(t, f.days, 1)
		assert.Equal(t, 1, logger.Count("ERROR"))
	})
}
