package schedsvc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/absensi/core"
)

// DayFinalizer records the absences of a past school day.
type DayFinalizer interface {
	Today() core.Date
	FinalizeDay(ctx context.Context, date core.Date) (int, error)
}

type Scheduler struct {
	cron      *cron.Cron
	finalizer DayFinalizer
	conf      *core.Config
	logger    core.Logger
}

func New(finalizer DayFinalizer, conf *core.Config, logger core.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(conf.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		finalizer: finalizer,
		conf:      conf,
		logger:    logger,
	}
}

// Start schedules the enabled jobs. It does nothing when no job is enabled.
func (s *Scheduler) Start() error {
	if !s.conf.Attendance.FinalizeAbsences {
		return nil
	}
	if _, err := s.cron.AddFunc(s.conf.Attendance.FinalizeSchedule, s.finalizeYesterday); err != nil {
		return errors.Wrapf(err, "scheduling absence finalization (%q)", s.conf.Attendance.FinalizeSchedule)
	}
	s.logger.Info(fmt.Sprintf("scheduler: absence finalization scheduled at %q", s.conf.Attendance.FinalizeSchedule))
	s.cron.Start()
	return nil
}

// Stop waits for the running jobs to complete or ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Entries() []cron.Entry { return s.cron.Entries() }

func (s *Scheduler) finalizeYesterday() {
	ctx, cancel := context.WithTimeout(context.Background(), s.conf.Attendance.OpTimeout)
	defer cancel()

	day := s.finalizer.Today().AddDays(-1)
	if _, err := s.finalizer.FinalizeDay(ctx, day); err != nil {
		s.logger.Error(fmt.Sprintf("scheduler: finalizing %s: %v", day, err), err)
	}
}

type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: " + msg + formatKV(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v%s", msg, err, formatKV(keysAndValues)), err)
}

func formatKV(kv []interface{}) string {
	var s string
	for i := 0; i+1 < len(kv); i += 2 {
		s += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return s
}
