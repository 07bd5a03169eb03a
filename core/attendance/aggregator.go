package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
)

const (
	dashboardTrendDays   = 7
	dashboardRecentCount = 10
	defaultTrendMaxDays  = 90
)

// Aggregator derives read-only statistics from the ledger.
// Students without a record on a day count as absent.
type Aggregator struct {
	repo         Repository
	clock        core.Clock
	loc          *time.Location
	trendMaxDays int
}

func NewAggregator(repo Repository, clock core.Clock, conf *core.Config) *Aggregator {
	maxDays := conf.Attendance.TrendMaxDays
	if maxDays <= 0 {
		maxDays = defaultTrendMaxDays
	}
	return &Aggregator{repo: repo, clock: clock, loc: conf.Location, trendMaxDays: maxDays}
}

func summarize(date core.Date, active int, counts StatusCounts) Summary {
	missing := active - counts.Total()
	if missing < 0 {
		missing = 0
	}
	return Summary{
		Date:    date,
		Total:   active,
		Present: counts.Present,
		Excused: counts.Excused,
		Sick:    counts.Sick,
		Absent:  counts.Absent + missing,
	}
}

// DailySummary counts the active students (of classID, if set) per status on date.
func (a *Aggregator) DailySummary(ctx context.Context, date core.Date, classID *int) (Summary, error) {
	active, err := a.repo.CountActiveStudents(ctx, classID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting active students")
	}
	counts, err := a.repo.CountByDay(ctx, date, date, classID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting records")
	}
	return summarize(date, active, counts[date]), nil
}

// RangeSummary counts the records of studentID between start and end (inclusive).
// An inverted range yields an empty summary.
func (a *Aggregator) RangeSummary(ctx context.Context, studentID int, start, end core.Date) (RangeSummary, error) {
	rs := RangeSummary{StudentID: studentID, From: start, To: end}
	if end.Before(start) {
		return rs, nil
	}
	counts, err := a.repo.CountForStudent(ctx, studentID, start, end)
	if err != nil {
		return RangeSummary{}, errors.Wrap(err, "counting student records")
	}
	rs.Total = counts.Total()
	rs.Present = counts.Present
	rs.Excused = counts.Excused
	rs.Sick = counts.Sick
	rs.Absent = counts.Absent
	rs.Percentage = core.Percentage(counts.Present, rs.Total)
	return rs, nil
}

func (a *Aggregator) MonthlySummary(ctx context.Context, studentID, year int, month time.Month) (RangeSummary, error) {
	start, end := core.MonthRange(year, month)
	return a.RangeSummary(ctx, studentID, start, end)
}

// Trend returns the daily summaries of the last `days` days including today, oldest first.
func (a *Aggregator) Trend(ctx context.Context, days int, classID *int) ([]Summary, error) {
	if days <= 0 {
		return []Summary{}, nil
	}
	if days > a.trendMaxDays {
		days = a.trendMaxDays
	}

	today := core.Today(a.clock, a.loc)
	from := today.AddDays(-(days - 1))

	active, err := a.repo.CountActiveStudents(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "counting active students")
	}
	counts, err := a.repo.CountByDay(ctx, from, today, classID)
	if err != nil {
		return nil, errors.Wrap(err, "counting records")
	}

	trend := make([]Summary, 0, days)
	for d := from; !d.After(today); d = d.AddDays(1) {
		trend = append(trend, summarize(d, active, counts[d]))
	}
	return trend, nil
}

// Dashboard builds the administrators' overview of today.
func (a *Aggregator) Dashboard(ctx context.Context) (Dashboard, error) {
	today := core.Today(a.clock, a.loc)
	summary, err := a.DailySummary(ctx, today, nil)
	if err != nil {
		return Dashboard{}, err
	}
	trend, err := a.Trend(ctx, dashboardTrendDays, nil)
	if err != nil {
		return Dashboard{}, err
	}
	recent, _, err := a.repo.Query(ctx, QueryFilter{Pagination: core.Pagination{PerPage: dashboardRecentCount}})
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying recent records")
	}
	if recent == nil {
		recent = []RecordView{}
	}
	return Dashboard{Today: summary, Trend: trend, Recent: recent}, nil
}

// StudentDashboard builds a student's overview: today's record, this month and the last records.
func (a *Aggregator) StudentDashboard(ctx context.Context, studentID int) (StudentDashboard, error) {
	today := core.Today(a.clock, a.loc)

	var dash StudentDashboard
	rec, found, err := a.repo.Get(ctx, studentID, today)
	if err != nil {
		return StudentDashboard{}, errors.Wrap(err, "reading today's record")
	}
	if found {
		dash.Today = &rec
	}
	if dash.Month, err = a.MonthlySummary(ctx, studentID, today.Year, today.Month); err != nil {
		return StudentDashboard{}, err
	}
	recent, _, err := a.repo.Query(ctx, QueryFilter{StudentID: studentID, Pagination: core.Pagination{PerPage: dashboardTrendDays}})
	if err != nil {
		return StudentDashboard{}, errors.Wrap(err, "querying recent records")
	}
	if recent == nil {
		recent = []RecordView{}
	}
	dash.Recent = recent
	return dash, nil
}
