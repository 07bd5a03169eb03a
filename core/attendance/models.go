package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/absensi/core"
)

type Status string

const (
	StatusPresent Status = "present"
	StatusExcused Status = "excused"
	StatusSick    Status = "sick"
	StatusAbsent  Status = "absent"
)

var Statuses = []Status{StatusPresent, StatusExcused, StatusSick, StatusAbsent}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusExcused, StatusSick, StatusAbsent:
		return true
	}
	return false
}

// Record is the attendance of one student on one day.
type Record struct {
	ID               int        `json:"id"`
	StudentID        int        `json:"student_id"`
	Date             core.Date  `json:"date"`
	CheckInAt        *time.Time `json:"check_in_at"`  // UTC
	CheckOutAt       *time.Time `json:"check_out_at"` // UTC
	Status           Status     `json:"status"`
	CheckInLocation  string     `json:"check_in_location"`
	CheckOutLocation string     `json:"check_out_location"`
	CheckInPhoto     string     `json:"check_in_photo"`
	CheckOutPhoto    string     `json:"check_out_photo"`
	Note             string     `json:"note"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
}

func (r Record) CheckedIn() bool  { return r.CheckInAt != nil }
func (r Record) CheckedOut() bool { return r.CheckOutAt != nil }

// RecordView is a Record joined with read-only student details.
type RecordView struct {
	Record
	NIS         string `json:"nis"`
	StudentName string `json:"student_name"`
	ClassID     *int   `json:"class_id"`
	ClassName   string `json:"class_name"`
}

// CheckInput carries the optional context of a check-in or check-out.
type CheckInput struct {
	Location string `json:"location" validate:"max=255"`
	PhotoRef string `json:"-"`
}

func (ci *CheckInput) Validate(validate *validator.Validate) error {
	ci.Location = core.CleanString(ci.Location)
	return validate.Struct(ci)
}

// ManualStatus is an administrator's status assignment.
type ManualStatus struct {
	Date   core.Date `json:"date"`
	Status Status    `json:"status" validate:"required,attendance_status"`
	Note   string    `json:"note" validate:"max=255"`
}

func (ms *ManualStatus) Validate(validate *validator.Validate) error {
	ms.Note = core.CleanString(ms.Note)
	ms.Status = Status(core.CleanString(string(ms.Status), true))
	if err := validate.Struct(ms); err != nil {
		return err
	}
	if ms.Date.IsZero() {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "this field is required"})
	}
	return nil
}

type QueryFilter struct {
	Date      core.Date `json:"date" query:"date"`
	From      core.Date `json:"from" query:"from"`
	To        core.Date `json:"to" query:"to"`
	Month     int       `json:"month" query:"month"`
	Year      int       `json:"year" query:"year"`
	ClassID   int       `json:"class_id" query:"class_id"`
	StudentID int       `json:"student_id" query:"student_id"`
	Status    Status    `json:"status" query:"status"`
	Search    string    `json:"search" query:"search"` // student name or NIS
	core.Pagination
	Orderings []core.DBOrdering `json:"-" query:"-"`
}

// Clean normalizes the filter: a month/year pair becomes a date range, unknown statuses are dropped.
func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if qf.Status != "" && !qf.Status.Valid() {
		qf.Status = ""
	}
	if qf.Month >= 1 && qf.Month <= 12 && qf.Year > 0 && qf.From.IsZero() && qf.To.IsZero() {
		qf.From, qf.To = core.MonthRange(qf.Year, time.Month(qf.Month))
	}
}

// MatchesDate reports whether d falls within the filter's date constraints.
func (qf *QueryFilter) MatchesDate(d core.Date) bool {
	if !qf.Date.IsZero() && d != qf.Date {
		return false
	}
	if !qf.From.IsZero() && d.Before(qf.From) {
		return false
	}
	if !qf.To.IsZero() && d.After(qf.To) {
		return false
	}
	return true
}

type Page struct {
	Records  []RecordView  `json:"records"`
	PageInfo core.PageInfo `json:"page_info"`
}

// StatusCounts holds the number of records per status.
type StatusCounts struct {
	Present int `json:"present"`
	Excused int `json:"excused"`
	Sick    int `json:"sick"`
	Absent  int `json:"absent"`
}

func (sc StatusCounts) Total() int { return sc.Present + sc.Excused + sc.Sick + sc.Absent }

func (sc *StatusCounts) Add(s Status, n int) {
	switch s {
	case StatusPresent:
		sc.Present += n
	case StatusExcused:
		sc.Excused += n
	case StatusSick:
		sc.Sick += n
	case StatusAbsent:
		sc.Absent += n
	}
}

// Summary is the attendance of a day over the active students in scope.
type Summary struct {
	Date    core.Date `json:"date"`
	Total   int       `json:"total"`
	Present int       `json:"present"`
	Excused int       `json:"excused"`
	Sick    int       `json:"sick"`
	Absent  int       `json:"absent"`
}

// RangeSummary is the attendance of one student over a date range.
type RangeSummary struct {
	StudentID  int       `json:"student_id"`
	From       core.Date `json:"from"`
	To         core.Date `json:"to"`
	Total      int       `json:"total"`
	Present    int       `json:"present"`
	Excused    int       `json:"excused"`
	Sick       int       `json:"sick"`
	Absent     int       `json:"absent"`
	Percentage float64   `json:"percentage"`
}

// Dashboard is the overview shown to administrators.
type Dashboard struct {
	Today  Summary      `json:"today"`
	Trend  []Summary    `json:"trend"`
	Recent []RecordView `json:"recent"`
}

// StudentDashboard is the overview shown to a student.
type StudentDashboard struct {
	Today  *Record      `json:"today"`
	Month  RangeSummary `json:"month"`
	Recent []RecordView `json:"recent"`
}
