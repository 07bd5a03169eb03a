package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/roster"
)

type (
	// studentLedger is what students may do with the ledger: nothing beyond their own records.
	studentLedger interface {
		Today() core.Date
		CheckIn(ctx context.Context, studentID int, date core.Date, in attendance.CheckInput) (attendance.Record, error)
		CheckOut(ctx context.Context, studentID int, date core.Date, in attendance.CheckInput) (attendance.Record, error)
		GetForDay(ctx context.Context, studentID int, date core.Date) (attendance.Record, bool, error)
		History(ctx context.Context, studentID int, filter attendance.QueryFilter) (attendance.Page, error)
	}

	studentStats interface {
		RangeSummary(ctx context.Context, studentID int, start, end core.Date) (attendance.RangeSummary, error)
		StudentDashboard(ctx context.Context, studentID int) (attendance.StudentDashboard, error)
	}

	studentLookup interface {
		GetStudent(ctx context.Context, id int) (roster.StudentView, error)
		PhotoURL(ref string) string
	}

	studentApi struct {
		ledger     studentLedger
		aggregator studentStats
		students   studentLookup
		blobs      blobDeps
		gate       gate
		validate   *validator.Validate
		opTimeout  time.Duration
	}
)

func registerStudentAPI(g *echo.Group, api studentApi) {
	g.GET("", api.profile)
	g.POST("/check-in", api.checkIn)
	g.POST("/check-out", api.checkOut)
	g.GET("/today", api.today)
	g.GET("/history", api.history)
	g.GET("/summary", api.summary)
	g.GET("/dashboard", api.dashboard)
}

// Handlers

func (api *studentApi) profile(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	student, err := api.students.GetStudent(ctx.Request().Context(), p.StudentID)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	return ctx.JSON(http.StatusOK, newStudentResponse(student, api.students.PhotoURL))
}

func (api *studentApi) checkIn(ctx echo.Context) error {
	return api.check(ctx, "in", api.ledger.CheckIn)
}

func (api *studentApi) checkOut(ctx echo.Context) error {
	return api.check(ctx, "out", api.ledger.CheckOut)
}

type checkFunc func(ctx context.Context, studentID int, date core.Date, in attendance.CheckInput) (attendance.Record, error)

// check runs a check-in or check-out of the calling student for today, storing the optional photo first.
func (api *studentApi) check(ctx echo.Context, kind string, run checkFunc) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data CheckRequest
	if err = bind(ctx, &data, "CheckRequest"); err != nil {
		return err
	}
	in := attendance.CheckInput{Location: data.Location}
	if err = in.Validate(api.validate); err != nil {
		return err
	}
	if err = api.gate.verify(data.GateCode); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx.Request().Context(), api.opTimeout)
	defer cancel()

	student, err := api.students.GetStudent(opCtx, p.StudentID)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if !student.IsActive() {
		return errStudentInactive
	}

	photo, err := api.blobs.formPhoto(ctx, "photo")
	if err != nil {
		return err
	}

	today := api.ledger.Today()
	prefix := fmt.Sprintf("attendance/%s/%d-%s", today, p.StudentID, kind)
	var rec attendance.Record
	err = api.blobs.withPhoto(opCtx, photo, prefix, func(key string) error {
		in.PhotoRef = key
		var cErr error
		rec, cErr = run(opCtx, p.StudentID, today, in)
		return cErr
	})
	if err != nil {
		return errors.Wrapf(err, "checking %s", kind)
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(rec, api.students.PhotoURL))
}

func (api *studentApi) today(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	today := api.ledger.Today()
	rec, found, err := api.ledger.GetForDay(ctx.Request().Context(), p.StudentID, today)
	if err != nil {
		return errors.Wrap(err, "getting today's record")
	}
	return ctx.JSON(http.StatusOK, newDayResponse(today, rec, found, api.students.PhotoURL))
}

func (api *studentApi) history(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var filter attendance.QueryFilter
	if err = bind(ctx, &filter, "QueryFilter"); err != nil {
		return err
	}
	page, err := api.ledger.History(ctx.Request().Context(), p.StudentID, filter)
	if err != nil {
		return errors.Wrap(err, "querying history")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *studentApi) summary(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var dr DateRange
	if err = bind(ctx, &dr, "DateRange"); err != nil {
		return err
	}
	from, to := dr.Resolve(api.ledger.Today())
	summary, err := api.aggregator.RangeSummary(ctx.Request().Context(), p.StudentID, from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *studentApi) dashboard(ctx echo.Context) error {
	p, err := getPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	dash, err := api.aggregator.StudentDashboard(ctx.Request().Context(), p.StudentID)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

type (
	CheckRequest struct {
		Location string `json:"location" form:"location"`
		GateCode string `json:"gate_code" form:"gate_code"`
	}

	RecordResponse struct {
		attendance.Record
		CheckInPhotoURL  string `json:"check_in_photo_url"`
		CheckOutPhotoURL string `json:"check_out_photo_url"`
	}

	// DayResponse is the attendance of a student on a day; Record is null when there is none.
	DayResponse struct {
		Date   core.Date       `json:"date"`
		Record *RecordResponse `json:"record"`
	}

	StudentResponse struct {
		roster.StudentView
		PhotoURL string `json:"photo_url"`
	}
)

func newRecordResponse(rec attendance.Record, photoURL func(string) string) RecordResponse {
	return RecordResponse{
		Record:           rec,
		CheckInPhotoURL:  photoURL(rec.CheckInPhoto),
		CheckOutPhotoURL: photoURL(rec.CheckOutPhoto),
	}
}

func newDayResponse(date core.Date, rec attendance.Record, found bool, photoURL func(string) string) DayResponse {
	resp := DayResponse{Date: date}
	if found {
		r := newRecordResponse(rec, photoURL)
		resp.Record = &r
	}
	return resp
}

func newStudentResponse(s roster.StudentView, photoURL func(string) string) StudentResponse {
	return StudentResponse{StudentView: s, PhotoURL: photoURL(s.PhotoRef)}
}
