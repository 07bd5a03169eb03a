package echoapi

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/export"
	"github.com/trezcool/absensi/core/roster"
)

type (
	adminLedger interface {
		Today() core.Date
		GetForDay(ctx context.Context, studentID int, date core.Date) (attendance.Record, bool, error)
		SetManualStatus(ctx context.Context, studentID int, date core.Date, status attendance.Status, note string) (attendance.Record, error)
		Query(ctx context.Context, filter attendance.QueryFilter) (attendance.Page, error)
		FinalizeDay(ctx context.Context, date core.Date) (int, error)
	}

	adminStats interface {
		DailySummary(ctx context.Context, date core.Date, classID *int) (attendance.Summary, error)
		RangeSummary(ctx context.Context, studentID int, start, end core.Date) (attendance.RangeSummary, error)
		Trend(ctx context.Context, days int, classID *int) ([]attendance.Summary, error)
		Dashboard(ctx context.Context) (attendance.Dashboard, error)
	}

	exporter interface {
		Export(ctx context.Context, filter attendance.QueryFilter, format string) (export.File, error)
		Mail(ctx context.Context, filter attendance.QueryFilter, format string, to []mail.Address) (export.File, error)
	}

	rosterCounter interface {
		GetStudent(ctx context.Context, id int) (roster.StudentView, error)
		QueryClassRooms(ctx context.Context, filter roster.ClassRoomFilter) ([]roster.ClassRoomView, error)
		CountActiveStudents(ctx context.Context, classID *int) (int, error)
		PhotoURL(ref string) string
	}

	attendanceApi struct {
		ledger     adminLedger
		aggregator adminStats
		exporter   exporter
		roster     rosterCounter
		validate   *validator.Validate
	}
)

const defaultTrendDays = 7

func registerAttendanceAPI(g *echo.Group, api attendanceApi) {
	g.GET("/dashboard", api.dashboard)

	ag := g.Group("/attendance")
	ag.GET("", api.query)
	ag.GET("/summary", api.dailySummary)
	ag.GET("/trend", api.trend)
	ag.POST("/finalize", api.finalize)
	ag.GET("/export", api.export)
	ag.POST("/email", api.email)

	sg := ag.Group("/students/:id")
	sg.GET("", api.record)
	sg.PUT("", api.setStatus)
	sg.GET("/summary", api.studentSummary)
}

// Handlers

func (api *attendanceApi) dashboard(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	dash, err := api.aggregator.Dashboard(rctx)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	active, err := api.roster.CountActiveStudents(rctx, nil)
	if err != nil {
		return errors.Wrap(err, "counting active students")
	}
	classes, err := api.roster.QueryClassRooms(rctx, roster.ClassRoomFilter{})
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, AdminDashboard{
		ActiveStudents: active,
		Classes:        len(classes),
		Dashboard:      dash,
	})
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	page, err := api.ledger.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *attendanceApi) dailySummary(ctx echo.Context) error {
	var scope DayScope
	if err := bind(ctx, &scope, "DayScope"); err != nil {
		return err
	}
	date := scope.Date
	if date.IsZero() {
		date = api.ledger.Today()
	}
	summary, err := api.aggregator.DailySummary(ctx.Request().Context(), date, scope.class())
	if err != nil {
		return errors.Wrap(err, "summarizing day")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) trend(ctx echo.Context) error {
	var scope DayScope
	if err := bind(ctx, &scope, "DayScope"); err != nil {
		return err
	}
	days := scope.Days
	if ctx.QueryParam("days") == "" {
		days = defaultTrendDays
	}
	trend, err := api.aggregator.Trend(ctx.Request().Context(), days, scope.class())
	if err != nil {
		return errors.Wrap(err, "computing trend")
	}
	return ctx.JSON(http.StatusOK, trend)
}

func (api *attendanceApi) record(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var scope DayScope
	if err = bind(ctx, &scope, "DayScope"); err != nil {
		return err
	}
	date := scope.Date
	if date.IsZero() {
		date = api.ledger.Today()
	}
	rec, found, err := api.ledger.GetForDay(ctx.Request().Context(), id, date)
	if err != nil {
		return errors.Wrap(err, "getting record")
	}
	return ctx.JSON(http.StatusOK, newDayResponse(date, rec, found, api.roster.PhotoURL))
}

func (api *attendanceApi) setStatus(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data attendance.ManualStatus
	if err = bind(ctx, &data, "ManualStatus"); err != nil {
		return err
	}
	if data.Date.IsZero() {
		data.Date = api.ledger.Today()
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	rec, err := api.ledger.SetManualStatus(ctx.Request().Context(), id, data.Date, data.Status, data.Note)
	if err != nil {
		return errors.Wrap(err, "setting status")
	}
	return ctx.JSON(http.StatusOK, newRecordResponse(rec, api.roster.PhotoURL))
}

func (api *attendanceApi) studentSummary(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var dr DateRange
	if err = bind(ctx, &dr, "DateRange"); err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err = api.roster.GetStudent(rctx, id); err != nil {
		return errors.Wrap(err, "finding student")
	}
	from, to := dr.Resolve(api.ledger.Today())
	summary, err := api.aggregator.RangeSummary(rctx, id, from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) finalize(ctx echo.Context) error {
	var data FinalizeRequest
	if err := bind(ctx, &data, "FinalizeRequest"); err != nil {
		return err
	}
	if data.Date.IsZero() {
		data.Date = api.ledger.Today().AddDays(-1)
	}
	n, err := api.ledger.FinalizeDay(ctx.Request().Context(), data.Date)
	if err != nil {
		return errors.Wrap(err, "finalizing day")
	}
	return ctx.JSON(http.StatusOK, FinalizeResponse{Date: data.Date, Absences: n})
}

func (api *attendanceApi) export(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	format := ctx.QueryParam("format")
	if format == "" {
		format = export.FormatCSV
	}
	file, err := api.exporter.Export(ctx.Request().Context(), filter, format)
	if err != nil {
		return errors.Wrap(err, "exporting records")
	}
	disposition := "attachment"
	if format == export.FormatHTML {
		disposition = "inline" // printable
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition+`; filename="`+file.Name+`"`)
	ctx.Response().Header().Set("X-Total-Count", strconv.Itoa(len(file.Document.Rows)))
	return ctx.Blob(http.StatusOK, file.ContentType, file.Content)
}

func (api *attendanceApi) email(ctx echo.Context) error {
	var data EmailRequest
	if err := bind(ctx, &data, "EmailRequest"); err != nil {
		return err
	}
	to, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	file, err := api.exporter.Mail(ctx.Request().Context(), data.Filter, data.Format, to)
	if err != nil {
		return errors.Wrap(err, "mailing export")
	}
	return ctx.JSON(http.StatusAccepted, EmailResponse{Filename: file.Name, Rows: len(file.Document.Rows)})
}

func bindQueryFilter(ctx echo.Context) (attendance.QueryFilter, error) {
	var filter attendance.QueryFilter
	if err := bind(ctx, &filter, "QueryFilter"); err != nil {
		return filter, err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Orderings = ordering.Orderings
	return filter, nil
}

type (
	AdminDashboard struct {
		ActiveStudents int `json:"active_students"`
		Classes        int `json:"classes"`
		attendance.Dashboard
	}

	FinalizeRequest struct {
		Date core.Date `json:"date"`
	}

	FinalizeResponse struct {
		Date     core.Date `json:"date"`
		Absences int       `json:"absences"`
	}

	EmailRequest struct {
		Format     string                 `json:"format" validate:"required,oneof=csv html"`
		Recipients []string               `json:"recipients" validate:"required,min=1,max=20,dive,email"`
		Filter     attendance.QueryFilter `json:"filter"`
	}

	EmailResponse struct {
		Filename string `json:"filename"`
		Rows     int    `json:"rows"`
	}
)

// Validate returns the parsed recipients.
func (er *EmailRequest) Validate(validate *validator.Validate) ([]mail.Address, error) {
	er.Format = core.CleanString(er.Format, true)
	for i, r := range er.Recipients {
		er.Recipients[i] = core.CleanString(r, true)
	}
	if err := validate.Struct(er); err != nil {
		return nil, err
	}
	to := make([]mail.Address, 0, len(er.Recipients))
	for _, r := range er.Recipients {
		to = append(to, mail.Address{Address: r})
	}
	return to, nil
}
