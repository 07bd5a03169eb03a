package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=name,-date` into Orderings; "-" means descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// pathID returns the positive integer path param `name`; anything else is not found.
func pathID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// DateRange is a `from`/`to` or `month`/`year` query, defaulting to the current month.
type DateRange struct {
	From  core.Date `query:"from"`
	To    core.Date `query:"to"`
	Month int       `query:"month"`
	Year  int       `query:"year"`
}

func (dr *DateRange) Resolve(today core.Date) (core.Date, core.Date) {
	if !dr.From.IsZero() || !dr.To.IsZero() {
		from, to := dr.From, dr.To
		if from.IsZero() {
			from = core.NewDate(to.Year, to.Month, 1)
		}
		if to.IsZero() {
			to = today
		}
		return from, to
	}
	year, month := today.Year, today.Month
	if dr.Year > 0 {
		year = dr.Year
	}
	if dr.Month >= 1 && dr.Month <= 12 {
		month = time.Month(dr.Month)
	}
	return core.MonthRange(year, month)
}

// DayScope is a `date`/`class_id` query, defaulting to today over all classes.
type DayScope struct {
	Date    core.Date `query:"date"`
	ClassID int       `query:"class_id"`
	Days    int       `query:"days"`
}

func (ds DayScope) class() *int {
	if ds.ClassID < 1 {
		return nil
	}
	id := ds.ClassID
	return &id
}

func bind(ctx echo.Context, i interface{}, what string) error {
	if err := ctx.Bind(i); err != nil {
		return errors.Wrap(err, "binding to "+what)
	}
	return nil
}
