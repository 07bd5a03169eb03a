// Package export renders attendance records as downloadable documents.
package export

import (
	"encoding/csv"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
)

const (
	FormatCSV  = "csv"
	FormatHTML = "html"

	empty = "-"
)

var header = []string{"No", "NIS", "Name", "Class", "Date", "Check-in", "Check-out", "Status", "Note"}

type (
	Row struct {
		No       int
		NIS      string
		Name     string
		Class    string
		Date     string // dd/mm/yyyy
		CheckIn  string // HH:MM school time
		CheckOut string
		Status   string
		Note     string
	}

	// Document is a read-only projection of attendance records.
	Document struct {
		Title       string
		GeneratedAt time.Time
		Rows        []Row
		Counts      attendance.StatusCounts
	}

	Renderer interface {
		Format() string
		ContentType() string
		Render(w io.Writer, doc Document) error
	}
)

func (r Row) Cells() []string {
	return []string{strconv.Itoa(r.No), r.NIS, r.Name, r.Class, r.Date, r.CheckIn, r.CheckOut, r.Status, r.Note}
}

func (Document) Header() []string { return header }

func orEmpty(s string) string {
	if s == "" {
		return empty
	}
	return s
}

func clock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return empty
	}
	return t.In(loc).Format("15:04")
}

// NewDocument projects records into rows, timestamps shown in loc.
func NewDocument(title string, records []attendance.RecordView, generatedAt time.Time, loc *time.Location) Document {
	doc := Document{Title: title, GeneratedAt: generatedAt.In(loc), Rows: make([]Row, 0, len(records))}
	for i, rec := range records {
		status := string(rec.Status)
		if status != "" {
			status = strings.ToUpper(status[:1]) + status[1:]
		}
		doc.Rows = append(doc.Rows, Row{
			No:       i + 1,
			NIS:      rec.NIS,
			Name:     rec.StudentName,
			Class:    orEmpty(rec.ClassName),
			Date:     rec.Date.Format("02/01/2006"),
			CheckIn:  clock(rec.CheckInAt, loc),
			CheckOut: clock(rec.CheckOutAt, loc),
			Status:   status,
			Note:     orEmpty(rec.Note),
		})
		doc.Counts.Add(rec.Status, 1)
	}
	return doc
}

// Title describes the period covered by filter.
func Title(filter attendance.QueryFilter) string {
	switch {
	case !filter.Date.IsZero():
		return "Attendance " + filter.Date.Format("02/01/2006")
	case !filter.From.IsZero() && !filter.To.IsZero():
		return fmt.Sprintf("Attendance %s - %s", filter.From.Format("02/01/2006"), filter.To.Format("02/01/2006"))
	case !filter.From.IsZero():
		return "Attendance since " + filter.From.Format("02/01/2006")
	case !filter.To.IsZero():
		return "Attendance until " + filter.To.Format("02/01/2006")
	}
	return "Attendance"
}

// Filename is the download name of a document covering filter.
func Filename(filter attendance.QueryFilter, today core.Date, format string) string {
	label := today.String()
	switch {
	case !filter.Date.IsZero():
		label = filter.Date.String()
	case !filter.From.IsZero() && !filter.To.IsZero():
		label = filter.From.String() + "_" + filter.To.String()
	}
	return fmt.Sprintf("attendance-%s.%s", label, format)
}

type csvRenderer struct{}

var _ Renderer = (*csvRenderer)(nil)

func NewCSVRenderer() Renderer { return csvRenderer{} }

func (csvRenderer) Format() string      { return FormatCSV }
func (csvRenderer) ContentType() string { return "text/csv; charset=utf-8" }

func (csvRenderer) Render(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, row := range doc.Rows {
		if err := cw.Write(row.Cells()); err != nil {
			return errors.Wrapf(err, "writing csv row %d", row.No)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

type htmlRenderer struct {
	tmpl *htmltmpl.Template
}

var _ Renderer = (*htmlRenderer)(nil)

// NewHTMLRenderer parses the printable report template from fsys.
func NewHTMLRenderer(fsys fs.FS) (Renderer, error) {
	tmpl, err := htmltmpl.ParseFS(fsys, "templates/export/attendance.gohtml")
	if err != nil {
		return nil, errors.Wrap(err, "parsing export template")
	}
	return &htmlRenderer{tmpl: tmpl}, nil
}

func (*htmlRenderer) Format() string      { return FormatHTML }
func (*htmlRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r *htmlRenderer) Render(w io.Writer, doc Document) error {
	return errors.Wrap(r.tmpl.Execute(w, doc), "rendering html export")
}
