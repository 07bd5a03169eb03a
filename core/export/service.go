package export

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
)

const pageSize = 200

var (
	// errors
	ErrUnknownFormat = errors.New("unknown export format")
	ErrNoRecipients  = errors.New("at least one recipient is required")
)

type (
	// RecordQuerier is the read side of the attendance ledger.
	RecordQuerier interface {
		Query(ctx context.Context, filter attendance.QueryFilter) (attendance.Page, error)
	}

	File struct {
		Name        string
		ContentType string
		Content     []byte
		Document    Document
	}

	Service struct {
		records   RecordQuerier
		mailer    core.EmailService
		clock     core.Clock
		loc       *time.Location
		renderers map[string]Renderer
	}
)

func NewService(records RecordQuerier, mailer core.EmailService, clock core.Clock, conf *core.Config, renderers ...Renderer) *Service {
	svc := &Service{
		records:   records,
		mailer:    mailer,
		clock:     clock,
		loc:       conf.Location,
		renderers: make(map[string]Renderer, len(renderers)),
	}
	for _, r := range renderers {
		svc.renderers[r.Format()] = r
	}
	return svc
}

// collect reads every record matching filter, following pages.
func (svc *Service) collect(ctx context.Context, filter attendance.QueryFilter) ([]attendance.RecordView, error) {
	filter.Pagination = core.Pagination{Page: 1, PerPage: pageSize}
	var records []attendance.RecordView
	for {
		page, err := svc.records.Query(ctx, filter)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "querying records")
		}
		records = append(records, page.Records...)
		if len(page.Records) == 0 || len(records) >= page.PageInfo.Total {
			return records, nil
		}
		filter.Page++
	}
}

// Export renders all records matching filter in the given format.
func (svc *Service) Export(ctx context.Context, filter attendance.QueryFilter, format string) (File, error) {
	renderer, ok := svc.renderers[format]
	if !ok {
		return File{}, ErrUnknownFormat
	}
	filter.Clean()
	records, err := svc.collect(ctx, filter)
	if err != nil {
		return File{}, err
	}

	now := svc.clock.Now()
	doc := NewDocument(Title(filter), records, now, svc.loc)
	var buf bytes.Buffer
	if err = renderer.Render(&buf, doc); err != nil {
		return File{}, err
	}
	return File{
		Name:        Filename(filter, core.DateOf(now, svc.loc), format),
		ContentType: renderer.ContentType(),
		Content:     buf.Bytes(),
		Document:    doc,
	}, nil
}

// Mail sends the export to the recipients as an attachment. Delivery is asynchronous.
func (svc *Service) Mail(ctx context.Context, filter attendance.QueryFilter, format string, to []mail.Address) (File, error) {
	if len(to) == 0 {
		return File{}, ErrNoRecipients
	}
	file, err := svc.Export(ctx, filter, format)
	if err != nil {
		return File{}, err
	}

	msg := &core.EmailMessage{
		To:           to,
		Subject:      file.Document.Title,
		TemplateName: "attendance_export",
		TemplateData: file.Document,
	}
	if err = msg.Attach(bytes.NewReader(file.Content), file.Name, file.ContentType); err != nil {
		return File{}, pkgerrors.Wrap(err, "attaching export")
	}
	svc.mailer.SendMessages(msg)
	return file, nil
}
