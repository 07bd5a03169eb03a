package echoapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/roster"
)

type blobDeps struct {
	files   core.FileStorage
	photos  roster.PhotoProcessor
	maxSize int64
}

type upload struct {
	content     io.Reader
	contentType string
}

// formFile reads the multipart file `field`. It returns nil when the request carries none.
func (b blobDeps) formFile(ctx echo.Context, field string) (*bytes.Reader, error) {
	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	fh, err := ctx.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading form file")
	}
	if b.maxSize > 0 && fh.Size > b.maxSize {
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: field,
			Error: fmt.Sprintf("file is too large (max %d KB)", b.maxSize/1024),
		})
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening form file")
	}
	defer func() { _ = f.Close() }()
	var buf bytes.Buffer
	if _, err = io.Copy(&buf, f); err != nil {
		return nil, errors.Wrap(err, "reading form file")
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// formPhoto is formFile normalized as a photo.
func (b blobDeps) formPhoto(ctx echo.Context, field string) (*upload, error) {
	r, err := b.formFile(ctx, field)
	if err != nil || r == nil {
		return nil, err
	}
	content, contentType, err := b.photos.Process(r)
	if err != nil {
		return nil, core.NewFieldError(field, err)
	}
	return &upload{content: content, contentType: contentType}, nil
}

// withPhoto runs use with the key of the stored photo, or with "" when there is none.
// The photo is released if use fails.
func (b blobDeps) withPhoto(ctx context.Context, photo *upload, prefix string, use func(key string) error) error {
	if photo == nil {
		return use("")
	}
	key := prefix + "-" + uuid.New().String() + ".jpg"
	return core.WithBlob(ctx, b.files, key, photo.content, photo.contentType, use)
}
