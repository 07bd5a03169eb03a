package filestore

import (
	"bytes"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	defaultPhotoDimension = 800
	defaultPhotoMaxPixels = 24_000_000
	photoQuality          = 85
)

var errBadImage = errors.New("unsupported or corrupted image")

// PhotoNormalizer decodes uploaded photos (jpeg, png, gif, bmp, tiff), applies their EXIF
// orientation, fits them in a square of maxDimension pixels and re-encodes them as JPEG.
// Images declaring more than maxPixels pixels are rejected before they are decoded.
type PhotoNormalizer struct {
	maxDimension int
	maxPixels    int
}

func NewPhotoNormalizer(maxDimension, maxPixels int) *PhotoNormalizer {
	if maxDimension <= 0 {
		maxDimension = defaultPhotoDimension
	}
	if maxPixels <= 0 {
		maxPixels = defaultPhotoMaxPixels
	}
	return &PhotoNormalizer{maxDimension: maxDimension, maxPixels: maxPixels}
}

func (p *PhotoNormalizer) Process(r io.Reader) (io.Reader, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading photo")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errBadImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > p.maxPixels/cfg.Height {
		return nil, "", errBadImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", errBadImage
	}
	img = imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(photoQuality)); err != nil {
		return nil, "", errors.Wrap(err, "encoding photo")
	}
	return &buf, "image/jpeg", nil
}
