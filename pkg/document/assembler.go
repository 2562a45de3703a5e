package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

const (
	defaultMaxDimension = 2000
	defaultJPEGQuality  = 85
)

var (
	// ErrNotPDF indicates a direct upload is not a PDF document.
	ErrNotPDF = errors.New("file is not a pdf document")
	// ErrUnsupportedImage indicates an image part could not be recognised or decoded.
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrNoPages indicates nothing was supplied to assemble.
	ErrNoPages = errors.New("no pages to assemble")
)

var disableConfigDir sync.Once

// Part is a single uploaded file held in memory.
type Part struct {
	Name string
	Data []byte
}

// Options tunes image normalisation before pages are produced.
type Options struct {
	MaxDimension int
	JPEGQuality  int
}

// Assembler turns uploaded images into PDF pages and merges PDFs.
type Assembler struct {
	conf   *model.Configuration
	opts   Options
	logger zerolog.Logger
}

// NewAssembler builds an assembler with pdfcpu's default configuration.
func NewAssembler(opts Options, logger zerolog.Logger) *Assembler {
	disableConfigDir.Do(api.DisableConfigDir)

	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaultMaxDimension
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Assembler{
		conf:   conf,
		opts:   opts,
		logger: logger.With().Str("component", "document_assembler").Logger(),
	}
}

// EnsurePDF verifies the payload is a readable PDF and returns it untouched.
func (a *Assembler) EnsurePDF(part Part) ([]byte, error) {
	if len(part.Data) == 0 {
		return nil, ErrNotPDF
	}
	if !mimetype.Detect(part.Data).Is("application/pdf") {
		return nil, ErrNotPDF
	}
	return part.Data, nil
}

// ImagesToPDF renders every image onto its own page, preserving upload order.
func (a *Assembler) ImagesToPDF(ctx context.Context, images []Part) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoPages
	}

	readers := make([]io.Reader, 0, len(images))
	for i, part := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		normalized, err := a.normalizeImage(part)
		if err != nil {
			return nil, fmt.Errorf("image %d (%s): %w", i+1, part.Name, err)
		}
		readers = append(readers, bytes.NewReader(normalized))
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), a.conf); err != nil {
		return nil, fmt.Errorf("import images: %w", err)
	}

	a.logger.Debug().Int("pages", len(images)).Int("bytes", out.Len()).Msg("images assembled into pdf")
	return out.Bytes(), nil
}

// Merge concatenates the given PDFs in order.
func (a *Assembler) Merge(documents ...[]byte) ([]byte, error) {
	switch len(documents) {
	case 0:
		return nil, ErrNoPages
	case 1:
		return documents[0], nil
	}

	sources := make([]io.ReadSeeker, 0, len(documents))
	for _, doc := range documents {
		sources = append(sources, bytes.NewReader(doc))
	}

	var out bytes.Buffer
	if err := api.MergeRaw(sources, &out, false, a.conf); err != nil {
		return nil, fmt.Errorf("merge pdf: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount reports the number of pages in a PDF.
func (a *Assembler) PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), a.conf)
}

// normalizeImage decodes, orients and bounds the image, then re-encodes it as JPEG
// which pdfcpu imports directly.
func (a *Assembler) normalizeImage(part Part) ([]byte, error) {
	if len(part.Data) == 0 {
		return nil, ErrUnsupportedImage
	}

	mime := mimetype.Detect(part.Data)
	var (
		img image.Image
		err error
	)
	switch {
	case mime.Is("image/webp"):
		img, err = webp.Decode(bytes.NewReader(part.Data))
	case mime.Is("image/jpeg"), mime.Is("image/png"), mime.Is("image/gif"), mime.Is("image/bmp"), mime.Is("image/tiff"):
		img, err = imaging.Decode(bytes.NewReader(part.Data), imaging.AutoOrientation(true))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mime.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > a.opts.MaxDimension || bounds.Dy() > a.opts.MaxDimension {
		img = imaging.Fit(img, a.opts.MaxDimension, a.opts.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(a.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
