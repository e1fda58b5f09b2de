// Package certificate lays a verdict out as a single-page PDF and reads
// rendered certificates back to text.
package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/webp"

	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// ErrRender marks failures that leave no usable document.
var ErrRender = errors.New("render certificate")

// Layout constants, in points on an A4 portrait page.
const (
	titleText     = "Fish Health Certificate"
	signatureText = "Certified by PondVision Fish Psychologist"
	footerText    = "PondVision - for entertainment purposes only. No fish were harmed by this analysis."
	videoNote     = "Video attached (thumbnail not available)"

	generatedPrefix = "Generated: "
	labelAge        = "Age Category:"
	labelStatus     = "Status:"
	labelCause      = "Cause:"
	labelNotes      = "Notes:"

	titleY      = 70.0
	subtitleY   = 95.0
	boxTop      = 130.0
	boxWidth    = 440.0
	boxHeight   = 440.0
	boxPadding  = 18.0
	labelColumn = 110.0
	lineHeight  = 16.0
	rowGap      = 10.0
	imageWidth  = 200.0
	imageHeight = 120.0
	footerInset = 40.0
	thumbName   = "thumbnail"
)

// rowLabels are printed top to bottom inside the box.
var rowLabels = []string{labelAge, labelStatus, labelCause, labelNotes}

// Option customises a Renderer.
type Option func(*Renderer)

// WithCompression toggles stream compression in the output.
func WithCompression(on bool) Option {
	return func(r *Renderer) { r.compress = on }
}

// Renderer produces certificate PDFs. It holds no per-document state and can
// be shared.
type Renderer struct {
	compress bool
}

// NewRenderer returns a Renderer with compression enabled.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{compress: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the certificate for v. img is optional; when it cannot be
// embedded the certificate is still produced without it.
func (r *Renderer) Render(v verdict.Verdict, img []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.RenderTo(&buf, v, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderTo writes the certificate to w. On error nothing useful has been
// written and callers must discard w's contents.
func (r *Renderer) RenderTo(w io.Writer, v verdict.Verdict, img []byte) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetCompression(r.compress)
	// Pinning the dates keeps repeated renders of one verdict identical.
	pdf.SetCreationDate(v.GeneratedAt)
	pdf.SetModificationDate(v.GeneratedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(titleText, false)
	pdf.SetCreator("PondVision", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	boxX := (pageW - boxWidth) / 2

	pdf.SetFont("Helvetica", "B", 20)
	centered(pdf, pageW, titleY, titleText)
	pdf.SetFont("Helvetica", "", 11)
	centered(pdf, pageW, subtitleY, generatedPrefix+clean(v.Timestamp()))

	pdf.SetDrawColor(40, 90, 140)
	pdf.SetLineWidth(1.5)
	pdf.Rect(boxX, boxTop, boxWidth, boxHeight, "D")

	rows := []struct{ label, value string }{
		{labelAge, fmt.Sprintf("%s (%.1f yrs)", v.AgeCategory, v.ExactAge)},
		{labelStatus, v.Status},
		{labelCause, string(v.Cause)},
		{labelNotes, v.Notes},
	}
	valueX := boxX + boxPadding + labelColumn
	valueW := boxWidth - 2*boxPadding - labelColumn
	y := boxTop + boxPadding
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetXY(boxX+boxPadding, y)
		pdf.CellFormat(labelColumn, lineHeight, row.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.SetXY(valueX, y)
		pdf.MultiCell(valueW, lineHeight, clean(row.value), "", "L", false)
		y = pdf.GetY() + rowGap
	}

	mediaY := boxTop + boxHeight - boxPadding - lineHeight - imageHeight - rowGap
	switch {
	case len(img) > 0:
		r.embedImage(pdf, img, (pageW-imageWidth)/2, mediaY)
	case v.Media.Kind == verdict.MediaVideo:
		pdf.SetFont("Helvetica", "I", 11)
		centered(pdf, pageW, mediaY+imageHeight/2, videoNote)
	}

	pdf.SetFont("Helvetica", "I", 11)
	pdf.Text(boxX+boxPadding, boxTop+boxHeight-boxPadding, signatureText)

	pdf.SetFont("Helvetica", "", 9)
	centered(pdf, pageW, pageH-footerInset, footerText)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("%w: layout: %v", ErrRender, err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: output: %v", ErrRender, err)
	}
	return nil
}

// embedImage places the thumbnail, or logs and leaves the page untouched when
// the payload cannot be decoded or registered.
func (r *Renderer) embedImage(pdf *fpdf.Fpdf, data []byte, x, y float64) {
	payload, imageType, err := prepareImage(data)
	if err != nil {
		logrus.WithError(err).Warn("certificate image skipped")
		return
	}
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(thumbName, opts, bytes.NewReader(payload))
	if !pdf.Ok() {
		logrus.WithError(pdf.Error()).Warn("certificate image skipped")
		pdf.ClearError()
		return
	}
	pdf.ImageOptions(thumbName, x, y, imageWidth, imageHeight, false, opts, 0, "")
}

// prepareImage sniffs the payload and converts formats fpdf cannot read into
// PNG.
func prepareImage(data []byte) ([]byte, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	switch format {
	case "jpeg":
		return data, "JPEG", nil
	case "png":
		return data, "PNG", nil
	case "gif":
		return data, "GIF", nil
	case "webp":
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode webp: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("re-encode webp: %w", err)
		}
		return buf.Bytes(), "PNG", nil
	}
	return nil, "", fmt.Errorf("unsupported image format %q", format)
}

func centered(pdf *fpdf.Fpdf, pageW, y float64, text string) {
	w := pdf.GetStringWidth(text)
	pdf.Text((pageW-w)/2, y, text)
}

func clean(s string) string {
	return strings.TrimSpace(Sanitize(s))
}
