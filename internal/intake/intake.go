// Package intake decides whether an uploaded file can be analyzed and turns
// it into the verdict's media reference.
package intake

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

var (
	// ErrUnsupportedType is returned for anything that is not an image or video.
	ErrUnsupportedType = errors.New("unsupported file type, use an image or video")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("empty file")
	// ErrTooLarge is returned when the payload exceeds the configured limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

const genericType = "application/octet-stream"

// Intake validates uploads against a size limit.
type Intake struct {
	maxBytes int64
}

// New returns an Intake enforcing maxBytes; zero or less disables the limit.
func New(maxBytes int64) *Intake {
	return &Intake{maxBytes: maxBytes}
}

// Accept checks the declared MIME type, sniffing the payload when the type is
// missing or generic, and returns the media reference for an image or video.
func (in *Intake) Accept(filename, mimeType string, payload []byte) (verdict.Media, error) {
	if len(payload) == 0 {
		return verdict.Media{}, ErrEmpty
	}
	if in.maxBytes > 0 && int64(len(payload)) > in.maxBytes {
		return verdict.Media{}, fmt.Errorf("%w (%d bytes)", ErrTooLarge, in.maxBytes)
	}
	contentType := baseType(mimeType)
	if contentType == "" || contentType == genericType {
		contentType = baseType(mimetype.Detect(payload).String())
	}
	media := verdict.Media{
		FileName:    filename,
		ContentType: contentType,
	}
	switch {
	case strings.HasPrefix(contentType, "image/"):
		media.Kind = verdict.MediaImage
		media.Image = payload
	case strings.HasPrefix(contentType, "video/"):
		media.Kind = verdict.MediaVideo
	default:
		return verdict.Media{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return media, nil
}

// TypeByExtension guesses a MIME type from a file name, returning "" when the
// extension is unknown so Accept falls back to sniffing.
func TypeByExtension(filename string) string {
	return baseType(mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))))
}

func baseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	return strings.ToLower(contentType)
}
