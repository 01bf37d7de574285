package validation

import (
	"fmt"
	"strings"

	apperrors "go-image-tagger/internal/errors"

	"github.com/gabriel-vasile/mimetype"
)

// allowedImageTypes are the media types vision models accept.
var allowedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// ImagePayload is the result of validating an uploaded image.
type ImagePayload struct {
	MediaType string
	Extension string
	Size      int64
}

// ImageValidator checks uploaded bytes before they are enqueued.
type ImageValidator struct {
	maxSize int64
}

// NewImageValidator creates a validator rejecting payloads over maxSize bytes.
// A non-positive maxSize disables the size check.
func NewImageValidator(maxSize int64) *ImageValidator {
	return &ImageValidator{maxSize: maxSize}
}

// Validate sniffs the media type from the content itself; the declared type
// of an upload is not trusted.
func (v *ImageValidator) Validate(data []byte) (ImagePayload, error) {
	if len(data) == 0 {
		return ImagePayload{}, apperrors.NewValidationError("empty image payload", nil)
	}
	if v.maxSize > 0 && int64(len(data)) > v.maxSize {
		return ImagePayload{}, apperrors.NewValidationError(
			fmt.Sprintf("file size exceeds limit: %d bytes (max %d bytes)", len(data), v.maxSize), nil)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
		return ImagePayload{}, apperrors.NewValidationError(
			fmt.Sprintf("unsupported media type: %s", mt.String()), nil)
	}

	return ImagePayload{
		MediaType: strings.ToLower(mt.String()),
		Extension: mt.Extension(),
		Size:      int64(len(data)),
	}, nil
}

// DetectMediaType returns the sniffed media type of data.
func DetectMediaType(data []byte) string {
	return mimetype.Detect(data).String()
}
