// Package imaging decodes uploaded X-ray images into RGB image.Image values.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

// ErrDecode is returned for data that is not a supported image.
var ErrDecode = errors.New("image decode failed")

// ErrTooLarge is returned for images above MaxPixels. It wraps ErrDecode.
var ErrTooLarge = fmt.Errorf("%w: image too large", ErrDecode)

// MaxPixels caps width×height of a decoded image. The header is checked before any
// pixel data is allocated.
var MaxPixels = 25_000_000

// SupportedExtensions lists the upload formats accepted by the service.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg"}

// IsSupported reports whether filename has an accepted image extension.
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode decodes PNG or JPEG data. Grayscale sources come back replicated across the
// three color channels and alpha is discarded by the consumer, so the result can be
// read as RGB regardless of the source channel layout. The returned string is the
// detected format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty data", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return img, format, nil
}

// DecodeFile reads and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not load image %s: %w", ErrDecode, path, err)
	}
	img, _, err := Decode(data)
	return img, err
}
