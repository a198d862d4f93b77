//go:build !gocv
// +build !gocv

package imaging

import (
	"bytes"
	"image"
)

func decode(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}
