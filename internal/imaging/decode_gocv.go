//go:build gocv
// +build gocv

package imaging

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// decode uses OpenCV. IMReadColor always yields an 8-bit, three-channel BGR mat:
// grayscale is replicated, alpha is dropped and 16-bit sources are scaled down.
func decode(data []byte) (image.Image, string, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, "", err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, "", errors.New("could not process image")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, "", err
	}
	return img, "opencv", nil
}
