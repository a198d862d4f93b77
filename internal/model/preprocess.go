package model

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"gorgonia.org/tensor"

	"github.com/Brownie44l1/cxr-api/internal/imaging"
)

// InputSize is the square edge the network was trained on.
const InputSize = 224

// Preprocess converts img into the network input: three RGB channels, resized to
// size×size with bilinear resampling, scaled to [0, 1], with a leading batch
// dimension of one. The output is deterministic for a given input.
func Preprocess(img image.Image, size int, layout Layout) (*tensor.Dense, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", imaging.ErrDecode)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid input size: %d", size)
	}

	var resized image.Image
	if isOpaque(img) {
		// Nothing to flatten, so resize first and copy only size×size pixels.
		resized = toRGB(fit(img, size))
	} else {
		resized = fit(toRGB(img), size)
	}

	bounds := resized.Bounds()
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0

			pixel := y*size + x
			switch layout {
			case LayoutNCHW:
				data[pixel] = r
				data[plane+pixel] = g
				data[2*plane+pixel] = b
			default:
				data[3*pixel] = r
				data[3*pixel+1] = g
				data[3*pixel+2] = b
			}
		}
	}

	return tensor.New(tensor.WithShape(inputShape(size, layout)...), tensor.WithBacking(data)), nil
}

func fit(img image.Image, size int) image.Image {
	if b := img.Bounds(); b.Dx() == size && b.Dy() == size {
		return img
	}
	return resize.Resize(uint(size), uint(size), img, resize.Bilinear)
}

func isOpaque(img image.Image) bool {
	o, ok := img.(interface{ Opaque() bool })
	return ok && o.Opaque()
}

// toRGB drops any alpha channel and replicates single-channel images, producing an
// opaque image whose color channels are the straight (non-premultiplied) values.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

func inputShape(size int, layout Layout) []int {
	if layout == LayoutNCHW {
		return []int{1, 3, size, size}
	}
	return []int{1, size, size, 3}
}
