package zfm

import (
	"fmt"
	"image"
	"image/color"

	"fpbridge/internal/fpdev"
)

// Image geometry of UpImage: 256x288 pixels, two 4-bit pixels per byte,
// high nibble first. Higher values are brighter.
const (
	Width     = 256
	Height    = 288
	imageSize = Width * Height / 2
)

func pixel(raw []byte, i int) uint8 {
	b := raw[i/2]
	if i%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

// render draws ridges in c on a white background.
func render(raw []byte, c fpdev.Color) (image.Image, error) {
	if len(raw) != imageSize {
		return nil, fmt.Errorf("zfm: image is %d bytes, want %d", len(raw), imageSize)
	}
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	for i := 0; i < Width*Height; i++ {
		v := pixel(raw, i)
		x, y := i%Width, i/Width
		if v >= 0x0E {
			img.Set(x, y, color.White)
			continue
		}
		img.Set(x, y, fpdev.RidgeColor(c, v*17))
	}
	return img, nil
}

// quality is the share of pixels in finger contact, in percent.
func quality(raw []byte) int {
	n := len(raw) * 2
	if n == 0 {
		return 0
	}
	contact := 0
	for i := 0; i < n; i++ {
		if pixel(raw, i) < 0x0C {
			contact++
		}
	}
	return contact * 100 / n
}
