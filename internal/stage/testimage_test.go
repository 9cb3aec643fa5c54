package stage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/example/kyc-gateway/internal/kyc"
)

// solidImage builds a uniform-color PNG-encoded test image: no contrast,
// so the luminance-variance heuristics in this package read it as
// featureless.
func solidImage(t *testing.T, width, height int, c color.Gray16) *kyc.Image {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

// checkerImage builds a high-contrast checkerboard: plenty of luminance
// variance for the contrast-window heuristics to latch onto.
func checkerImage(t *testing.T, width, height, cell int) *kyc.Image {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				img.Set(x, y, color.Gray16{Y: 0})
			} else {
				img.Set(x, y, color.Gray16{Y: 65535})
			}
		}
	}
	return encodePNG(t, img)
}

// solidImageRGB builds a uniform grayscale image at the given 8-bit level.
func solidImageRGB(t *testing.T, width, height int, level uint8) *kyc.Image {
	t.Helper()
	v := uint16(level)<<8 | uint16(level)
	return solidImage(t, width, height, color.Gray16{Y: v})
}

func encodePNG(t *testing.T, img image.Image) *kyc.Image {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test PNG: %v", err)
	}
	decoded, err := kyc.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode test PNG: %v", err)
	}
	return decoded
}
