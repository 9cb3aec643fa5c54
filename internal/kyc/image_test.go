package kyc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func encodeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	raw := encodeTestPNG(t, 40, 30)
	img, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.ContentType != ContentTypePNG {
		t.Errorf("ContentType = %v, want %v", img.ContentType, ContentTypePNG)
	}
	if img.Width != 40 || img.Height != 30 {
		t.Errorf("dimensions = %dx%d, want 40x30", img.Width, img.Height)
	}
	if !bytes.Equal(img.Raw, raw) {
		t.Error("Raw should retain the original bytes")
	}
}

func TestDecodeJPEG(t *testing.T) {
	raw := encodeTestJPEG(t, 64, 64)
	img, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.ContentType != ContentTypeJPEG {
		t.Errorf("ContentType = %v, want %v", img.ContentType, ContentTypeJPEG)
	}
}

func TestDecodeRejectsUnsupportedContentType(t *testing.T) {
	_, err := Decode([]byte("not an image, just plain text padded out further"))
	if err != ErrUnsupportedContentType {
		t.Errorf("err = %v, want ErrUnsupportedContentType", err)
	}
}

func TestDecodeRejectsTruncatedImage(t *testing.T) {
	raw := encodeTestPNG(t, 10, 10)
	_, err := Decode(raw[:len(raw)/2])
	if err == nil {
		t.Fatal("expected an error decoding truncated image bytes")
	}
}

func TestDecodeMinimumDimensions(t *testing.T) {
	raw := encodeTestPNG(t, 1, 1)
	img, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width != 1 || img.Height != 1 {
		t.Errorf("dimensions = %dx%d, want 1x1", img.Width, img.Height)
	}
}
