// Package kyc holds the domain entities shared by the stages and
// orchestrators: images, face boxes, embeddings, OCR results, and the
// two verdict shapes the orchestrators produce.
package kyc

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
)

// ContentType enumerates the image encodings accepted at ingress.
type ContentType string

const (
	ContentTypeJPEG ContentType = "image/jpeg"
	ContentTypePNG  ContentType = "image/png"
)

// ErrUnsupportedContentType is returned when an image's sniffed content
// type isn't JPEG or PNG.
var ErrUnsupportedContentType = errors.New("unsupported image content type")

// ErrEmptyImage is returned when the decoded raster has zero area.
var ErrEmptyImage = errors.New("image has zero dimensions")

// Image is a decoded raster plus its original bytes and sniffed content
// type. It is owned exclusively by whichever orchestrator created it;
// stages receive borrowed views and must not retain them past the call.
type Image struct {
	Raw         []byte
	ContentType ContentType
	Decoded     image.Image
	Width       int
	Height      int
}

// Decode validates and decodes raw image bytes into an Image. The
// content type is determined by sniffing the bytes alone; no declared
// type is consulted, since browsers and multipart clients routinely
// mislabel uploads.
func Decode(raw []byte) (*Image, error) {
	sniffed := http.DetectContentType(raw)
	var ct ContentType
	switch {
	case bytes.HasPrefix([]byte(sniffed), []byte("image/jpeg")):
		ct = ContentTypeJPEG
	case bytes.HasPrefix([]byte(sniffed), []byte("image/png")):
		ct = ContentTypePNG
	default:
		return nil, ErrUnsupportedContentType
	}

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	bounds := decoded.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 1 || height < 1 {
		return nil, ErrEmptyImage
	}

	return &Image{
		Raw:         raw,
		ContentType: ct,
		Decoded:     decoded,
		Width:       width,
		Height:      height,
	}, nil
}
