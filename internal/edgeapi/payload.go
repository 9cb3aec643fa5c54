// Package edgeapi implements the Edge Gateway: the browser-facing HTTP
// surface that normalizes multipart and base64 image ingestion shapes
// and proxies to the canonical Inference Gateway, plus the legacy
// /v2/enduser/verify translation shim (spec.md §6 "Edge Gateway
// specifics"). Routing follows abramin-Credo's chi handler idiom
// (internal/decision/handler/handler.go): chi.Router, net/http
// ResponseWriter/Request, no framework-specific context type.
package edgeapi

import (
	"encoding/base64"
	"errors"
)

// payloadKind tags which of the three shapes a document payload arrived
// in, replacing the scattered ternary checks a hand-rolled
// "try pages[0].base64, else base64" chain would otherwise need at every
// call site.
type payloadKind int

const (
	payloadMultipart payloadKind = iota
	payloadBase64Nested
	payloadBase64Flat
)

// DocumentPayload is a tagged variant over the two base64 shapes the
// legacy JSON endpoint's documents can carry image bytes in, plus the
// canonical multipart shape used internally. Exactly one Normalize
// function handles all three instead of duplicating extraction logic
// per shape at each call site.
type DocumentPayload struct {
	kind         payloadKind
	multipart    []byte
	base64Nested string // documents[*].pages[0].base64
	base64Flat   string // documents[*].base64
}

// NewMultipartPayload wraps raw multipart file bytes.
func NewMultipartPayload(raw []byte) DocumentPayload {
	return DocumentPayload{kind: payloadMultipart, multipart: raw}
}

// NewBase64NestedPayload wraps a documents[*].pages[0].base64 value.
func NewBase64NestedPayload(b64 string) DocumentPayload {
	return DocumentPayload{kind: payloadBase64Nested, base64Nested: b64}
}

// NewBase64FlatPayload wraps a documents[*].base64 value.
func NewBase64FlatPayload(b64 string) DocumentPayload {
	return DocumentPayload{kind: payloadBase64Flat, base64Flat: b64}
}

var errEmptyPayload = errors.New("document payload is empty")

// Normalize resolves any DocumentPayload shape down to raw image bytes.
func (p DocumentPayload) Normalize() ([]byte, error) {
	switch p.kind {
	case payloadMultipart:
		if len(p.multipart) == 0 {
			return nil, errEmptyPayload
		}
		return p.multipart, nil
	case payloadBase64Nested:
		if p.base64Nested == "" {
			return nil, errEmptyPayload
		}
		return decodeBase64Image(p.base64Nested)
	case payloadBase64Flat:
		if p.base64Flat == "" {
			return nil, errEmptyPayload
		}
		return decodeBase64Image(p.base64Flat)
	default:
		return nil, errEmptyPayload
	}
}

// decodeBase64Image strips an optional data-URL prefix
// ("data:image/jpeg;base64,...") before decoding, since browser SDKs
// routinely send either form interchangeably.
func decodeBase64Image(encoded string) ([]byte, error) {
	if idx := indexOfComma(encoded); idx >= 0 && looksLikeDataURL(encoded[:idx]) {
		encoded = encoded[idx+1:]
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func indexOfComma(s string) int {
	for i, c := range s {
		if c == ',' {
			return i
		}
	}
	return -1
}

func looksLikeDataURL(prefix string) bool {
	return len(prefix) > 5 && prefix[:5] == "data:"
}
