package edgeapi

import (
	"encoding/base64"
	"testing"
)

func TestExtractIDAndSelfieFlatBase64(t *testing.T) {
	idBytes := []byte("id-document-bytes")
	selfieBytes := []byte("selfie-bytes")

	req := legacyEnduserVerifyRequest{
		Documents: []legacyDocument{
			{Type: "passport", Base64: base64.StdEncoding.EncodeToString(idBytes)},
			{Type: "selfie", Base64: base64.StdEncoding.EncodeToString(selfieBytes)},
		},
	}

	gotID, gotSelfie, err := extractIDAndSelfie(req)
	if err != nil {
		t.Fatalf("extractIDAndSelfie: %v", err)
	}
	if string(gotID) != string(idBytes) {
		t.Errorf("id bytes = %q, want %q", gotID, idBytes)
	}
	if string(gotSelfie) != string(selfieBytes) {
		t.Errorf("selfie bytes = %q, want %q", gotSelfie, selfieBytes)
	}
}

func TestExtractIDAndSelfieNestedBase64(t *testing.T) {
	idBytes := []byte("id-card-bytes")
	selfieBytes := []byte("face-bytes")

	req := legacyEnduserVerifyRequest{
		Documents: []legacyDocument{
			{Type: "id_card", Pages: []legacyPage{{Base64: base64.StdEncoding.EncodeToString(idBytes)}}},
			{Type: "face", Pages: []legacyPage{{Base64: base64.StdEncoding.EncodeToString(selfieBytes)}}},
		},
	}

	gotID, gotSelfie, err := extractIDAndSelfie(req)
	if err != nil {
		t.Fatalf("extractIDAndSelfie: %v", err)
	}
	if string(gotID) != string(idBytes) {
		t.Errorf("id bytes = %q, want %q", gotID, idBytes)
	}
	if string(gotSelfie) != string(selfieBytes) {
		t.Errorf("selfie bytes = %q, want %q", gotSelfie, selfieBytes)
	}
}

func TestExtractIDAndSelfiePrefersNestedOverFlat(t *testing.T) {
	nested := []byte("nested-bytes")
	flat := []byte("flat-bytes")

	doc := legacyDocument{
		Type:   "drivers_license",
		Base64: base64.StdEncoding.EncodeToString(flat),
		Pages:  []legacyPage{{Base64: base64.StdEncoding.EncodeToString(nested)}},
	}

	got, err := doc.payload().Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if string(got) != string(nested) {
		t.Errorf("got %q, want the nested shape %q preferred over flat", got, nested)
	}
}

func TestExtractIDAndSelfieMissingIDDocument(t *testing.T) {
	req := legacyEnduserVerifyRequest{
		Documents: []legacyDocument{
			{Type: "selfie", Base64: base64.StdEncoding.EncodeToString([]byte("x"))},
		},
	}
	_, _, err := extractIDAndSelfie(req)
	if err != errMissingIDDocument {
		t.Errorf("err = %v, want errMissingIDDocument", err)
	}
}

func TestExtractIDAndSelfieMissingSelfie(t *testing.T) {
	req := legacyEnduserVerifyRequest{
		Documents: []legacyDocument{
			{Type: "passport", Base64: base64.StdEncoding.EncodeToString([]byte("x"))},
		},
	}
	_, _, err := extractIDAndSelfie(req)
	if err != errMissingSelfie {
		t.Errorf("err = %v, want errMissingSelfie", err)
	}
}

func TestExtractIDAndSelfieAcceptsAllIDTypeAliases(t *testing.T) {
	for _, idType := range []string{"id_card", "id-card", "passport", "drivers_license"} {
		req := legacyEnduserVerifyRequest{
			Documents: []legacyDocument{
				{Type: idType, Base64: base64.StdEncoding.EncodeToString([]byte("id"))},
				{Type: "selfie", Base64: base64.StdEncoding.EncodeToString([]byte("selfie"))},
			},
		}
		if _, _, err := extractIDAndSelfie(req); err != nil {
			t.Errorf("type %q: extractIDAndSelfie: %v", idType, err)
		}
	}
}
