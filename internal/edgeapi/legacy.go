package edgeapi

import "errors"

// legacyEnduserVerifyRequest is the POST /v2/enduser/verify body shape
// (spec.md §6 "Edge Gateway specifics"): a list of typed documents, each
// carrying its image bytes in one of two base64 shapes.
type legacyEnduserVerifyRequest struct {
	Documents []legacyDocument `json:"documents"`
}

type legacyDocument struct {
	Type   string       `json:"type"`
	Base64 string       `json:"base64"`
	Pages  []legacyPage `json:"pages"`
}

type legacyPage struct {
	Base64 string `json:"base64"`
}

var idDocumentTypes = map[string]bool{
	"id_card":         true,
	"id-card":         true,
	"passport":        true,
	"drivers_license": true,
}

var selfieDocumentTypes = map[string]bool{
	"selfie": true,
	"face":   true,
}

var errMissingIDDocument = errors.New("no id document found in documents")
var errMissingSelfie = errors.New("no selfie found in documents")

// payload resolves a legacyDocument to a DocumentPayload, preferring the
// nested pages[0].base64 shape when both are present.
func (d legacyDocument) payload() DocumentPayload {
	if len(d.Pages) > 0 && d.Pages[0].Base64 != "" {
		return NewBase64NestedPayload(d.Pages[0].Base64)
	}
	return NewBase64FlatPayload(d.Base64)
}

// extractIDAndSelfie finds the front-ID and selfie documents among a
// legacy request's documents list, decoding each to raw image bytes.
func extractIDAndSelfie(req legacyEnduserVerifyRequest) (idBytes, selfieBytes []byte, err error) {
	var idDoc, selfieDoc *legacyDocument
	for i := range req.Documents {
		doc := &req.Documents[i]
		if idDocumentTypes[doc.Type] && idDoc == nil {
			idDoc = doc
		}
		if selfieDocumentTypes[doc.Type] && selfieDoc == nil {
			selfieDoc = doc
		}
	}

	if idDoc == nil {
		return nil, nil, errMissingIDDocument
	}
	if selfieDoc == nil {
		return nil, nil, errMissingSelfie
	}

	idBytes, err = idDoc.payload().Normalize()
	if err != nil {
		return nil, nil, err
	}
	selfieBytes, err = selfieDoc.payload().Normalize()
	if err != nil {
		return nil, nil, err
	}
	return idBytes, selfieBytes, nil
}
