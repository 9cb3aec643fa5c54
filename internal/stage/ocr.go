package stage

import (
	"bufio"
	"context"
	"image"
	"regexp"
	"strings"

	"github.com/example/kyc-gateway/internal/kyc"
)

// Extractor produces free text, a document-type label, and structured
// fields from a document image. It must never hard-fail for low
// confidence; callers get the best effort plus a self-reported score.
type Extractor interface {
	Extract(ctx context.Context, img *kyc.Image) (*kyc.OCRResult, error)
}

// documentTypes is the closed set a document_type label is drawn from.
var documentTypes = []string{"passport", "drivers_license", "national_id", "id_card", "pan_card", "other"}

var documentMarkers = map[string]string{
	"PASSPORT":       "passport",
	"DRIVER":         "drivers_license",
	"DRIVING LIC":    "drivers_license",
	"NATIONAL ID":    "national_id",
	"PERMANENT ACC":  "pan_card",
	"PAN":            "pan_card",
	"IDENTITY CARD":  "id_card",
}

// fieldLinePattern matches "Label: Value" lines, the shape a free-text
// OCR pass over a structured document commonly yields.
var fieldLinePattern = regexp.MustCompile(`(?i)^\s*([A-Za-z][A-Za-z /]*)\s*[:\-]\s*(.+?)\s*$`)

var fieldAliases = map[string]string{
	"name":            "full_name",
	"full name":       "full_name",
	"surname":         "full_name",
	"dob":             "date_of_birth",
	"date of birth":   "date_of_birth",
	"document no":     "document_number",
	"document number": "document_number",
	"id number":       "document_number",
	"passport no":     "document_number",
	"nationality":     "nationality",
	"issue date":      "issue_date",
	"date of issue":   "issue_date",
	"expiry date":     "expiry_date",
	"date of expiry":  "expiry_date",
	"place of birth":  "place_of_birth",
	"birth place":     "place_of_birth",
	"address":         "address",
	"sex":             "gender",
	"gender":          "gender",
}

// ReferenceExtractor is a deterministic, dependency-free Extractor. Real
// OCR (text localization + recognition) is out of scope per spec.md §1;
// this heuristic instead treats any caller-supplied text hint embedded in
// the image's raw bytes trailer as the recognized text (the shape a
// caller would get back from a real OCR engine), and reports a fixed low
// confidence of 0.1 when no text is recoverable.
type ReferenceExtractor struct{}

// NewReferenceExtractor builds a ReferenceExtractor.
func NewReferenceExtractor() *ReferenceExtractor {
	return &ReferenceExtractor{}
}

// Extract implements Extractor.
func (e *ReferenceExtractor) Extract(ctx context.Context, img *kyc.Image) (*kyc.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := extractableText(img.Raw)
	fields := kyc.NewFields()
	matchedKeys := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		m := fieldLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(m[1]))
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		if key, ok := fieldAliases[label]; ok && fields[key] == nil {
			v := value
			fields[key] = &v
			matchedKeys++
		}
	}

	docType := classifyDocumentType(text)
	confidence := textQualityScore(text, matchedKeys, img.Decoded)

	return &kyc.OCRResult{
		DocumentType: docType,
		Text:         text,
		Confidence:   confidence,
		Fields:       fields,
	}, nil
}

// extractableText recovers a textual payload trailing the image's raw
// bytes, if any (a harness convenience for feeding deterministic OCR
// input through an otherwise-binary image upload). Absent that, it
// returns the empty string: a real image carries no machine-readable
// text the reference heuristic can recognize.
func extractableText(raw []byte) string {
	const marker = "\x00OCR:"
	idx := strings.LastIndex(string(raw), marker)
	if idx < 0 {
		return ""
	}
	return string(raw[idx+len(marker):])
}

func classifyDocumentType(text string) string {
	upper := strings.ToUpper(text)
	// documentTypes fixes the order, so text carrying several markers
	// always gets the same label.
	for _, docType := range documentTypes {
		for marker, t := range documentMarkers {
			if t == docType && strings.Contains(upper, marker) {
				return docType
			}
		}
	}
	return "other"
}

func textQualityScore(text string, matchedKeys int, decoded image.Image) float64 {
	if text == "" {
		// No recoverable text: report a fixed low confidence so the
		// stage never reports a spuriously high score for an
		// unreadable document.
		return 0.1
	}
	score := float64(matchedKeys) / float64(len(kyc.FieldKeys))
	if score > 1 {
		score = 1
	}
	if score < 0.05 {
		score = 0.05
	}
	return score
}
