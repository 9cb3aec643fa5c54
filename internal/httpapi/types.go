// Package httpapi implements the Inference Gateway's canonical HTTP
// surface (spec.md §6): /api/v1/health, /api/v1/kyc/verify,
// /api/v1/kyc/ocr, /api/v1/liveness/challenge, /api/v1/liveness/verify,
// and /api/v1/liveness/detect. Routing follows the teacher's gin-based
// handlers.RegisterRoutes shape (internal/handlers/handlers.go),
// generalized from its single /verify endpoint to the full KYC surface.
package httpapi

import "github.com/example/kyc-gateway/internal/kyc"

// healthResponse is the GET /api/v1/health body.
type healthResponse struct {
	Status string                    `json:"status"`
	Stages map[string]stageStatusDTO `json:"stages"`
}

type stageStatusDTO struct {
	Loaded bool   `json:"loaded"`
	Name   string `json:"name"`
	Error  string `json:"error,omitempty"`
}

// verificationVerdictDTO is the canonical Verification Verdict JSON.
type verificationVerdictDTO struct {
	VerificationStatus      string                   `json:"verification_status"`
	ConfidenceScore         float64                  `json:"confidence_score"`
	FaceMatchScore          float64                  `json:"face_match_score"`
	OCRData                 ocrDataDTO               `json:"ocr_data"`
	ProcessingTimeMillis    int64                    `json:"processing_time_ms"`
	Timestamp               string                   `json:"timestamp"`
	FaceVerificationDetails faceVerificationDetailDTO `json:"face_verification_details"`
}

type ocrDataDTO struct {
	DocumentType  string         `json:"document_type"`
	Confidence    float64        `json:"confidence"`
	ExtractedText string         `json:"extracted_text"`
	Fields        ocrFieldsDTO   `json:"fields"`
}

type ocrFieldsDTO struct {
	FullName       *string `json:"full_name"`
	DateOfBirth    *string `json:"date_of_birth"`
	DocumentNumber *string `json:"document_number"`
	Nationality    *string `json:"nationality"`
	IssueDate      *string `json:"issue_date"`
	ExpiryDate     *string `json:"expiry_date"`
	PlaceOfBirth   *string `json:"place_of_birth"`
	Address        *string `json:"address"`
	Gender         *string `json:"gender"`
}

type faceVerificationDetailDTO struct {
	Verified         bool              `json:"verified"`
	Confidence       float64           `json:"confidence"`
	SimilarityMetrics similarityMetricsDTO `json:"similarity_metrics"`
	ThresholdUsed    float64           `json:"threshold_used"`
	Message          string            `json:"message"`
}

type similarityMetricsDTO struct {
	CosineSimilarity  float64 `json:"cosine_similarity"`
	EuclideanDistance float64 `json:"euclidean_distance"`
}

func ocrFieldsFromDomain(f kyc.Fields) ocrFieldsDTO {
	return ocrFieldsDTO{
		FullName:       f["full_name"],
		DateOfBirth:    f["date_of_birth"],
		DocumentNumber: f["document_number"],
		Nationality:    f["nationality"],
		IssueDate:      f["issue_date"],
		ExpiryDate:     f["expiry_date"],
		PlaceOfBirth:   f["place_of_birth"],
		Address:        f["address"],
		Gender:         f["gender"],
	}
}

func verificationVerdictDTOFromDomain(v *kyc.VerificationVerdict) verificationVerdictDTO {
	return verificationVerdictDTO{
		VerificationStatus:   string(v.Status),
		ConfidenceScore:      v.ConfidenceScore,
		FaceMatchScore:       v.FaceMatchScore,
		ProcessingTimeMillis: v.ProcessingTimeMillis,
		Timestamp:            v.Timestamp.UTC().Format(timestampLayout),
		OCRData: ocrDataDTO{
			DocumentType:  v.OCR.DocumentType,
			Confidence:    v.OCR.Confidence,
			ExtractedText: v.OCR.Text,
			Fields:        ocrFieldsFromDomain(v.OCR.Fields),
		},
		FaceVerificationDetails: faceVerificationDetailDTO{
			Verified:   v.FaceVerification.Verified,
			Confidence: v.FaceVerification.Confidence,
			SimilarityMetrics: similarityMetricsDTO{
				CosineSimilarity:  v.FaceVerification.CosineSimilarity,
				EuclideanDistance: v.FaceVerification.EuclideanDistance,
			},
			ThresholdUsed: v.FaceVerification.ThresholdUsed,
			Message:       v.FaceVerification.Message,
		},
	}
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ocrResponseDTO is the /api/v1/kyc/ocr response wrapper.
type ocrResponseDTO struct {
	OCRData ocrDataDTO `json:"ocr_data"`
}

// challengeDTO is the GET /api/v1/liveness/challenge response.
type challengeDTO struct {
	ChallengeID    string   `json:"challenge_id"`
	MultiChallenge bool     `json:"multi_challenge"`
	ChallengeTypes []string `json:"challenge_types"`
	Questions      []string `json:"questions"`
	Instructions   []string `json:"instructions"`
	Timestamp      int64    `json:"timestamp"`
	ExpiresAt      int64    `json:"expires_at"`
	Nonce          string   `json:"nonce"`
	Signature      string   `json:"signature"`
}

// livenessVerifyRequestDTO is the POST /api/v1/liveness/verify body.
type livenessVerifyRequestDTO struct {
	ChallengeID string   `json:"challenge_id"`
	Signature   string   `json:"signature"`
	Frames      []string `json:"frames"`
}

// livenessVerdictDTO is the POST /api/v1/liveness/verify response.
type livenessVerdictDTO struct {
	ChallengeID         string               `json:"challenge_id"`
	Status              string               `json:"status"`
	Message             string               `json:"message"`
	DetectionResults    detectionResultsDTO  `json:"detection_results"`
	ProcessingTimeMillis int64               `json:"processing_time_ms"`
	Timestamp           string               `json:"timestamp"`
}

type detectionResultsDTO struct {
	Blinks        int      `json:"blinks"`
	Orientation   *string  `json:"orientation"`
	Orientations  []string `json:"orientations"`
	FaceDetected  bool     `json:"face_detected"`
}

func livenessVerdictDTOFromDomain(v *kyc.LivenessVerdict) livenessVerdictDTO {
	orientations := make([]string, len(v.Detection.Orientations))
	var lastNonNone *string
	for i, o := range v.Detection.Orientations {
		orientations[i] = string(o)
		if o != kyc.OrientationNone {
			s := string(o)
			lastNonNone = &s
		}
	}
	return livenessVerdictDTO{
		ChallengeID: v.ChallengeID,
		Status:      string(v.Status),
		Message:     v.Message,
		DetectionResults: detectionResultsDTO{
			Blinks:       v.Detection.Blinks,
			Orientation:  lastNonNone,
			Orientations: orientations,
			FaceDetected: v.Detection.FaceDetectionRatio > 0,
		},
		ProcessingTimeMillis: v.ProcessingTimeMillis,
		Timestamp:            v.Timestamp.UTC().Format(timestampLayout),
	}
}

// livenessDetectRequestDTO is the POST /api/v1/liveness/detect body: a
// bare detection pass with no challenge binding, used by clients that
// want a running blink count across a capture session (e.g. a
// multi-step client-side wizard) without committing to a Challenge.
type livenessDetectRequestDTO struct {
	Frames           []string `json:"frames"`
	InitialBlinkCount int     `json:"initial_blink_count"`
}

type livenessDetectResponseDTO struct {
	Blinks       int      `json:"blinks"`
	Orientations []string `json:"orientations"`
	FaceDetected bool     `json:"face_detected"`
}
