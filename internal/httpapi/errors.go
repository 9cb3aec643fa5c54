package httpapi

import (
	"net/http"

	"github.com/example/kyc-gateway/internal/kyc"
)

// statusForKind maps the error taxonomy to HTTP status codes per
// spec.md §7. CHALLENGE_NOT_FOUND and SIGNATURE_INVALID are handled
// specially by the liveness handlers (surfaced as 200 verdicts), so they
// never reach this mapping from a handler's top-level error path.
func statusForKind(kind kyc.Kind) int {
	switch kind {
	case kyc.KindBadInput:
		return http.StatusBadRequest
	case kyc.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case kyc.KindNoFaceInID, kyc.KindNoFaceInSelfie:
		return http.StatusBadRequest
	case kyc.KindNotReady:
		return http.StatusServiceUnavailable
	case kyc.KindChallengeNotFound, kyc.KindSignatureInvalid:
		return http.StatusBadRequest
	case kyc.KindTimeout:
		return http.StatusGatewayTimeout
	case kyc.KindBackendFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorResponseDTO struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func errorResponse(err error) (int, errorResponseDTO) {
	kind := kyc.KindOf(err)
	return statusForKind(kind), errorResponseDTO{Error: err.Error(), Kind: string(kind)}
}
