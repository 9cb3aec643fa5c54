package httpapi

import (
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/kyc-gateway/internal/challenge"
	"github.com/example/kyc-gateway/internal/config"
	"github.com/example/kyc-gateway/internal/kyc"
	"github.com/example/kyc-gateway/internal/metrics"
	"github.com/example/kyc-gateway/internal/orchestrator"
	"github.com/example/kyc-gateway/internal/registry"
)

// Server holds the Inference Gateway's dependencies and registers its
// HTTP routes. Grounded in the teacher's handlers.RegisterRoutes, which
// takes its use case as a plain constructor argument rather than storing
// it on a package-level global.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	store    challenge.Store
	verifier *orchestrator.Verifier
	liveness *orchestrator.LivenessChecker
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewServer builds a Server.
func NewServer(cfg *config.Config, reg *registry.Registry, store challenge.Store, verifier *orchestrator.Verifier, liveness *orchestrator.LivenessChecker, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, registry: reg, store: store, verifier: verifier, liveness: liveness, logger: logger, metrics: metrics.Default()}
}

// RegisterRoutes wires the canonical /api/v1 surface to the router,
// plus a Prometheus /metrics endpoint (spec.md §5).
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.MaxMultipartMemory = s.cfg.MaxUploadSizeBytes()
	router.Use(s.observeRequests())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/kyc/verify", s.handleVerify)
	v1.POST("/kyc/ocr", s.handleOCR)
	v1.GET("/liveness/challenge", s.handleIssueChallenge)
	v1.POST("/liveness/verify", s.handleLivenessVerify)
	v1.POST("/liveness/detect", s.handleLivenessDetect)
}

// observeRequests records every request's route and final status code,
// grounded in abramin-Credo's promauto.NewCounter use at the handler
// layer (internal/platform/metrics), generalized here to a blanket
// gin middleware rather than per-handler calls.
func (s *Server) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		s.metrics.ObserveRequest(route, strconv.Itoa(c.Writer.Status()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.registry.Readiness(c.Request.Context())
	stages := make(map[string]stageStatusDTO, len(report))
	for name, status := range report {
		stages[string(name)] = stageStatusDTO{Loaded: status.Loaded, Name: status.Name, Error: status.Error}
	}

	status := "ok"
	code := http.StatusOK
	if !registry.Healthy(report) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, healthResponse{Status: status, Stages: stages})
}

func (s *Server) handleVerify(c *gin.Context) {
	idFile, err := c.FormFile("id_document")
	if err != nil {
		writeError(c, kyc.New(kyc.KindBadInput, "id_document file is required"))
		return
	}
	selfieFile, err := c.FormFile("selfie_image")
	if err != nil {
		writeError(c, kyc.New(kyc.KindBadInput, "selfie_image file is required"))
		return
	}

	idBytes, err := readFormFile(idFile, s.cfg.MaxUploadSizeBytes())
	if err != nil {
		writeError(c, err)
		return
	}
	selfieBytes, err := readFormFile(selfieFile, s.cfg.MaxUploadSizeBytes())
	if err != nil {
		writeError(c, err)
		return
	}

	idImage, err := kyc.Decode(idBytes)
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindBadInput, "undecodable id document image", err))
		return
	}
	selfieImage, err := kyc.Decode(selfieBytes)
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindBadInput, "undecodable selfie image", err))
		return
	}

	verdict, err := s.verifier.Verify(c.Request.Context(), idImage, selfieImage)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, verificationVerdictDTOFromDomain(verdict))
}

func (s *Server) handleOCR(c *gin.Context) {
	docFile, err := c.FormFile("document")
	if err != nil {
		writeError(c, kyc.New(kyc.KindBadInput, "document file is required"))
		return
	}

	docBytes, err := readFormFile(docFile, s.cfg.MaxUploadSizeBytes())
	if err != nil {
		writeError(c, err)
		return
	}

	docImage, err := kyc.Decode(docBytes)
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindBadInput, "undecodable document image", err))
		return
	}

	extractor, err := s.registry.OCR(c.Request.Context())
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindNotReady, "ocr extractor not ready", err))
		return
	}

	result, err := extractor.Extract(c.Request.Context(), docImage)
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindBackendFailure, "extract document text", err))
		return
	}

	c.JSON(http.StatusOK, ocrResponseDTO{OCRData: ocrDataDTO{
		DocumentType:  result.DocumentType,
		Confidence:    result.Confidence,
		ExtractedText: result.Text,
		Fields:        ocrFieldsFromDomain(result.Fields),
	}})
}

func (s *Server) handleIssueChallenge(c *gin.Context) {
	rec, err := s.store.Issue(c.Request.Context(), s.cfg.ChallengeCount, s.cfg.ChallengeTTL())
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindInternal, "issue challenge", err))
		return
	}
	s.metrics.ObserveChallengeIssued()

	types := make([]string, len(rec.Predicates))
	questions := make([]string, len(rec.Predicates))
	instructions := make([]string, len(rec.Predicates))
	for i, p := range rec.Predicates {
		types[i] = string(p)
		questions[i] = questionForPredicate(p)
		instructions[i] = instructionForPredicate(p)
	}

	c.JSON(http.StatusOK, challengeDTO{
		ChallengeID:    rec.ID,
		MultiChallenge: len(rec.Predicates) > 1,
		ChallengeTypes: types,
		Questions:      questions,
		Instructions:   instructions,
		Timestamp:      rec.IssuedAt.Unix(),
		ExpiresAt:      rec.ExpiresAt.Unix(),
		Nonce:          rec.Nonce,
		Signature:      rec.Signature,
	})
}

func questionForPredicate(p challenge.Predicate) string {
	switch p {
	case challenge.PredicateBlink:
		return "Did you blink?"
	case challenge.PredicateTurnLeft:
		return "Did you turn left?"
	case challenge.PredicateTurnRight:
		return "Did you turn right?"
	default:
		return ""
	}
}

func instructionForPredicate(p challenge.Predicate) string {
	switch p {
	case challenge.PredicateBlink:
		return "Blink naturally"
	case challenge.PredicateTurnLeft:
		return "Turn your head to the left"
	case challenge.PredicateTurnRight:
		return "Turn your head to the right"
	default:
		return ""
	}
}

func (s *Server) handleLivenessVerify(c *gin.Context) {
	var body livenessVerifyRequestDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, kyc.Wrap(kyc.KindBadInput, "malformed request body", err))
		return
	}
	if body.ChallengeID == "" || len(body.Frames) == 0 {
		writeError(c, kyc.New(kyc.KindBadInput, "challenge_id and frames are required"))
		return
	}

	frames, err := decodeFrames(body.Frames, s.cfg.MaxUploadSizeBytes())
	if err != nil {
		writeError(c, err)
		return
	}

	verdict, err := s.liveness.Check(c.Request.Context(), body.ChallengeID, body.Signature, frames)
	if err != nil {
		if kyc.KindOf(err) == kyc.KindChallengeNotFound {
			c.JSON(http.StatusOK, livenessVerdictDTO{
				ChallengeID: body.ChallengeID,
				Status:      string(kyc.LivenessInvalid),
				Message:     err.Error(),
				Timestamp:   time.Now().UTC().Format(timestampLayout),
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, livenessVerdictDTOFromDomain(verdict))
}

func (s *Server) handleLivenessDetect(c *gin.Context) {
	var body livenessDetectRequestDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, kyc.Wrap(kyc.KindBadInput, "malformed request body", err))
		return
	}
	if len(body.Frames) == 0 {
		writeError(c, kyc.New(kyc.KindBadInput, "frames is required"))
		return
	}

	frames, err := decodeFrames(body.Frames, s.cfg.MaxUploadSizeBytes())
	if err != nil {
		writeError(c, err)
		return
	}

	evaluator, err := s.registry.Liveness(c.Request.Context())
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindNotReady, "liveness evaluator not ready", err))
		return
	}

	summary, err := evaluator.Evaluate(c.Request.Context(), frames)
	if err != nil {
		writeError(c, kyc.Wrap(kyc.KindBackendFailure, "evaluate liveness frames", err))
		return
	}

	orientations := make([]string, len(summary.Orientations))
	for i, o := range summary.Orientations {
		orientations[i] = string(o)
	}

	c.JSON(http.StatusOK, livenessDetectResponseDTO{
		Blinks:       body.InitialBlinkCount + summary.Blinks,
		Orientations: orientations,
		FaceDetected: summary.FaceDetectionRatio > 0,
	})
}

func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.JSON(status, body)
}

func readFormFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, kyc.Wrap(kyc.KindBadInput, "unable to open uploaded file", err)
	}
	defer src.Close()

	limited := io.LimitReader(src, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, kyc.Wrap(kyc.KindInternal, "read uploaded file", err)
	}
	if int64(len(data)) > limit {
		return nil, kyc.New(kyc.KindPayloadTooLarge, "uploaded file exceeds the configured size cap")
	}
	return data, nil
}

// stripDataURIPrefix strips a leading "data:image/...;base64," prefix
// from a frame payload, tolerating browser SDKs that send either form
// (spec.md §4.9).
func stripDataURIPrefix(encoded string) string {
	idx := strings.IndexByte(encoded, ',')
	if idx < 0 {
		return encoded
	}
	if strings.HasPrefix(encoded[:idx], "data:") {
		return encoded[idx+1:]
	}
	return encoded
}

func decodeFrames(encoded []string, limit int64) ([]*kyc.Image, error) {
	frames := make([]*kyc.Image, 0, len(encoded))
	var total int64
	for _, b64 := range encoded {
		raw, err := base64.StdEncoding.DecodeString(stripDataURIPrefix(b64))
		if err != nil {
			return nil, kyc.Wrap(kyc.KindBadInput, "frame is not valid base64", err)
		}
		total += int64(len(raw))
		if total > limit {
			return nil, kyc.New(kyc.KindPayloadTooLarge, "decoded frames exceed the configured size cap")
		}
		img, err := kyc.Decode(raw)
		if err != nil {
			return nil, kyc.Wrap(kyc.KindBadInput, "undecodable frame image", err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
