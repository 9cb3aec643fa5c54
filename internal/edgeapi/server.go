package edgeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/example/kyc-gateway/internal/config"
	"github.com/example/kyc-gateway/internal/metrics"
)

// Server is the Edge Gateway: a thin, browser-facing proxy in front of
// the Inference Gateway. It never itself decodes images or runs
// inference — every canonical request is forwarded, and only the
// legacy endpoint's base64 documents are translated to multipart first.
type Server struct {
	cfg     *config.Config
	client  *InferenceClient
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewServer builds an edge Server.
func NewServer(cfg *config.Config, client *InferenceClient, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, client: client, logger: logger, metrics: metrics.Default()}
}

// Router builds the chi router with CORS, request metrics, and every
// route mounted, wrapped in an otelhttp handler so inbound spans link
// up with the outbound InferenceClient spans.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		MaxAge:           300,
	}))
	r.Use(s.observeRequests)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)
	r.Post("/v2/enduser/verify", s.handleLegacyVerify)

	r.Post("/api/v1/kyc/verify", s.proxyMultipartVerify)
	r.Post("/api/v1/kyc/ocr", s.proxyMultipartOCR)
	r.Get("/api/v1/liveness/challenge", s.proxyGet("/api/v1/liveness/challenge"))
	r.Post("/api/v1/liveness/verify", s.proxyJSON("/api/v1/liveness/verify"))
	r.Post("/api/v1/liveness/detect", s.proxyJSON("/api/v1/liveness/detect"))

	return otelhttp.NewHandler(r, "edge-gateway")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.proxyGet("/api/v1/health")(w, r)
}

// observeRequests records every proxied request's route and final
// status code, mirroring the Inference Gateway's own request counter.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.ObserveRequest(route, strconv.Itoa(ww.Status()))
	})
}

func (s *Server) proxyGet(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.client.Get(r.Context(), path)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inference gateway unavailable"})
			return
		}
		relay(w, result)
	}
}

func (s *Server) proxyJSON(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body any
		if err := json.NewDecoder(io.LimitReader(r.Body, s.cfg.MaxUploadSizeBytes())).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
			return
		}
		result, err := s.client.ProxyJSON(r.Context(), http.MethodPost, path, body)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inference gateway unavailable"})
			return
		}
		relay(w, result)
	}
}

func (s *Server) proxyMultipartVerify(w http.ResponseWriter, r *http.Request) {
	s.proxyMultipart(w, r, "/api/v1/kyc/verify", []multipartField{
		{form: "id_document", required: true},
		{form: "id_document_back", required: false},
		{form: "selfie_image", required: true},
	})
}

func (s *Server) proxyMultipartOCR(w http.ResponseWriter, r *http.Request) {
	s.proxyMultipart(w, r, "/api/v1/kyc/ocr", []multipartField{
		{form: "document", required: true},
	})
}

type multipartField struct {
	form     string
	required bool
}

func (s *Server) proxyMultipart(w http.ResponseWriter, r *http.Request, path string, want []multipartField) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadSizeBytes()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed multipart body"})
		return
	}

	fields := make(map[string][]byte, len(want))
	filenames := make(map[string]string, len(want))
	for _, f := range want {
		file, header, err := r.FormFile(f.form)
		if err != nil {
			if f.required {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": f.form + " is required"})
				return
			}
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read " + f.form})
			return
		}
		fields[f.form] = data
		filenames[f.form] = header.Filename
	}

	result, err := s.client.ProxyMultipart(r.Context(), path, fields, filenames)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inference gateway unavailable"})
		return
	}
	relay(w, result)
}

// handleLegacyVerify implements the legacy /v2/enduser/verify shim
// (spec.md §6): it extracts the id document and selfie from the
// documents array, translates them to multipart, forwards to the
// canonical verify endpoint, and always answers 200 with
// {verificationId, status, message, result} for terminal verdicts —
// technical faults alone yield a 5xx, per the "rejection is still 200"
// propagation policy spec.md §7 requires of this gateway.
func (s *Server) handleLegacyVerify(w http.ResponseWriter, r *http.Request) {
	var body legacyEnduserVerifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.cfg.MaxUploadSizeBytes())).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}

	idBytes, selfieBytes, err := extractIDAndSelfie(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := s.client.ProxyMultipart(r.Context(), "/api/v1/kyc/verify", map[string][]byte{
		"id_document":   idBytes,
		"selfie_image":  selfieBytes,
	}, nil)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inference gateway unavailable"})
		return
	}

	if result.StatusCode >= 500 {
		relay(w, result)
		return
	}

	var verdict struct {
		VerificationStatus string `json:"verification_status"`
		FaceVerificationDetails struct {
			Message string `json:"message"`
		} `json:"face_verification_details"`
	}
	if result.StatusCode < 400 {
		_ = json.Unmarshal(result.Body, &verdict)
	}

	status := verdict.VerificationStatus
	message := verdict.FaceVerificationDetails.Message
	if status == "" {
		// A 400 from the canonical endpoint (e.g. NO_FACE_IN_ID/SELFIE,
		// BAD_INPUT) still surfaces as a 200-with-rejected verdict here:
		// the legacy browser SDK has no 4xx handling path of its own.
		status = "rejected"
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(result.Body, &errBody)
		message = errBody.Error
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"verificationId": uuid.NewString(),
		"status":         status,
		"message":        message,
		"result":         json.RawMessage(result.Body),
	})
}

func relay(w http.ResponseWriter, result *ProxyResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
