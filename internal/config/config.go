// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every recognized option from the external configuration
// contract, shared by both the Inference Gateway and the Edge Gateway.
type Config struct {
	// Scoring policy.
	SimilarityThreshold float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.30"`
	PendingFaceFloor    float64 `envconfig:"PENDING_FACE_FLOOR" default:"0.35"`
	PendingOCRFloor     float64 `envconfig:"PENDING_OCR_FLOOR" default:"0.5"`

	// Ingress limits.
	MaxUploadSizeMB int `envconfig:"MAX_UPLOAD_SIZE_MB" default:"10"`

	// StageConcurrency bounds how many CPU-bound stage invocations
	// (detection, embedding, OCR, liveness evaluation) run at once.
	StageConcurrency int `envconfig:"STAGE_CONCURRENCY" default:"8"`

	// Liveness challenge lifecycle.
	ChallengeTTLSeconds   int     `envconfig:"CHALLENGE_TTL_SECONDS" default:"120"`
	ChallengeCount        int     `envconfig:"CHALLENGE_COUNT" default:"2"`
	LivenessMinFrames     int     `envconfig:"LIVENESS_MIN_FRAMES" default:"10"`
	LivenessFaceRatioFloor float64 `envconfig:"LIVENESS_FACE_RATIO_FLOOR" default:"0.5"`

	// Security.
	HMACSecret string `envconfig:"HMAC_SECRET" required:"true"`
	JWTSecret  string `envconfig:"JWT_SECRET" default:"dev-secret"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Process wiring.
	InferenceListenAddr  string `envconfig:"INFERENCE_LISTEN_ADDR" default:":8080"`
	EdgeListenAddr       string `envconfig:"EDGE_LISTEN_ADDR" default:":8081"`
	InferenceGatewayAddr string `envconfig:"INFERENCE_GATEWAY_ADDR" default:"http://localhost:8080"`

	RequestTimeoutSeconds int `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"60"`

	// Optional distributed backend for the challenge store.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// Optional AWS Rekognition-backed stage implementations.
	AWSRegion string `envconfig:"AWS_REGION"`

	// Optional OTLP trace exporter; when empty a stdout exporter is used.
	OTelExporterEndpoint string `envconfig:"OTEL_EXPORTER_ENDPOINT"`
}

// minHMACSecretBytes is the entropy floor spec.md §6 sets for the key
// signing challenge records: short keys make the signature brute-forceable.
const minHMACSecretBytes = 32

// Load reads the process environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if len(cfg.HMACSecret) < minHMACSecretBytes {
		return nil, fmt.Errorf("load config: HMAC_SECRET must be at least %d bytes, got %d", minHMACSecretBytes, len(cfg.HMACSecret))
	}
	return &cfg, nil
}

// MaxUploadSizeBytes returns the configured upload cap in bytes.
func (c *Config) MaxUploadSizeBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// ChallengeTTL returns the configured challenge lifetime as a duration.
func (c *Config) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLSeconds) * time.Second
}

// RequestTimeout returns the end-to-end per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// UsesRedis reports whether a distributed challenge store backend is configured.
func (c *Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

// UsesRekognition reports whether the AWS-backed face stages are configured.
func (c *Config) UsesRekognition() bool {
	return c.AWSRegion != ""
}
