// Command inferenced runs the Inference Gateway: the canonical KYC
// verification service (spec.md §2). Generalized from the teacher's
// single-binary main.go — database and gRPC wiring are gone since
// persistence and the ML microservice boundary are out of scope, and
// in their place is the Stage Registry and Challenge Store this service
// owns directly.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/example/kyc-gateway/internal/auth"
	"github.com/example/kyc-gateway/internal/challenge"
	"github.com/example/kyc-gateway/internal/config"
	"github.com/example/kyc-gateway/internal/httpapi"
	"github.com/example/kyc-gateway/internal/httpserver"
	"github.com/example/kyc-gateway/internal/kyc"
	"github.com/example/kyc-gateway/internal/logging"
	"github.com/example/kyc-gateway/internal/orchestrator"
	"github.com/example/kyc-gateway/internal/registry"
	"github.com/example/kyc-gateway/internal/tracing"
	"github.com/example/kyc-gateway/internal/workpool"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.Setup(ctx, "inference-gateway", cfg.OTelExporterEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	store := buildChallengeStore(ctx, cfg, logger)
	defer store.Close()

	reg := registry.New(cfg)

	policy := kyc.ScoringPolicy{
		SimilarityThreshold: cfg.SimilarityThreshold,
		PendingFaceFloor:    cfg.PendingFaceFloor,
		PendingOCRFloor:     cfg.PendingOCRFloor,
	}
	stagePool := workpool.New(cfg.StageConcurrency)

	verifier := orchestrator.NewVerifier(reg, policy).WithTimeout(cfg.RequestTimeout()).WithPool(stagePool)
	livenessPolicy := orchestrator.LivenessPolicy{
		MinFrames:      cfg.LivenessMinFrames,
		FaceRatioFloor: cfg.LivenessFaceRatioFloor,
	}
	livenessChecker := orchestrator.NewLivenessChecker(reg, store, livenessPolicy).WithPool(stagePool)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(auth.ServiceJWTMiddleware(cfg.JWTSecret, ""))

	server := httpapi.NewServer(cfg, reg, store, verifier, livenessChecker, logger)
	server.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:    cfg.InferenceListenAddr,
		Handler: otelhttp.NewHandler(r, "inference-gateway"),
	}

	logger.Info("inference gateway listening", zap.String("addr", cfg.InferenceListenAddr))
	if err := httpserver.Serve(httpServer, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildChallengeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) challenge.Store {
	if !cfg.UsesRedis() {
		return challenge.NewMemoryStore(cfg.HMACSecret)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	return challenge.NewRedisStore(client, cfg.HMACSecret, logger)
}
