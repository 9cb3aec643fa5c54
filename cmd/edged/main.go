// Command edged runs the Edge Gateway: the browser-facing proxy in
// front of the Inference Gateway (spec.md §2, "Edge Gateway
// specifics"). It owns no stages, no challenge state, and no scoring
// policy — every canonical request is forwarded, with only the legacy
// /v2/enduser/verify endpoint translated locally.
package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/kyc-gateway/internal/authclient"
	"github.com/example/kyc-gateway/internal/config"
	"github.com/example/kyc-gateway/internal/edgeapi"
	"github.com/example/kyc-gateway/internal/httpserver"
	"github.com/example/kyc-gateway/internal/logging"
	"github.com/example/kyc-gateway/internal/tracing"
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

	shutdownTracing, err := tracing.Setup(ctx, "edge-gateway", cfg.OTelExporterEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	issuer := authclient.NewTokenIssuer(cfg.JWTSecret, "edge-gateway")
	client := edgeapi.NewInferenceClient(cfg.InferenceGatewayAddr, issuer, logger)
	server := edgeapi.NewServer(cfg, client, logger)

	httpServer := &http.Server{
		Addr:    cfg.EdgeListenAddr,
		Handler: server.Router(),
	}

	logger.Info("edge gateway listening", zap.String("addr", cfg.EdgeListenAddr))
	if err := httpserver.Serve(httpServer, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
