package edgeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/example/kyc-gateway/internal/authclient"
	"github.com/example/kyc-gateway/internal/logging"
)

// InferenceClient calls the canonical Inference Gateway on behalf of
// the Edge Gateway, attaching a short-lived service-identity bearer
// token to every request. Grounded in the teacher's
// grpcclient.DialImageProcessor client shape (a ready-to-use client
// built once at startup, wrapping every call's error via
// logging.OperationError), adapted from a gRPC dial to an
// otelhttp-instrumented *http.Client so spans propagate across the hop.
type InferenceClient struct {
	baseURL string
	http    *http.Client
	issuer  *authclient.TokenIssuer
	logger  *zap.Logger
}

// NewInferenceClient builds an InferenceClient targeting baseURL.
func NewInferenceClient(baseURL string, issuer *authclient.TokenIssuer, logger *zap.Logger) *InferenceClient {
	return &InferenceClient{
		baseURL: baseURL,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   70 * time.Second,
		},
		issuer: issuer,
		logger: logger,
	}
}

// ProxyResult is the raw status code and body relayed from the
// Inference Gateway for a proxied request.
type ProxyResult struct {
	StatusCode int
	Body       []byte
}

// ProxyMultipart forwards a multipart verification request, reusing the
// same field names the canonical endpoint expects.
func (c *InferenceClient) ProxyMultipart(ctx context.Context, path string, fields map[string][]byte, filenames map[string]string) (*ProxyResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, data := range fields {
		filename := filenames[field]
		if filename == "" {
			filename = field
		}
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			return nil, logging.NewOperationError("edgeapi.build_multipart", "", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, logging.NewOperationError("edgeapi.build_multipart", "", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, logging.NewOperationError("edgeapi.build_multipart", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, logging.NewOperationError("edgeapi.build_request", "", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.attachAuth(req); err != nil {
		return nil, err
	}

	return c.do(req)
}

// ProxyJSON forwards an already-assembled JSON body to the Inference Gateway.
func (c *InferenceClient) ProxyJSON(ctx context.Context, method, path string, body any) (*ProxyResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, logging.NewOperationError("edgeapi.marshal_request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, logging.NewOperationError("edgeapi.build_request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.attachAuth(req); err != nil {
		return nil, err
	}

	return c.do(req)
}

// Get forwards a bodiless GET request.
func (c *InferenceClient) Get(ctx context.Context, path string) (*ProxyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, logging.NewOperationError("edgeapi.build_request", "", err)
	}
	if err := c.attachAuth(req); err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *InferenceClient) attachAuth(req *http.Request) error {
	if c.issuer == nil {
		return nil
	}
	token, err := c.issuer.Mint()
	if err != nil {
		return logging.NewOperationError("edgeapi.mint_token", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *InferenceClient) do(req *http.Request) (*ProxyResult, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("edgeapi.call_inference_gateway", "", err)
		c.logger.Error("inference gateway call failed", zap.Error(wrapped), zap.String("path", req.URL.Path))
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, logging.NewOperationError("edgeapi.read_response", "", err)
	}

	return &ProxyResult{StatusCode: resp.StatusCode, Body: body}, nil
}
