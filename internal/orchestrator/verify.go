// Package orchestrator implements the Verification Orchestrator and the
// Liveness Orchestrator: the two operations that turn a Stage Registry's
// pluggable stages into the wire-facing verdicts spec.md §4.7/§4.8
// describe. Grounded in abramin-Credo's evidence-gathering fan-out
// (internal/decision/evidence.go), which uses golang.org/x/sync/errgroup
// to run independent evidence fetches concurrently under one deadline.
package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/kyc-gateway/internal/kyc"
	"github.com/example/kyc-gateway/internal/metrics"
	"github.com/example/kyc-gateway/internal/registry"
	"github.com/example/kyc-gateway/internal/workpool"
)

// DefaultVerificationTimeout bounds an end-to-end verify call absent a
// caller-supplied deadline (spec.md §4.7).
const DefaultVerificationTimeout = 60 * time.Second

// defaultStageConcurrency bounds how many stage invocations a Verifier
// built without an explicit pool runs at once.
const defaultStageConcurrency = 8

// Verifier runs the face-match + OCR verification pipeline.
type Verifier struct {
	registry *registry.Registry
	policy   kyc.ScoringPolicy
	timeout  time.Duration
	pool     *workpool.Pool
	metrics  *metrics.Metrics
}

// NewVerifier builds a Verifier against the given Stage Registry and
// scoring policy.
func NewVerifier(reg *registry.Registry, policy kyc.ScoringPolicy) *Verifier {
	return &Verifier{
		registry: reg,
		policy:   policy,
		timeout:  DefaultVerificationTimeout,
		pool:     workpool.New(defaultStageConcurrency),
		metrics:  metrics.Default(),
	}
}

// WithTimeout returns a copy of the Verifier using a different
// end-to-end deadline.
func (v *Verifier) WithTimeout(d time.Duration) *Verifier {
	cp := *v
	cp.timeout = d
	return &cp
}

// WithPool returns a copy of the Verifier that bounds its stage
// invocations with the given pool instead of its default one, letting a
// process share one pool across every Verifier and LivenessChecker it
// builds (spec.md §5: stage invocations run on a worker pool that does
// not starve the I/O loop).
func (v *Verifier) WithPool(p *workpool.Pool) *Verifier {
	cp := *v
	cp.pool = p
	return &cp
}

// WithMetrics returns a copy of the Verifier reporting stage latency and
// verdict counts to m instead of the process default.
func (v *Verifier) WithMetrics(m *metrics.Metrics) *Verifier {
	cp := *v
	cp.metrics = m
	return &cp
}

// Verify runs face detection on both images, then fans out face
// matching and OCR extraction concurrently under a single deadline: the
// first stage to fail cancels the other via the errgroup-derived
// context, matching the "first-error-wins, no partial result" semantics
// spec.md §4.7 requires.
func (v *Verifier) Verify(ctx context.Context, idImage, selfieImage *kyc.Image) (*kyc.VerificationVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	detector, err := v.registry.Detector(ctx)
	if err != nil {
		return nil, kyc.Wrap(kyc.KindBackendFailure, "load face detector", err)
	}
	matcher, err := v.registry.Matcher(ctx)
	if err != nil {
		return nil, kyc.Wrap(kyc.KindBackendFailure, "load face matcher", err)
	}
	extractor, err := v.registry.OCR(ctx)
	if err != nil {
		return nil, kyc.Wrap(kyc.KindBackendFailure, "load OCR extractor", err)
	}

	var idBox, selfieBox *kyc.FaceBox
	detectStart := time.Now()
	if err := v.pool.Run(ctx, func() error {
		idBox, err = detector.Detect(ctx, idImage)
		return err
	}); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, kyc.Wrap(kyc.KindTimeout, "verification deadline exceeded", err)
		}
		return nil, kyc.Wrap(kyc.KindBackendFailure, "detect face in id", err)
	}
	v.metrics.ObserveStageLatency("detect", time.Since(detectStart))
	if idBox == nil {
		return nil, kyc.New(kyc.KindNoFaceInID, "no face detected in id document")
	}

	detectStart = time.Now()
	if err := v.pool.Run(ctx, func() error {
		selfieBox, err = detector.Detect(ctx, selfieImage)
		return err
	}); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, kyc.Wrap(kyc.KindTimeout, "verification deadline exceeded", err)
		}
		return nil, kyc.Wrap(kyc.KindBackendFailure, "detect face in selfie", err)
	}
	v.metrics.ObserveStageLatency("detect", time.Since(detectStart))
	if selfieBox == nil {
		return nil, kyc.New(kyc.KindNoFaceInSelfie, "no face detected in selfie")
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	var matchResult matchStageResult
	var ocrResult *kyc.OCRResult

	g.Go(func() error {
		stageStart := time.Now()
		err := v.pool.Run(gctx, func() error {
			idEmbedding, err := matcher.Embed(gctx, idImage, idBox)
			if err != nil {
				return kyc.Wrap(kyc.KindBackendFailure, "embed id face", err)
			}
			selfieEmbedding, err := matcher.Embed(gctx, selfieImage, selfieBox)
			if err != nil {
				return kyc.Wrap(kyc.KindBackendFailure, "embed selfie face", err)
			}
			result, err := matcher.Compare(gctx, idEmbedding, selfieEmbedding)
			if err != nil {
				return kyc.Wrap(kyc.KindBackendFailure, "compare faces", err)
			}
			matchResult = matchStageResult{
				cosine:    result.CosineSimilarity,
				euclidean: result.EuclideanDistance,
				threshold: result.Threshold,
			}
			return nil
		})
		v.metrics.ObserveStageLatency("face_match", time.Since(stageStart))
		return err
	})

	g.Go(func() error {
		stageStart := time.Now()
		err := v.pool.Run(gctx, func() error {
			res, err := extractor.Extract(gctx, idImage)
			if err != nil {
				return kyc.Wrap(kyc.KindBackendFailure, "extract document text", err)
			}
			ocrResult = res
			return nil
		})
		v.metrics.ObserveStageLatency("ocr", time.Since(stageStart))
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, kyc.Wrap(kyc.KindTimeout, "verification deadline exceeded", ctx.Err())
		}
		return nil, err
	}

	verified, confidence, status := v.policy.Score(matchResult.cosine, ocrResult.Confidence)
	v.metrics.ObserveVerification(string(status))

	return &kyc.VerificationVerdict{
		Status:          status,
		ConfidenceScore: confidence,
		FaceMatchScore:  matchResult.cosine,
		OCR:             ocrResult,
		FaceVerification: kyc.FaceVerificationDetails{
			Verified:          verified,
			Confidence:        confidence,
			CosineSimilarity:  matchResult.cosine,
			EuclideanDistance: matchResult.euclidean,
			ThresholdUsed:     matchResult.threshold,
			Message:           kyc.MatchMessage(verified, matchResult.cosine, matchResult.threshold),
		},
		ProcessingTimeMillis: time.Since(start).Milliseconds(),
		Timestamp:            start,
	}, nil
}

type matchStageResult struct {
	cosine    float64
	euclidean float64
	threshold float64
}
