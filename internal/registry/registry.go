// Package registry implements the Stage Registry: lazy, latched
// construction of the four inference stages plus a readiness report,
// replacing the source's lazy module-level singletons (spec.md §9) with
// an explicit value the server owns and passes into handlers.
package registry

import (
	"context"
	"sync"

	"github.com/example/kyc-gateway/internal/config"
	"github.com/example/kyc-gateway/internal/stage"
	"github.com/example/kyc-gateway/internal/stage/rekognition"
)

// StageName identifies one of the four pluggable inference stages.
type StageName string

const (
	StageDetector  StageName = "detector"
	StageMatcher   StageName = "matcher"
	StageOCR       StageName = "ocr"
	StageLiveness  StageName = "liveness"
)

// StageStatus is one entry of the readiness report.
type StageStatus struct {
	Loaded bool   `json:"loaded"`
	Name   string `json:"name"`
	Error  string `json:"error,omitempty"`
}

// latch lazily constructs a value of type T exactly once, shared across
// concurrent callers, and remembers construction failure without
// retrying — a stage that failed to load stays marked not-loaded.
type latch[T any] struct {
	once  sync.Once
	value T
	name  string
	err   error
}

func (l *latch[T]) get(name string, construct func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.name = name
		l.value, l.err = construct()
	})
	return l.value, l.err
}

// Registry owns the four stage latches and reports readiness.
type Registry struct {
	cfg *config.Config

	detector  latch[stage.Detector]
	matcher   latch[stage.Matcher]
	ocr       latch[stage.Extractor]
	liveness  latch[stage.Evaluator]

	rekognitionOnce   sync.Once
	rekognitionClient *rekognition.Client
	rekognitionErr    error
}

// New builds a Registry. Stages are not constructed until first use.
func New(cfg *config.Config) *Registry {
	return &Registry{cfg: cfg}
}

func (r *Registry) rekognitionClientOnce(ctx context.Context) (*rekognition.Client, error) {
	r.rekognitionOnce.Do(func() {
		r.rekognitionClient, r.rekognitionErr = rekognition.NewClient(ctx, r.cfg.AWSRegion)
	})
	return r.rekognitionClient, r.rekognitionErr
}

// Detector returns the Face Detector stage, constructing it on first call.
func (r *Registry) Detector(ctx context.Context) (stage.Detector, error) {
	return r.detector.get("detector", func() (stage.Detector, error) {
		if r.cfg.UsesRekognition() {
			client, err := r.rekognitionClientOnce(ctx)
			if err != nil {
				return nil, err
			}
			return rekognition.NewDetector(client), nil
		}
		return stage.NewReferenceDetector(), nil
	})
}

// Matcher returns the Face Matcher stage, constructing it on first call.
func (r *Registry) Matcher(ctx context.Context) (stage.Matcher, error) {
	return r.matcher.get("matcher", func() (stage.Matcher, error) {
		if r.cfg.UsesRekognition() {
			client, err := r.rekognitionClientOnce(ctx)
			if err != nil {
				return nil, err
			}
			return rekognition.NewMatcher(client, r.cfg.SimilarityThreshold), nil
		}
		return stage.NewReferenceMatcher(r.cfg.SimilarityThreshold), nil
	})
}

// OCR returns the OCR Extractor stage, constructing it on first call.
func (r *Registry) OCR(ctx context.Context) (stage.Extractor, error) {
	return r.ocr.get("ocr", func() (stage.Extractor, error) {
		return stage.NewReferenceExtractor(), nil
	})
}

// Liveness returns the Liveness Evaluator stage, constructing it on first call.
func (r *Registry) Liveness(ctx context.Context) (stage.Evaluator, error) {
	return r.liveness.get("liveness", func() (stage.Evaluator, error) {
		return stage.NewReferenceEvaluator(), nil
	})
}

// Readiness constructs every stage (if not already constructed) and
// reports which loaded. A stage whose construction fails is marked
// not-loaded with its error message; the registry stays usable for the
// stages that did load.
func (r *Registry) Readiness(ctx context.Context) map[StageName]StageStatus {
	report := make(map[StageName]StageStatus, 4)

	if _, err := r.Detector(ctx); err != nil {
		report[StageDetector] = StageStatus{Loaded: false, Name: string(StageDetector), Error: err.Error()}
	} else {
		report[StageDetector] = StageStatus{Loaded: true, Name: string(StageDetector)}
	}

	if _, err := r.Matcher(ctx); err != nil {
		report[StageMatcher] = StageStatus{Loaded: false, Name: string(StageMatcher), Error: err.Error()}
	} else {
		report[StageMatcher] = StageStatus{Loaded: true, Name: string(StageMatcher)}
	}

	if _, err := r.OCR(ctx); err != nil {
		report[StageOCR] = StageStatus{Loaded: false, Name: string(StageOCR), Error: err.Error()}
	} else {
		report[StageOCR] = StageStatus{Loaded: true, Name: string(StageOCR)}
	}

	if _, err := r.Liveness(ctx); err != nil {
		report[StageLiveness] = StageStatus{Loaded: false, Name: string(StageLiveness), Error: err.Error()}
	} else {
		report[StageLiveness] = StageStatus{Loaded: true, Name: string(StageLiveness)}
	}

	return report
}

// Healthy reports whether every stage loaded successfully.
func Healthy(report map[StageName]StageStatus) bool {
	for _, status := range report {
		if !status.Loaded {
			return false
		}
	}
	return true
}
