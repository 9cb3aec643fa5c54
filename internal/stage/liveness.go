package stage

import (
	"context"
	"image"

	"github.com/example/kyc-gateway/internal/kyc"
)

// Evaluator consumes an ordered sequence of frames and reports blink
// counts and per-frame head orientation. It is stateful only within a
// single Evaluate call (spec §4.5).
type Evaluator interface {
	Evaluate(ctx context.Context, frames []*kyc.Image) (*kyc.DetectionSummary, error)
}

// eyeAspectRatioOpenThreshold / closedThreshold bound the hysteresis band
// the reference implementation uses to debounce blink detection: a blink
// is only counted on a closed->open transition, never re-armed until the
// signal has dropped below the closed threshold again.
const (
	earOpenThreshold   = 0.45
	earClosedThreshold = 0.35
)

// ReferenceEvaluator is a deterministic, dependency-free Evaluator. It
// derives a proxy eye-aspect-ratio signal from the luminance variance of
// a fixed upper-face sub-region (lower variance ~ closed eyes, a flatter
// region) and a proxy orientation from the horizontal center of mass of
// edge energy relative to the frame center.
type ReferenceEvaluator struct{}

// NewReferenceEvaluator builds a ReferenceEvaluator.
func NewReferenceEvaluator() *ReferenceEvaluator {
	return &ReferenceEvaluator{}
}

// Evaluate implements Evaluator.
func (e *ReferenceEvaluator) Evaluate(ctx context.Context, frames []*kyc.Image) (*kyc.DetectionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orientations := make([]kyc.Orientation, len(frames))
	blinks := 0
	eyesOpen := true
	facesDetected := 0

	for i, frame := range frames {
		ear := eyeAspectRatioProxy(frame.Decoded, frame.Width, frame.Height)
		if eyesOpen && ear < earClosedThreshold {
			eyesOpen = false
		} else if !eyesOpen && ear > earOpenThreshold {
			eyesOpen = true
			blinks++
		}

		orientations[i] = orientationProxy(frame.Decoded, frame.Width, frame.Height)

		if hasPlausibleFace(frame.Decoded, frame.Width, frame.Height) {
			facesDetected++
		}
	}

	ratio := 0.0
	if len(frames) > 0 {
		ratio = float64(facesDetected) / float64(len(frames))
	}

	return &kyc.DetectionSummary{
		Blinks:             blinks,
		Orientations:       orientations,
		FaceDetectionRatio: ratio,
	}, nil
}

// eyeAspectRatioProxy samples the upper-middle third of the frame (where
// eyes sit in a forward-facing portrait crop) and returns its normalized
// luminance variance as a stand-in EAR signal.
func eyeAspectRatioProxy(img image.Image, width, height int) float64 {
	bounds := img.Bounds()
	bandTop := bounds.Min.Y + height/4
	bandHeight := height / 6
	if bandHeight < 1 {
		bandHeight = 1
	}
	return windowLuminanceVariance(img, bounds.Min.X, bandTop, width, bandHeight) * 10
}

// orientationProxy estimates left/right head turn from the horizontal
// center of mass of luminance gradient energy relative to frame center.
func orientationProxy(img image.Image, width, height int) kyc.Orientation {
	bounds := img.Bounds()
	var weightedX, totalWeight float64
	for y := bounds.Min.Y; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X; x < bounds.Max.X-1; x++ {
			gx := luminance(img, x+1, y) - luminance(img, x, y)
			if gx < 0 {
				gx = -gx
			}
			weightedX += gx * float64(x)
			totalWeight += gx
		}
	}
	if totalWeight == 0 {
		return kyc.OrientationNone
	}
	centerOfMass := weightedX / totalWeight
	center := float64(bounds.Min.X) + float64(width)/2
	offset := (centerOfMass - center) / float64(width)

	const orientationDeadzone = 0.06
	switch {
	case offset < -orientationDeadzone:
		return kyc.OrientationLeft
	case offset > orientationDeadzone:
		return kyc.OrientationRight
	default:
		return kyc.OrientationNone
	}
}

// hasPlausibleFace reuses the detector's contrast heuristic at a lower
// bar: liveness only needs to know a face-like region is present, not
// locate it precisely.
func hasPlausibleFace(img image.Image, width, height int) bool {
	_, confidence := highestContrastWindow(img, width, height)
	return confidence >= 0.15
}
