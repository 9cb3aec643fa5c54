// Package stage defines the pluggable inference stages the Verification
// and Liveness orchestrators consume: face detection, face matching, OCR
// extraction, and liveness evaluation. The specific ML algorithms behind
// each stage are deliberately out of scope (spec.md §1) — the reference
// implementations here are deterministic heuristics that satisfy each
// stage's contract so the orchestration layer above can be built and
// tested without a real model backend. Production deployments plug in an
// alternate Detector/Matcher (see internal/stage/rekognition) behind the
// same interfaces.
package stage

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/example/kyc-gateway/internal/kyc"
)

// ErrNoFace names the soft "no face found" condition. Detect does not
// return it: a missing face is reported as (nil, nil).
var ErrNoFace = errors.New("no face detected")

// Detector locates a face bounding box in an image.
type Detector interface {
	// Detect returns the highest-confidence face above the configured
	// threshold, or (nil, nil) when no face clears the bar.
	Detect(ctx context.Context, img *kyc.Image) (*kyc.FaceBox, error)
}

const defaultDetectorConfidenceThreshold = 0.35

// ReferenceDetector is a deterministic, dependency-free Detector. Real
// detectors often cache an input-size parameter on the shared instance;
// per spec §4.2 and §9 this must be guarded by a short critical section
// around the reconfiguration, not by reconstructing the detector or
// holding a lock across the whole detection call.
type ReferenceDetector struct {
	confidenceThreshold float64

	mu         sync.Mutex
	lastWidth  int // not read back; models a real backend's cached input-size reconfiguration
	lastHeight int
}

// NewReferenceDetector builds a ReferenceDetector with the default
// confidence threshold.
func NewReferenceDetector() *ReferenceDetector {
	return &ReferenceDetector{confidenceThreshold: defaultDetectorConfidenceThreshold}
}

// reconfigure sets the cached input-size parameter to the current
// image's dimensions. This is the short critical section spec §4.2
// requires: it covers only the size-set, never the detection work
// itself, so concurrent detections on differently-sized images never
// serialize on each other's inference time.
func (d *ReferenceDetector) reconfigure(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastWidth, d.lastHeight = width, height
}

// Detect implements Detector using a luminance-contrast heuristic: it
// scans candidate square windows and picks the one with the highest
// local contrast variance as the "face", a stand-in for a real detector
// that would run a trained model. Confidence is the window's luminance
// variance times 10, capped at 1.
func (d *ReferenceDetector) Detect(ctx context.Context, img *kyc.Image) (*kyc.FaceBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.reconfigure(img.Width, img.Height)

	box, confidence := highestContrastWindow(img.Decoded, img.Width, img.Height)
	if confidence < d.confidenceThreshold {
		return nil, nil
	}
	box.Confidence = confidence
	return &box, nil
}

// highestContrastWindow slides a square window (roughly a third of the
// shorter image dimension) across the raster and returns the window with
// the largest luminance variance, treated as the most face-like region.
func highestContrastWindow(img image.Image, width, height int) (kyc.FaceBox, float64) {
	side := width
	if height < side {
		side = height
	}
	win := side / 3
	if win < 8 {
		win = side
	}
	if win < 1 {
		win = 1
	}
	step := win / 2
	if step < 1 {
		step = 1
	}

	bounds := img.Bounds()
	best := kyc.FaceBox{X: bounds.Min.X, Y: bounds.Min.Y, Width: win, Height: win}
	bestVariance := -1.0

	for y := bounds.Min.Y; y+win <= bounds.Max.Y; y += step {
		for x := bounds.Min.X; x+win <= bounds.Max.X; x += step {
			variance := windowLuminanceVariance(img, x, y, win, win)
			if variance > bestVariance {
				bestVariance = variance
				best = kyc.FaceBox{X: x, Y: y, Width: win, Height: win}
			}
		}
	}

	// Normalize variance (roughly 0..0.08 for 8-bit luminance in [0,1])
	// into a [0,1] confidence via a saturating scale.
	confidence := bestVariance * 10
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return best, confidence
}

func windowLuminanceVariance(img image.Image, x0, y0, w, h int) float64 {
	var sum, sumSq float64
	n := 0
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			l := luminance(img, x, y)
			sum += l
			sumSq += l * l
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	// RGBA() returns 16-bit-scaled channels; normalize to [0,1] and use
	// the standard Rec. 601 luma weights.
	rf := float64(r) / 65535
	gf := float64(g) / 65535
	bf := float64(b) / 65535
	return 0.299*rf + 0.587*gf + 0.114*bf
}
