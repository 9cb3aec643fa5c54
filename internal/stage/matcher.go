package stage

import (
	"context"
	"image"
	"math"

	"github.com/example/kyc-gateway/internal/kyc"
)

const embeddingBlocksPerSide = 8 // 8x8 grid -> a 64-dim embedding

// MatchResult is the outcome of comparing two embeddings.
type MatchResult struct {
	CosineSimilarity  float64
	EuclideanDistance float64
	Verified          bool
	Threshold         float64
}

// Matcher produces an embedding for a face crop and compares two embeddings.
type Matcher interface {
	Embed(ctx context.Context, img *kyc.Image, box *kyc.FaceBox) (kyc.Embedding, error)
	Compare(ctx context.Context, a, b kyc.Embedding) (MatchResult, error)
}

// ReferenceMatcher is a deterministic, dependency-free Matcher. It derives
// an embedding from a block-averaged luminance histogram of the face
// crop — not a real biometric embedding, but it satisfies the contract
// (§3: fixed length, comparable via cosine similarity, deterministic for
// fixed bytes) that a trained embedding model would otherwise fill.
type ReferenceMatcher struct {
	threshold float64
}

// NewReferenceMatcher builds a ReferenceMatcher with the given cosine
// similarity threshold (spec default 0.30).
func NewReferenceMatcher(threshold float64) *ReferenceMatcher {
	return &ReferenceMatcher{threshold: threshold}
}

// Embed implements Matcher.
func (m *ReferenceMatcher) Embed(ctx context.Context, img *kyc.Image, box *kyc.FaceBox) (kyc.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := blockLuminanceEmbedding(img.Decoded, box)
	return unitNormalize(vec), nil
}

// Compare implements Matcher.
func (m *ReferenceMatcher) Compare(ctx context.Context, a, b kyc.Embedding) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}
	cosine := cosineSimilarity(a, b)
	euclidean := euclideanDistance(a, b)
	return MatchResult{
		CosineSimilarity:  cosine,
		EuclideanDistance: euclidean,
		Verified:          cosine >= m.threshold,
		Threshold:         m.threshold,
	}, nil
}

func blockLuminanceEmbedding(img image.Image, box *kyc.FaceBox) kyc.Embedding {
	dim := embeddingBlocksPerSide * embeddingBlocksPerSide
	vec := make(kyc.Embedding, dim)

	x0, y0, w, h := box.X, box.Y, box.Width, box.Height
	if w < embeddingBlocksPerSide {
		w = embeddingBlocksPerSide
	}
	if h < embeddingBlocksPerSide {
		h = embeddingBlocksPerSide
	}
	blockW := w / embeddingBlocksPerSide
	blockH := h / embeddingBlocksPerSide
	if blockW < 1 {
		blockW = 1
	}
	if blockH < 1 {
		blockH = 1
	}

	bounds := img.Bounds()
	idx := 0
	for by := 0; by < embeddingBlocksPerSide; by++ {
		for bx := 0; bx < embeddingBlocksPerSide; bx++ {
			sx := x0 + bx*blockW
			sy := y0 + by*blockH
			vec[idx] = clampedBlockLuminance(img, bounds, sx, sy, blockW, blockH)
			idx++
		}
	}
	return vec
}

func clampedBlockLuminance(img image.Image, bounds image.Rectangle, x0, y0, w, h int) float64 {
	var sum float64
	n := 0
	for y := y0; y < y0+h; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := x0; x < x0+w; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			sum += luminance(img, x, y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func unitNormalize(v kyc.Embedding) kyc.Embedding {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make(kyc.Embedding, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func cosineSimilarity(a, b kyc.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclideanDistance(a, b kyc.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sumSq += d * d
	}
	return math.Sqrt(sumSq)
}
