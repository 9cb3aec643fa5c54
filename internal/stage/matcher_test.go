package stage

import (
	"context"
	"testing"

	"github.com/example/kyc-gateway/internal/kyc"
)

func TestReferenceMatcherIdenticalCropsMatch(t *testing.T) {
	m := NewReferenceMatcher(0.30)
	img := checkerImage(t, 64, 64, 4)
	box := &kyc.FaceBox{X: 0, Y: 0, Width: 64, Height: 64}

	a, err := m.Embed(context.Background(), img, box)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := m.Embed(context.Background(), img, box)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	result, err := m.Compare(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !result.Verified {
		t.Errorf("identical crops did not verify: cosine=%v threshold=%v", result.CosineSimilarity, result.Threshold)
	}
	if result.CosineSimilarity < 0.999 {
		t.Errorf("cosine similarity for identical embeddings = %v, want ~1", result.CosineSimilarity)
	}
	if result.EuclideanDistance > 1e-9 {
		t.Errorf("euclidean distance for identical embeddings = %v, want ~0", result.EuclideanDistance)
	}
}

func TestReferenceMatcherDistinctCropsDiffer(t *testing.T) {
	m := NewReferenceMatcher(0.30)
	light := solidImageRGB(t, 64, 64, 250)
	dark := solidImageRGB(t, 64, 64, 5)
	box := &kyc.FaceBox{X: 0, Y: 0, Width: 64, Height: 64}

	a, _ := m.Embed(context.Background(), light, box)
	b, _ := m.Embed(context.Background(), dark, box)

	result, err := m.Compare(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if result.EuclideanDistance == 0 {
		t.Error("distinct solid-color crops produced identical embeddings")
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := kyc.Embedding{1, 0, 0}
	b := kyc.Embedding{0, 1, 0}
	if got := cosineSimilarity(a, b); got != 0 {
		t.Errorf("orthogonal vectors cosine = %v, want 0", got)
	}
	if got := cosineSimilarity(a, a); got < 0.999 {
		t.Errorf("identical vector cosine = %v, want ~1", got)
	}
}
