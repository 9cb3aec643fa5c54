package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/example/kyc-gateway/internal/challenge"
	"github.com/example/kyc-gateway/internal/kyc"
)

func blinkFrames(t *testing.T) []*kyc.Image {
	t.Helper()
	open := checkerPNG(t, "")
	closed := flatPNG(t)
	return []*kyc.Image{open, closed, open, closed, open, closed, open, closed, open, closed}
}

func TestLivenessCheckerPassesOnSatisfiedBlinkPredicate(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var blinkOnly bool
	for _, p := range rec.Predicates {
		if p == challenge.PredicateBlink {
			blinkOnly = true
		}
	}
	if !blinkOnly {
		t.Skip("challenge did not include a blink predicate; non-deterministic random pick")
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 3, FaceRatioFloor: 0.1})
	verdict, err := checker.Check(context.Background(), rec.ID, rec.Signature, blinkFrames(t))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Status != kyc.LivenessPass {
		t.Errorf("status = %v, message = %q, want pass", verdict.Status, verdict.Message)
	}
}

func TestLivenessCheckerConsumesChallengeExactlyOnce(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 1, FaceRatioFloor: 0})
	frames := []*kyc.Image{flatPNG(t)}

	first, err := checker.Check(context.Background(), rec.ID, rec.Signature, frames)
	if err != nil {
		t.Fatalf("first Check: %v", err)
	}
	if first.Status != kyc.LivenessFail && first.Status != kyc.LivenessPass {
		t.Fatalf("unexpected first status: %v", first.Status)
	}

	second, err := checker.Check(context.Background(), rec.ID, rec.Signature, frames)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if second.Status != kyc.LivenessInvalid {
		t.Errorf("second Check status = %v, want invalid (already consumed)", second.Status)
	}
}

func TestLivenessCheckerUnknownChallengeIsNotFound(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 1, FaceRatioFloor: 0})
	_, err := checker.Check(context.Background(), "does-not-exist", "bogus", []*kyc.Image{flatPNG(t)})
	if err == nil {
		t.Fatal("expected an error for an unknown challenge id")
	}
	if kyc.KindOf(err) != kyc.KindChallengeNotFound {
		t.Errorf("KindOf(err) = %v, want %v", kyc.KindOf(err), kyc.KindChallengeNotFound)
	}
}

func TestLivenessCheckerPassMessageListsCompletedPredicates(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var blinkOnly bool
	for _, p := range rec.Predicates {
		if p == challenge.PredicateBlink {
			blinkOnly = true
		}
	}
	if !blinkOnly {
		t.Skip("challenge did not include a blink predicate; non-deterministic random pick")
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 3, FaceRatioFloor: 0.1})
	verdict, err := checker.Check(context.Background(), rec.ID, rec.Signature, blinkFrames(t))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Status != kyc.LivenessPass {
		t.Fatalf("status = %v, message = %q, want pass", verdict.Status, verdict.Message)
	}
	want := "All challenges completed: blink"
	if verdict.Message != want {
		t.Errorf("message = %q, want %q", verdict.Message, want)
	}
}

func TestLivenessCheckerFailMessageEnumeratesCompletedAndFailedPredicates(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var blinkOnly bool
	for _, p := range rec.Predicates {
		if p == challenge.PredicateBlink {
			blinkOnly = true
		}
	}
	if !blinkOnly {
		t.Skip("challenge did not include a blink predicate; non-deterministic random pick")
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 3, FaceRatioFloor: 0.1})
	// A run of identical frames has no detected blink, so the predicate fails
	// while face detection still clears the ratio floor.
	frames := []*kyc.Image{checkerPNG(t, ""), checkerPNG(t, ""), checkerPNG(t, "")}
	verdict, err := checker.Check(context.Background(), rec.ID, rec.Signature, frames)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Status != kyc.LivenessFail {
		t.Fatalf("status = %v, message = %q, want fail", verdict.Status, verdict.Message)
	}
	want := "Completed: none. Failed: blink (no blink detected)"
	if verdict.Message != want {
		t.Errorf("message = %q, want %q", verdict.Message, want)
	}
}

func TestLivenessCheckerTooFewFramesFailsWithoutRunningEvaluator(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 5, FaceRatioFloor: 0})
	verdict, err := checker.Check(context.Background(), rec.ID, rec.Signature, []*kyc.Image{flatPNG(t)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Status != kyc.LivenessFail {
		t.Fatalf("status = %v, want fail", verdict.Status)
	}
	if verdict.Message != "not enough frames" {
		t.Errorf("message = %q, want %q", verdict.Message, "not enough frames")
	}
}

func TestLivenessCheckerLowFaceRatioFails(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 1, FaceRatioFloor: 1.1})
	verdict, err := checker.Check(context.Background(), rec.ID, rec.Signature, []*kyc.Image{flatPNG(t)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Status != kyc.LivenessFail {
		t.Fatalf("status = %v, want fail", verdict.Status)
	}
	if verdict.Message != "face not consistently visible" {
		t.Errorf("message = %q, want %q", verdict.Message, "face not consistently visible")
	}
}

func TestLivenessCheckerWrongSignatureInvalidatesResult(t *testing.T) {
	store := challenge.NewMemoryStore("test-hmac-secret")
	defer store.Close()

	rec, err := store.Issue(context.Background(), 1, 30*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	checker := NewLivenessChecker(testRegistry(), store, LivenessPolicy{MinFrames: 1, FaceRatioFloor: 0})
	verdict, err := checker.Check(context.Background(), rec.ID, "tampered-signature", []*kyc.Image{flatPNG(t)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if verdict.Status != kyc.LivenessInvalid {
		t.Errorf("status = %v, want invalid for a tampered signature", verdict.Status)
	}
}
