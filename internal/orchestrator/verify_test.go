package orchestrator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/example/kyc-gateway/internal/config"
	"github.com/example/kyc-gateway/internal/kyc"
	"github.com/example/kyc-gateway/internal/registry"
)

func testRegistry() *registry.Registry {
	return registry.New(&config.Config{
		SimilarityThreshold: 0.30,
		PendingFaceFloor:    0.35,
		PendingOCRFloor:     0.5,
	})
}

func checkerPNG(t *testing.T, withText string) *kyc.Image {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, 96, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 96; x++ {
			if ((x/6)+(y/6))%2 == 0 {
				img.Set(x, y, color.Gray16{Y: 0})
			} else {
				img.Set(x, y, color.Gray16{Y: 65535})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := buf.Bytes()
	if withText != "" {
		raw = append(raw, []byte("\x00OCR:"+withText)...)
	}
	decoded, err := kyc.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestVerifierApprovesMatchingIdentitySameImage(t *testing.T) {
	v := NewVerifier(testRegistry(), kyc.ScoringPolicy{SimilarityThreshold: 0.30, PendingFaceFloor: 0.35, PendingOCRFloor: 0.5})
	idImage := checkerPNG(t, "PASSPORT\nFull Name: Jane Doe\n")
	selfieImage := checkerPNG(t, "")

	verdict, err := v.Verify(context.Background(), idImage, selfieImage)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verdict.FaceVerification.Verified {
		t.Errorf("expected same-image crops to verify, cosine=%v", verdict.FaceMatchScore)
	}
	if verdict.Status != kyc.StatusApproved {
		t.Errorf("status = %v, want approved for a same-image match", verdict.Status)
	}
	if verdict.OCR == nil {
		t.Fatal("OCR result missing from verdict")
	}
	if verdict.OCR.DocumentType != "passport" {
		t.Errorf("document type = %q, want passport", verdict.OCR.DocumentType)
	}
	if verdict.ProcessingTimeMillis < 0 {
		t.Errorf("ProcessingTimeMillis = %d, want >= 0", verdict.ProcessingTimeMillis)
	}
}

func TestVerifierNoFaceInIDReturnsDomainError(t *testing.T) {
	v := NewVerifier(testRegistry(), kyc.ScoringPolicy{SimilarityThreshold: 0.30})
	flatID := flatPNG(t)
	selfieImage := checkerPNG(t, "")

	_, err := v.Verify(context.Background(), flatID, selfieImage)
	if err == nil {
		t.Fatal("expected an error for a featureless id image")
	}
	if kyc.KindOf(err) != kyc.KindNoFaceInID {
		t.Errorf("KindOf(err) = %v, want %v", kyc.KindOf(err), kyc.KindNoFaceInID)
	}
}

func TestVerifierNoFaceInSelfieReturnsDomainError(t *testing.T) {
	v := NewVerifier(testRegistry(), kyc.ScoringPolicy{SimilarityThreshold: 0.30})
	idImage := checkerPNG(t, "")
	flatSelfie := flatPNG(t)

	_, err := v.Verify(context.Background(), idImage, flatSelfie)
	if err == nil {
		t.Fatal("expected an error for a featureless selfie image")
	}
	if kyc.KindOf(err) != kyc.KindNoFaceInSelfie {
		t.Errorf("KindOf(err) = %v, want %v", kyc.KindOf(err), kyc.KindNoFaceInSelfie)
	}
}

func flatPNG(t *testing.T) *kyc.Image {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray16{Y: 0x8000})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := kyc.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestVerifierDeadlineExceededMapsToTimeoutKind(t *testing.T) {
	v := NewVerifier(testRegistry(), kyc.ScoringPolicy{SimilarityThreshold: 0.30}).WithTimeout(0)
	idImage := checkerPNG(t, "")
	selfieImage := checkerPNG(t, "")

	_, err := v.Verify(context.Background(), idImage, selfieImage)
	if err == nil {
		t.Fatal("expected an error with a zero timeout")
	}
	if kyc.KindOf(err) != kyc.KindTimeout {
		t.Errorf("KindOf(err) = %v, want %v", kyc.KindOf(err), kyc.KindTimeout)
	}
}
