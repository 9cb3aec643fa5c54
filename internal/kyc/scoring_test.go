package kyc

import "testing"

func TestScoringPolicyScore(t *testing.T) {
	policy := ScoringPolicy{
		SimilarityThreshold: 0.30,
		PendingFaceFloor:    0.35,
		PendingOCRFloor:     0.5,
	}

	cases := []struct {
		name          string
		cosine        float64
		ocrConfidence float64
		wantVerified  bool
		wantStatus    VerificationStatus
	}{
		{"below threshold rejects", 0.10, 0.9, false, StatusRejected},
		{"at threshold but below both floors is pending", 0.30, 0.2, true, StatusPending},
		{"above face floor approves", 0.40, 0.0, true, StatusApproved},
		{"above ocr floor approves despite low face score", 0.31, 0.6, true, StatusApproved},
		{"exactly at threshold counts as verified", 0.30, 0.5, true, StatusApproved},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verified, confidence, status := policy.Score(tc.cosine, tc.ocrConfidence)
			if verified != tc.wantVerified {
				t.Errorf("verified = %v, want %v", verified, tc.wantVerified)
			}
			if status != tc.wantStatus {
				t.Errorf("status = %v, want %v", status, tc.wantStatus)
			}
			wantConfidence := 0.6*tc.cosine + 0.4*tc.ocrConfidence
			if confidence != wantConfidence {
				t.Errorf("confidence = %v, want %v", confidence, wantConfidence)
			}
		})
	}
}

func TestScoringPolicyScoreIsPure(t *testing.T) {
	policy := ScoringPolicy{SimilarityThreshold: 0.3, PendingFaceFloor: 0.35, PendingOCRFloor: 0.5}
	v1, c1, s1 := policy.Score(0.42, 0.77)
	v2, c2, s2 := policy.Score(0.42, 0.77)
	if v1 != v2 || c1 != c2 || s1 != s2 {
		t.Fatalf("Score is not deterministic for identical inputs: (%v,%v,%v) vs (%v,%v,%v)", v1, c1, s1, v2, c2, s2)
	}
}

func TestMatchMessage(t *testing.T) {
	if got := MatchMessage(true, 0.876, 0.3); got != "Faces match (87.6% similarity)" {
		t.Errorf("matched message = %q", got)
	}
	want := "Faces do not match (12.3% similarity, threshold: 30.0%)"
	if got := MatchMessage(false, 0.123, 0.3); got != want {
		t.Errorf("unmatched message = %q, want %q", got, want)
	}
}
