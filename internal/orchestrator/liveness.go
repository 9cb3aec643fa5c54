package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/kyc-gateway/internal/challenge"
	"github.com/example/kyc-gateway/internal/kyc"
	"github.com/example/kyc-gateway/internal/metrics"
	"github.com/example/kyc-gateway/internal/registry"
	"github.com/example/kyc-gateway/internal/workpool"
)

// LivenessPolicy holds the thresholds a frame sequence must clear to
// pass a liveness challenge (spec.md §4.8).
type LivenessPolicy struct {
	MinFrames      int
	FaceRatioFloor float64
}

// LivenessChecker runs the Liveness Orchestrator: validate a challenge
// is live and unconsumed, evaluate the submitted frames against the
// challenge's predicates, and consume the challenge exactly once on a
// terminal outcome.
type LivenessChecker struct {
	registry *registry.Registry
	store    challenge.Store
	policy   LivenessPolicy
	pool     *workpool.Pool
	metrics  *metrics.Metrics
}

// NewLivenessChecker builds a LivenessChecker.
func NewLivenessChecker(reg *registry.Registry, store challenge.Store, policy LivenessPolicy) *LivenessChecker {
	return &LivenessChecker{
		registry: reg,
		store:    store,
		policy:   policy,
		pool:     workpool.New(defaultStageConcurrency),
		metrics:  metrics.Default(),
	}
}

// WithPool returns a copy of the LivenessChecker that bounds its frame
// evaluation with the given pool instead of its default one, letting a
// process share one pool across every Verifier and LivenessChecker it
// builds.
func (c *LivenessChecker) WithPool(p *workpool.Pool) *LivenessChecker {
	cp := *c
	cp.pool = p
	return &cp
}

// WithMetrics returns a copy of the LivenessChecker reporting stage
// latency and challenge outcomes to m instead of the process default.
func (c *LivenessChecker) WithMetrics(m *metrics.Metrics) *LivenessChecker {
	cp := *c
	cp.metrics = m
	return &cp
}

// Check evaluates frames against the named challenge's predicates.
//
// The challenge is looked up, then consumed after the frames have been
// scored, whether they satisfied the predicates or not: a single
// challenge id admits exactly one verification attempt, matching the
// state machine's ISSUED → CONSUMED | EXPIRED terminal transitions
// (spec.md §6 "State machines") and leaving no window for a second
// submission — pass or fail — to reuse the same frames or signature
// (spec.md §8 invariant 2, at-most-once consume).
func (c *LivenessChecker) Check(ctx context.Context, challengeID, signature string, frames []*kyc.Image) (*kyc.LivenessVerdict, error) {
	start := time.Now()

	rec, err := c.store.Lookup(ctx, challengeID)
	if err != nil {
		if err == challenge.ErrNotFound {
			// Lookup hides consumed and expired records; Consume tells
			// those apart from an unknown id without changing the record,
			// so a repeat submission gets a terminal verdict, not an error.
			result, consumeErr := c.store.Consume(ctx, challengeID, signature)
			if consumeErr == nil && (result == challenge.ConsumeAlreadyConsumed || result == challenge.ConsumeExpired) {
				status, message := resolveStatus(false, "", result)
				return &kyc.LivenessVerdict{
					ChallengeID:          challengeID,
					Status:               status,
					Message:              message,
					ProcessingTimeMillis: time.Since(start).Milliseconds(),
					Timestamp:            start,
				}, nil
			}
			return nil, kyc.New(kyc.KindChallengeNotFound, "challenge not found or expired")
		}
		return nil, kyc.Wrap(kyc.KindInternal, "look up challenge", err)
	}

	// The three failure causes spec.md §4.8 steps 2-4 distinguish are
	// scored in order, each short-circuiting with its own message: not
	// enough frames never reaches the evaluator at all (step 2 is an
	// upstream validation, not a detection outcome); an inconsistent face
	// never reaches predicate scoring (step 3 gates step 4).
	var (
		summary *kyc.DetectionSummary
		passed  bool
		message string
	)

	switch {
	case len(frames) < c.policy.MinFrames:
		summary = &kyc.DetectionSummary{}
		message = "not enough frames"

	default:
		evaluator, err := c.registry.Liveness(ctx)
		if err != nil {
			return nil, kyc.Wrap(kyc.KindBackendFailure, "load liveness evaluator", err)
		}

		stageStart := time.Now()
		if err := c.pool.Run(ctx, func() error {
			summary, err = evaluator.Evaluate(ctx, frames)
			return err
		}); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, kyc.Wrap(kyc.KindTimeout, "liveness evaluation deadline exceeded", err)
			}
			return nil, kyc.Wrap(kyc.KindBackendFailure, "evaluate liveness frames", err)
		}
		c.metrics.ObserveStageLatency("liveness_evaluate", time.Since(stageStart))

		if summary.FaceDetectionRatio < c.policy.FaceRatioFloor {
			message = "face not consistently visible"
		} else {
			completed, failed := predicateBreakdown(rec.Predicates, summary)
			passed = len(failed) == 0
			message = predicateMessage(passed, completed, failed)
		}
	}

	result, err := c.store.Consume(ctx, challengeID, signature)
	if err != nil {
		return nil, kyc.Wrap(kyc.KindInternal, "consume challenge", err)
	}

	status, finalMessage := resolveStatus(passed, message, result)
	c.metrics.ObserveChallengeConsumed(string(status))

	return &kyc.LivenessVerdict{
		ChallengeID:          challengeID,
		Status:               status,
		Message:              finalMessage,
		Detection:            *summary,
		ProcessingTimeMillis: time.Since(start).Milliseconds(),
		Timestamp:            start,
	}, nil
}

// predicateName renders a predicate the way a human-facing message
// names it ("turn left", not "turn_left"), matching
// original_source/app/services/liveness_challenges.py's
// _validate_multi_challenge wording.
func predicateName(p challenge.Predicate) string {
	return strings.ReplaceAll(string(p), "_", " ")
}

// predicateBreakdown reports, per predicate the challenge asked for,
// whether the detection summary evidences it: a blink predicate needs
// at least one counted blink, a turn predicate needs the matching
// orientation to appear in at least one frame. completed and failed
// together cover every predicate in order, mirroring the original's
// completed_challenges/failed_challenges bookkeeping.
func predicateBreakdown(predicates []challenge.Predicate, summary *kyc.DetectionSummary) (completed, failed []string) {
	for _, p := range predicates {
		switch p {
		case challenge.PredicateBlink:
			if summary.Blinks >= 1 {
				completed = append(completed, predicateName(p))
			} else {
				failed = append(failed, predicateName(p)+" (no blink detected)")
			}
		case challenge.PredicateTurnLeft:
			if containsOrientation(summary.Orientations, kyc.OrientationLeft) {
				completed = append(completed, predicateName(p))
			} else {
				failed = append(failed, predicateName(p)+" (not detected)")
			}
		case challenge.PredicateTurnRight:
			if containsOrientation(summary.Orientations, kyc.OrientationRight) {
				completed = append(completed, predicateName(p))
			} else {
				failed = append(failed, predicateName(p)+" (not detected)")
			}
		}
	}
	return completed, failed
}

// predicateMessage renders the completed/failed breakdown into the
// detail message spec.md §4.8 step 5 requires: on PASS it lists every
// completed predicate (S4); on FAIL it enumerates both the completed and
// the failed ones.
func predicateMessage(passed bool, completed, failed []string) string {
	if passed {
		return fmt.Sprintf("All challenges completed: %s", strings.Join(completed, ", "))
	}
	completedStr := "none"
	if len(completed) > 0 {
		completedStr = strings.Join(completed, ", ")
	}
	return fmt.Sprintf("Completed: %s. Failed: %s", completedStr, strings.Join(failed, ", "))
}

func containsOrientation(orientations []kyc.Orientation, want kyc.Orientation) bool {
	for _, o := range orientations {
		if o == want {
			return true
		}
	}
	return false
}

// resolveStatus reconciles the frame-based pass/fail decision with the
// Consume race outcome: a challenge that expired or was already
// consumed between Lookup and Consume downgrades to EXPIRED/INVALID
// regardless of how the frames scored, since the caller no longer holds
// exclusive claim to that challenge (spec.md §4.8 invariant: at most one
// terminal verdict per challenge). message is whatever scoring already
// produced (frame-count, face-ratio, or predicate-breakdown wording);
// it is only used on the OK path, since every other Consume outcome
// means the caller's scoring no longer has a claim to report against.
func resolveStatus(passed bool, message string, result challenge.ConsumeResult) (kyc.LivenessStatus, string) {
	switch result {
	case challenge.ConsumeOK:
		if passed {
			return kyc.LivenessPass, message
		}
		return kyc.LivenessFail, message
	case challenge.ConsumeExpired:
		return kyc.LivenessExpired, "challenge expired before it could be verified"
	case challenge.ConsumeAlreadyConsumed:
		return kyc.LivenessInvalid, "challenge was already consumed"
	case challenge.ConsumeInvalidSignature:
		return kyc.LivenessInvalid, "challenge signature did not match"
	case challenge.ConsumeNotFound:
		return kyc.LivenessInvalid, "challenge not found"
	default:
		return kyc.LivenessInvalid, "challenge could not be verified"
	}
}
