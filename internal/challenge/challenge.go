// Package challenge implements the liveness challenge lifecycle: issuing
// HMAC-signed, TTL-bound challenges, looking them up, and consuming them
// exactly once. Grounded in the teacher's usecase.Cache abstraction
// (internal/usecase/cache.go) generalized from a single Redis-backed
// cache into a Store interface with an in-memory default and an optional
// Redis-backed implementation for multi-instance deployments.
package challenge

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Predicate is one of the closed set of liveness actions a challenge asks for.
type Predicate string

const (
	PredicateBlink     Predicate = "blink"
	PredicateTurnLeft  Predicate = "turn_left"
	PredicateTurnRight Predicate = "turn_right"
)

var allPredicates = []Predicate{PredicateBlink, PredicateTurnLeft, PredicateTurnRight}

// Record is an immutable Challenge: once written it is never mutated,
// only evicted (spec §3, §4.6).
type Record struct {
	ID         string
	Predicates []Predicate
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Nonce      string
	Signature  string
}

// Expired reports whether the record has passed its expiry relative to now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ConsumeResult is the outcome of a Store.Consume call.
type ConsumeResult string

const (
	ConsumeOK                ConsumeResult = "OK"
	ConsumeExpired           ConsumeResult = "EXPIRED"
	ConsumeInvalidSignature  ConsumeResult = "INVALID_SIGNATURE"
	ConsumeNotFound          ConsumeResult = "NOT_FOUND"
	ConsumeAlreadyConsumed   ConsumeResult = "ALREADY_CONSUMED"
)

// ErrNotFound is returned by Lookup for an absent or expired challenge.
var ErrNotFound = errors.New("challenge not found")

// Store is the Challenge Store contract (spec §4.6).
type Store interface {
	Issue(ctx context.Context, count int, ttl time.Duration) (*Record, error)
	Lookup(ctx context.Context, id string) (*Record, error)
	Consume(ctx context.Context, id, claimedSignature string) (ConsumeResult, error)
	Close() error
}

// signer computes and verifies the HMAC binding a challenge's fields,
// using a process-scoped secret established at startup and never
// changed (spec §4.6, §5).
type signer struct {
	secret []byte
}

func newSigner(secret string) signer {
	return signer{secret: []byte(secret)}
}

// canonicalEncoding builds the byte string an HMAC is computed over: id,
// nonce, predicates, and expires-at, NUL-joined so no field's contents
// can bleed into the next and forge a different record.
func canonicalEncoding(id, nonce string, predicates []Predicate, expiresAt time.Time) []byte {
	parts := make([]string, 0, len(predicates)+3)
	parts = append(parts, id, nonce)
	for _, p := range predicates {
		parts = append(parts, string(p))
	}
	parts = append(parts, fmt.Sprintf("%d", expiresAt.Unix()))
	return []byte(strings.Join(parts, "\x00"))
}

func (s signer) sign(id, nonce string, predicates []Predicate, expiresAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonicalEncoding(id, nonce, predicates, expiresAt))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s signer) verify(id, nonce string, predicates []Predicate, expiresAt time.Time, claimed string) bool {
	expected := s.sign(id, nonce, predicates, expiresAt)
	return hmac.Equal([]byte(expected), []byte(claimed))
}

// generateNonce returns a hex-encoded 128-bit random nonce, grounded in
// privacybydesign-go-passport-issuer's GenerateNonce helper.
func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// choosePredicates picks count predicates independently and uniformly,
// with replacement, from the closed predicate set.
func choosePredicates(count int) ([]Predicate, error) {
	if count < 1 {
		count = 1
	}
	out := make([]Predicate, 0, count)
	buf := make([]byte, 1)
	// Bytes at or above limit are redrawn so every predicate is equally likely.
	limit := 256 - 256%len(allPredicates)
	for len(out) < count {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("choose predicates: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		out = append(out, allPredicates[int(buf[0])%len(allPredicates)])
	}
	return out, nil
}

func newID() string {
	return uuid.NewString()
}
