package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/kyc-gateway/internal/logging"
)

// redisRecord is the JSON wire shape a Record is stored as in Redis.
// Unlike the in-memory entry, it carries no mutex: correctness against
// concurrent Consume calls for the same id comes from the Lua script
// below running atomically inside Redis, not from a Go-side lock.
type redisRecord struct {
	ID         string      `json:"id"`
	Predicates []Predicate `json:"predicates"`
	IssuedAt   time.Time   `json:"issued_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	Nonce      string      `json:"nonce"`
	Signature  string      `json:"signature"`
	Consumed   bool        `json:"consumed"`
}

// consumeScript atomically checks a record exists, is unconsumed, and
// marks it consumed, returning a status code a single round trip can
// branch on. Redis's single-threaded command execution makes the
// GET/check/SET sequence linearizable without a client-side lock.
const consumeScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return "NOT_FOUND"
end
local rec = cjson.decode(raw)
if rec.consumed then
  return "ALREADY_CONSUMED"
end
rec.consumed = true
local ttl = redis.call("TTL", KEYS[1])
if ttl and ttl > 0 then
  redis.call("SET", KEYS[1], cjson.encode(rec), "EX", ttl)
else
  redis.call("SET", KEYS[1], cjson.encode(rec))
end
return "MARKED"
`

// RedisStore is the optional, distributed Challenge Store backend,
// constructed when REDIS_ADDR is configured (spec.md §4.6 Open
// Question: multi-instance deployments need a shared store, but
// entries still carry the same TTL as MemoryStore and are never
// queryable after expiry — this is not the durable business-entity
// persistence the Non-goals exclude, just a shared substitute for the
// same ephemeral state). Grounded in the teacher's
// internal/usecase/cache.go RedisCache adapter and its retry/backoff
// wrapper in internal/usecase/verification.go.
type RedisStore struct {
	client *redis.Client
	signer signer
	script *redis.Script

	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRedisStore builds a RedisStore over an already-constructed
// go-redis client.
func NewRedisStore(client *redis.Client, hmacSecret string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:         client,
		signer:         newSigner(hmacSecret),
		script:         redis.NewScript(consumeScript),
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     500 * time.Millisecond,
	}
}

var _ Store = (*RedisStore)(nil)

func challengeKey(id string) string {
	return "kyc:challenge:" + id
}

// Issue implements Store.
func (s *RedisStore) Issue(ctx context.Context, count int, ttl time.Duration) (*Record, error) {
	predicates, err := choosePredicates(count)
	if err != nil {
		return nil, err
	}
	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	id := newID()
	sig := s.signer.sign(id, nonce, predicates, expiresAt)

	rec := redisRecord{
		ID:         id,
		Predicates: predicates,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		Nonce:      nonce,
		Signature:  sig,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal challenge record: %w", err)
	}

	if err := s.withRetry(ctx, "challenge.issue", func() error {
		return s.client.Set(ctx, challengeKey(id), payload, ttl).Err()
	}); err != nil {
		return nil, err
	}

	out := Record{ID: id, Predicates: predicates, IssuedAt: now, ExpiresAt: expiresAt, Nonce: nonce, Signature: sig}
	return &out, nil
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, id string) (*Record, error) {
	var raw string
	err := s.withRetry(ctx, "challenge.lookup", func() error {
		var getErr error
		raw, getErr = s.client.Get(ctx, challengeKey(id)).Result()
		return getErr
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal challenge record: %w", err)
	}
	if rec.Consumed || rec.ExpiresAt.Before(time.Now()) {
		return nil, ErrNotFound
	}

	out := Record{
		ID: rec.ID, Predicates: rec.Predicates, IssuedAt: rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt, Nonce: rec.Nonce, Signature: rec.Signature,
	}
	return &out, nil
}

// Consume implements Store, delegating the check-and-mark to a Lua
// script so concurrent Consume calls for the same id never both
// observe "unconsumed".
func (s *RedisStore) Consume(ctx context.Context, id, claimedSignature string) (ConsumeResult, error) {
	rec, err := s.Lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// Lookup hides consumed and expired records, and Redis evicts
		// keys via its own TTL, so none of these can be told apart from
		// never-issued here: all surface as NOT_FOUND. The in-memory
		// store differs: it keeps such entries until a sweep and reports
		// ALREADY_CONSUMED or EXPIRED.
		return ConsumeNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if !s.signer.verify(rec.ID, rec.Nonce, rec.Predicates, rec.ExpiresAt, claimedSignature) {
		return ConsumeInvalidSignature, nil
	}

	var result string
	err = s.withRetry(ctx, "challenge.consume", func() error {
		var runErr error
		result, runErr = s.script.Run(ctx, s.client, []string{challengeKey(id)}).Text()
		return runErr
	})
	if err != nil {
		return "", err
	}

	switch result {
	case "NOT_FOUND":
		return ConsumeNotFound, nil
	case "ALREADY_CONSUMED":
		return ConsumeAlreadyConsumed, nil
	case "MARKED":
		return ConsumeOK, nil
	default:
		return "", fmt.Errorf("unexpected consume script result %q", result)
	}
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) withRetry(ctx context.Context, operation string, fn func() error) error {
	opLogger := logging.WithOperation(s.logger, operation, "")
	backoff := s.initialBackoff
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		if attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return err
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return err
}
