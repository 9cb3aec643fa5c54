package challenge

import (
	"context"
	"sync"
	"time"
)

// entry is the in-memory bookkeeping wrapper around a Record: it adds a
// per-id mutex so issue/lookup/consume on the SAME id serialize, while
// different ids proceed fully in parallel (spec §4.6 invariant: per-id
// linearizability, cross-id concurrency).
type entry struct {
	mu       sync.Mutex
	record   Record
	consumed bool
}

// MemoryStore is the default Challenge Store: an in-process map guarded
// by an RWMutex plus a per-entry lock, with a background sweeper evicting expired
// entries. Grounded in the teacher's in-memory map idiom from
// internal/usecase/cache.go, generalized from a single-key TTL cache
// into a keyed store with signed records.
type MemoryStore struct {
	signer signer

	mu      sync.RWMutex
	entries map[string]*entry

	sweepInterval time.Duration
	stop          chan struct{}
	stopped       sync.Once
}

// NewMemoryStore builds a MemoryStore and starts its background sweeper.
func NewMemoryStore(hmacSecret string) *MemoryStore {
	s := &MemoryStore{
		signer:        newSigner(hmacSecret),
		entries:       make(map[string]*entry),
		sweepInterval: 30 * time.Second,
		stop:          make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

var _ Store = (*MemoryStore)(nil)

// Issue implements Store.
func (s *MemoryStore) Issue(ctx context.Context, count int, ttl time.Duration) (*Record, error) {
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

	rec := Record{
		ID:         id,
		Predicates: predicates,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		Nonce:      nonce,
		Signature:  sig,
	}

	s.mu.Lock()
	s.entries[id] = &entry{record: rec}
	s.mu.Unlock()

	s.opportunisticSweep()

	return &rec, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.consumed || e.record.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	rec := e.record
	return &rec, nil
}

// Consume implements Store. It is idempotent: retrying a Consume call
// for an id that was already consumed reports ALREADY_CONSUMED rather
// than silently succeeding or erroring, so a caller can distinguish a
// network retry from a genuine double-spend attempt.
func (s *MemoryStore) Consume(ctx context.Context, id, claimedSignature string) (ConsumeResult, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return ConsumeNotFound, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.consumed {
		return ConsumeAlreadyConsumed, nil
	}
	if e.record.Expired(time.Now()) {
		return ConsumeExpired, nil
	}
	if !s.signer.verify(e.record.ID, e.record.Nonce, e.record.Predicates, e.record.ExpiresAt, claimedSignature) {
		return ConsumeInvalidSignature, nil
	}

	e.consumed = true
	return ConsumeOK, nil
}

// Close implements Store, stopping the background sweeper.
func (s *MemoryStore) Close() error {
	s.stopped.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.mu.Lock()
		expired := e.consumed || e.record.Expired(now)
		e.mu.Unlock()
		if expired {
			delete(s.entries, id)
		}
	}
}

// opportunisticSweepThreshold bounds how large the map can grow between
// ticker sweeps before an Issue call also triggers a full sweep of every
// entry, so a burst of issuance doesn't wait a full sweep interval to
// reclaim space.
const opportunisticSweepThreshold = 1000

func (s *MemoryStore) opportunisticSweep() {
	s.mu.RLock()
	size := len(s.entries)
	s.mu.RUnlock()
	if size < opportunisticSweepThreshold {
		return
	}
	s.sweepExpired()
}
