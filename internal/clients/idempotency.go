package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"customs-ledger/internal/domain"
)

const (
	idempotencyKeyPrefix = "idempotency:distribution:"
	idempotencyPending   = "pending:"
	idempotencyBoundTag  = "distribution:"
)

// IdempotencyStore remembers which distribution a client-supplied
// Idempotency-Key produced, together with a fingerprint of the request body
// that used it.
type IdempotencyStore struct {
	redis *RedisClient
	ttl   time.Duration
}

func NewIdempotencyStore(redis *RedisClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{redis: redis, ttl: ttl}
}

func pendingValue(fingerprint string) string {
	return idempotencyPending + fingerprint
}

func boundValue(fingerprint, distributionID string) string {
	return idempotencyBoundTag + fingerprint + ":" + distributionID
}

// parseIdempotencyValue splits a stored value into its fingerprint and, once
// bound, the distribution id.
func parseIdempotencyValue(val string) (fingerprint, distributionID string, bound bool) {
	if rest, ok := strings.CutPrefix(val, idempotencyBoundTag); ok {
		fingerprint, distributionID, _ = strings.Cut(rest, ":")
		return fingerprint, distributionID, true
	}
	return strings.TrimPrefix(val, idempotencyPending), "", false
}

// checkIdempotencyValue decides what a request carrying fingerprint gets back
// for an already stored value.
func checkIdempotencyValue(val, fingerprint string) (string, error) {
	storedFP, id, bound := parseIdempotencyValue(val)
	if storedFP != fingerprint {
		return "", domain.ErrIdempotencyKeyReused
	}
	if !bound {
		return "", domain.ErrIdempotencyInFlight
	}
	return id, nil
}

// Reserve claims key for the request identified by fingerprint. It returns
// the bound distribution id when the same request already completed,
// domain.ErrIdempotencyInFlight while it is still running and
// domain.ErrIdempotencyKeyReused when the key belongs to a different request.
// An empty id with a nil error means the caller now owns the key.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, fingerprint string) (string, error) {
	ok, err := s.redis.SetNX(ctx, idempotencyKeyPrefix+key, pendingValue(fingerprint), s.ttl)
	if err != nil {
		return "", fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", nil
	}

	val, err := s.redis.Get(ctx, idempotencyKeyPrefix+key)
	if IsNil(err) {
		// expired between SETNX and GET; try once more
		return s.Reserve(ctx, key, fingerprint)
	}
	if err != nil {
		return "", fmt.Errorf("read idempotency key: %w", err)
	}
	return checkIdempotencyValue(val, fingerprint)
}

func (s *IdempotencyStore) Bind(ctx context.Context, key, fingerprint, distributionID string) error {
	return s.redis.Set(ctx, idempotencyKeyPrefix+key, boundValue(fingerprint, distributionID), s.ttl)
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.redis.Del(ctx, idempotencyKeyPrefix+key)
}
