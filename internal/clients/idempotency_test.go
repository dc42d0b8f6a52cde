package clients

import (
	"errors"
	"testing"

	"customs-ledger/internal/domain"
)

func TestIdempotencyValues(t *testing.T) {
	id, err := checkIdempotencyValue(boundValue("fp-a", "dist-1"), "fp-a")
	if err != nil || id != "dist-1" {
		t.Fatalf("expected dist-1 for the same request, got %q %v", id, err)
	}

	if _, err := checkIdempotencyValue(boundValue("fp-a", "dist-1"), "fp-b"); !errors.Is(err, domain.ErrIdempotencyKeyReused) {
		t.Fatalf("expected key reuse error for a different body, got %v", err)
	}

	if _, err := checkIdempotencyValue(pendingValue("fp-a"), "fp-a"); !errors.Is(err, domain.ErrIdempotencyInFlight) {
		t.Fatalf("expected in-flight for a pending key, got %v", err)
	}

	if _, err := checkIdempotencyValue(pendingValue("fp-a"), "fp-b"); !errors.Is(err, domain.ErrIdempotencyKeyReused) {
		t.Fatalf("expected key reuse error while pending, got %v", err)
	}

	fp, dist, bound := parseIdempotencyValue(boundValue("abc123", "6f1c2a4e-0000-4000-8000-000000000000"))
	if !bound || fp != "abc123" || dist != "6f1c2a4e-0000-4000-8000-000000000000" {
		t.Fatalf("unexpected parse %q %q %v", fp, dist, bound)
	}
}
