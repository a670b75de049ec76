package push

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable marks storage faults caused by infrastructure (lost
// connection, tripped circuit breaker) rather than bad input. The rate-limit
// path branches on it explicitly to fail open.
var ErrStoreUnavailable = errors.New("push store unavailable")

// RateRecord is one fixed-window rate limit counter.
type RateRecord struct {
	Key           string
	Count         int64
	WindowResetAt time.Time
}

// Store persists the coordinator's durable state: per-entity sequence
// counters and rate-limit records. Implementations do not need to be
// atomic across calls; the coordinator serializes all access.
type Store interface {
	// NextSeq increments and returns the sequence counter for entity.
	// The first call for an entity returns 1.
	NextSeq(ctx context.Context, entity string) (uint64, error)

	// Seqs returns the current sequence number of every known entity.
	Seqs(ctx context.Context) (map[string]uint64, error)

	// GetRateRecord returns the record for key, or nil if none exists.
	GetRateRecord(ctx context.Context, key string) (*RateRecord, error)

	// PutRateRecord creates or replaces the record for rec.Key.
	PutRateRecord(ctx context.Context, rec RateRecord) error

	// DeleteExpiredRateRecords removes records whose window reset time has
	// passed and returns how many were deleted.
	DeleteExpiredRateRecords(ctx context.Context, now time.Time) (int, error)
}
