package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/NAinfini/guildhall/internal/push"
)

const (
	seqHashKey      = "push:seq"
	rateKeyPrefix   = "push:ratelimit:"
	rateScanPattern = rateKeyPrefix + "*"
	rateScanCount   = 100

	// rateTTLGrace keeps records past their window reset so the periodic
	// sweep (not key eviction) owns the precise expiry semantics; the TTL
	// is only a backstop against sweep outages.
	rateTTLGrace = time.Hour
)

// PushStore persists the coordinator's sequence table and rate-limit ledger
// in Redis. Sequence counters live in a single hash so the full table can be
// enumerated for welcome frames and /seq. No Lua is needed: the coordinator
// serializes every call.
type PushStore struct {
	rdb *goredis.Client
}

var _ push.Store = (*PushStore)(nil)

func NewPushStore(rdb *goredis.Client) *PushStore {
	return &PushStore{rdb: rdb}
}

func (s *PushStore) NextSeq(ctx context.Context, entity string) (uint64, error) {
	val, err := s.rdb.HIncrBy(ctx, seqHashKey, entity, 1).Result()
	if err != nil {
		return 0, storeErr("incr seq", err)
	}
	return uint64(val), nil
}

func (s *PushStore) Seqs(ctx context.Context) (map[string]uint64, error) {
	fields, err := s.rdb.HGetAll(ctx, seqHashKey).Result()
	if err != nil {
		return nil, storeErr("read seq table", err)
	}

	seqs := make(map[string]uint64, len(fields))
	for entity, raw := range fields {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt seq value for %q: %w", entity, err)
		}
		seqs[entity] = seq
	}
	return seqs, nil
}

func (s *PushStore) GetRateRecord(ctx context.Context, key string) (*push.RateRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, rateKeyPrefix+key).Result()
	if err != nil {
		return nil, storeErr("read rate record", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	count, err := strconv.ParseInt(fields["count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt rate record count for %q: %w", key, err)
	}
	resetMs, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt rate record reset_at for %q: %w", key, err)
	}

	return &push.RateRecord{
		Key:           key,
		Count:         count,
		WindowResetAt: time.UnixMilli(resetMs),
	}, nil
}

func (s *PushStore) PutRateRecord(ctx context.Context, rec push.RateRecord) error {
	redisKey := rateKeyPrefix + rec.Key

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, redisKey, map[string]any{
		"count":    rec.Count,
		"reset_at": rec.WindowResetAt.UnixMilli(),
	})
	pipe.PExpireAt(ctx, redisKey, rec.WindowResetAt.Add(rateTTLGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("write rate record", err)
	}
	return nil
}

func (s *PushStore) DeleteExpiredRateRecords(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	iter := s.rdb.Scan(ctx, 0, rateScanPattern, rateScanCount).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()

		raw, err := s.rdb.HGet(ctx, redisKey, "reset_at").Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return deleted, storeErr("read rate record expiry", err)
		}

		resetMs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || now.After(time.UnixMilli(resetMs)) {
			if err := s.rdb.Del(ctx, redisKey).Err(); err != nil {
				return deleted, storeErr("delete rate record", err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, storeErr("scan rate records", err)
	}
	return deleted, nil
}

// storeErr tags infrastructure failures with push.ErrStoreUnavailable so the
// coordinator's fail-open branch can recognize them.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(push.ErrStoreUnavailable, err))
}
