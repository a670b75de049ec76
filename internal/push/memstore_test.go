package push

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_NextSeqIsMonotonicPerEntity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		seq, err := store.NextSeq(ctx, "wars")
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	seq, err := store.NextSeq(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq, "entities count independently")

	seqs, err := store.Seqs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"wars": 3, "events": 1}, seqs)
}

func TestMemoryStore_RateRecordRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.GetRateRecord(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec, "absent record reads as nil, not an error")

	reset := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(t, store.PutRateRecord(ctx, RateRecord{Key: "votes:alice", Count: 2, WindowResetAt: reset}))

	rec, err = store.GetRateRecord(ctx, "votes:alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2), rec.Count)
	assert.Equal(t, reset, rec.WindowResetAt)
}

func TestMemoryStore_DeleteExpiredRateRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.PutRateRecord(ctx, RateRecord{Key: "expired", Count: 1, WindowResetAt: now.Add(-time.Second)}))
	require.NoError(t, store.PutRateRecord(ctx, RateRecord{Key: "live", Count: 1, WindowResetAt: now.Add(time.Minute)}))

	deleted, err := store.DeleteExpiredRateRecords(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	rec, err := store.GetRateRecord(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = store.GetRateRecord(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
