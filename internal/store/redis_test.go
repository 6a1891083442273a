package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/stems/internal/model"
)

// newTestRedis connects to a local redis on DB 15 and flushes it; the test is
// skipped when redis is not reachable.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not available: %v", err)
	}
	require.NoError(t, rdb.FlushDB(ctx).Err())

	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	return rdb
}

func TestRedisStore(t *testing.T) {
	runJobStoreTests(t, func(t *testing.T) JobStore {
		return NewRedisStore(newTestRedis(t), 0, 0)
	})
}

func TestRedisStore_ReclaimsStaleLock(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, 0, 0)

	// lock left behind by a job whose record is gone
	require.NoError(t, rdb.Set(ctx, inFlightKey("asset-1"), "sep_lost", 0).Err())

	require.NoError(t, s.Create(ctx, newJob("sep_1", "asset-1", time.Now())))

	holder, err := rdb.Get(ctx, inFlightKey("asset-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, "sep_1", holder)
}

func TestRedisStore_ReleasesLockOnTerminal(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, 0, 0)

	require.NoError(t, s.Create(ctx, newJob("sep_1", "asset-1", time.Now())))
	_, err := s.Update(ctx, "sep_1", finish(model.JobStatusFailed))
	require.NoError(t, err)

	n, err := rdb.Exists(ctx, inFlightKey("asset-1")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStore_RecordTTL(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, time.Hour, 0)

	require.NoError(t, s.Create(ctx, newJob("sep_1", "asset-1", time.Now())))

	ttl, err := rdb.TTL(ctx, jobKey("sep_1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestRedisStore_ExpiresAbandonedJob(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, 0, time.Hour)

	// a job left PROCESSING by a worker that died two hours ago
	require.NoError(t, s.Create(ctx, newJob("sep_old", "asset-1", time.Now().Add(-2*time.Hour))))
	_, err := s.Update(ctx, "sep_old", func(job *model.SeparationJob) error {
		started := job.CreatedAt
		job.Status = model.JobStatusProcessing
		job.StartedAt = &started
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, newJob("sep_new", "asset-1", time.Now())))

	old, err := s.Get(ctx, "sep_old")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, old.Status)
	assert.Contains(t, old.Error, "abandoned")
	assert.NotNil(t, old.CompletedAt)

	holder, err := rdb.Get(ctx, inFlightKey("asset-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, "sep_new", holder)

	latest, err := s.LatestBySubject(ctx, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, "sep_new", latest.ID)
}

func TestRedisStore_RecentInFlightJobStillBlocks(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, 0, time.Hour)

	require.NoError(t, s.Create(ctx, newJob("sep_1", "asset-1", time.Now().Add(-time.Minute))))

	err := s.Create(ctx, newJob("sep_2", "asset-1", time.Now()))
	var inFlight *InFlightError
	require.ErrorAs(t, err, &inFlight)
	assert.Equal(t, "sep_1", inFlight.ExistingJobID)
}
