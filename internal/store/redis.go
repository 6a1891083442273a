package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/stems/internal/model"
)

// maxTxRetries bounds optimistic transaction retries under contention
const maxTxRetries = 10

// abandonedJobMessage is recorded on an in-flight job whose worker is gone
const abandonedJobMessage = "separation abandoned: no result within the job timeout"

// RedisStore keeps jobs in Redis so several API and worker processes can share them.
//
// Layout:
//
//	job:<id>                      JSON job record
//	stems:subject:<id>:jobs       sorted set of job ids scored by creation time
//	stems:subject:<id>:inflight   id of the subject's PENDING/PROCESSING job
type RedisStore struct {
	redis      *redis.Client
	ttl        time.Duration
	staleAfter time.Duration
}

// NewRedisStore creates a Redis-backed store. A ttl of 0 keeps records forever.
// An in-flight job older than staleAfter is treated as abandoned when another
// job for its subject arrives; 0 never expires in-flight jobs.
func NewRedisStore(redisClient *redis.Client, ttl, staleAfter time.Duration) *RedisStore {
	return &RedisStore{
		redis:      redisClient,
		ttl:        ttl,
		staleAfter: staleAfter,
	}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func subjectJobsKey(subjectID string) string {
	return fmt.Sprintf("stems:subject:%s:jobs", subjectID)
}

func inFlightKey(subjectID string) string {
	return fmt.Sprintf("stems:subject:%s:inflight", subjectID)
}

// Create writes the job record, takes the subject's in-flight slot and then
// indexes the job under its subject. The record is written first so a lock
// holder always has a record to inspect.
func (s *RedisStore) Create(ctx context.Context, job *model.SeparationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.redis.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.acquire(ctx, job.SubjectID, job.ID); err != nil {
		s.redis.Del(ctx, jobKey(job.ID))
		return err
	}

	err = s.redis.ZAdd(ctx, subjectJobsKey(job.SubjectID), redis.Z{
		Score:  float64(job.CreatedAt.UnixMicro()),
		Member: job.ID,
	}).Err()
	if err != nil {
		s.release(ctx, job.SubjectID, job.ID)
		s.redis.Del(ctx, jobKey(job.ID))
		return fmt.Errorf("failed to index job: %w", err)
	}

	return nil
}

// acquire claims the in-flight slot, reclaiming it when the holder is finished,
// gone or abandoned
func (s *RedisStore) acquire(ctx context.Context, subjectID, jobID string) error {
	lockKey := inFlightKey(subjectID)

	for i := 0; i < maxTxRetries; i++ {
		ok, err := s.redis.SetNX(ctx, lockKey, jobID, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire subject lock: %w", err)
		}
		if ok {
			return nil
		}

		holder, err := s.redis.Get(ctx, lockKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read subject lock: %w", err)
		}

		existing, err := s.Get(ctx, holder)
		switch {
		case err == nil && existing.Status.IsInFlight():
			if !s.abandoned(existing) {
				return &InFlightError{ExistingJobID: holder}
			}
			if err := s.failAbandoned(ctx, holder); err != nil {
				return err
			}
			continue
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		// Stale lock: swap it over only if nobody else got there first
		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, lockKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && current != holder {
				return redis.TxFailedErr
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, lockKey, jobID, 0)
				return nil
			})
			return err
		}, lockKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to reclaim subject lock: %w", err)
		}
	}

	return fmt.Errorf("failed to acquire subject lock: too much contention")
}

// abandoned reports whether an in-flight job has outlived the job timeout,
// e.g. because the process running it died
func (s *RedisStore) abandoned(job *model.SeparationJob) bool {
	if s.staleAfter <= 0 {
		return false
	}
	since := job.CreatedAt
	if job.StartedAt != nil {
		since = *job.StartedAt
	}
	return time.Since(since) > s.staleAfter
}

// failAbandoned marks the holder FAILED, which also frees its subject's slot
func (s *RedisStore) failAbandoned(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(job *model.SeparationJob) error {
		now := time.Now()
		job.Status = model.JobStatusFailed
		job.Error = abandonedJobMessage
		job.Stems = []model.StemResult{}
		job.CompletedAt = &now
		return nil
	})
	switch {
	case err == nil:
		log.Printf("[Stems] Job %s abandoned, subject slot reclaimed", id)
	case !errors.Is(err, ErrJobTerminal) && !errors.Is(err, ErrNotFound):
		return fmt.Errorf("failed to expire abandoned job %s: %w", id, err)
	}
	return nil
}

// release drops the in-flight slot if jobID still holds it
func (s *RedisStore) release(ctx context.Context, subjectID, jobID string) {
	lockKey := inFlightKey(subjectID)
	_ = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, lockKey).Result()
		if err != nil || holder != jobID {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, lockKey)
			return nil
		})
		return err
	}, lockKey)
}

// Get returns the job with the given id
func (s *RedisStore) Get(ctx context.Context, id string) (*model.SeparationJob, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job model.SeparationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// LatestBySubject returns the newest job for the subject that still has a record
func (s *RedisStore) LatestBySubject(ctx context.Context, subjectID string) (*model.SeparationJob, error) {
	ids, err := s.redis.ZRevRange(ctx, subjectJobsKey(subjectID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list subject jobs: %w", err)
	}

	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // expired record
		}
		return job, err
	}

	return nil, ErrNotFound
}

// Update applies fn inside an optimistic transaction on the job key.
// Reaching a terminal state releases the subject's in-flight slot in the same transaction.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*model.SeparationJob, error) {
	key := jobKey(id)

	for i := 0; i < maxTxRetries; i++ {
		var updated *model.SeparationJob

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to load job: %w", err)
			}

			var job model.SeparationJob
			if err := json.Unmarshal(data, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job: %w", err)
			}
			if job.Status.IsTerminal() {
				return ErrJobTerminal
			}

			subjectID := job.SubjectID
			if err := fn(&job); err != nil {
				return err
			}
			job.ID, job.SubjectID = id, subjectID

			out, err := json.Marshal(&job)
			if err != nil {
				return fmt.Errorf("failed to marshal job: %w", err)
			}

			lockKey := inFlightKey(subjectID)
			releaseLock := false
			if job.Status.IsTerminal() {
				if err := tx.Watch(ctx, lockKey).Err(); err != nil {
					return err
				}
				holder, err := tx.Get(ctx, lockKey).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				releaseLock = holder == id
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, s.ttl)
				if releaseLock {
					pipe.Del(ctx, lockKey)
				}
				return nil
			})
			if err != nil {
				return err
			}

			updated = &job
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("failed to update job %s: too much contention", id)
}
