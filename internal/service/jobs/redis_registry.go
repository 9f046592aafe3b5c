package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const maxTransitionRetries = 10

// RedisRegistry stores each job as a JSON value under prefix+id. Create uses SETNX and
// Transition an optimistic WATCH/MULTI so concurrent writers never lose an update.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

var _ domrepo.JobRegistry = (*RedisRegistry)(nil)

func (r *RedisRegistry) key(id string) string {
	return r.prefix + id
}

func (r *RedisRegistry) Create(ctx context.Context, job *models.ExportJob) error {
	stored := *job
	stored.State = models.JobPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	ok, err := r.client.SetNX(ctx, r.key(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return fmt.Errorf("job %s: %w", job.ID, domrepo.ErrJobExists)
	}
	*job = stored
	return nil
}

func (r *RedisRegistry) Transition(ctx context.Context, id string, state models.JobState, payload models.JobPayload) (*models.ExportJob, error) {
	key := r.key(id)
	var out *models.ExportJob

	txf := func(tx *redis.Tx) error {
		job, err := r.load(ctx, tx, key, id)
		if err != nil {
			return err
		}
		if !models.CanTransition(job.State, state) {
			return fmt.Errorf("job %s %s -> %s: %w", id, job.State, state, domrepo.ErrInvalidTransition)
		}
		applyTransition(job, state, payload, time.Now().UTC())
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			out = job
		}
		return err
	}

	for i := 0; i < maxTransitionRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("transition job %s: too much contention", id)
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	return r.load(ctx, r.client, r.key(id), id)
}

func (r *RedisRegistry) load(ctx context.Context, c redis.Cmdable, key, id string) (*models.ExportJob, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("job %s: %w", id, domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job models.ExportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}
