// Package redisjobs provides a Redis implementation of monitor.JobStore for
// multi-replica deployments, where the in-flight gate must hold across
// processes.
package redisjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

const (
	jobKeyPrefix      = "terrawatch:job:"
	inflightKeyPrefix = "terrawatch:inflight:"
	activeKey         = "terrawatch:jobs:active"

	defaultTTL        = time.Hour
	defaultStaleAfter = 5 * time.Minute
)

// Store keeps jobs as JSON values with native key expiry. The per-region
// in-flight marker is a SETNX key that self-expires at the staleness bound,
// and non-terminal jobs are indexed in a sorted set by last update so Sweep
// can find abandoned ones without scanning the keyspace.
type Store struct {
	client     *redis.Client
	ttl        time.Duration
	staleAfter time.Duration
}

// Open connects to Redis using a redis:// URL and verifies the connection.
func Open(ctx context.Context, url string, ttl, staleAfter time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, ttl, staleAfter), nil
}

// New wraps an existing client.
func New(client *redis.Client, ttl, staleAfter time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Store{client: client, ttl: ttl, staleAfter: staleAfter}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Create inserts the job unless the region's in-flight marker points at a
// live non-terminal job. The marker is claimed with SETNX so concurrent
// triggers across replicas race safely; a marker left behind by a dead job is
// taken over.
func (s *Store) Create(ctx context.Context, j *monitor.Job, bypass bool) (bool, string, error) {
	ikey := inflightKeyPrefix + j.RegionID
	if bypass {
		if err := s.client.Set(ctx, ikey, j.ID, s.staleAfter).Err(); err != nil {
			return false, "", fmt.Errorf("redis set marker: %w", err)
		}
	} else {
		ok, err := s.client.SetNX(ctx, ikey, j.ID, s.staleAfter).Result()
		if err != nil {
			return false, "", fmt.Errorf("redis claim marker: %w", err)
		}
		if !ok {
			id, gerr := s.client.Get(ctx, ikey).Result()
			switch {
			case errors.Is(gerr, redis.Nil):
				// marker expired between the two commands; take it
			case gerr != nil:
				return false, "", fmt.Errorf("redis read marker: %w", gerr)
			default:
				cur, found, lerr := s.Get(ctx, id)
				if lerr != nil {
					return false, "", lerr
				}
				if found && !cur.Status.Terminal() {
					return false, id, nil
				}
				// marker points at a finished or vanished job; take it over
			}
			if err := s.client.Set(ctx, ikey, j.ID, s.staleAfter).Err(); err != nil {
				return false, "", fmt.Errorf("redis set marker: %w", err)
			}
		}
	}

	data, err := json.Marshal(j)
	if err != nil {
		return false, "", fmt.Errorf("marshal job: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+j.ID, data, s.staleAfter+s.ttl)
	pipe.ZAdd(ctx, activeKey, redis.Z{Score: float64(j.UpdatedAt.Unix()), Member: j.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, "", fmt.Errorf("redis store job: %w", err)
	}
	return true, "", nil
}

// Get retrieves a job by its ID. Expired jobs read as absent through native
// key expiry.
func (s *Store) Get(ctx context.Context, id string) (*monitor.Job, bool, error) {
	raw, err := s.client.Get(ctx, jobKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get job: %w", err)
	}
	var j monitor.Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, false, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &j, true, nil
}

// Update replaces the job record after checking the transition against the
// current value under WATCH. Terminal writes switch the key to the TTL expiry,
// drop the job from the active index, and release the region's marker if it
// is still ours.
func (s *Store) Update(ctx context.Context, j *monitor.Job) error {
	key := jobKeyPrefix + j.ID
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("job %s not found", j.ID)
		}
		if err != nil {
			return fmt.Errorf("redis get job: %w", err)
		}
		var cur monitor.Job
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return fmt.Errorf("unmarshal job %s: %w", j.ID, err)
		}
		if !monitor.ValidJobTransition(cur.Status, j.Status) {
			return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, cur.Status, j.Status)
		}
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if j.Status.Terminal() {
				pipe.Set(ctx, key, data, s.ttl)
				pipe.ZRem(ctx, activeKey, j.ID)
			} else {
				pipe.Set(ctx, key, data, s.staleAfter+s.ttl)
				pipe.ZAdd(ctx, activeKey, redis.Z{Score: float64(j.UpdatedAt.Unix()), Member: j.ID})
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		s.releaseMarker(ctx, j.RegionID, j.ID)
	}
	return nil
}

// Sweep fails non-terminal jobs whose last update is older than the staleness
// bound. Terminal jobs expire through native key TTLs, so expired is always
// zero here.
func (s *Store) Sweep(ctx context.Context, now time.Time) (expired, abandoned int, err error) {
	cutoff := strconv.FormatInt(now.Add(-s.staleAfter).Unix(), 10)
	ids, err := s.client.ZRangeByScore(ctx, activeKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis range active jobs: %w", err)
	}
	for _, id := range ids {
		j, found, err := s.Get(ctx, id)
		if err != nil {
			return expired, abandoned, err
		}
		if !found || j.Status.Terminal() {
			// already finished or gone; drop the index entry
			s.client.ZRem(ctx, activeKey, id)
			continue
		}
		t := now
		j.Status = monitor.JobFailed
		j.Error = "abandoned: no detector response"
		j.UpdatedAt = now
		j.CompletedAt = &t
		if err := s.Update(ctx, j); err != nil {
			return expired, abandoned, err
		}
		abandoned++
	}
	return 0, abandoned, nil
}

func (s *Store) releaseMarker(ctx context.Context, regionID, jobID string) {
	ikey := inflightKeyPrefix + regionID
	cur, err := s.client.Get(ctx, ikey).Result()
	if err == nil && cur == jobID {
		s.client.Del(ctx, ikey)
	}
}
