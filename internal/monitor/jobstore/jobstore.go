// Package jobstore provides an in-memory implementation of monitor.JobStore.
package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

const (
	defaultTTL        = time.Hour
	defaultStaleAfter = 5 * time.Minute
)

// Store holds detection jobs in memory. Terminal jobs expire after the TTL;
// non-terminal jobs nothing updates within staleAfter are failed by Sweep.
// Suitable for single-replica deployments and tests.
type Store struct {
	ttl        time.Duration
	staleAfter time.Duration

	mu       sync.Mutex
	jobs     map[string]*monitor.Job // job ID -> job
	inflight map[string]string       // region ID -> newest non-terminal job ID
}

// New initializes a job store. ttl bounds how long terminal jobs stay
// readable; staleAfter bounds how long a non-terminal job may go without an
// update before Sweep abandons it.
func New(ttl, staleAfter time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Store{
		ttl:        ttl,
		staleAfter: staleAfter,
		jobs:       make(map[string]*monitor.Job),
		inflight:   make(map[string]string),
	}
}

// Create inserts a copy of the job unless the region already has a
// non-terminal job, in which case it reports that job's id. The gate check
// and the insert share one critical section. bypass skips the gate.
func (s *Store) Create(_ context.Context, j *monitor.Job, bypass bool) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !bypass {
		if id, ok := s.inflight[j.RegionID]; ok {
			if cur, exists := s.jobs[id]; exists && !cur.Status.Terminal() {
				return false, id, nil
			}
			delete(s.inflight, j.RegionID)
		}
	}
	cp := *j
	s.jobs[j.ID] = &cp
	if !cp.Status.Terminal() {
		s.inflight[j.RegionID] = j.ID
	}
	return true, "", nil
}

// Get retrieves a job by its ID, evicting it first if its TTL has lapsed.
// Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*monitor.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	if s.expired(j, time.Now().UTC()) {
		s.evict(id, j)
		return nil, false, nil
	}
	cp := *j
	return &cp, true, nil
}

// Update replaces the job record, rejecting transitions that move the status
// backwards or swap one terminal status for another. Reaching a terminal
// status releases the region's in-flight marker.
func (s *Store) Update(_ context.Context, j *monitor.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok {
		return fmt.Errorf("job %s not found", j.ID)
	}
	if !monitor.ValidJobTransition(cur.Status, j.Status) {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, cur.Status, j.Status)
	}
	cp := *j
	s.jobs[j.ID] = &cp
	if cp.Status.Terminal() && s.inflight[cp.RegionID] == cp.ID {
		delete(s.inflight, cp.RegionID)
	}
	return nil
}

// Sweep removes terminal jobs past their TTL and fails non-terminal jobs
// that have gone staleAfter without an update.
func (s *Store) Sweep(_ context.Context, now time.Time) (expired, abandoned int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		switch {
		case s.expired(j, now):
			s.evict(id, j)
			expired++
		case !j.Status.Terminal() && now.Sub(j.UpdatedAt) > s.staleAfter:
			t := now
			j.Status = monitor.JobFailed
			j.Error = "abandoned: no detector response"
			j.UpdatedAt = now
			j.CompletedAt = &t
			if s.inflight[j.RegionID] == id {
				delete(s.inflight, j.RegionID)
			}
			abandoned++
		}
	}
	return expired, abandoned, nil
}

func (s *Store) expired(j *monitor.Job, now time.Time) bool {
	if !j.Status.Terminal() {
		return false
	}
	done := j.UpdatedAt
	if j.CompletedAt != nil {
		done = *j.CompletedAt
	}
	return now.Sub(done) > s.ttl
}

func (s *Store) evict(id string, j *monitor.Job) {
	delete(s.jobs, id)
	if s.inflight[j.RegionID] == id {
		delete(s.inflight, j.RegionID)
	}
}
