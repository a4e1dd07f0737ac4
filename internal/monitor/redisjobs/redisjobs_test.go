package redisjobs_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
	"github.com/linnemanlabs/terrawatch/internal/monitor/redisjobs"
)

// These tests need a reachable Redis. Point TERRAWATCH_TEST_REDIS_URL at one
// (for example redis://localhost:6379/15) to enable them.

func openStore(t *testing.T, ttl, staleAfter time.Duration) *redisjobs.Store {
	t.Helper()
	url := os.Getenv("TERRAWATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TERRAWATCH_TEST_REDIS_URL not set, skipping integration test")
	}
	s, err := redisjobs.Open(context.Background(), url, ttl, staleAfter)
	if err != nil {
		t.Fatalf("open redis job store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close redis job store: %v", err)
		}
	})
	return s
}

// uniqueID keeps runs against a shared Redis from colliding.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func testJob(id, regionID string, status monitor.JobStatus, updatedAt time.Time) *monitor.Job {
	return &monitor.Job{
		ID:        id,
		RegionID:  regionID,
		OwnerID:   "it-owner",
		Status:    status,
		Progress:  25,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestJobRoundTrip(t *testing.T) {
	s := openStore(t, time.Hour, 5*time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()

	job := testJob(uniqueID("job-rt"), uniqueID("region-rt"), monitor.JobProcessing, now)
	job.AlertID = "alert-1"
	job.Error = ""

	created, inflight, err := s.Create(ctx, job, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created || inflight != "" {
		t.Fatalf("Create = %v, %q; want true, \"\"", created, inflight)
	}

	got, found, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("job not found after Create")
	}
	assertEqual(t, "ID", job.ID, got.ID)
	assertEqual(t, "RegionID", job.RegionID, got.RegionID)
	assertEqual(t, "OwnerID", job.OwnerID, got.OwnerID)
	assertEqual(t, "Status", job.Status, got.Status)
	assertEqual(t, "Progress", job.Progress, got.Progress)
	assertEqual(t, "AlertID", job.AlertID, got.AlertID)
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}

	if _, found, err := s.Get(ctx, uniqueID("never-created")); err != nil || found {
		t.Errorf("Get(absent) = found=%v err=%v, want absent", found, err)
	}
}

func TestCreate_DedupAcrossCalls(t *testing.T) {
	s := openStore(t, time.Hour, 5*time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()
	region := uniqueID("region-dedup")

	first := testJob(uniqueID("job-a"), region, monitor.JobProcessing, now)
	if _, _, err := s.Create(ctx, first, false); err != nil {
		t.Fatalf("Create(first): %v", err)
	}

	second := testJob(uniqueID("job-b"), region, monitor.JobQueued, now)
	created, inflight, err := s.Create(ctx, second, false)
	if err != nil {
		t.Fatalf("Create(second): %v", err)
	}
	if created {
		t.Error("second job for the region was admitted past the gate")
	}
	assertEqual(t, "inflight id", first.ID, inflight)

	// finishing the first releases the marker for new work
	done := *first
	done.Status = monitor.JobComplete
	done.Progress = 100
	done.UpdatedAt = time.Now().UTC()
	completedAt := done.UpdatedAt
	done.CompletedAt = &completedAt
	if err := s.Update(ctx, &done); err != nil {
		t.Fatalf("Update to complete: %v", err)
	}

	third := testJob(uniqueID("job-c"), region, monitor.JobQueued, time.Now().UTC())
	created, _, err = s.Create(ctx, third, false)
	if err != nil {
		t.Fatalf("Create(third): %v", err)
	}
	if !created {
		t.Error("gate still held after the job finished")
	}
}

func TestCreate_Bypass(t *testing.T) {
	s := openStore(t, time.Hour, 5*time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()
	region := uniqueID("region-bypass")

	if _, _, err := s.Create(ctx, testJob(uniqueID("job-a"), region, monitor.JobProcessing, now), false); err != nil {
		t.Fatalf("Create(first): %v", err)
	}

	forced := testJob(uniqueID("job-b"), region, monitor.JobQueued, now)
	created, _, err := s.Create(ctx, forced, true)
	if err != nil {
		t.Fatalf("Create(bypass): %v", err)
	}
	if !created {
		t.Error("bypass create was gated")
	}
	if _, found, _ := s.Get(ctx, forced.ID); !found {
		t.Error("bypassed job not stored")
	}
}

func TestUpdate_Transitions(t *testing.T) {
	s := openStore(t, time.Hour, 5*time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()

	job := testJob(uniqueID("job-tr"), uniqueID("region-tr"), monitor.JobProcessing, now)
	if _, _, err := s.Create(ctx, job, false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	back := *job
	back.Status = monitor.JobQueued
	err := s.Update(ctx, &back)
	if err == nil || !strings.Contains(err.Error(), "invalid transition processing -> queued") {
		t.Errorf("backwards Update = %v, want invalid transition error", err)
	}

	ghost := testJob(uniqueID("job-ghost"), uniqueID("region-ghost"), monitor.JobProcessing, now)
	err = s.Update(ctx, ghost)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Update(ghost) = %v, want not-found error", err)
	}

	fwd := *job
	fwd.Status = monitor.JobComplete
	fwd.Progress = 100
	fwd.UpdatedAt = time.Now().UTC()
	completedAt := fwd.UpdatedAt
	fwd.CompletedAt = &completedAt
	if err := s.Update(ctx, &fwd); err != nil {
		t.Fatalf("Update to complete: %v", err)
	}
	got, found, err := s.Get(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("Get after update: found=%v err=%v", found, err)
	}
	assertEqual(t, "Status", monitor.JobComplete, got.Status)
	assertEqual(t, "Progress", 100, got.Progress)
	if got.CompletedAt == nil {
		t.Error("CompletedAt lost in update")
	}
}

func TestTerminalJobsExpire(t *testing.T) {
	s := openStore(t, 100*time.Millisecond, 5*time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()

	job := testJob(uniqueID("job-ttl"), uniqueID("region-ttl"), monitor.JobProcessing, now)
	if _, _, err := s.Create(ctx, job, false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	done := *job
	done.Status = monitor.JobFailed
	done.Error = "detector timed out after 2m"
	done.UpdatedAt = time.Now().UTC()
	completedAt := done.UpdatedAt
	done.CompletedAt = &completedAt
	if err := s.Update(ctx, &done); err != nil {
		t.Fatalf("Update to failed: %v", err)
	}

	// the terminal write rewrote the key with the short TTL
	time.Sleep(300 * time.Millisecond)
	if _, found, err := s.Get(ctx, job.ID); err != nil || found {
		t.Errorf("Get after TTL = found=%v err=%v, want expired", found, err)
	}
}

func TestSweep_AbandonsStale(t *testing.T) {
	s := openStore(t, time.Hour, 5*time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()
	region := uniqueID("region-sweep")

	stale := testJob(uniqueID("job-stale"), region, monitor.JobProcessing, now.Add(-10*time.Minute))
	if _, _, err := s.Create(ctx, stale, false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	expired, abandoned, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// key expiry handles terminal jobs natively
	assertEqual(t, "expired", 0, expired)
	if abandoned < 1 {
		t.Fatalf("abandoned = %d, want at least 1", abandoned)
	}

	got, found, err := s.Get(ctx, stale.ID)
	if err != nil || !found {
		t.Fatalf("Get after sweep: found=%v err=%v", found, err)
	}
	assertEqual(t, "Status", monitor.JobFailed, got.Status)
	assertEqual(t, "Error", "abandoned: no detector response", got.Error)
	if got.CompletedAt == nil {
		t.Error("abandoned job missing CompletedAt")
	}

	// the region is free for the next batch
	created, _, err := s.Create(ctx, testJob(uniqueID("job-next"), region, monitor.JobQueued, now), false)
	if err != nil {
		t.Fatalf("Create after sweep: %v", err)
	}
	if !created {
		t.Error("gate still held after the job was abandoned")
	}
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: got %v, want %v", field, got, want)
	}
}
