package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/prometheus/client_golang/prometheus"
)

// BatchJob pairs a scheduled region with the job created for it.
type BatchJob struct {
	RegionID string `json:"regionId"`
	JobID    string `json:"jobId"`
}

// BatchResult summarizes one scheduler run.
type BatchResult struct {
	ScheduledCount  int        `json:"scheduledCount"`
	SkippedCount    int        `json:"skippedCount"`
	Jobs            []BatchJob `json:"jobs"`
	DurationSeconds float64    `json:"durationSeconds"`
}

// Scheduler enumerates eligible regions and starts detection jobs for them.
type Scheduler struct {
	store   Store
	orch    *Orchestrator
	logger  log.Logger
	metrics *Metrics
}

// NewScheduler creates a new scheduler. Panics if store or orch is nil.
func NewScheduler(store Store, orch *Orchestrator, logger log.Logger, metrics *Metrics) *Scheduler {
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	if orch == nil {
		panic(xerrors.New("orchestrator is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Scheduler{store: store, orch: orch, logger: logger, metrics: metrics}
}

// RunBatch triggers a detection job for every active region (plus paused ones
// when includeAll is set; inactive regions are never considered). Regions
// with a job already in flight are skipped. LastMonitored is stamped for the
// scheduled regions in one bulk write.
func (s *Scheduler) RunBatch(ctx context.Context, includeAll bool) (*BatchResult, error) {
	start := time.Now()
	statuses := []RegionStatus{RegionActive}
	if includeAll {
		statuses = append(statuses, RegionPaused)
	}
	regions, err := s.store.ListRegionsByStatus(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}

	res := &BatchResult{Jobs: []BatchJob{}}
	var scheduled []string
	for _, r := range regions {
		tr, err := s.orch.Trigger(ctx, r.ID, r.OwnerID, false, nil)
		if err != nil {
			// region may have been deleted mid-batch; keep going
			s.logger.Warn(ctx, "batch trigger failed", "region_id", r.ID, "error", err.Error())
			res.SkippedCount++
			continue
		}
		if tr.Deduplicated {
			res.SkippedCount++
			continue
		}
		res.Jobs = append(res.Jobs, BatchJob{RegionID: r.ID, JobID: tr.JobID})
		scheduled = append(scheduled, r.ID)
	}
	res.ScheduledCount = len(scheduled)

	if len(scheduled) > 0 {
		if err := s.store.TouchLastMonitored(ctx, scheduled, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("stamp last monitored: %w", err)
		}
	}
	res.DurationSeconds = time.Since(start).Seconds()

	s.metrics.BatchesTotal.Inc()
	s.metrics.BatchScheduled.Observe(float64(res.ScheduledCount))
	s.metrics.BatchDuration.Observe(res.DurationSeconds)
	s.logger.Info(ctx, "batch run complete",
		"scheduled", res.ScheduledCount,
		"skipped", res.SkippedCount,
		"include_all", includeAll,
		"duration", res.DurationSeconds,
	)
	return res, nil
}

// Run executes RunBatch every interval and sweeps the job store between
// batches, until ctx is cancelled. Intended to run as a goroutine from main.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.logger.Info(ctx, "monitor loop started", "interval", interval.String())
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "monitor loop stopped")
			return
		case <-t.C:
			if _, err := s.RunBatch(ctx, false); err != nil {
				s.logger.Error(ctx, err, "scheduled batch run failed")
			}
			s.orch.SweepJobs(ctx)
		}
	}
}
