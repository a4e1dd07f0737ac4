package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Notifier hands newly created alerts to the notification pipeline. The
// orchestrator records per-channel flags from the hand-off outcome; actual
// delivery happens downstream.
type Notifier interface {
	Send(ctx context.Context, alert *Alert, region *Region) error
}

// Progress checkpoints reported on the job record.
const (
	progressQueued     = 0
	progressProcessing = 25
	progressDone       = 100
)

// DefaultDetectorTimeout bounds a detector call when no timeout is
// configured.
const DefaultDetectorTimeout = 2 * time.Minute

// TriggerConfig carries optional overrides for one detection run. The
// region's own alertType and threshold win; config values fill in only where
// the region has none. StartDate and EndDate select a custom imagery range.
type TriggerConfig struct {
	AlertType AlertType  `json:"alertType,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// TriggerResult reports the job backing a trigger request. Deduplicated is
// set when the region already had a job in flight and that job's id was
// returned instead of starting a new one.
type TriggerResult struct {
	JobID        string `json:"jobId"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// Orchestrator owns the detection job state machine: queued, processing, then
// complete or failed. Terminal states are absorbing.
type Orchestrator struct {
	store    Store
	jobs     JobStore
	detector Detector
	timeout  time.Duration
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewOrchestrator creates a new job orchestrator. Panics if store, jobs, or
// detector is nil. A nil notifier disables notification hand-off.
func NewOrchestrator(store Store, jobs JobStore, detector Detector, timeout time.Duration, logger log.Logger, metrics *Metrics, notifier Notifier) *Orchestrator {
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	if jobs == nil {
		panic(xerrors.New("job store is required"))
	}
	if detector == nil {
		panic(xerrors.New("detector is required"))
	}
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Orchestrator{
		store:    store,
		jobs:     jobs,
		detector: detector,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Trigger starts a detection run for the owner's region and returns without
// waiting for the detector. Unless forceScan is set, a region with a job
// already in flight gets that job's id back instead of a new run.
func (o *Orchestrator) Trigger(ctx context.Context, regionID, owner string, forceScan bool, cfg *TriggerConfig) (*TriggerResult, error) {
	if err := requireIDOwner(regionID, owner); err != nil {
		o.metrics.TriggersTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	region, err := regionForOwner(ctx, o.store, regionID, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			o.metrics.TriggersTotal.WithLabelValues("not_found").Inc()
		} else {
			o.metrics.TriggersTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        ulid.Make().String(),
		RegionID:  region.ID,
		OwnerID:   owner,
		Status:    JobQueued,
		Progress:  progressQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, inflightID, err := o.jobs.Create(ctx, job, forceScan)
	if err != nil {
		o.metrics.TriggersTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create job: %w", err)
	}
	if !created {
		o.metrics.TriggersTotal.WithLabelValues("deduplicated").Inc()
		return &TriggerResult{JobID: inflightID, Deduplicated: true}, nil
	}

	// mark processing up front - dispatch is fire-and-forget, there is no
	// detector handshake to wait for.
	job.Status = JobProcessing
	job.Progress = progressProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.Update(ctx, job); err != nil {
		o.metrics.TriggersTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("update job: %w", err)
	}

	req := buildDetectionRequest(region, cfg, now)
	// kick off the async run - pass only the job id to avoid sharing the
	// record pointer with the goroutine.
	go o.run(context.WithoutCancel(ctx), job.ID, region, req)

	o.metrics.TriggersTotal.WithLabelValues("accepted").Inc()
	return &TriggerResult{JobID: job.ID}, nil
}

// Status returns the current job projection for polling, or ErrNotFound when
// the id is unknown or the job has expired.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, &ValidationError{Fields: []string{"jobId"}}
	}
	job, ok, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// SweepJobs expires terminal jobs past their TTL and fails processing jobs
// nothing has touched within the staleness bound.
func (o *Orchestrator) SweepJobs(ctx context.Context) {
	expired, abandoned, err := o.jobs.Sweep(ctx, time.Now().UTC())
	if err != nil {
		o.logger.Error(ctx, err, "job sweep failed")
		return
	}
	if expired > 0 {
		o.metrics.JobsSwept.WithLabelValues("expired").Add(float64(expired))
	}
	if abandoned > 0 {
		o.metrics.JobsSwept.WithLabelValues("abandoned").Add(float64(abandoned))
		o.logger.Warn(ctx, "abandoned stale jobs", "count", abandoned)
	}
}

func buildDetectionRequest(region *Region, cfg *TriggerConfig, now time.Time) *DetectionRequest {
	alertType := region.AlertType
	threshold := region.Threshold
	var start, end *time.Time
	if cfg != nil {
		if alertType == "" {
			alertType = cfg.AlertType
		}
		if threshold == 0 {
			threshold = cfg.Threshold
		}
		start, end = cfg.StartDate, cfg.EndDate
	}
	return &DetectionRequest{
		RegionID:  region.ID,
		OwnerID:   region.OwnerID,
		Geometry:  region.Geometry,
		AlertType: alertType,
		Threshold: threshold,
		Range:     DetectionRange(now, start, end),
	}
}

func (o *Orchestrator) run(ctx context.Context, jobID string, region *Region, req *DetectionRequest) {
	L := o.logger.With("job_id", jobID, "region_id", region.ID, "alert_type", req.AlertType)
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	res, err := o.detector.Detect(dctx, req)
	o.metrics.DetectorDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			msg = fmt.Sprintf("detector timed out after %s", o.timeout)
		}
		o.metrics.DetectorCalls.WithLabelValues(outcome).Inc()
		o.failJob(ctx, jobID, msg, start, L)
		return
	}
	o.metrics.DetectorCalls.WithLabelValues("ok").Inc()

	// the alert must be durable before the job reads complete
	al := buildAlert(region, req, res, time.Now().UTC())
	if err := o.store.PutAlert(ctx, al); err != nil {
		o.failJob(ctx, jobID, fmt.Sprintf("record alert: %s", err), start, L)
		return
	}

	job, ok, err := o.jobs.Get(ctx, jobID)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch job for completion")
		return
	}
	now := time.Now().UTC()
	job.Status = JobComplete
	job.Progress = progressDone
	job.AlertID = al.ID
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := o.jobs.Update(ctx, job); err != nil {
		L.Error(ctx, err, "failed to mark job complete")
	}

	o.metrics.JobsTotal.WithLabelValues(string(JobComplete)).Inc()
	o.metrics.JobDuration.WithLabelValues(string(JobComplete)).Observe(time.Since(start).Seconds())
	o.metrics.AlertsTotal.WithLabelValues(string(al.Type), string(al.Severity)).Inc()

	o.notify(ctx, al, region, L)

	L.Info(ctx, "detection complete",
		"alert_id", al.ID,
		"severity", al.Severity,
		"detected_change", res.DetectedChange,
		"duration", time.Since(start).Seconds(),
	)
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, msg string, start time.Time, L log.Logger) {
	job, ok, err := o.jobs.Get(ctx, jobID)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch job for failure")
		return
	}
	now := time.Now().UTC()
	job.Status = JobFailed
	job.Error = msg
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := o.jobs.Update(ctx, job); err != nil {
		L.Error(ctx, err, "failed to mark job failed")
	}
	o.metrics.JobsTotal.WithLabelValues(string(JobFailed)).Inc()
	o.metrics.JobDuration.WithLabelValues(string(JobFailed)).Observe(time.Since(start).Seconds())
	L.Warn(ctx, "detection failed", "error", msg)
}

// buildAlert turns a detector result into a new alert, falling back to
// derived values where the detector left fields empty.
func buildAlert(region *Region, req *DetectionRequest, res *DetectionResult, now time.Time) *Alert {
	alertType := res.Type
	if alertType == "" {
		alertType = req.AlertType
	}
	severity := res.Severity
	if severity == "" && res.Change != nil {
		severity = SeverityForPercent(res.Change.Percentage)
	}
	if severity == "" {
		severity = SeverityLow
	}
	description := res.Description
	if description == "" && res.Change != nil {
		description = ChangeDescription(alertType, res.Change.Percentage)
	}
	area := res.AOIAreaKm2
	if area == 0 {
		area = region.AreaKm2
	}
	return &Alert{
		ID:               ulid.Make().String(),
		RegionID:         region.ID,
		OwnerID:          region.OwnerID,
		Type:             alertType,
		Severity:         severity,
		Confidence:       res.Confidence,
		Description:      description,
		Change:           res.Change,
		AOIAreaKm2:       area,
		DateRange:        req.Range,
		SatelliteSource:  res.SatelliteSource,
		AlgorithmVersion: res.AlgorithmVersion,
		ProcessingTime:   res.ProcessingTime,
		Status:           AlertNew,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (o *Orchestrator) notify(ctx context.Context, al *Alert, region *Region, L log.Logger) {
	if o.notifier == nil || !region.NotifyPrefs.Enabled() {
		return
	}
	err := o.notifier.Send(ctx, al, region)
	if err != nil {
		L.Error(ctx, err, "alert notification hand-off failed", "alert_id", al.ID)
	}
	now := time.Now().UTC()
	mark := func(n *ChannelNotice, enabled bool) {
		if !enabled {
			return
		}
		if err != nil {
			n.Error = err.Error()
			return
		}
		n.Sent = true
		n.SentAt = &now
	}
	mark(&al.Notifications.Email, region.NotifyPrefs.Email != nil)
	mark(&al.Notifications.SMS, region.NotifyPrefs.SMS != nil)
	mark(&al.Notifications.PhoneCall, region.NotifyPrefs.PhoneCall != nil)
	mark(&al.Notifications.Telegram, region.NotifyPrefs.Telegram != nil)
	al.UpdatedAt = now
	if perr := o.store.PutAlert(ctx, al); perr != nil {
		L.Error(ctx, perr, "failed to record notification flags", "alert_id", al.ID)
	}
}
