package monitor

import (
	"context"
	"time"
)

// AlertQuery filters ListAlerts. Owner is required; zero-valued fields are
// ignored. Results are newest-created first.
type AlertQuery struct {
	Owner    string
	RegionID string
	Type     AlertType
	Severity Severity
	Status   AlertStatus
	Since    time.Time
	Limit    int
}

// Store persists regions and alerts. Implementations must be safe for
// concurrent use and must not retain or mutate records passed in or handed
// out.
type Store interface {
	// PutRegion inserts or replaces a region by ID.
	PutRegion(ctx context.Context, r *Region) error
	// GetRegion returns the region and true, or false when absent.
	GetRegion(ctx context.Context, id string) (*Region, bool, error)
	// ListRegions returns the owner's regions, newest-created first.
	ListRegions(ctx context.Context, owner string) ([]*Region, error)
	// ListRegionsByStatus returns all regions in any of the given statuses,
	// newest-created first.
	ListRegionsByStatus(ctx context.Context, statuses ...RegionStatus) ([]*Region, error)
	// TouchLastMonitored stamps LastMonitored for all given region ids in one
	// call.
	TouchLastMonitored(ctx context.Context, ids []string, ts time.Time) error
	// DeleteRegion removes the region and all of its alerts.
	DeleteRegion(ctx context.Context, id string) error

	// PutAlert inserts or replaces an alert by ID.
	PutAlert(ctx context.Context, a *Alert) error
	// GetAlert returns the alert and true, or false when absent.
	GetAlert(ctx context.Context, id string) (*Alert, bool, error)
	// ListAlerts returns alerts matching the query, newest-created first.
	ListAlerts(ctx context.Context, q AlertQuery) ([]*Alert, error)
}

// JobStore holds ephemeral detection jobs. Terminal jobs expire after the
// store's TTL; expired jobs read as absent.
type JobStore interface {
	// Create inserts the job unless the region already has a job in a
	// non-terminal status. When blocked it reports created=false and the
	// in-flight job's id. bypass skips the gate and always inserts. The gate
	// check and the insert happen in one atomic step.
	Create(ctx context.Context, j *Job, bypass bool) (created bool, inflightID string, err error)
	// Get returns the job and true, or false when unknown or expired.
	Get(ctx context.Context, id string) (*Job, bool, error)
	// Update replaces the job record. Stores reject transitions that move the
	// status backwards or replace one terminal status with another.
	Update(ctx context.Context, j *Job) error
	// Sweep expires terminal jobs past their TTL and fails processing jobs
	// that have not been updated within the store's staleness bound. It
	// returns the number of jobs expired and abandoned.
	Sweep(ctx context.Context, now time.Time) (expired, abandoned int, err error)
}
