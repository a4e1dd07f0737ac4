package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
)

// Threshold bounds for change detection sensitivity.
const (
	MinThreshold = 0.1
	MaxThreshold = 1.0
)

// RegionService owns the lifecycle of monitored regions.
type RegionService struct {
	store  Store
	logger log.Logger
}

// NewRegionService constructs a RegionService. Panics if store is nil. A nil
// logger falls back to a no-op logger.
func NewRegionService(store Store, logger log.Logger) *RegionService {
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &RegionService{store: store, logger: logger}
}

// CreateRegionInput is the payload for registering a region.
type CreateRegionInput struct {
	OwnerID     string            `json:"owner"`
	Name        string            `json:"name"`
	Geometry    Geometry          `json:"geometry"`
	AlertType   AlertType         `json:"alertType"`
	Threshold   float64           `json:"threshold"`
	NotifyPrefs NotificationPrefs `json:"notificationPreferences"`
}

func (in *CreateRegionInput) validate() error {
	var fields []string
	if strings.TrimSpace(in.OwnerID) == "" {
		fields = append(fields, "owner")
	}
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, "name")
	}
	if err := in.Geometry.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			fields = append(fields, ve.Fields...)
		} else {
			fields = append(fields, "geometry")
		}
	}
	if !ValidAlertType(in.AlertType) {
		fields = append(fields, "alertType")
	}
	if in.Threshold < MinThreshold || in.Threshold > MaxThreshold {
		fields = append(fields, "threshold")
	}
	fields = append(fields, in.NotifyPrefs.missingDestinations()...)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Create validates the input, derives the region's area, and persists it with
// status active.
func (s *RegionService) Create(ctx context.Context, in *CreateRegionInput) (*Region, error) {
	if in == nil {
		return nil, &ValidationError{Fields: []string{"body"}}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	area, err := in.Geometry.AreaKm2()
	if err != nil {
		return nil, &ValidationError{Fields: []string{"geometry"}}
	}
	now := time.Now().UTC()
	r := &Region{
		ID:          ulid.Make().String(),
		OwnerID:     strings.TrimSpace(in.OwnerID),
		Name:        strings.TrimSpace(in.Name),
		Geometry:    in.Geometry,
		AreaKm2:     area,
		AlertType:   in.AlertType,
		Threshold:   in.Threshold,
		Status:      RegionActive,
		NotifyPrefs: in.NotifyPrefs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.PutRegion(ctx, r); err != nil {
		return nil, fmt.Errorf("store region: %w", err)
	}
	s.logger.Info(ctx, "region created",
		"region_id", r.ID,
		"owner", r.OwnerID,
		"alert_type", r.AlertType,
		"area_km2", r.AreaKm2,
	)
	return r, nil
}

// Get returns the owner's region or ErrNotFound. An existing region owned by
// someone else reads the same as a missing one.
func (s *RegionService) Get(ctx context.Context, id, owner string) (*Region, error) {
	if err := requireIDOwner(id, owner); err != nil {
		return nil, err
	}
	return regionForOwner(ctx, s.store, id, owner)
}

// List returns the owner's regions, newest first.
func (s *RegionService) List(ctx context.Context, owner string) ([]*Region, error) {
	if owner == "" {
		return nil, &ValidationError{Fields: []string{"owner"}}
	}
	rs, err := s.store.ListRegions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return rs, nil
}

// SetStatus moves the region between active, paused, and inactive. Pausing
// stamps PausedAt; reactivating clears it and stamps LastMonitored so the next
// batch treats the region as freshly looked at.
func (s *RegionService) SetStatus(ctx context.Context, id, owner string, status RegionStatus) (*Region, error) {
	if err := requireIDOwner(id, owner); err != nil {
		return nil, err
	}
	if !ValidRegionStatus(status) {
		return nil, &ValidationError{Fields: []string{"status"}}
	}
	r, err := regionForOwner(ctx, s.store, id, owner)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	switch status {
	case RegionPaused:
		r.PausedAt = &now
	case RegionActive:
		r.PausedAt = nil
		r.LastMonitored = &now
	}
	r.Status = status
	r.UpdatedAt = now
	if err := s.store.PutRegion(ctx, r); err != nil {
		return nil, fmt.Errorf("store region: %w", err)
	}
	s.logger.Info(ctx, "region status changed", "region_id", r.ID, "status", status)
	return r, nil
}

// Delete removes the owner's region and all of its alerts.
func (s *RegionService) Delete(ctx context.Context, id, owner string) error {
	if err := requireIDOwner(id, owner); err != nil {
		return err
	}
	if _, err := regionForOwner(ctx, s.store, id, owner); err != nil {
		return err
	}
	if err := s.store.DeleteRegion(ctx, id); err != nil {
		return fmt.Errorf("delete region: %w", err)
	}
	s.logger.Info(ctx, "region deleted", "region_id", id, "owner", owner)
	return nil
}

func requireIDOwner(id, owner string) error {
	var fields []string
	if id == "" {
		fields = append(fields, "id")
	}
	if owner == "" {
		fields = append(fields, "owner")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// regionForOwner loads a region scoped to its owner. Absent records and owner
// mismatches are indistinguishable.
func regionForOwner(ctx context.Context, store Store, id, owner string) (*Region, error) {
	r, ok, err := store.GetRegion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load region: %w", err)
	}
	if !ok || r.OwnerID != owner {
		return nil, ErrNotFound
	}
	return r, nil
}
