// Package memstore provides an in-memory implementation of monitor.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

// Store holds regions and alerts in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	regions map[string]*monitor.Region // region ID -> region
	alerts  map[string]*monitor.Alert  // alert ID -> alert
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		regions: make(map[string]*monitor.Region),
		alerts:  make(map[string]*monitor.Alert),
	}
}

// PutRegion stores a copy of the region.
func (s *Store) PutRegion(_ context.Context, r *monitor.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.regions[r.ID] = &cp
	return nil
}

// GetRegion retrieves a region by its ID. Returns a copy.
func (s *Store) GetRegion(_ context.Context, id string) (*monitor.Region, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// ListRegions returns copies of the owner's regions, newest-created first.
func (s *Store) ListRegions(_ context.Context, owner string) ([]*monitor.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*monitor.Region{}
	for _, r := range s.regions {
		if r.OwnerID != owner {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortRegionsNewest(out)
	return out, nil
}

// ListRegionsByStatus returns copies of all regions in any of the given
// statuses, newest-created first.
func (s *Store) ListRegionsByStatus(_ context.Context, statuses ...monitor.RegionStatus) ([]*monitor.Region, error) {
	want := make(map[monitor.RegionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*monitor.Region{}
	for _, r := range s.regions {
		if !want[r.Status] {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortRegionsNewest(out)
	return out, nil
}

// TouchLastMonitored stamps LastMonitored and UpdatedAt for the given region
// ids in one pass. Unknown ids are skipped.
func (s *Store) TouchLastMonitored(_ context.Context, ids []string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		r, ok := s.regions[id]
		if !ok {
			continue
		}
		t := ts
		r.LastMonitored = &t
		r.UpdatedAt = ts
	}
	return nil
}

// DeleteRegion removes the region and all of its alerts.
func (s *Store) DeleteRegion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regions, id)
	for aid, a := range s.alerts {
		if a.RegionID == id {
			delete(s.alerts, aid)
		}
	}
	return nil
}

// PutAlert stores a copy of the alert.
func (s *Store) PutAlert(_ context.Context, a *monitor.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

// GetAlert retrieves an alert by its ID. Returns a copy.
func (s *Store) GetAlert(_ context.Context, id string) (*monitor.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// ListAlerts returns copies of the alerts matching the query, newest-created
// first.
func (s *Store) ListAlerts(_ context.Context, q monitor.AlertQuery) ([]*monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*monitor.Alert{}
	for _, a := range s.alerts {
		if !matches(a, q) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(a *monitor.Alert, q monitor.AlertQuery) bool {
	if a.OwnerID != q.Owner {
		return false
	}
	if q.RegionID != "" && a.RegionID != q.RegionID {
		return false
	}
	if q.Type != "" && a.Type != q.Type {
		return false
	}
	if q.Severity != "" && a.Severity != q.Severity {
		return false
	}
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if !q.Since.IsZero() && a.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}

func sortRegionsNewest(rs []*monitor.Region) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}
