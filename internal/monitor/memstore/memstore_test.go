package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
	"github.com/linnemanlabs/terrawatch/internal/monitor/memstore"
)

func mkRegion(id, owner string, status monitor.RegionStatus, createdAt time.Time) *monitor.Region {
	return &monitor.Region{
		ID:      id,
		OwnerID: owner,
		Name:    "Region " + id,
		Geometry: monitor.Geometry{
			Type:   monitor.GeometryCircle,
			Center: []float64{-122.4, 37.7},
			Radius: 1000,
		},
		AreaKm2:   3.14,
		AlertType: monitor.ChangeDeforestation,
		Threshold: 0.5,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func mkAlert(id, owner, regionID string, typ monitor.AlertType, sev monitor.Severity,
	status monitor.AlertStatus, createdAt time.Time) *monitor.Alert {
	return &monitor.Alert{
		ID:        id,
		RegionID:  regionID,
		OwnerID:   owner,
		Type:      typ,
		Severity:  sev,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRegionRoundTrip(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	now := time.Now().UTC()

	r := mkRegion("r1", "u1", monitor.RegionActive, now)
	if err := s.PutRegion(ctx, r); err != nil {
		t.Fatalf("PutRegion: %v", err)
	}

	// the store holds a copy, not the caller's pointer
	r.Name = "mutated after put"

	got, ok, err := s.GetRegion(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("GetRegion: ok=%v err=%v", ok, err)
	}
	if got.Name != "Region r1" {
		t.Errorf("Name = %q, caller mutation leaked into the store", got.Name)
	}

	// and hands back a copy too
	got.Status = monitor.RegionInactive
	again, _, _ := s.GetRegion(ctx, "r1")
	if again.Status != monitor.RegionActive {
		t.Errorf("Status = %q, reader mutation leaked into the store", again.Status)
	}
}

func TestGetRegion_Missing(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	got, ok, err := s.GetRegion(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if ok || got != nil {
		t.Errorf("GetRegion(missing) = %v, %v; want nil, false", got, ok)
	}
}

func TestListRegions(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for _, r := range []*monitor.Region{
		mkRegion("r1", "u1", monitor.RegionActive, base),
		mkRegion("r2", "u1", monitor.RegionActive, base.Add(time.Minute)),
		mkRegion("r3", "u1", monitor.RegionPaused, base.Add(2*time.Minute)),
		mkRegion("r4", "u2", monitor.RegionActive, base.Add(3*time.Minute)),
	} {
		if err := s.PutRegion(ctx, r); err != nil {
			t.Fatalf("PutRegion(%s): %v", r.ID, err)
		}
	}

	got, err := s.ListRegions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRegions: %v", err)
	}
	wantIDs := []string{"r3", "r2", "r1"}
	if len(got) != len(wantIDs) {
		t.Fatalf("len = %d, want %d", len(got), len(wantIDs))
	}
	for i, r := range got {
		if r.ID != wantIDs[i] {
			t.Errorf("got[%d].ID = %s, want %s", i, r.ID, wantIDs[i])
		}
	}

	empty, err := s.ListRegions(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListRegions(nobody): %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListRegions(nobody) = %v, want empty non-nil slice", empty)
	}
}

func TestListRegions_TieBreaksOnID(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	ts := time.Now().UTC()

	for _, id := range []string{"ra", "rc", "rb"} {
		if err := s.PutRegion(ctx, mkRegion(id, "u1", monitor.RegionActive, ts)); err != nil {
			t.Fatalf("PutRegion(%s): %v", id, err)
		}
	}
	got, err := s.ListRegions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRegions: %v", err)
	}
	wantIDs := []string{"rc", "rb", "ra"}
	for i, r := range got {
		if r.ID != wantIDs[i] {
			t.Errorf("got[%d].ID = %s, want %s", i, r.ID, wantIDs[i])
		}
	}
}

func TestListRegionsByStatus(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for _, r := range []*monitor.Region{
		mkRegion("r1", "u1", monitor.RegionActive, base),
		mkRegion("r2", "u2", monitor.RegionPaused, base.Add(time.Minute)),
		mkRegion("r3", "u3", monitor.RegionInactive, base.Add(2*time.Minute)),
	} {
		if err := s.PutRegion(ctx, r); err != nil {
			t.Fatalf("PutRegion(%s): %v", r.ID, err)
		}
	}

	active, err := s.ListRegionsByStatus(ctx, monitor.RegionActive)
	if err != nil {
		t.Fatalf("ListRegionsByStatus: %v", err)
	}
	if len(active) != 1 || active[0].ID != "r1" {
		t.Errorf("active = %v, want [r1]", regionIDs(active))
	}

	both, err := s.ListRegionsByStatus(ctx, monitor.RegionActive, monitor.RegionPaused)
	if err != nil {
		t.Fatalf("ListRegionsByStatus: %v", err)
	}
	if len(both) != 2 || both[0].ID != "r2" || both[1].ID != "r1" {
		t.Errorf("active+paused = %v, want [r2 r1]", regionIDs(both))
	}
}

func TestTouchLastMonitored(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := s.PutRegion(ctx, mkRegion(id, "u1", monitor.RegionActive, created)); err != nil {
			t.Fatalf("PutRegion(%s): %v", id, err)
		}
	}

	stamp := time.Now().UTC()
	if err := s.TouchLastMonitored(ctx, []string{"r1", "r3", "ghost"}, stamp); err != nil {
		t.Fatalf("TouchLastMonitored: %v", err)
	}

	for _, id := range []string{"r1", "r3"} {
		r, _, _ := s.GetRegion(ctx, id)
		if r.LastMonitored == nil || !r.LastMonitored.Equal(stamp) {
			t.Errorf("%s.LastMonitored = %v, want %v", id, r.LastMonitored, stamp)
		}
		if !r.UpdatedAt.Equal(stamp) {
			t.Errorf("%s.UpdatedAt = %v, want %v", id, r.UpdatedAt, stamp)
		}
	}

	r2, _, _ := s.GetRegion(ctx, "r2")
	if r2.LastMonitored != nil {
		t.Errorf("r2.LastMonitored = %v, want nil (not in batch)", r2.LastMonitored)
	}
}

func TestDeleteRegion_CascadesAlerts(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.PutRegion(ctx, mkRegion("r1", "u1", monitor.RegionActive, now)); err != nil {
		t.Fatalf("PutRegion: %v", err)
	}
	for _, a := range []*monitor.Alert{
		mkAlert("a1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityLow, monitor.AlertNew, now),
		mkAlert("a2", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityLow, monitor.AlertNew, now),
		mkAlert("a3", "u1", "r2", monitor.ChangeDeforestation, monitor.SeverityLow, monitor.AlertNew, now),
	} {
		if err := s.PutAlert(ctx, a); err != nil {
			t.Fatalf("PutAlert(%s): %v", a.ID, err)
		}
	}

	if err := s.DeleteRegion(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRegion: %v", err)
	}

	if _, ok, _ := s.GetRegion(ctx, "r1"); ok {
		t.Error("region survived delete")
	}
	for _, id := range []string{"a1", "a2"} {
		if _, ok, _ := s.GetAlert(ctx, id); ok {
			t.Errorf("alert %s survived the cascade", id)
		}
	}
	if _, ok, _ := s.GetAlert(ctx, "a3"); !ok {
		t.Error("alert a3 on another region was swept up by the cascade")
	}

	// deleting an absent region is a no-op at this layer
	if err := s.DeleteRegion(ctx, "ghost"); err != nil {
		t.Errorf("DeleteRegion(ghost) = %v, want nil", err)
	}
}

func TestAlertRoundTrip(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	now := time.Now().UTC()

	a := mkAlert("a1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityHigh, monitor.AlertNew, now)
	if err := s.PutAlert(ctx, a); err != nil {
		t.Fatalf("PutAlert: %v", err)
	}
	a.Status = monitor.AlertResolved

	got, ok, err := s.GetAlert(ctx, "a1")
	if err != nil || !ok {
		t.Fatalf("GetAlert: ok=%v err=%v", ok, err)
	}
	if got.Status != monitor.AlertNew {
		t.Errorf("Status = %q, caller mutation leaked into the store", got.Status)
	}

	if _, ok, _ := s.GetAlert(ctx, "missing"); ok {
		t.Error("GetAlert(missing) reported ok")
	}
}

func TestListAlerts_Filters(t *testing.T) {
	t.Parallel()

	s := memstore.New()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for _, a := range []*monitor.Alert{
		mkAlert("a1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityHigh, monitor.AlertNew, base),
		mkAlert("a2", "u1", "r1", monitor.ChangeUrbanDev, monitor.SeverityLow, monitor.AlertViewed, base.Add(time.Minute)),
		mkAlert("a3", "u1", "r2", monitor.ChangeDeforestation, monitor.SeverityMedium, monitor.AlertNew, base.Add(2*time.Minute)),
		mkAlert("a4", "u2", "r9", monitor.ChangeDeforestation, monitor.SeverityHigh, monitor.AlertNew, base.Add(3*time.Minute)),
	} {
		if err := s.PutAlert(ctx, a); err != nil {
			t.Fatalf("PutAlert(%s): %v", a.ID, err)
		}
	}

	tests := []struct {
		name    string
		query   monitor.AlertQuery
		wantIDs []string
	}{
		{"owner scope newest first", monitor.AlertQuery{Owner: "u1"}, []string{"a3", "a2", "a1"}},
		{"region", monitor.AlertQuery{Owner: "u1", RegionID: "r1"}, []string{"a2", "a1"}},
		{"type", monitor.AlertQuery{Owner: "u1", Type: monitor.ChangeUrbanDev}, []string{"a2"}},
		{"severity", monitor.AlertQuery{Owner: "u1", Severity: monitor.SeverityHigh}, []string{"a1"}},
		{"status", monitor.AlertQuery{Owner: "u1", Status: monitor.AlertViewed}, []string{"a2"}},
		{"since is inclusive", monitor.AlertQuery{Owner: "u1", Since: base.Add(time.Minute)}, []string{"a3", "a2"}},
		{"limit", monitor.AlertQuery{Owner: "u1", Limit: 2}, []string{"a3", "a2"}},
		{"no owner match", monitor.AlertQuery{Owner: "u3"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListAlerts(ctx, tt.query)
			if err != nil {
				t.Fatalf("ListAlerts: %v", err)
			}
			if got == nil {
				t.Fatal("ListAlerts returned nil slice")
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.wantIDs), alertIDs(got))
			}
			for i, a := range got {
				if a.ID != tt.wantIDs[i] {
					t.Errorf("got[%d].ID = %s, want %s", i, a.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func regionIDs(rs []*monitor.Region) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func alertIDs(as []*monitor.Alert) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
