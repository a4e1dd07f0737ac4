package monitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
	"github.com/linnemanlabs/terrawatch/internal/monitor/memstore"
)

func newAlertLogFixture(t *testing.T) (*monitor.AlertLog, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return monitor.NewAlertLog(store, nil), store
}

func TestNewAlertLog_NilStorePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("NewAlertLog(nil) did not panic")
		}
	}()
	monitor.NewAlertLog(nil, nil)
}

func TestAlertLogQuery(t *testing.T) {
	t.Parallel()

	log, store := newAlertLogFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	putAlert(t, store, "al-1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityHigh, 0.9, monitor.AlertNew, base)
	putAlert(t, store, "al-2", "u1", "r1", monitor.ChangeUrbanDev, monitor.SeverityLow, 0.4, monitor.AlertViewed, base.Add(time.Minute))
	putAlert(t, store, "al-3", "u1", "r2", monitor.ChangeDeforestation, monitor.SeverityMedium, 0.6, monitor.AlertNew, base.Add(2*time.Minute))
	putAlert(t, store, "al-4", "u2", "r9", monitor.ChangeDeforestation, monitor.SeverityHigh, 0.9, monitor.AlertNew, base.Add(3*time.Minute))

	tests := []struct {
		name    string
		query   monitor.AlertQuery
		wantIDs []string
	}{
		{
			name:    "all for owner newest first",
			query:   monitor.AlertQuery{Owner: "u1"},
			wantIDs: []string{"al-3", "al-2", "al-1"},
		},
		{
			name:    "region filter",
			query:   monitor.AlertQuery{Owner: "u1", RegionID: "r1"},
			wantIDs: []string{"al-2", "al-1"},
		},
		{
			name:    "type filter",
			query:   monitor.AlertQuery{Owner: "u1", Type: monitor.ChangeUrbanDev},
			wantIDs: []string{"al-2"},
		},
		{
			name:    "severity filter",
			query:   monitor.AlertQuery{Owner: "u1", Severity: monitor.SeverityMedium},
			wantIDs: []string{"al-3"},
		},
		{
			name:    "status filter",
			query:   monitor.AlertQuery{Owner: "u1", Status: monitor.AlertViewed},
			wantIDs: []string{"al-2"},
		},
		{
			name:    "since excludes older",
			query:   monitor.AlertQuery{Owner: "u1", Since: base.Add(90 * time.Second)},
			wantIDs: []string{"al-3"},
		},
		{
			name:    "limit truncates",
			query:   monitor.AlertQuery{Owner: "u1", Limit: 2},
			wantIDs: []string{"al-3", "al-2"},
		},
		{
			name:    "foreign region yields empty",
			query:   monitor.AlertQuery{Owner: "u1", RegionID: "r9"},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := log.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, al := range got {
				assertEqual(t, "id", tt.wantIDs[i], al.ID)
			}
		})
	}
}

func TestAlertLogQuery_Validation(t *testing.T) {
	t.Parallel()

	log, _ := newAlertLogFixture(t)
	ctx := context.Background()

	if _, err := log.Query(ctx, monitor.AlertQuery{}); !monitor.IsValidation(err) {
		t.Errorf("Query without owner = %v, want validation error", err)
	}
	if _, err := log.Query(ctx, monitor.AlertQuery{Owner: "u1", Type: "earthquake"}); !monitor.IsValidation(err) {
		t.Errorf("Query with bogus type = %v, want validation error", err)
	}
}

func TestAlertLogReview(t *testing.T) {
	t.Parallel()

	log, store := newAlertLogFixture(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)
	putAlert(t, store, "al-1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityHigh, 0.9, monitor.AlertNew, created)

	got, err := log.Review(ctx, "al-1", "u1", monitor.AlertViewed, "")
	if err != nil {
		t.Fatalf("Review(viewed): %v", err)
	}
	assertEqual(t, "Status", monitor.AlertViewed, got.Status)
	if got.ResolvedAt != nil {
		t.Error("viewed stamped ResolvedAt")
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt not advanced: %v", got.UpdatedAt)
	}

	got, err = log.Review(ctx, "al-1", "u1", monitor.AlertResolved, "analyst-7")
	if err != nil {
		t.Fatalf("Review(resolved): %v", err)
	}
	assertEqual(t, "Status", monitor.AlertResolved, got.Status)
	assertEqual(t, "ResolvedBy", "analyst-7", got.ResolvedBy)
	if got.ResolvedAt == nil {
		t.Fatal("resolved without ResolvedAt")
	}

	stored, ok, err := store.GetAlert(ctx, "al-1")
	if err != nil || !ok {
		t.Fatalf("GetAlert after review: ok=%v err=%v", ok, err)
	}
	assertEqual(t, "stored.Status", monitor.AlertResolved, stored.Status)
	assertEqual(t, "stored.ResolvedBy", "analyst-7", stored.ResolvedBy)
}

func TestAlertLogReview_FalsePositive(t *testing.T) {
	t.Parallel()

	log, store := newAlertLogFixture(t)
	ctx := context.Background()
	putAlert(t, store, "al-1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityHigh, 0.9, monitor.AlertNew,
		time.Now().UTC().Add(-time.Hour))

	got, err := log.Review(ctx, "al-1", "u1", monitor.AlertFalsePositive, "analyst-2")
	if err != nil {
		t.Fatalf("Review(false_positive): %v", err)
	}
	assertEqual(t, "Status", monitor.AlertFalsePositive, got.Status)
	assertEqual(t, "ResolvedBy", "analyst-2", got.ResolvedBy)
	if got.ResolvedAt == nil {
		t.Fatal("false_positive without ResolvedAt")
	}
}

func TestAlertLogReview_Errors(t *testing.T) {
	t.Parallel()

	log, store := newAlertLogFixture(t)
	ctx := context.Background()
	putAlert(t, store, "al-1", "u1", "r1", monitor.ChangeDeforestation, monitor.SeverityHigh, 0.9, monitor.AlertNew,
		time.Now().UTC().Add(-time.Hour))

	if _, err := log.Review(ctx, "", "u1", monitor.AlertViewed, ""); !monitor.IsValidation(err) {
		t.Errorf("empty id = %v, want validation error", err)
	}
	if _, err := log.Review(ctx, "al-1", "", monitor.AlertViewed, ""); !monitor.IsValidation(err) {
		t.Errorf("empty owner = %v, want validation error", err)
	}
	// an alert can never be reviewed back to new
	if _, err := log.Review(ctx, "al-1", "u1", monitor.AlertNew, ""); !monitor.IsValidation(err) {
		t.Errorf("status new = %v, want validation error", err)
	}
	if _, err := log.Review(ctx, "al-1", "u1", "escalated", ""); !monitor.IsValidation(err) {
		t.Errorf("bogus status = %v, want validation error", err)
	}
	if _, err := log.Review(ctx, "al-1", "u2", monitor.AlertViewed, ""); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("foreign owner = %v, want ErrNotFound", err)
	}
	if _, err := log.Review(ctx, "missing", "u1", monitor.AlertViewed, ""); !errors.Is(err, monitor.ErrNotFound) {
		t.Errorf("unknown alert = %v, want ErrNotFound", err)
	}
}
