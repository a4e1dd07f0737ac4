// Package pgstore provides a PostgreSQL implementation of monitor.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

var tracer = otel.Tracer("github.com/linnemanlabs/terrawatch/internal/monitor/pgstore")

//go:embed schema.sql
var schema string

// Store persists regions and alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const regionColumns = `id, owner_id, name, geometry, area_km2, alert_type, threshold, status,
	notify_prefs, created_at, updated_at, paused_at, last_monitored`

const alertColumns = `id, region_id, owner_id, alert_type, severity, confidence, description,
	change_details, aoi_area_km2, date_range, satellite_source, algorithm_version,
	processing_time_s, status, notifications, created_at, updated_at, resolved_at, resolved_by`

// PutRegion inserts or updates a region.
func (s *Store) PutRegion(ctx context.Context, r *monitor.Region) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutRegion", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	geometryJSON, err := json.Marshal(r.Geometry)
	if err != nil {
		return fmt.Errorf("marshal geometry: %w", err)
	}
	prefsJSON, err := json.Marshal(r.NotifyPrefs)
	if err != nil {
		return fmt.Errorf("marshal notify prefs: %w", err)
	}

	query := `INSERT INTO regions (
		id, owner_id, name, geometry, area_km2, alert_type, threshold, status,
		notify_prefs, created_at, updated_at, paused_at, last_monitored
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (id) DO UPDATE SET
		owner_id       = EXCLUDED.owner_id,
		name           = EXCLUDED.name,
		geometry       = EXCLUDED.geometry,
		area_km2       = EXCLUDED.area_km2,
		alert_type     = EXCLUDED.alert_type,
		threshold      = EXCLUDED.threshold,
		status         = EXCLUDED.status,
		notify_prefs   = EXCLUDED.notify_prefs,
		updated_at     = EXCLUDED.updated_at,
		paused_at      = EXCLUDED.paused_at,
		last_monitored = EXCLUDED.last_monitored`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.OwnerID, r.Name, geometryJSON, r.AreaKm2, string(r.AlertType), r.Threshold,
		string(r.Status), prefsJSON, r.CreatedAt, r.UpdatedAt, r.PausedAt, r.LastMonitored,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert region: %w", err)
	}
	return nil
}

// GetRegion retrieves a region by ID.
func (s *Store) GetRegion(ctx context.Context, id string) (*monitor.Region, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetRegion", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + regionColumns + ` FROM regions WHERE id = $1`
	r, err := scanRegionRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// ListRegions returns the owner's regions, newest-created first.
func (s *Store) ListRegions(ctx context.Context, owner string) ([]*monitor.Region, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListRegions", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + regionColumns + ` FROM regions WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()
	return collectRegions(rows, span)
}

// ListRegionsByStatus returns all regions in any of the given statuses,
// newest-created first.
func (s *Store) ListRegionsByStatus(ctx context.Context, statuses ...monitor.RegionStatus) ([]*monitor.Region, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListRegionsByStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	query := `SELECT ` + regionColumns + ` FROM regions WHERE status = ANY($1) ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, vals)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query regions by status: %w", err)
	}
	defer rows.Close()
	return collectRegions(rows, span)
}

// TouchLastMonitored stamps LastMonitored and UpdatedAt for the given region
// ids in one statement.
func (s *Store) TouchLastMonitored(ctx context.Context, ids []string, ts time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "pgstore.TouchLastMonitored", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`UPDATE regions SET last_monitored = $1, updated_at = $1 WHERE id = ANY($2)`,
		ts, ids,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("touch last monitored: %w", err)
	}
	return nil
}

// DeleteRegion removes the region; its alerts go with it via the cascading
// foreign key.
func (s *Store) DeleteRegion(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "pgstore.DeleteRegion", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM regions WHERE id = $1`, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete region: %w", err)
	}
	return nil
}

// PutAlert inserts or updates an alert.
func (s *Store) PutAlert(ctx context.Context, a *monitor.Alert) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var changeJSON []byte
	if a.Change != nil {
		var err error
		changeJSON, err = json.Marshal(a.Change)
		if err != nil {
			return fmt.Errorf("marshal change details: %w", err)
		}
	}
	rangeJSON, err := json.Marshal(a.DateRange)
	if err != nil {
		return fmt.Errorf("marshal date range: %w", err)
	}
	notifJSON, err := json.Marshal(a.Notifications)
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}

	query := `INSERT INTO alerts (
		id, region_id, owner_id, alert_type, severity, confidence, description,
		change_details, aoi_area_km2, date_range, satellite_source, algorithm_version,
		processing_time_s, status, notifications, created_at, updated_at, resolved_at, resolved_by
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	ON CONFLICT (id) DO UPDATE SET
		status        = EXCLUDED.status,
		notifications = EXCLUDED.notifications,
		updated_at    = EXCLUDED.updated_at,
		resolved_at   = EXCLUDED.resolved_at,
		resolved_by   = EXCLUDED.resolved_by`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.RegionID, a.OwnerID, string(a.Type), string(a.Severity), a.Confidence,
		a.Description, changeJSON, a.AOIAreaKm2, rangeJSON, a.SatelliteSource,
		a.AlgorithmVersion, a.ProcessingTime, string(a.Status), notifJSON,
		a.CreatedAt, a.UpdatedAt, a.ResolvedAt, a.ResolvedBy,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*monitor.Alert, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlertRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if a == nil {
		return nil, false, nil
	}
	return a, true, nil
}

// ListAlerts returns alerts matching the query, newest-created first.
func (s *Store) ListAlerts(ctx context.Context, q monitor.AlertQuery) ([]*monitor.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListAlerts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	where := []string{"owner_id = $1"}
	args := []any{q.Owner}
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.RegionID != "" {
		add("region_id = $%d", q.RegionID)
	}
	if q.Type != "" {
		add("alert_type = $%d", string(q.Type))
	}
	if q.Severity != "" {
		add("severity = $%d", string(q.Severity))
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := []*monitor.Alert{}
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func collectRegions(rows pgx.Rows, span trace.Span) ([]*monitor.Region, error) {
	out := []*monitor.Region{}
	for rows.Next() {
		r, err := scanRegionRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return out, nil
}

// scanRegionRow scans a single row into a monitor.Region. Returns (nil, nil)
// when no row is found.
func scanRegionRow(row pgx.Row) (*monitor.Region, error) {
	var (
		r            monitor.Region
		geometryJSON []byte
		prefsJSON    []byte
		alertType    string
		status       string
	)
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Name, &geometryJSON, &r.AreaKm2, &alertType, &r.Threshold,
		&status, &prefsJSON, &r.CreatedAt, &r.UpdatedAt, &r.PausedAt, &r.LastMonitored,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan region: %w", err)
	}
	r.AlertType = monitor.AlertType(alertType)
	r.Status = monitor.RegionStatus(status)
	if err := json.Unmarshal(geometryJSON, &r.Geometry); err != nil {
		return nil, fmt.Errorf("unmarshal geometry: %w", err)
	}
	if err := json.Unmarshal(prefsJSON, &r.NotifyPrefs); err != nil {
		return nil, fmt.Errorf("unmarshal notify prefs: %w", err)
	}
	return &r, nil
}

// scanAlertRow scans a single row into a monitor.Alert. Returns (nil, nil)
// when no row is found.
func scanAlertRow(row pgx.Row) (*monitor.Alert, error) {
	var (
		a          monitor.Alert
		alertType  string
		severity   string
		status     string
		changeJSON []byte
		rangeJSON  []byte
		notifJSON  []byte
	)
	err := row.Scan(
		&a.ID, &a.RegionID, &a.OwnerID, &alertType, &severity, &a.Confidence, &a.Description,
		&changeJSON, &a.AOIAreaKm2, &rangeJSON, &a.SatelliteSource, &a.AlgorithmVersion,
		&a.ProcessingTime, &status, &notifJSON, &a.CreatedAt, &a.UpdatedAt, &a.ResolvedAt, &a.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.Type = monitor.AlertType(alertType)
	a.Severity = monitor.Severity(severity)
	a.Status = monitor.AlertStatus(status)
	if len(changeJSON) > 0 {
		a.Change = &monitor.ChangeDetails{}
		if err := json.Unmarshal(changeJSON, a.Change); err != nil {
			return nil, fmt.Errorf("unmarshal change details: %w", err)
		}
	}
	if err := json.Unmarshal(rangeJSON, &a.DateRange); err != nil {
		return nil, fmt.Errorf("unmarshal date range: %w", err)
	}
	if err := json.Unmarshal(notifJSON, &a.Notifications); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	return &a, nil
}
