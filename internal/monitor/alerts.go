package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// AlertLog exposes query and review operations over recorded alerts.
type AlertLog struct {
	store  Store
	logger log.Logger
}

// NewAlertLog constructs an AlertLog. Panics if store is nil.
func NewAlertLog(store Store, logger log.Logger) *AlertLog {
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &AlertLog{store: store, logger: logger}
}

// Query returns the owner's alerts matching q, newest first. A region filter
// pointing at someone else's region yields an empty result, not an error.
func (l *AlertLog) Query(ctx context.Context, q AlertQuery) ([]*Alert, error) {
	if q.Owner == "" {
		return nil, &ValidationError{Fields: []string{"owner"}}
	}
	if q.Type != "" && !ValidAlertType(q.Type) {
		return nil, &ValidationError{Fields: []string{"type"}}
	}
	as, err := l.store.ListAlerts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return as, nil
}

// Review moves an alert through its review lifecycle. Resolving (or marking
// false positive) stamps ResolvedAt and ResolvedBy.
func (l *AlertLog) Review(ctx context.Context, id, owner string, status AlertStatus, resolvedBy string) (*Alert, error) {
	if err := requireIDOwner(id, owner); err != nil {
		return nil, err
	}
	if !ValidReviewStatus(status) {
		return nil, &ValidationError{Fields: []string{"status"}}
	}
	a, ok, err := l.store.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load alert: %w", err)
	}
	if !ok || a.OwnerID != owner {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = status
	a.UpdatedAt = now
	if status == AlertResolved || status == AlertFalsePositive {
		a.ResolvedAt = &now
		a.ResolvedBy = resolvedBy
	}
	if err := l.store.PutAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("store alert: %w", err)
	}
	l.logger.Info(ctx, "alert reviewed", "alert_id", a.ID, "status", status)
	return a, nil
}
