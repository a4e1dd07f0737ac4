package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := monitor.AlertQuery{
		Owner:    qs.Get("owner"),
		RegionID: qs.Get("regionId"),
		Type:     monitor.AlertType(qs.Get("type")),
		Severity: monitor.Severity(qs.Get("severity")),
		Status:   monitor.AlertStatus(qs.Get("status")),
	}
	if v := qs.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.writeError(w, r, &monitor.ValidationError{Fields: []string{"since"}}, "invalid alert query")
			return
		}
		q.Since = ts
	}
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, r, &monitor.ValidationError{Fields: []string{"limit"}}, "invalid alert query")
			return
		}
		q.Limit = n
	}

	alerts, err := a.svc.Alerts.Query(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*monitor.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleReviewAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in struct {
		Owner      string              `json:"owner"`
		Status     monitor.AlertStatus `json:"status"`
		ResolvedBy string              `json:"resolvedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("terrawatch.alert.id", id),
		attribute.String("terrawatch.alert.status", string(in.Status)),
	)

	alert, err := a.svc.Alerts.Review(r.Context(), id, in.Owner, in.Status, in.ResolvedBy)
	if err != nil {
		a.writeError(w, r, err, "failed to review alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
