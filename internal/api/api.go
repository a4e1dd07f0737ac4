// Package api exposes the monitoring system over HTTP: region CRUD,
// detection job control, alert review, and analytics reports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

// RegionService defines the region lifecycle operations the API needs.
type RegionService interface {
	Create(ctx context.Context, in *monitor.CreateRegionInput) (*monitor.Region, error)
	Get(ctx context.Context, id, owner string) (*monitor.Region, error)
	List(ctx context.Context, owner string) ([]*monitor.Region, error)
	SetStatus(ctx context.Context, id, owner string, status monitor.RegionStatus) (*monitor.Region, error)
	Delete(ctx context.Context, id, owner string) error
}

// DetectionService defines the job control operations the API needs.
type DetectionService interface {
	Trigger(ctx context.Context, regionID, owner string, forceScan bool, cfg *monitor.TriggerConfig) (*monitor.TriggerResult, error)
	Status(ctx context.Context, jobID string) (*monitor.Job, error)
}

// BatchService runs one scheduling pass over eligible regions.
type BatchService interface {
	RunBatch(ctx context.Context, includeAll bool) (*monitor.BatchResult, error)
}

// AlertService defines alert query and review operations.
type AlertService interface {
	Query(ctx context.Context, q monitor.AlertQuery) ([]*monitor.Alert, error)
	Review(ctx context.Context, id, owner string, status monitor.AlertStatus, resolvedBy string) (*monitor.Alert, error)
}

// ReportService builds analytics reports.
type ReportService interface {
	Report(ctx context.Context, owner string, windowDays int) (*monitor.Report, error)
}

// Services bundles the business operations behind the HTTP surface.
type Services struct {
	Regions    RegionService
	Detections DetectionService
	Batches    BatchService
	Alerts     AlertService
	Reports    ReportService
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    Services
}

// New creates a new API handler.
func New(logger log.Logger, svc Services) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc.Regions == nil {
		panic(xerrors.New("region service is required"))
	}
	if svc.Detections == nil {
		panic(xerrors.New("detection service is required"))
	}
	if svc.Batches == nil {
		panic(xerrors.New("batch service is required"))
	}
	if svc.Alerts == nil {
		panic(xerrors.New("alert service is required"))
	}
	if svc.Reports == nil {
		panic(xerrors.New("report service is required"))
	}
	return &API{logger: logger, svc: svc}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/regions", a.handleCreateRegion)
		r.Get("/regions", a.handleListRegions)
		r.Get("/regions/{id}", a.handleGetRegion)
		r.Patch("/regions/{id}/status", a.handleSetRegionStatus)
		r.Delete("/regions/{id}", a.handleDeleteRegion)

		r.Post("/detections/trigger", a.handleTrigger)
		r.Get("/detections/status", a.handleJobStatus)
		r.Post("/detections/batch", a.handleBatch)

		r.Get("/alerts", a.handleListAlerts)
		r.Patch("/alerts/{id}/status", a.handleReviewAlert)

		r.Get("/analytics/report", a.handleReport)
	})
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	windowDays := 0
	if v := qs.Get("windowDays"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			a.writeError(w, r, &monitor.ValidationError{Fields: []string{"windowDays"}}, "invalid report query")
			return
		}
		windowDays = n
	}

	rep, err := a.svc.Reports.Report(r.Context(), qs.Get("owner"), windowDays)
	if err != nil {
		a.writeError(w, r, err, "failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// writeJSON sends v with the given status. Encoding failures are dropped;
// the header is already out by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto the HTTP surface: validation errors
// become 400s naming the offending fields, ErrNotFound becomes 404, anything
// else a generic 500 with the real error logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var verr *monitor.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error()})
	case errors.Is(err, monitor.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	default:
		a.logger.Error(r.Context(), err, msg)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
