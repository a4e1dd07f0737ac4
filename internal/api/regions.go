package api

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

func (a *API) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var in monitor.CreateRegionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	region, err := a.svc.Regions.Create(r.Context(), &in)
	if err != nil {
		a.writeError(w, r, err, "failed to create region")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("terrawatch.region.id", region.ID),
	)
	writeJSON(w, http.StatusCreated, region)
}

func (a *API) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := a.svc.Regions.List(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		a.writeError(w, r, err, "failed to list regions")
		return
	}
	if regions == nil {
		regions = []*monitor.Region{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
}

func (a *API) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("terrawatch.region.id", id))

	region, err := a.svc.Regions.Get(r.Context(), id, r.URL.Query().Get("owner"))
	if err != nil {
		a.writeError(w, r, err, "failed to get region")
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (a *API) handleSetRegionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in struct {
		Owner  string               `json:"owner"`
		Status monitor.RegionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("terrawatch.region.id", id),
		attribute.String("terrawatch.region.status", string(in.Status)),
	)

	region, err := a.svc.Regions.SetStatus(r.Context(), id, in.Owner, in.Status)
	if err != nil {
		a.writeError(w, r, err, "failed to set region status")
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (a *API) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("terrawatch.region.id", id))

	if err := a.svc.Regions.Delete(r.Context(), id, r.URL.Query().Get("owner")); err != nil {
		a.writeError(w, r, err, "failed to delete region")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
