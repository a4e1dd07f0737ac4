package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

type triggerRequest struct {
	RegionID  string                 `json:"regionId"`
	Owner     string                 `json:"owner"`
	ForceScan bool                   `json:"forceScan"`
	Config    *monitor.TriggerConfig `json:"config"`
}

func (a *API) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var in triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("terrawatch.region.id", in.RegionID),
		attribute.Bool("terrawatch.force_scan", in.ForceScan),
	)

	res, err := a.svc.Detections.Trigger(r.Context(), in.RegionID, in.Owner, in.ForceScan, in.Config)
	if err != nil {
		a.writeError(w, r, err, "failed to trigger detection")
		return
	}

	span.SetAttributes(attribute.String("terrawatch.job.id", res.JobID))
	writeJSON(w, http.StatusAccepted, res)
}

func (a *API) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("terrawatch.job.id", jobID))

	job, err := a.svc.Detections.Status(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err, "failed to get job status")
		return
	}

	span.SetAttributes(attribute.String("terrawatch.job.status", string(job.Status)))
	writeJSON(w, http.StatusOK, job)
}

func (a *API) handleBatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IncludeAll bool `json:"includeAll"`
	}
	// an empty body selects the defaults
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	res, err := a.svc.Batches.RunBatch(r.Context(), in.IncludeAll)
	if err != nil {
		a.writeError(w, r, err, "failed to run batch")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
