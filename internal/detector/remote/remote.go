// Package remote implements monitor.Detector against the change
// detection service's HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

const detectPath = "/api/v1/detect"

// Detector submits detection requests to a remote analysis service.
//
// The client carries no timeout of its own; callers bound each Detect
// call through the request context, so a slow service surfaces as
// context.DeadlineExceeded rather than a generic transport error.
type Detector struct {
	endpoint   string
	httpClient *http.Client
}

// New returns a Detector talking to the service at endpoint.
func New(endpoint string) *Detector {
	return &Detector{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Detect runs one change detection pass and returns the service's result.
func (d *Detector) Detect(ctx context.Context, req *monitor.DetectionRequest) (*monitor.DetectionResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+detectPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("detector call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned %d: %s", resp.StatusCode, string(body))
	}

	var result monitor.DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
