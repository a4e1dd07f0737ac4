// Package sim provides a self-contained Detector for local development
// and tests. Results are deterministic per region, so repeated runs over
// the same area report the same change.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/linnemanlabs/terrawatch/internal/monitor"
)

const (
	defaultDelay = 150 * time.Millisecond

	satelliteSource  = "Sentinel-2"
	algorithmVersion = "1.0"
)

// Detector fabricates detection results without touching an imagery
// backend.
type Detector struct {
	delay time.Duration
}

// New returns a Detector that takes delay per call. A non-positive delay
// falls back to a short default.
func New(delay time.Duration) *Detector {
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Detector{delay: delay}
}

// Detect waits for the configured delay, then reports a change sized by a
// hash of the region ID.
func (d *Detector) Detect(ctx context.Context, req *monitor.DetectionRequest) (*monitor.DetectionResult, error) {
	start := time.Now()
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	area, err := req.Geometry.AreaKm2()
	if err != nil {
		return nil, err
	}

	pct := affectedPercent(req.RegionID, req.AlertType)
	return &monitor.DetectionResult{
		DetectedChange: true,
		Type:           req.AlertType,
		Severity:       monitor.SeverityForPercent(pct),
		Confidence:     req.Threshold,
		Description:    monitor.ChangeDescription(req.AlertType, pct),
		Change: &monitor.ChangeDetails{
			AreaKm2:     area * pct / 100,
			Percentage:  pct,
			Coordinates: changeCoordinates(req.Geometry),
		},
		AOIAreaKm2:       area,
		SatelliteSource:  satelliteSource,
		AlgorithmVersion: algorithmVersion,
		ProcessingTime:   time.Since(start).Seconds(),
	}, nil
}

// affectedPercent maps a region and alert type to a stable value in [0, 30).
func affectedPercent(regionID string, t monitor.AlertType) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%s", regionID, t)
	return float64(h.Sum64()%3000) / 100
}

// changeCoordinates approximates the changed area with the AOI itself:
// the center point for circles, the outer ring otherwise.
func changeCoordinates(g monitor.Geometry) [][]float64 {
	if g.Type == monitor.GeometryCircle {
		if len(g.Center) == 2 {
			return [][]float64{g.Center}
		}
		return nil
	}
	if len(g.Coordinates) == 0 {
		return nil
	}
	return g.Coordinates[0]
}
