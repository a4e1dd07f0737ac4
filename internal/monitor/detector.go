package monitor

import (
	"context"
	"time"
)

// DateRange bounds the two imagery periods a detection run compares.
type DateRange struct {
	BeforeStart time.Time `json:"beforeStart"`
	BeforeEnd   time.Time `json:"beforeEnd"`
	AfterStart  time.Time `json:"afterStart"`
	AfterEnd    time.Time `json:"afterEnd"`
}

// DetectionRequest is the payload handed to a Detector.
type DetectionRequest struct {
	RegionID  string    `json:"regionId"`
	OwnerID   string    `json:"owner"`
	Geometry  Geometry  `json:"geometry"`
	AlertType AlertType `json:"alertType"`
	Threshold float64   `json:"threshold"`
	Range     DateRange `json:"dateRange"`
}

// DetectionResult is what a Detector reports back for one run.
type DetectionResult struct {
	DetectedChange   bool           `json:"detectedChange"`
	Type             AlertType      `json:"type"`
	Severity         Severity       `json:"severity"`
	Confidence       float64        `json:"confidence"`
	Description      string         `json:"description"`
	Change           *ChangeDetails `json:"change,omitempty"`
	AOIAreaKm2       float64        `json:"aoiArea"`
	SatelliteSource  string         `json:"satelliteSource,omitempty"`
	AlgorithmVersion string         `json:"algorithmVersion,omitempty"`
	ProcessingTime   float64        `json:"processingTime,omitempty"`
}

// Detector runs one change detection over a region. Implementations must
// honor ctx cancellation; the orchestrator bounds every call with a deadline.
type Detector interface {
	Detect(ctx context.Context, req *DetectionRequest) (*DetectionResult, error)
}

const (
	// monitorWindowDays is the length of each comparison period when no
	// custom range is given: after = last 90 days, before = the 90 before.
	monitorWindowDays = 90
	// minSpanDays is the shortest custom range the detector accepts; shorter
	// requests are extended backwards from their end date.
	minSpanDays = 180
	// beforeShare splits an extended custom range 70/30 between the before
	// and after periods.
	beforeShare = 0.7
)

// DetectionRange computes the before/after comparison periods. With no custom
// bounds the after period is the 90 days up to now and the before period the
// 90 days preceding it. A custom [start, end] is first extended to at least
// 180 days (moving start earlier), then split 70% before / 30% after, which
// keeps both periods at 30 days or more.
func DetectionRange(now time.Time, start, end *time.Time) DateRange {
	now = now.UTC()
	if start == nil || end == nil {
		afterStart := now.AddDate(0, 0, -monitorWindowDays)
		return DateRange{
			BeforeStart: afterStart.AddDate(0, 0, -monitorWindowDays),
			BeforeEnd:   afterStart,
			AfterStart:  afterStart,
			AfterEnd:    now,
		}
	}
	s, e := start.UTC(), end.UTC()
	if min := e.AddDate(0, 0, -minSpanDays); s.After(min) {
		s = min
	}
	split := s.Add(time.Duration(beforeShare * float64(e.Sub(s))))
	return DateRange{
		BeforeStart: s,
		BeforeEnd:   split,
		AfterStart:  split,
		AfterEnd:    e,
	}
}
