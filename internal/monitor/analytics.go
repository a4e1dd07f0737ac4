package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultWindowDays is the report window when the caller gives none.
	DefaultWindowDays = 30
	// historyDays bounds the alert fetch backing a report; the monthly
	// rollup needs a full trailing year.
	historyDays = 365

	dateLayout = "2006-01-02"
)

// DailyTrendRow counts one UTC date's alerts by severity. Dates with no
// alerts are absent from the trend.
type DailyTrendRow struct {
	Date   string `json:"date"`
	High   int    `json:"high"`
	Medium int    `json:"medium"`
	Low    int    `json:"low"`
	Total  int    `json:"total"`
}

// RegionMetricsRow summarizes one region's alerts inside the window.
type RegionMetricsRow struct {
	RegionID      string  `json:"regionId"`
	Name          string  `json:"name"`
	AlertCount    int     `json:"alertCount"`
	HighCount     int     `json:"highCount"`
	AvgConfidence float64 `json:"avgConfidence"`
}

// MonthlyRollupRow aggregates one calendar month of the trailing year.
type MonthlyRollupRow struct {
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Total         int     `json:"total"`
	High          int     `json:"high"`
	Medium        int     `json:"medium"`
	Low           int     `json:"low"`
	AvgConfidence float64 `json:"avgConfidence"`
}

// AccuracyRow carries one UTC date's confidence-derived accuracy and
// false-positive rate, both as percentages.
type AccuracyRow struct {
	Date              string  `json:"date"`
	Accuracy          float64 `json:"accuracy"`
	Total             int     `json:"total"`
	FalsePositiveRate float64 `json:"falsePositiveRate"`
}

// CoverageSummary describes the owner's monitored footprint.
type CoverageSummary struct {
	TotalRegions  int     `json:"totalRegions"`
	ActiveRegions int     `json:"activeRegions"`
	PausedRegions int     `json:"pausedRegions"`
	TotalAreaKm2  float64 `json:"totalAreaKm2"`
	TotalAlerts   int     `json:"totalAlerts"`
	Accuracy      float64 `json:"accuracy"`
}

// Report is the dashboard payload for one owner and window.
type Report struct {
	Owner          string             `json:"owner"`
	WindowDays     int                `json:"windowDays"`
	GeneratedAt    time.Time          `json:"generatedAt"`
	DailyTrend     []DailyTrendRow    `json:"dailyTrend"`
	TypeCounts     map[AlertType]int  `json:"typeDistribution"`
	SeverityCounts map[Severity]int   `json:"severityDistribution"`
	RegionMetrics  []RegionMetricsRow `json:"regionMetrics"`
	MonthlyRollup  []MonthlyRollupRow `json:"monthlyRollup"`
	AccuracyTrend  []AccuracyRow      `json:"accuracyTrend"`
	Coverage       CoverageSummary    `json:"coverage"`
}

// Analytics computes dashboard rollups from the region store and alert log.
type Analytics struct {
	store   Store
	logger  log.Logger
	metrics *Metrics
}

// NewAnalytics creates a new analytics aggregator. Panics if store is nil.
func NewAnalytics(store Store, logger log.Logger, metrics *Metrics) *Analytics {
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Analytics{store: store, logger: logger, metrics: metrics}
}

// Report builds the owner's rollups over the trailing windowDays (default
// 30). The owner's regions and trailing-year alerts are fetched once and
// every sub-aggregate derives from that single snapshot, so the numbers are
// mutually consistent. Every average and rate guards empty input with 0.
func (a *Analytics) Report(ctx context.Context, owner string, windowDays int) (*Report, error) {
	if owner == "" {
		return nil, &ValidationError{Fields: []string{"owner"}}
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	start := time.Now()
	now := start.UTC()

	regions, err := a.store.ListRegions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	history, err := a.store.ListAlerts(ctx, AlertQuery{
		Owner: owner,
		Since: now.AddDate(0, 0, -historyDays),
	})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	windowStart := now.AddDate(0, 0, -windowDays)
	window := make([]*Alert, 0, len(history))
	for _, al := range history {
		if !al.CreatedAt.Before(windowStart) {
			window = append(window, al)
		}
	}

	rep := &Report{
		Owner:          owner,
		WindowDays:     windowDays,
		GeneratedAt:    now,
		DailyTrend:     dailyTrend(window),
		TypeCounts:     typeCounts(window),
		SeverityCounts: severityCounts(window),
		RegionMetrics:  regionMetrics(regions, window),
		MonthlyRollup:  monthlyRollup(history, now),
		AccuracyTrend:  accuracyTrend(window),
		Coverage:       coverage(regions, window),
	}

	a.metrics.ReportDuration.Observe(time.Since(start).Seconds())
	a.logger.Info(ctx, "report generated",
		"owner", owner,
		"window_days", windowDays,
		"alerts", len(window),
	)
	return rep, nil
}

func dailyTrend(window []*Alert) []DailyTrendRow {
	byDate := make(map[string]*DailyTrendRow)
	for _, al := range window {
		d := al.CreatedAt.UTC().Format(dateLayout)
		row := byDate[d]
		if row == nil {
			row = &DailyTrendRow{Date: d}
			byDate[d] = row
		}
		switch al.Severity {
		case SeverityHigh:
			row.High++
		case SeverityMedium:
			row.Medium++
		default:
			row.Low++
		}
		row.Total++
	}
	rows := make([]DailyTrendRow, 0, len(byDate))
	for _, r := range byDate {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}

func typeCounts(window []*Alert) map[AlertType]int {
	counts := make(map[AlertType]int)
	for _, al := range window {
		counts[al.Type]++
	}
	return counts
}

func severityCounts(window []*Alert) map[Severity]int {
	counts := make(map[Severity]int)
	for _, al := range window {
		counts[al.Severity]++
	}
	return counts
}

func regionMetrics(regions []*Region, window []*Alert) []RegionMetricsRow {
	rows := make([]RegionMetricsRow, len(regions))
	idx := make(map[string]*RegionMetricsRow, len(regions))
	for i, r := range regions {
		rows[i] = RegionMetricsRow{RegionID: r.ID, Name: r.Name}
		idx[r.ID] = &rows[i]
	}
	sums := make(map[string]float64)
	for _, al := range window {
		row := idx[al.RegionID]
		if row == nil {
			continue
		}
		row.AlertCount++
		if al.Severity == SeverityHigh {
			row.HighCount++
		}
		sums[al.RegionID] += al.Confidence
	}
	for i := range rows {
		rows[i].AvgConfidence = avg(sums[rows[i].RegionID], rows[i].AlertCount)
	}
	return rows
}

func monthlyRollup(history []*Alert, now time.Time) []MonthlyRollupRow {
	floor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	type key struct {
		y int
		m time.Month
	}
	byMonth := make(map[key]*MonthlyRollupRow)
	sums := make(map[key]float64)
	for _, al := range history {
		ts := al.CreatedAt.UTC()
		if ts.Before(floor) {
			continue
		}
		k := key{ts.Year(), ts.Month()}
		row := byMonth[k]
		if row == nil {
			row = &MonthlyRollupRow{Year: k.y, Month: int(k.m)}
			byMonth[k] = row
		}
		row.Total++
		switch al.Severity {
		case SeverityHigh:
			row.High++
		case SeverityMedium:
			row.Medium++
		default:
			row.Low++
		}
		sums[k] += al.Confidence
	}
	rows := make([]MonthlyRollupRow, 0, len(byMonth))
	for k, r := range byMonth {
		r.AvgConfidence = avg(sums[k], r.Total)
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].Month < rows[j].Month
	})
	return rows
}

func accuracyTrend(window []*Alert) []AccuracyRow {
	type acc struct {
		total int
		fp    int
		conf  float64
	}
	byDate := make(map[string]*acc)
	for _, al := range window {
		d := al.CreatedAt.UTC().Format(dateLayout)
		a := byDate[d]
		if a == nil {
			a = &acc{}
			byDate[d] = a
		}
		a.total++
		a.conf += al.Confidence
		if al.Status == AlertFalsePositive {
			a.fp++
		}
	}
	rows := make([]AccuracyRow, 0, len(byDate))
	for d, a := range byDate {
		rows = append(rows, AccuracyRow{
			Date:              d,
			Accuracy:          avg(a.conf, a.total) * 100,
			Total:             a.total,
			FalsePositiveRate: rate(a.fp, a.total),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}

func coverage(regions []*Region, window []*Alert) CoverageSummary {
	c := CoverageSummary{TotalRegions: len(regions)}
	for _, r := range regions {
		switch r.Status {
		case RegionActive:
			c.ActiveRegions++
		case RegionPaused:
			c.PausedRegions++
		}
		c.TotalAreaKm2 += r.AreaKm2
	}
	c.TotalAlerts = len(window)
	var conf float64
	for _, al := range window {
		conf += al.Confidence
	}
	c.Accuracy = avg(conf, len(window)) * 100
	return c
}

// avg returns sum/n as a mean, or 0 when n is 0.
func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// rate returns part/total as a percentage, or 0 when total is 0.
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
