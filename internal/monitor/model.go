package monitor

import (
	"fmt"
	"strings"
	"time"
)

// RegionStatus is the scheduling state of a monitored region.
type RegionStatus string

const (
	// RegionActive regions are scanned by batch runs.
	RegionActive RegionStatus = "active"
	// RegionPaused regions keep their data but are skipped by default batch
	// runs. They can still be scanned on demand or with includeAll.
	RegionPaused RegionStatus = "paused"
	// RegionInactive regions are never scheduled. The record survives and can
	// be switched back to active later.
	RegionInactive RegionStatus = "inactive"
)

// ValidRegionStatus reports whether s is a recognized region status.
func ValidRegionStatus(s RegionStatus) bool {
	switch s {
	case RegionActive, RegionPaused, RegionInactive:
		return true
	}
	return false
}

// AlertType identifies the category of surface change a detection run looks
// for.
type AlertType string

const (
	ChangeDeforestation AlertType = "deforestation"
	ChangeUrbanDev      AlertType = "urban_development"
	ChangeWaterBody     AlertType = "water_body_change"
	ChangeLandUse       AlertType = "land_use_change"
)

// ValidAlertType reports whether t is a recognized alert type.
func ValidAlertType(t AlertType) bool {
	switch t {
	case ChangeDeforestation, ChangeUrbanDev, ChangeWaterBody, ChangeLandUse:
		return true
	}
	return false
}

// Severity grades how much of a region's area changed.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityForPercent maps an affected-area percentage to a severity band:
// above 20 percent is high, above 5 percent is medium, everything else low.
func SeverityForPercent(pct float64) Severity {
	switch {
	case pct > 20:
		return SeverityHigh
	case pct > 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AlertStatus is the review state of an alert. Alerts start as AlertNew and
// move forward as an operator works them.
type AlertStatus string

const (
	AlertNew           AlertStatus = "new"
	AlertViewed        AlertStatus = "viewed"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

// ValidReviewStatus reports whether s is a status an operator may assign.
// AlertNew is creation-only and cannot be assigned back.
func ValidReviewStatus(s AlertStatus) bool {
	switch s {
	case AlertViewed, AlertAcknowledged, AlertResolved, AlertFalsePositive:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a detection job.
type JobStatus string

const (
	// JobQueued is the initial state, set before dispatch.
	JobQueued JobStatus = "queued"
	// JobProcessing means the detector has been dispatched.
	JobProcessing JobStatus = "processing"
	// JobComplete means the run finished and any resulting alert is durable.
	JobComplete JobStatus = "complete"
	// JobFailed means the run errored or timed out; Job.Error has the cause.
	JobFailed JobStatus = "failed"
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

// jobStatusRank orders the lifecycle so stores can reject backwards
// transitions. Complete and failed share a rank; neither may replace the
// other.
func jobStatusRank(s JobStatus) int {
	switch s {
	case JobQueued:
		return 0
	case JobProcessing:
		return 1
	case JobComplete, JobFailed:
		return 2
	}
	return -1
}

// ValidJobTransition reports whether a job may move from one status to
// another. Statuses only move forward; terminal states absorb. Rewriting the
// same status is allowed so progress-only updates pass.
func ValidJobTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return jobStatusRank(to) > jobStatusRank(from)
}

// EmailChannel enables alert notification by email.
type EmailChannel struct {
	Address string `json:"address"`
}

// SMSChannel enables alert notification by text message.
type SMSChannel struct {
	PhoneNumber string `json:"phoneNumber"`
}

// PhoneCallChannel enables alert notification by automated call.
type PhoneCallChannel struct {
	PhoneNumber string `json:"phoneNumber"`
}

// TelegramChannel enables alert notification through a Telegram chat.
type TelegramChannel struct {
	ChatID string `json:"chatId"`
}

// NotificationPrefs selects the channels an owner wants alerts on. A nil
// channel is disabled; a present one must carry its address field.
type NotificationPrefs struct {
	Email     *EmailChannel     `json:"email,omitempty"`
	SMS       *SMSChannel       `json:"sms,omitempty"`
	PhoneCall *PhoneCallChannel `json:"phoneCall,omitempty"`
	Telegram  *TelegramChannel  `json:"telegram,omitempty"`
}

// Enabled reports whether at least one channel is configured.
func (p NotificationPrefs) Enabled() bool {
	return p.Email != nil || p.SMS != nil || p.PhoneCall != nil || p.Telegram != nil
}

// missingDestinations names enabled channels whose destination field is
// blank.
func (p NotificationPrefs) missingDestinations() []string {
	var fields []string
	if p.Email != nil && strings.TrimSpace(p.Email.Address) == "" {
		fields = append(fields, "notificationPreferences.email.address")
	}
	if p.SMS != nil && strings.TrimSpace(p.SMS.PhoneNumber) == "" {
		fields = append(fields, "notificationPreferences.sms.phoneNumber")
	}
	if p.PhoneCall != nil && strings.TrimSpace(p.PhoneCall.PhoneNumber) == "" {
		fields = append(fields, "notificationPreferences.phoneCall.phoneNumber")
	}
	if p.Telegram != nil && strings.TrimSpace(p.Telegram.ChatID) == "" {
		fields = append(fields, "notificationPreferences.telegram.chatId")
	}
	return fields
}

// Region is a monitored area of interest.
type Region struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner"`
	Name          string            `json:"name"`
	Geometry      Geometry          `json:"geometry"`
	AreaKm2       float64           `json:"area"`
	AlertType     AlertType         `json:"alertType"`
	Threshold     float64           `json:"threshold"`
	Status        RegionStatus      `json:"status"`
	NotifyPrefs   NotificationPrefs `json:"notificationPreferences"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	PausedAt      *time.Time        `json:"pausedAt,omitempty"`
	LastMonitored *time.Time        `json:"lastMonitored,omitempty"`
}

// ChangeDetails describes the detected change footprint inside a region.
type ChangeDetails struct {
	AreaKm2        float64     `json:"area"`
	Percentage     float64     `json:"percentage"`
	Coordinates    [][]float64 `json:"coordinates,omitempty"`
	BeforeImageURL string      `json:"beforeImageUrl,omitempty"`
	AfterImageURL  string      `json:"afterImageUrl,omitempty"`
	ChangeMapURL   string      `json:"changeMapUrl,omitempty"`
}

// ChannelNotice records the hand-off outcome for one notification channel.
type ChannelNotice struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sentAt,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Notifications tracks hand-off state per channel. Channels the region never
// enabled stay at their zero value.
type Notifications struct {
	Email     ChannelNotice `json:"email"`
	SMS       ChannelNotice `json:"sms"`
	PhoneCall ChannelNotice `json:"phoneCall"`
	Telegram  ChannelNotice `json:"telegram"`
}

// Alert is one recorded detection outcome. Alerts are immutable once written
// except for review-status transitions and notification flags.
type Alert struct {
	ID               string         `json:"id"`
	RegionID         string         `json:"regionId"`
	OwnerID          string         `json:"owner"`
	Type             AlertType      `json:"type"`
	Severity         Severity       `json:"severity"`
	Confidence       float64        `json:"confidence"`
	Description      string         `json:"description"`
	Change           *ChangeDetails `json:"detectedChange,omitempty"`
	AOIAreaKm2       float64        `json:"aoiArea"`
	DateRange        DateRange      `json:"dateRange"`
	SatelliteSource  string         `json:"satelliteSource,omitempty"`
	AlgorithmVersion string         `json:"algorithmVersion,omitempty"`
	ProcessingTime   float64        `json:"processingTime,omitempty"`
	Status           AlertStatus    `json:"status"`
	Notifications    Notifications  `json:"notifications"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	ResolvedAt       *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy       string         `json:"resolvedBy,omitempty"`
}

// ChangeDescription renders the standard alert description line for a change
// covering pct percent of the region.
func ChangeDescription(t AlertType, pct float64) string {
	return fmt.Sprintf("Detected %s affecting %.2f%% of the AOI",
		strings.ReplaceAll(string(t), "_", " "), pct)
}

// Job is one detection run. Jobs are ephemeral; stores expire terminal jobs
// after a TTL.
type Job struct {
	ID          string     `json:"id"`
	RegionID    string     `json:"regionId"`
	OwnerID     string     `json:"owner"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	AlertID     string     `json:"alertId,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
