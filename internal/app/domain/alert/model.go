package alert

import (
	"time"
)

// Type classifies what was detected.
type Type string

const (
	TypeFireSmoke        Type = "fire_smoke"
	TypeFall             Type = "fall"
	TypeViolence         Type = "violence"
	TypeChoking          Type = "choking"
	TypeUnauthorizedFace Type = "unauthorized_face"
	TypeOther            Type = "other"
)

// Types lists every alert type in display order.
var Types = []Type{TypeFireSmoke, TypeFall, TypeViolence, TypeChoking, TypeUnauthorizedFace, TypeOther}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// DisplayName is the human readable label of the type.
func (t Type) DisplayName() string {
	switch t {
	case TypeFireSmoke:
		return "Fire and Smoke"
	case TypeFall:
		return "Fall Detection"
	case TypeViolence:
		return "Violence"
	case TypeChoking:
		return "Choking"
	case TypeUnauthorizedFace:
		return "Unauthorized Face"
	case TypeOther:
		return "Other"
	}
	return string(t)
}

// Status is the triage state of an alert.
type Status string

const (
	StatusNew           Status = "new"
	StatusConfirmed     Status = "confirmed"
	StatusDismissed     Status = "dismissed"
	StatusFalsePositive Status = "false_positive"
)

// Statuses lists every status.
var Statuses = []Status{StatusNew, StatusConfirmed, StatusDismissed, StatusFalsePositive}

// Resolved reports whether s closes the alert.
func (s Status) Resolved() bool {
	return s == StatusConfirmed || s == StatusDismissed || s == StatusFalsePositive
}

// Valid reports whether s is known.
func (s Status) Valid() bool {
	return s == StatusNew || s.Resolved()
}

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities; unknown values rank as medium.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 2
}

// Valid reports whether s is known.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityForConfidence derives a severity from a detector confidence.
func SeverityForConfidence(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.7:
		return SeverityHigh
	case confidence >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Alert is a detection event raised against a camera.
type Alert struct {
	ID            int64      `json:"id" db:"id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	AlertType     Type       `json:"alert_type" db:"alert_type"`
	Status        Status     `json:"status" db:"status"`
	Severity      Severity   `json:"severity" db:"severity"`
	Confidence    float64    `json:"confidence" db:"confidence"`
	DetectionTime time.Time  `json:"detection_time" db:"detection_time"`
	ResolvedTime  *time.Time `json:"resolved_time" db:"resolved_time"`
	ResolvedBy    *int64     `json:"resolved_by" db:"resolved_by"`
	CameraID      int64      `json:"camera" db:"camera_id"`
	Location      string     `json:"location" db:"location"`
	VideoFile     string     `json:"video_file" db:"video_file"`
	Thumbnail     string     `json:"thumbnail" db:"thumbnail"`
	Notes         string     `json:"notes" db:"notes"`
	IsTest        bool       `json:"is_test" db:"is_test"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`

	// Populated from the camera by list queries.
	CameraName    string `json:"-" db:"camera_name"`
	CameraOwnerID int64  `json:"-" db:"camera_owner_id"`
}

// IsResolved reports whether the alert has been triaged.
func (a Alert) IsResolved() bool { return a.Status.Resolved() }

// ListItem is the list projection of an alert.
type ListItem struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	AlertType     Type      `json:"alert_type"`
	Status        Status    `json:"status"`
	Severity      Severity  `json:"severity"`
	Confidence    float64   `json:"confidence"`
	DetectionTime time.Time `json:"detection_time"`
	CameraName    string    `json:"camera_name"`
	Thumbnail     string    `json:"thumbnail"`
}

// Item returns the list projection.
func (a Alert) Item() ListItem {
	return ListItem{
		ID:            a.ID,
		Title:         a.Title,
		AlertType:     a.AlertType,
		Status:        a.Status,
		Severity:      a.Severity,
		Confidence:    a.Confidence,
		DetectionTime: a.DetectionTime,
		CameraName:    a.CameraName,
		Thumbnail:     a.Thumbnail,
	}
}

// Filter selects alerts. Zero values mean "any".
type Filter struct {
	OwnerID  int64
	CameraID int64
	Status   Status
	Type     Type
	Severity Severity
	From     *time.Time // inclusive
	To       *time.Time // exclusive
	Limit    int
	Offset   int
}

// Count is a labelled bucket in the summary series.
type Count struct {
	Date      string `json:"date,omitempty"`
	Week      string `json:"week,omitempty"`
	Month     string `json:"month,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Count     int    `json:"count"`
}

// Summary aggregates alerts for dashboards.
type Summary struct {
	TotalAlerts         int            `json:"total_alerts"`
	NewAlerts           int            `json:"new_alerts"`
	ConfirmedAlerts     int            `json:"confirmed_alerts"`
	DismissedAlerts     int            `json:"dismissed_alerts"`
	FalsePositiveAlerts int            `json:"false_positive_alerts"`
	ByType              map[string]int `json:"by_type"`
	BySeverity          map[string]int `json:"by_severity"`
	DailyCount          []Count        `json:"daily_count"`
	WeeklyCount         []Count        `json:"weekly_count"`
	MonthlyCount        []Count        `json:"monthly_count"`
}

// Event is the realtime notification of a created alert.
type Event struct {
	OwnerID int64    `json:"owner_id"`
	Alert   ListItem `json:"alert"`
}
