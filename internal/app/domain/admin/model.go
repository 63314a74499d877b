package admin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SystemCheck is a recorded health snapshot.
type SystemCheck struct {
	ID             int64     `json:"id" db:"id"`
	CheckType      string    `json:"check_type" db:"check_type"`
	Status         string    `json:"status" db:"status"`
	Details        string    `json:"details" db:"details"`
	CPUUsage       float64   `json:"cpu_usage" db:"cpu_usage"`
	MemoryUsage    float64   `json:"memory_usage" db:"memory_usage"`
	DiskUsage      float64   `json:"disk_usage" db:"disk_usage"`
	CameraCount    int       `json:"camera_count" db:"camera_count"`
	OnlineCameras  int       `json:"online_cameras" db:"online_cameras"`
	OfflineCameras int       `json:"offline_cameras" db:"offline_cameras"`
	Alerts24h      int       `json:"alerts_24h" db:"alerts_24h"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const (
	CheckSuccess = "success"
	CheckWarning = "warning"
	CheckError   = "error"
)

// Health classifies resource usage percentages.
func Health(cpu, mem, disk float64) string {
	switch {
	case cpu > 90 || mem > 90 || disk > 90:
		return "critical"
	case cpu > 70 || mem > 70 || disk > 70:
		return "warning"
	default:
		return "good"
	}
}

// FormatUptime renders d as H:MM:SS, prefixed with days when longer than one.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	rem := total % 86400
	clock := fmt.Sprintf("%d:%02d:%02d", rem/3600, (rem%3600)/60, rem%60)
	switch {
	case days == 1:
		return "1 day, " + clock
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
	return clock
}

// SystemStatus is the dashboard view of platform health.
type SystemStatus struct {
	TotalUsers     int            `json:"total_users"`
	ActiveUsers    int            `json:"active_users"`
	TotalCameras   int            `json:"total_cameras"`
	OnlineCameras  int            `json:"online_cameras"`
	OfflineCameras int            `json:"offline_cameras"`
	TotalAlerts    int            `json:"total_alerts"`
	NewAlerts      int            `json:"new_alerts"`
	AlertsToday    int            `json:"alerts_today"`
	AlertsThisWeek int            `json:"alerts_this_week"`
	AlertTypes     map[string]int `json:"alert_types"`
	CPUUsage       float64        `json:"cpu_usage"`
	MemoryUsage    float64        `json:"memory_usage"`
	DiskUsage      float64        `json:"disk_usage"`
	SystemHealth   string         `json:"system_health"`
	Uptime         string         `json:"uptime"`
	LastBackup     *time.Time     `json:"last_backup"`
	SystemVersion  string         `json:"system_version"`
}

// DataType is the declared type of a setting value.
type DataType string

const (
	DataString  DataType = "string"
	DataInteger DataType = "integer"
	DataFloat   DataType = "float"
	DataBoolean DataType = "boolean"
	DataJSON    DataType = "json"
)

// Valid reports whether d is known.
func (d DataType) Valid() bool {
	switch d {
	case DataString, DataInteger, DataFloat, DataBoolean, DataJSON:
		return true
	}
	return false
}

// Setting is a system-wide key/value configuration entry.
type Setting struct {
	ID          int64     `json:"id" db:"id"`
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	Description string    `json:"description" db:"description"`
	DataType    DataType  `json:"data_type" db:"data_type"`
	IsEditable  bool      `json:"is_editable" db:"is_editable"`
	Category    string    `json:"category" db:"category"`
	UpdatedBy   *int64    `json:"updated_by" db:"updated_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TypedValue converts the stored text according to DataType.
func (s Setting) TypedValue() (interface{}, error) {
	switch s.DataType {
	case DataInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(s.Value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", s.Value)
		}
		return v, nil
	case DataFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a float", s.Value)
		}
		return v, nil
	case DataBoolean:
		switch strings.ToLower(strings.TrimSpace(s.Value)) {
		case "true", "yes", "1", "t", "y":
			return true, nil
		}
		return false, nil
	case DataJSON:
		if !gjson.Valid(s.Value) {
			return nil, fmt.Errorf("value is not valid JSON")
		}
		return gjson.Parse(s.Value).Value(), nil
	}
	return s.Value, nil
}

// Validate returns field-scoped problems with s.
func (s Setting) Validate() []string {
	var errs []string
	if strings.TrimSpace(s.Key) == "" {
		errs = append(errs, "key: This field may not be blank.")
	} else if len(s.Key) > 100 {
		errs = append(errs, "key: Ensure this field has no more than 100 characters.")
	}
	if !s.DataType.Valid() {
		errs = append(errs, fmt.Sprintf("data_type: \"%s\" is not a valid choice.", s.DataType))
	} else if _, err := s.TypedValue(); err != nil {
		errs = append(errs, "value: "+err.Error()+".")
	}
	return errs
}

// CategoryName returns the grouping label for s.
func (s Setting) CategoryName() string {
	if strings.TrimSpace(s.Category) == "" {
		return "Uncategorized"
	}
	return s.Category
}

// Plan is a subscription plan.
type Plan struct {
	ID                int64     `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	PlanType          string    `json:"plan_type" db:"plan_type"`
	Description       string    `json:"description" db:"description"`
	MaxCameras        int       `json:"max_cameras" db:"max_cameras"`
	MaxUsers          int       `json:"max_users" db:"max_users"`
	FaceRecognition   bool      `json:"face_recognition" db:"face_recognition"`
	ViolenceDetection bool      `json:"violence_detection" db:"violence_detection"`
	StorageDays       int       `json:"storage_days" db:"storage_days"`
	Price             float64   `json:"price" db:"price"`
	BillingCycle      string    `json:"billing_cycle" db:"billing_cycle"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// NewPlan returns a plan with the column defaults.
func NewPlan() Plan {
	return Plan{MaxCameras: 5, MaxUsers: 3, StorageDays: 30, BillingCycle: "monthly", IsActive: true}
}

var (
	planTypes     = []string{"free", "basic", "premium", "enterprise", "custom"}
	billingCycles = []string{"monthly", "quarterly", "annual", "custom"}
	subStatuses   = []string{"active", "inactive", "expired", "cancelled", "pending"}
)

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// Validate returns field-scoped problems with p.
func (p Plan) Validate() []string {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name: This field may not be blank.")
	}
	if !oneOf(p.PlanType, planTypes) {
		errs = append(errs, fmt.Sprintf("plan_type: \"%s\" is not a valid choice.", p.PlanType))
	}
	if !oneOf(p.BillingCycle, billingCycles) {
		errs = append(errs, fmt.Sprintf("billing_cycle: \"%s\" is not a valid choice.", p.BillingCycle))
	}
	if p.Price < 0 {
		errs = append(errs, "price: Ensure this value is greater than or equal to 0.")
	}
	return errs
}

// Subscription ties a user to a plan.
type Subscription struct {
	ID                int64      `json:"id" db:"id"`
	UserID            int64      `json:"user" db:"user_id"`
	PlanID            int64      `json:"plan" db:"plan_id"`
	Status            string     `json:"status" db:"status"`
	StartDate         time.Time  `json:"start_date" db:"start_date"`
	EndDate           time.Time  `json:"end_date" db:"end_date"`
	TrialEndDate      *time.Time `json:"trial_end_date" db:"trial_end_date"`
	CustomMaxCameras  *int       `json:"custom_max_cameras" db:"custom_max_cameras"`
	CustomMaxUsers    *int       `json:"custom_max_users" db:"custom_max_users"`
	CustomStorageDays *int       `json:"custom_storage_days" db:"custom_storage_days"`
	LastPaymentDate   *time.Time `json:"last_payment_date" db:"last_payment_date"`
	NextPaymentDate   *time.Time `json:"next_payment_date" db:"next_payment_date"`
	PaymentMethod     string     `json:"payment_method" db:"payment_method"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// ValidateStatus reports whether the subscription status is known.
func (s Subscription) ValidateStatus() []string {
	if !oneOf(s.Status, subStatuses) {
		return []string{fmt.Sprintf("status: \"%s\" is not a valid choice.", s.Status)}
	}
	if s.EndDate.Before(s.StartDate) {
		return []string{"end_date: End date must not precede start date."}
	}
	return nil
}

// SubscriptionView is a subscription with its plan and derived limits.
type SubscriptionView struct {
	Subscription
	PlanDetails Plan `json:"plan_details"`
	IsTrial     bool `json:"is_trial"`
	Active      bool `json:"is_active"`
	MaxCameras  int  `json:"max_cameras"`
	MaxUsers    int  `json:"max_users"`
	StorageDays int  `json:"storage_days"`
}

// View derives the effective limits of s under plan p as of today.
func (s Subscription) View(p Plan, today time.Time) SubscriptionView {
	day := dateOnly(today)
	v := SubscriptionView{
		Subscription: s,
		PlanDetails:  p,
		MaxCameras:   p.MaxCameras,
		MaxUsers:     p.MaxUsers,
		StorageDays:  p.StorageDays,
	}
	if s.TrialEndDate != nil {
		v.IsTrial = !day.After(dateOnly(*s.TrialEndDate))
	}
	v.Active = s.Status == "active" && !day.Before(dateOnly(s.StartDate)) && !day.After(dateOnly(s.EndDate))
	if s.CustomMaxCameras != nil {
		v.MaxCameras = *s.CustomMaxCameras
	}
	if s.CustomMaxUsers != nil {
		v.MaxUsers = *s.CustomMaxUsers
	}
	if s.CustomStorageDays != nil {
		v.StorageDays = *s.CustomStorageDays
	}
	return v
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
