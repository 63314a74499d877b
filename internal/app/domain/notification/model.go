package notification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
)

// Channel is a delivery mechanism.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Channels lists every channel in dispatch order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

// Valid reports whether c is known.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

// Status is the delivery state of a log entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
)

// ChannelFlags are the per-alert-type toggles of one channel.
type ChannelFlags struct {
	FireSmoke        bool
	Fall             bool
	Violence         bool
	Choking          bool
	UnauthorizedFace bool
}

// Setting holds a user's notification preferences.
type Setting struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"user" db:"user_id"`

	EmailEnabled             bool `json:"email_enabled" db:"email_enabled"`
	EmailForFireSmoke        bool `json:"email_for_fire_smoke" db:"email_for_fire_smoke"`
	EmailForFall             bool `json:"email_for_fall" db:"email_for_fall"`
	EmailForViolence         bool `json:"email_for_violence" db:"email_for_violence"`
	EmailForChoking          bool `json:"email_for_choking" db:"email_for_choking"`
	EmailForUnauthorizedFace bool `json:"email_for_unauthorized_face" db:"email_for_unauthorized_face"`

	SMSEnabled             bool `json:"sms_enabled" db:"sms_enabled"`
	SMSForFireSmoke        bool `json:"sms_for_fire_smoke" db:"sms_for_fire_smoke"`
	SMSForFall             bool `json:"sms_for_fall" db:"sms_for_fall"`
	SMSForViolence         bool `json:"sms_for_violence" db:"sms_for_violence"`
	SMSForChoking          bool `json:"sms_for_choking" db:"sms_for_choking"`
	SMSForUnauthorizedFace bool `json:"sms_for_unauthorized_face" db:"sms_for_unauthorized_face"`

	PushEnabled             bool `json:"push_enabled" db:"push_enabled"`
	PushForFireSmoke        bool `json:"push_for_fire_smoke" db:"push_for_fire_smoke"`
	PushForFall             bool `json:"push_for_fall" db:"push_for_fall"`
	PushForViolence         bool `json:"push_for_violence" db:"push_for_violence"`
	PushForChoking          bool `json:"push_for_choking" db:"push_for_choking"`
	PushForUnauthorizedFace bool `json:"push_for_unauthorized_face" db:"push_for_unauthorized_face"`

	QuietHoursEnabled bool   `json:"quiet_hours_enabled" db:"quiet_hours_enabled"`
	QuietHoursStart   string `json:"quiet_hours_start" db:"quiet_hours_start"`
	QuietHoursEnd     string `json:"quiet_hours_end" db:"quiet_hours_end"`

	MinSeverityEmail alert.Severity `json:"min_severity_email" db:"min_severity_email"`
	MinSeveritySMS   alert.Severity `json:"min_severity_sms" db:"min_severity_sms"`
	MinSeverityPush  alert.Severity `json:"min_severity_push" db:"min_severity_push"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultSetting returns the preferences created with every account.
func DefaultSetting(userID int64) Setting {
	return Setting{
		UserID:                   userID,
		EmailEnabled:             true,
		EmailForFireSmoke:        true,
		EmailForFall:             true,
		EmailForViolence:         true,
		EmailForChoking:          true,
		EmailForUnauthorizedFace: true,
		SMSForFireSmoke:          true,
		SMSForFall:               true,
		SMSForViolence:           true,
		SMSForChoking:            true,
		SMSForUnauthorizedFace:   true,
		PushEnabled:              true,
		PushForFireSmoke:         true,
		PushForFall:              true,
		PushForViolence:          true,
		PushForChoking:           true,
		PushForUnauthorizedFace:  true,
		QuietHoursStart:          "22:00",
		QuietHoursEnd:            "07:00",
		MinSeverityEmail:         alert.SeverityMedium,
		MinSeveritySMS:           alert.SeverityHigh,
		MinSeverityPush:          alert.SeverityMedium,
	}
}

func defaultMinimum(c Channel) alert.Severity {
	if c == ChannelSMS {
		return alert.SeverityHigh
	}
	return alert.SeverityMedium
}

// Enabled reports whether channel c is switched on.
func (s Setting) Enabled(c Channel) bool {
	switch c {
	case ChannelEmail:
		return s.EmailEnabled
	case ChannelSMS:
		return s.SMSEnabled
	case ChannelPush:
		return s.PushEnabled
	}
	return false
}

// Flags returns the per-type toggles of channel c.
func (s Setting) Flags(c Channel) ChannelFlags {
	switch c {
	case ChannelEmail:
		return ChannelFlags{s.EmailForFireSmoke, s.EmailForFall, s.EmailForViolence, s.EmailForChoking, s.EmailForUnauthorizedFace}
	case ChannelSMS:
		return ChannelFlags{s.SMSForFireSmoke, s.SMSForFall, s.SMSForViolence, s.SMSForChoking, s.SMSForUnauthorizedFace}
	case ChannelPush:
		return ChannelFlags{s.PushForFireSmoke, s.PushForFall, s.PushForViolence, s.PushForChoking, s.PushForUnauthorizedFace}
	}
	return ChannelFlags{}
}

// Allows reports whether the flags permit alerts of type t. Types without a
// dedicated toggle are never sent.
func (f ChannelFlags) Allows(t alert.Type) bool {
	switch t {
	case alert.TypeFireSmoke:
		return f.FireSmoke
	case alert.TypeFall:
		return f.Fall
	case alert.TypeViolence:
		return f.Violence
	case alert.TypeChoking:
		return f.Choking
	case alert.TypeUnauthorizedFace:
		return f.UnauthorizedFace
	}
	return false
}

// MinSeverity returns the channel threshold, falling back to the channel
// default when the stored value is unknown.
func (s Setting) MinSeverity(c Channel) alert.Severity {
	var v alert.Severity
	switch c {
	case ChannelEmail:
		v = s.MinSeverityEmail
	case ChannelSMS:
		v = s.MinSeveritySMS
	case ChannelPush:
		v = s.MinSeverityPush
	}
	if !v.Valid() {
		return defaultMinimum(c)
	}
	return v
}

// InQuietHours reports whether now (already in the configured zone) falls in
// the quiet window. Windows crossing midnight are supported.
func (s Setting) InQuietHours(now time.Time) bool {
	if !s.QuietHoursEnabled {
		return false
	}
	start, err1 := ParseClock(s.QuietHoursStart)
	end, err2 := ParseClock(s.QuietHoursEnd)
	if err1 != nil || err2 != nil {
		return false
	}
	cur := sinceMidnight(now)
	if start <= end {
		return start <= cur && cur <= end
	}
	return !(end <= cur && cur <= start)
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

// ChannelsFor returns the channels an alert should be sent on at time now.
func (s Setting) ChannelsFor(t alert.Type, sev alert.Severity, now time.Time) []Channel {
	if s.InQuietHours(now) && sev != alert.SeverityCritical {
		return nil
	}
	var out []Channel
	for _, c := range Channels {
		if !s.Enabled(c) || !s.Flags(c).Allows(t) {
			continue
		}
		if sev.Rank() < s.MinSeverity(c).Rank() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ParseClock parses HH:MM or HH:MM:SS into the offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return sinceMidnight(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", v)
}

// Log is a record of one notification attempt.
type Log struct {
	ID               int64      `json:"id" db:"id"`
	UserID           int64      `json:"user" db:"user_id"`
	Title            string     `json:"title" db:"title"`
	Message          string     `json:"message" db:"message"`
	NotificationType Channel    `json:"notification_type" db:"notification_type"`
	Status           Status     `json:"status" db:"status"`
	AlertID          *int64     `json:"alert" db:"alert_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	SentAt           *time.Time `json:"sent_at" db:"sent_at"`
	ErrorMessage     string     `json:"error_message" db:"error_message"`
}

// LogFilter selects notification logs.
type LogFilter struct {
	UserID  int64
	AlertID int64
	Status  Status
	Limit   int
	Offset  int
}

// DigestCount is the per-type digest line.
type DigestCount struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Handled int `json:"handled"`
}

// AlertTitle is the subject line of an alert notification.
func AlertTitle(t alert.Type) string {
	return fmt.Sprintf("ALERT: %s detected", t.DisplayName())
}

// AlertMessage is the body of an alert notification.
func AlertMessage(a alert.Alert, cameraName, cameraLocation string) string {
	loc := cameraLocation
	if loc == "" {
		loc = "Unknown location"
	}
	return fmt.Sprintf("%s detected at %s (%s) with %.2f confidence.", a.AlertType.DisplayName(), cameraName, loc, a.Confidence)
}

// Validate returns field-scoped problems with s.
func (s Setting) Validate() []string {
	var errs []string
	for field, v := range map[string]alert.Severity{
		"min_severity_email": s.MinSeverityEmail,
		"min_severity_sms":   s.MinSeveritySMS,
		"min_severity_push":  s.MinSeverityPush,
	} {
		if !v.Valid() {
			errs = append(errs, fmt.Sprintf("%s: \"%s\" is not a valid choice.", field, v))
		}
	}
	if _, err := ParseClock(s.QuietHoursStart); err != nil {
		errs = append(errs, "quiet_hours_start: Time has wrong format. Use one of these formats instead: hh:mm[:ss].")
	}
	if _, err := ParseClock(s.QuietHoursEnd); err != nil {
		errs = append(errs, "quiet_hours_end: Time has wrong format. Use one of these formats instead: hh:mm[:ss].")
	}
	sort.Strings(errs)
	return errs
}
