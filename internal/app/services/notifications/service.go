package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/metrics"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// Test notification wording.
const (
	testTitle   = "Test Notification"
	testSubject = "Security AI System - Test Notification"
	testMessage = "This is a test notification from the Security AI System."
)

// ErrNoPhone is recorded on SMS deliveries to users without a phone number.
var ErrNoPhone = errors.New("No phone number available for SMS notification.")

// Task names handled by this package.
const (
	DispatchTask = "notifications.dispatch_alert"
	DigestTask   = "notifications.email_digest"
)

// Service manages notification preferences and delivery.
type Service struct {
	store   storage.NotificationStore
	users   storage.UserStore
	alerts  storage.AlertStore
	cameras storage.CameraStore
	senders map[notification.Channel]Sender
	loc     *time.Location
	log     *logging.Logger
	now     func() time.Time
}

// New constructs a notification service. Channels without a sender fall back
// to a LogSender.
func New(store storage.NotificationStore, users storage.UserStore, alerts storage.AlertStore, cameras storage.CameraStore, senders map[notification.Channel]Sender, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("notifications")
	}
	s := &Service{
		store:   store,
		users:   users,
		alerts:  alerts,
		cameras: cameras,
		senders: make(map[notification.Channel]Sender, len(notification.Channels)),
		loc:     time.UTC,
		log:     log,
		now:     time.Now,
	}
	for _, c := range notification.Channels {
		if sender, ok := senders[c]; ok && sender != nil {
			s.senders[c] = sender
		} else {
			s.senders[c] = NewLogSender(c, log)
		}
	}
	return s
}

// WithLocation sets the zone quiet hours and digests are evaluated in.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Settings returns the caller's preferences, creating defaults when missing.
func (s *Service) Settings(ctx context.Context, p account.Principal) (notification.Setting, error) {
	st, err := s.store.GetNotificationSetting(ctx, p.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		st, err = s.store.SaveNotificationSetting(ctx, notification.DefaultSetting(p.UserID))
	}
	if err != nil {
		return notification.Setting{}, apperrors.Internal("", err)
	}
	return st, nil
}

// SaveSettings validates and stores st for the caller.
func (s *Service) SaveSettings(ctx context.Context, p account.Principal, st notification.Setting) (notification.Setting, error) {
	current, err := s.Settings(ctx, p)
	if err != nil {
		return notification.Setting{}, err
	}
	st.ID, st.UserID, st.CreatedAt = current.ID, p.UserID, current.CreatedAt
	if errs := st.Validate(); len(errs) > 0 {
		return notification.Setting{}, apperrors.Validation(errs...)
	}
	st, err = s.store.SaveNotificationSetting(ctx, st)
	if err != nil {
		return notification.Setting{}, apperrors.Internal("", err)
	}
	return st, nil
}

// Logs returns the caller's notification logs; admins see every log.
func (s *Service) Logs(ctx context.Context, p account.Principal, limit, offset int) ([]notification.Log, int, error) {
	logs, total, err := s.store.ListNotificationLogs(ctx, notification.LogFilter{UserID: p.ScopeOwner(), Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, apperrors.Internal("", err)
	}
	return logs, total, nil
}

// TestInput is the test notification request. An absent message gets the
// default text; a blank one is rejected.
type TestInput struct {
	NotificationType notification.Channel `json:"notification_type"`
	Message          *string              `json:"message"`
}

// SendTest delivers a test notification to the caller.
func (s *Service) SendTest(ctx context.Context, p account.Principal, in TestInput) (notification.Log, error) {
	if in.NotificationType == "" {
		in.NotificationType = notification.ChannelEmail
	}
	if !in.NotificationType.Valid() {
		return notification.Log{}, apperrors.Validation(apperrors.Field("notification_type", fmt.Sprintf("\"%s\" is not a valid choice.", in.NotificationType)))
	}
	message := testMessage
	if in.Message != nil {
		message = strings.TrimSpace(*in.Message)
		if message == "" {
			return notification.Log{}, apperrors.Validation(apperrors.Field("message", "This field may not be blank."))
		}
	}
	user, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		return notification.Log{}, apperrors.Internal("", err)
	}

	entry, err := s.deliver(ctx, user, in.NotificationType, testTitle, testSubject, message, nil)
	if err != nil {
		return notification.Log{}, apperrors.Internal("", err)
	}
	if entry.Status == notification.StatusFailed {
		return entry, apperrors.New(http.StatusInternalServerError, apperrors.CodeInternal,
			"Failed to send test "+string(in.NotificationType)+" notification.", entry.ErrorMessage).WithData(entry)
	}
	return entry, nil
}

// deliver writes a pending log titled title, sends body under subject and
// records the outcome. The returned error reports storage failures only.
func (s *Service) deliver(ctx context.Context, user account.User, c notification.Channel, title, subject, body string, alertID *int64) (notification.Log, error) {
	entry, err := s.store.CreateNotificationLog(ctx, notification.Log{
		UserID:           user.ID,
		Title:            title,
		Message:          body,
		NotificationType: c,
		Status:           notification.StatusPending,
		AlertID:          alertID,
	})
	if err != nil {
		return notification.Log{}, err
	}

	to := user.Email
	if c == notification.ChannelSMS {
		to = user.PhoneNumber
	}
	var sendErr error
	if c == notification.ChannelSMS && to == "" {
		sendErr = ErrNoPhone
	} else {
		sendErr = s.senders[c].Send(ctx, Message{UserID: user.ID, To: to, Subject: subject, Body: body, AlertID: alertID})
	}
	if sendErr != nil {
		entry.Status = notification.StatusFailed
		entry.ErrorMessage = sendErr.Error()
		s.log.WithError(sendErr).WithField("channel", c).WithField("user_id", user.ID).Warn("notification delivery failed")
	} else {
		sent := s.now().UTC()
		entry.Status = notification.StatusSent
		entry.SentAt = &sent
	}
	metrics.RecordNotification(string(c), string(entry.Status))
	return s.store.UpdateNotificationLog(ctx, entry)
}

// DispatchAlert notifies the owner of the alert's camera on every channel
// their preferences allow. Channels that already hold a sent log for the alert
// are skipped, so a retried dispatch does not notify twice. It returns the
// logs written.
func (s *Service) DispatchAlert(ctx context.Context, alertID int64) ([]notification.Log, error) {
	a, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("load alert %d: %w", alertID, err)
	}
	cam, err := s.cameras.GetCamera(ctx, a.CameraID)
	if err != nil {
		return nil, fmt.Errorf("load camera %d: %w", a.CameraID, err)
	}
	user, err := s.users.GetUser(ctx, cam.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", cam.UserID, err)
	}
	st, err := s.store.GetNotificationSetting(ctx, user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.WithField("user_id", user.ID).Info("no notification settings; skipping dispatch")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	severity := a.Severity
	if !severity.Valid() {
		severity = alert.SeverityMedium
	}
	channels := st.ChannelsFor(a.AlertType, severity, s.now().In(s.loc))
	title := notification.AlertTitle(a.AlertType)
	body := notification.AlertMessage(a, cam.Name, cam.Location)

	sent, _, err := s.store.ListNotificationLogs(ctx, notification.LogFilter{AlertID: a.ID, Status: notification.StatusSent})
	if err != nil {
		return nil, fmt.Errorf("load sent logs for alert %d: %w", a.ID, err)
	}
	done := make(map[notification.Channel]bool, len(sent))
	for _, l := range sent {
		done[l.NotificationType] = true
	}

	var logs []notification.Log
	for _, c := range channels {
		if c == notification.ChannelSMS && user.PhoneNumber == "" {
			continue
		}
		if done[c] {
			s.log.WithField("alert_id", a.ID).WithField("channel", c).Debug("already delivered; skipping")
			continue
		}
		id := a.ID
		entry, err := s.deliver(ctx, user, c, title, title, body, &id)
		if err != nil {
			return logs, err
		}
		logs = append(logs, entry)
	}
	s.log.WithField("alert_id", a.ID).WithField("deliveries", len(logs)).Info("alert notifications dispatched")
	return logs, nil
}

// DigestReport summarizes one digest run.
type DigestReport struct {
	Users int `json:"users"`
	Sent  int `json:"sent"`
}

// SendDigests emails each active user with email enabled a summary of the
// alerts detected on their cameras over the previous day. Users without
// alerts are skipped.
func (s *Service) SendDigests(ctx context.Context) (DigestReport, error) {
	now := s.now().UTC()
	from := now.Add(-24 * time.Hour)
	active := true
	users, _, err := s.users.ListUsers(ctx, account.Filter{IsActive: &active})
	if err != nil {
		return DigestReport{}, err
	}

	var report DigestReport
	for _, user := range users {
		st, err := s.store.GetNotificationSetting(ctx, user.ID)
		if err != nil || !st.EmailEnabled {
			continue
		}
		rows, _, err := s.alerts.ListAlerts(ctx, alert.Filter{OwnerID: user.ID, From: &from, To: &now})
		if err != nil {
			return report, err
		}
		if len(rows) == 0 {
			continue
		}
		report.Users++

		counts := make(map[alert.Type]*notification.DigestCount)
		for _, a := range rows {
			c, ok := counts[a.AlertType]
			if !ok {
				c = &notification.DigestCount{}
				counts[a.AlertType] = c
			}
			c.Total++
			if a.Status == alert.StatusNew {
				c.New++
			} else {
				c.Handled++
			}
		}
		subject := "Daily Alert Digest - " + now.In(s.loc).Format("2006-01-02")
		entry, err := s.deliver(ctx, user, notification.ChannelEmail, subject, subject, digestBody(user, counts), nil)
		if err != nil {
			return report, err
		}
		if entry.Status == notification.StatusSent {
			report.Sent++
		}
	}
	s.log.WithField("users", report.Users).WithField("sent", report.Sent).Info("daily digests processed")
	return report, nil
}

func digestBody(user account.User, counts map[alert.Type]*notification.DigestCount) string {
	types := make([]alert.Type, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	name := user.FullName
	if name == "" {
		name = user.Email
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nHere is your alert summary for the last 24 hours:\n\n", name)
	for _, t := range types {
		c := counts[t]
		fmt.Fprintf(&b, "%s: %d total (%d new, %d handled)\n", t.DisplayName(), c.Total, c.New, c.Handled)
	}
	return b.String()
}
