package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// DispatchTask is the task enqueued for every created alert.
const DispatchTask = "notifications.dispatch_alert"

// DispatchPayload is the payload of DispatchTask.
type DispatchPayload struct {
	AlertID int64 `json:"alert_id"`
}

// Enqueuer schedules background work.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload interface{}) error
}

// Publisher fans out realtime alert events.
type Publisher interface {
	Publish(ctx context.Context, ev alert.Event) error
}

// Service manages alerts raised against cameras.
type Service struct {
	alerts  storage.AlertStore
	cameras storage.CameraStore
	users   storage.UserStore
	files   *media.Store
	queue   Enqueuer
	events  Publisher
	loc     *time.Location
	log     *logging.Logger
	now     func() time.Time
}

// New constructs an alert service.
func New(alerts storage.AlertStore, cameras storage.CameraStore, users storage.UserStore, files *media.Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("alerts")
	}
	return &Service{
		alerts:  alerts,
		cameras: cameras,
		users:   users,
		files:   files,
		loc:     time.UTC,
		log:     log,
		now:     time.Now,
	}
}

// WithQueue sets the task queue notified on creation.
func (s *Service) WithQueue(q Enqueuer) { s.queue = q }

// WithPublisher sets the realtime event sink.
func (s *Service) WithPublisher(p Publisher) { s.events = p }

// WithLocation sets the zone calendar filters and summaries are computed in.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// UserRef is the compact user projection embedded in alert details.
type UserRef struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Detail is the full alert representation.
type Detail struct {
	alert.Alert
	IsResolved        bool            `json:"is_resolved"`
	CameraDetails     *camera.Summary `json:"camera_details"`
	ResolvedByDetails *UserRef        `json:"resolved_by_details"`
}

// Query carries the list filters as received from clients.
type Query struct {
	Status    string
	Type      string
	Severity  string
	CameraID  int64
	StartDate string
	EndDate   string
	Limit     int
	Offset    int
}

// List returns alerts visible to p, newest first. Malformed dates are ignored.
func (s *Service) List(ctx context.Context, p account.Principal, q Query) ([]alert.ListItem, int, error) {
	filter := alert.Filter{
		OwnerID:  p.ScopeOwner(),
		CameraID: q.CameraID,
		Status:   alert.Status(q.Status),
		Type:     alert.Type(q.Type),
		Severity: alert.Severity(q.Severity),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if from, ok := alert.ParseDate(q.StartDate, s.loc); ok {
		filter.From = &from
	}
	if end, ok := alert.ParseDate(q.EndDate, s.loc); ok {
		to := end.AddDate(0, 0, 1)
		filter.To = &to
	}
	rows, total, err := s.alerts.ListAlerts(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Internal("", err)
	}
	items := make([]alert.ListItem, 0, len(rows))
	for _, a := range rows {
		items = append(items, a.Item())
	}
	return items, total, nil
}

// CreateInput is the alert creation payload. VideoFile and Thumbnail are
// media paths of already stored uploads.
type CreateInput struct {
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	AlertType     alert.Type     `json:"alert_type"`
	Status        alert.Status   `json:"status"`
	Severity      alert.Severity `json:"severity"`
	Confidence    float64        `json:"confidence"`
	DetectionTime *time.Time     `json:"detection_time"`
	CameraID      int64          `json:"camera"`
	Location      string         `json:"location"`
	Notes         string         `json:"notes"`
	IsTest        bool           `json:"is_test"`
	VideoFile     string         `json:"-"`
	Thumbnail     string         `json:"-"`
}

// Create stores an alert on a camera visible to p.
func (s *Service) Create(ctx context.Context, p account.Principal, in CreateInput) (Detail, error) {
	var errs []string
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		errs = append(errs, apperrors.Field("title", "This field is required."))
	case len(title) > 255:
		errs = append(errs, apperrors.Field("title", "Ensure this field has no more than 255 characters."))
	}
	if !in.AlertType.Valid() {
		errs = append(errs, apperrors.Field("alert_type", fmt.Sprintf("\"%s\" is not a valid choice.", in.AlertType)))
	}
	if in.Status != "" && !in.Status.Valid() {
		errs = append(errs, apperrors.Field("status", fmt.Sprintf("\"%s\" is not a valid choice.", in.Status)))
	}
	if in.Severity != "" && !in.Severity.Valid() {
		errs = append(errs, apperrors.Field("severity", fmt.Sprintf("\"%s\" is not a valid choice.", in.Severity)))
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		errs = append(errs, apperrors.Field("confidence", "Ensure this value is between 0 and 1."))
	}
	if in.CameraID == 0 {
		errs = append(errs, apperrors.Field("camera", "This field is required."))
	} else if cam, err := s.cameras.GetCamera(ctx, in.CameraID); err != nil || !p.CanAccess(cam.UserID) {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Detail{}, apperrors.Internal("", err)
		}
		errs = append(errs, apperrors.Field("camera", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", in.CameraID)))
	}
	if len(errs) > 0 {
		return Detail{}, apperrors.Validation(errs...)
	}

	a := alert.Alert{
		Title:       title,
		Description: in.Description,
		AlertType:   in.AlertType,
		Status:      in.Status,
		Severity:    in.Severity,
		Confidence:  in.Confidence,
		CameraID:    in.CameraID,
		Location:    in.Location,
		Notes:       in.Notes,
		IsTest:      in.IsTest,
		VideoFile:   in.VideoFile,
		Thumbnail:   in.Thumbnail,
	}
	if in.DetectionTime != nil {
		a.DetectionTime = in.DetectionTime.UTC()
	}
	a, err := s.Raise(ctx, a)
	if err != nil {
		return Detail{}, apperrors.Internal("", err)
	}
	return s.detail(ctx, a), nil
}

// Raise stores a, filling defaults, then schedules notification dispatch and
// publishes a realtime event. Dispatch and publish failures are logged.
func (s *Service) Raise(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	if a.Status == "" {
		a.Status = alert.StatusNew
	}
	if a.Severity == "" {
		if a.Confidence > 0 {
			a.Severity = alert.SeverityForConfidence(a.Confidence)
		} else {
			a.Severity = alert.SeverityMedium
		}
	}
	if a.DetectionTime.IsZero() {
		a.DetectionTime = s.now().UTC()
	}
	a, err := s.alerts.CreateAlert(ctx, a)
	if err != nil {
		return alert.Alert{}, err
	}

	entry := s.log.WithField("alert_id", a.ID).WithField("camera_id", a.CameraID).WithField("alert_type", a.AlertType)
	entry.Info("alert created")
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, DispatchTask, DispatchPayload{AlertID: a.ID}); err != nil {
			entry.WithError(err).Warn("enqueue notification dispatch failed")
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, alert.Event{OwnerID: a.CameraOwnerID, Alert: a.Item()}); err != nil {
			entry.WithError(err).Warn("publish alert event failed")
		}
	}
	return a, nil
}

// Get returns the full alert. Alerts of foreign cameras are reported as
// missing.
func (s *Service) Get(ctx context.Context, p account.Principal, id int64) (Detail, error) {
	a, err := s.get(ctx, p, id)
	if err != nil {
		return Detail{}, err
	}
	return s.detail(ctx, a), nil
}

func (s *Service) get(ctx context.Context, p account.Principal, id int64) (alert.Alert, error) {
	a, err := s.alerts.GetAlert(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, apperrors.NotFound("alert")
	}
	if err != nil {
		return alert.Alert{}, apperrors.Internal("", err)
	}
	if !p.CanAccess(a.CameraOwnerID) {
		return alert.Alert{}, apperrors.NotFound("alert")
	}
	return a, nil
}

func (s *Service) detail(ctx context.Context, a alert.Alert) Detail {
	d := Detail{Alert: a, IsResolved: a.IsResolved()}
	if cam, err := s.cameras.GetCamera(ctx, a.CameraID); err == nil {
		summary := cam.Summarize()
		d.CameraDetails = &summary
	}
	if a.ResolvedBy != nil && s.users != nil {
		if u, err := s.users.GetUser(ctx, *a.ResolvedBy); err == nil {
			d.ResolvedByDetails = &UserRef{ID: u.ID, Email: u.Email, FullName: u.FullName}
		}
	}
	return d
}

// UpdateStatus resolves an alert on behalf of p.
func (s *Service) UpdateStatus(ctx context.Context, p account.Principal, id int64, status alert.Status, notes string) (Detail, error) {
	switch status {
	case alert.StatusConfirmed, alert.StatusDismissed, alert.StatusFalsePositive:
	case "":
		return Detail{}, apperrors.Validation(apperrors.Field("status", "This field is required."))
	default:
		return Detail{}, apperrors.Validation(apperrors.Field("status", fmt.Sprintf("\"%s\" is not a valid choice.", status)))
	}

	a, err := s.get(ctx, p, id)
	if err != nil {
		return Detail{}, err
	}
	now := s.now().UTC()
	resolver := p.UserID
	a.Status = status
	a.ResolvedTime = &now
	a.ResolvedBy = &resolver
	if strings.TrimSpace(notes) != "" {
		a.Notes = notes
	}
	a, err = s.alerts.UpdateAlert(ctx, a)
	if err != nil {
		return Detail{}, apperrors.Internal("", err)
	}
	s.log.WithField("alert_id", id).WithField("status", status).WithField("user_id", p.UserID).Info("alert status updated")
	return s.detail(ctx, a), nil
}

// Summary aggregates the alerts visible to p.
func (s *Service) Summary(ctx context.Context, p account.Principal) (alert.Summary, error) {
	rows, _, err := s.alerts.ListAlerts(ctx, alert.Filter{OwnerID: p.ScopeOwner()})
	if err != nil {
		return alert.Summary{}, apperrors.Internal("", err)
	}
	return alert.Summarize(rows, s.now().In(s.loc)), nil
}

// VideoPath resolves the stored video of an alert to a local file path.
func (s *Service) VideoPath(ctx context.Context, p account.Principal, id int64) (string, error) {
	a, err := s.get(ctx, p, id)
	if err != nil {
		return "", err
	}
	if a.VideoFile == "" {
		return "", apperrors.New(http.StatusNotFound, apperrors.CodeNotFound, "No video file available for this alert.")
	}
	if s.files == nil || !s.files.Exists(a.VideoFile) {
		return "", apperrors.New(http.StatusNotFound, apperrors.CodeNotFound, "Video file not found on the server.")
	}
	return s.files.Path(a.VideoFile)
}
