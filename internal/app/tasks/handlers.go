package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/services/admin"
	"github.com/R3E-Network/sentinel/internal/app/services/alerts"
	"github.com/R3E-Network/sentinel/internal/app/services/cameras"
	"github.com/R3E-Network/sentinel/internal/app/services/notifications"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// UpdateStatusesTask re-probes every camera.
const UpdateStatusesTask = "cameras.update_statuses"

// DefaultSchedule is the periodic work the beat process enqueues.
func DefaultSchedule() []Entry {
	return []Entry{
		{Spec: "@every 5m", Task: UpdateStatusesTask},
		{Spec: "@every 1h", Task: admin.SystemCheckTask},
		{Spec: "@every 24h", Task: notifications.DigestTask, Expiry: time.Hour},
	}
}

// Services are the task handler dependencies.
type Services struct {
	Cameras       *cameras.Service
	Admin         *admin.Service
	Notifications *notifications.Service
}

// Register installs the handlers for every known task on w.
func Register(w *Worker, svc Services, log *logging.Logger) {
	if log == nil {
		log = logging.NewDefault("tasks")
	}
	w.Handle(UpdateStatusesTask, func(ctx context.Context, _ Task) error {
		report, err := svc.Cameras.UpdateStatuses(ctx)
		if err != nil {
			return err
		}
		log.WithField("checked", report.Checked).WithField("changed", report.Changed).Info("camera statuses updated")
		return nil
	})
	w.Handle(admin.SystemCheckTask, func(ctx context.Context, _ Task) error {
		_, err := svc.Admin.RunSystemCheck(ctx)
		return err
	})
	w.Handle(notifications.DigestTask, func(ctx context.Context, _ Task) error {
		report, err := svc.Notifications.SendDigests(ctx)
		if err != nil {
			return err
		}
		log.WithField("users", report.Users).WithField("sent", report.Sent).Info("daily digests sent")
		return nil
	})
	w.Handle(alerts.DispatchTask, func(ctx context.Context, t Task) error {
		var p alerts.DispatchPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		_, err := svc.Notifications.DispatchAlert(ctx, p.AlertID)
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("alert_id", p.AlertID).Warn("alert vanished before dispatch")
			return nil
		}
		return err
	})
}
