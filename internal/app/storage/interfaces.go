package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/admin"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/domain/face"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
)

// ErrDuplicate is returned when a unique constraint would be violated.
// Missing records are reported as sql.ErrNoRows.
var ErrDuplicate = errors.New("storage: duplicate record")

// ErrReferenced is returned when a record cannot be removed because others
// still point at it.
var ErrReferenced = errors.New("storage: record is still referenced")

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser stores the user together with its notification settings.
	CreateUser(ctx context.Context, user account.User, settings notification.Setting) (account.User, error)
	UpdateUser(ctx context.Context, user account.User) (account.User, error)
	GetUser(ctx context.Context, id int64) (account.User, error)
	GetUserByEmail(ctx context.Context, email string) (account.User, error)
	ListUsers(ctx context.Context, filter account.Filter) ([]account.User, int, error)
	DeleteUser(ctx context.Context, id int64) error
}

// CameraStore persists cameras.
type CameraStore interface {
	CreateCamera(ctx context.Context, cam camera.Camera) (camera.Camera, error)
	UpdateCamera(ctx context.Context, cam camera.Camera) (camera.Camera, error)
	GetCamera(ctx context.Context, id int64) (camera.Camera, error)
	ListCameras(ctx context.Context, filter camera.Filter) ([]camera.Camera, int, error)
	DeleteCamera(ctx context.Context, id int64) error
}

// AlertStore persists alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	GetAlert(ctx context.Context, id int64) (alert.Alert, error)
	ListAlerts(ctx context.Context, filter alert.Filter) ([]alert.Alert, int, error)
}

// FaceStore persists authorized faces and verification logs.
type FaceStore interface {
	CreateFace(ctx context.Context, f face.AuthorizedFace) (face.AuthorizedFace, error)
	UpdateFace(ctx context.Context, f face.AuthorizedFace) (face.AuthorizedFace, error)
	GetFace(ctx context.Context, id int64) (face.AuthorizedFace, error)
	ListFaces(ctx context.Context, filter face.Filter) ([]face.AuthorizedFace, int, error)
	DeleteFace(ctx context.Context, id int64) error

	CreateVerificationLog(ctx context.Context, log face.VerificationLog) (face.VerificationLog, error)
}

// NotificationStore persists notification settings and delivery logs.
type NotificationStore interface {
	GetNotificationSetting(ctx context.Context, userID int64) (notification.Setting, error)
	SaveNotificationSetting(ctx context.Context, s notification.Setting) (notification.Setting, error)

	CreateNotificationLog(ctx context.Context, log notification.Log) (notification.Log, error)
	UpdateNotificationLog(ctx context.Context, log notification.Log) (notification.Log, error)
	ListNotificationLogs(ctx context.Context, filter notification.LogFilter) ([]notification.Log, int, error)
}

// AdminStore persists system checks, settings and subscriptions.
type AdminStore interface {
	CreateSystemCheck(ctx context.Context, check admin.SystemCheck) (admin.SystemCheck, error)
	LatestSystemCheck(ctx context.Context, checkType string) (admin.SystemCheck, error)

	CreateSetting(ctx context.Context, s admin.Setting) (admin.Setting, error)
	UpdateSetting(ctx context.Context, s admin.Setting) (admin.Setting, error)
	GetSetting(ctx context.Context, id int64) (admin.Setting, error)
	GetSettingByKey(ctx context.Context, key string) (admin.Setting, error)
	ListSettings(ctx context.Context) ([]admin.Setting, error)
	DeleteSetting(ctx context.Context, id int64) error

	CreatePlan(ctx context.Context, p admin.Plan) (admin.Plan, error)
	UpdatePlan(ctx context.Context, p admin.Plan) (admin.Plan, error)
	GetPlan(ctx context.Context, id int64) (admin.Plan, error)
	ListPlans(ctx context.Context) ([]admin.Plan, error)
	DeletePlan(ctx context.Context, id int64) error

	GetSubscriptionByUser(ctx context.Context, userID int64) (admin.Subscription, error)
	SaveSubscription(ctx context.Context, s admin.Subscription) (admin.Subscription, error)
}

// Pinger reports store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
