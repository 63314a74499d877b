package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	domain "github.com/R3E-Network/sentinel/internal/app/domain/admin"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// SystemCheckTask is the scheduled system check task.
const SystemCheckTask = "admin.system_check"

// Stores groups the stores the admin panel reads.
type Stores struct {
	Users   storage.UserStore
	Cameras storage.CameraStore
	Alerts  storage.AlertStore
	Admin   storage.AdminStore
}

// Service implements the admin panel.
type Service struct {
	users     storage.UserStore
	cameras   storage.CameraStore
	alerts    storage.AlertStore
	store     storage.AdminStore
	host      HostStats
	detectors *Detectors
	version   string
	loc       *time.Location
	log       *logging.Logger
	now       func() time.Time
}

// New constructs the admin service.
func New(stores Stores, host HostStats, detectors *Detectors, version string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("admin")
	}
	if detectors == nil {
		detectors = NewDetectors(nil)
	}
	return &Service{
		users:     stores.Users,
		cameras:   stores.Cameras,
		alerts:    stores.Alerts,
		store:     stores.Admin,
		host:      host,
		detectors: detectors,
		version:   version,
		loc:       time.UTC,
		log:       log,
		now:       time.Now,
	}
}

// WithLocation sets the zone "today" is computed in.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

func requireAdmin(p account.Principal) error {
	if !p.IsAdmin() {
		return apperrors.Forbidden()
	}
	return nil
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(resource)
	}
	return apperrors.Internal("", err)
}

// --- users ------------------------------------------------------------------

// UserView is a user with usage counts for the admin panel.
type UserView struct {
	account.User
	CamerasCount        int                      `json:"cameras_count"`
	AlertsCount         int                      `json:"alerts_count"`
	SubscriptionDetails *domain.SubscriptionView `json:"subscription_details"`
}

// UserQuery carries the user list filters.
type UserQuery struct {
	Role     string
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// ListUsers returns users matching q.
func (s *Service) ListUsers(ctx context.Context, p account.Principal, q UserQuery) ([]UserView, int, error) {
	if err := requireAdmin(p); err != nil {
		return nil, 0, err
	}
	users, total, err := s.users.ListUsers(ctx, account.Filter{
		Role:     account.Role(q.Role),
		IsActive: q.IsActive,
		Search:   q.Search,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return nil, 0, apperrors.Internal("", err)
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		v, err := s.view(ctx, u)
		if err != nil {
			return nil, 0, apperrors.Internal("", err)
		}
		out = append(out, v)
	}
	return out, total, nil
}

func (s *Service) view(ctx context.Context, u account.User) (UserView, error) {
	v := UserView{User: u}
	_, cams, err := s.cameras.ListCameras(ctx, camera.Filter{UserID: u.ID, Limit: 1})
	if err != nil {
		return v, err
	}
	_, alerts, err := s.alerts.ListAlerts(ctx, alert.Filter{OwnerID: u.ID, Limit: 1})
	if err != nil {
		return v, err
	}
	v.CamerasCount, v.AlertsCount = cams, alerts

	sub, err := s.store.GetSubscriptionByUser(ctx, u.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return v, err
	default:
		plan, err := s.store.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return v, err
		}
		view := sub.View(plan, s.now().In(s.loc))
		v.SubscriptionDetails = &view
	}
	return v, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, p account.Principal, id int64) (UserView, error) {
	if err := requireAdmin(p); err != nil {
		return UserView{}, err
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return UserView{}, notFoundOr(err, "user")
	}
	v, err := s.view(ctx, u)
	if err != nil {
		return UserView{}, apperrors.Internal("", err)
	}
	return v, nil
}

// UserPatch carries the admin-editable user fields.
type UserPatch struct {
	Email       *string       `json:"email"`
	FullName    *string       `json:"full_name"`
	Role        *account.Role `json:"role"`
	PhoneNumber *string       `json:"phone_number"`
	IsActive    *bool         `json:"is_active"`
}

// UpdateUser applies patch to the user id.
func (s *Service) UpdateUser(ctx context.Context, p account.Principal, id int64, patch UserPatch) (UserView, error) {
	if err := requireAdmin(p); err != nil {
		return UserView{}, err
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return UserView{}, notFoundOr(err, "user")
	}

	var errs []string
	if patch.Email != nil {
		email := account.NormalizeEmail(*patch.Email)
		if !strings.Contains(email, "@") {
			errs = append(errs, apperrors.Field("email", "Enter a valid email address."))
		}
		u.Email = email
	}
	if patch.FullName != nil {
		u.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			errs = append(errs, apperrors.Field("role", fmt.Sprintf("\"%s\" is not a valid choice.", *patch.Role)))
		}
		u.Role = *patch.Role
	}
	if patch.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*patch.PhoneNumber)
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if len(errs) > 0 {
		return UserView{}, apperrors.Validation(errs...)
	}

	u, err = s.users.UpdateUser(ctx, u)
	if errors.Is(err, storage.ErrDuplicate) {
		return UserView{}, apperrors.Validation(apperrors.Field("email", "user with this email already exists."))
	}
	if err != nil {
		return UserView{}, apperrors.Internal("", err)
	}
	s.log.WithField("user_id", id).WithField("admin_id", p.UserID).Info("user updated by admin")
	v, err := s.view(ctx, u)
	if err != nil {
		return UserView{}, apperrors.Internal("", err)
	}
	return v, nil
}

// SetActive activates or deactivates a user.
func (s *Service) SetActive(ctx context.Context, p account.Principal, id int64, active bool) (UserView, error) {
	return s.UpdateUser(ctx, p, id, UserPatch{IsActive: &active})
}

// DeleteUser removes a user and everything they own.
func (s *Service) DeleteUser(ctx context.Context, p account.Principal, id int64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return notFoundOr(err, "user")
	}
	s.log.WithField("user_id", id).WithField("admin_id", p.UserID).Info("user deleted by admin")
	return nil
}

// --- system status ------------------------------------------------------------

// SystemStatus collects the dashboard view and records an automatic check.
func (s *Service) SystemStatus(ctx context.Context, p account.Principal) (domain.SystemStatus, error) {
	if err := requireAdmin(p); err != nil {
		return domain.SystemStatus{}, err
	}
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	weekAgo := today.AddDate(0, 0, -7)

	var st domain.SystemStatus
	users, total, err := s.users.ListUsers(ctx, account.Filter{})
	if err != nil {
		return st, apperrors.Internal("", err)
	}
	st.TotalUsers = total
	for _, u := range users {
		if u.IsActive {
			st.ActiveUsers++
		}
	}

	cams, _, err := s.cameras.ListCameras(ctx, camera.Filter{})
	if err != nil {
		return st, apperrors.Internal("", err)
	}
	st.TotalCameras = len(cams)
	for _, c := range cams {
		switch c.Status {
		case camera.StatusOnline:
			st.OnlineCameras++
		case camera.StatusOffline:
			st.OfflineCameras++
		}
	}

	alerts, _, err := s.alerts.ListAlerts(ctx, alert.Filter{})
	if err != nil {
		return st, apperrors.Internal("", err)
	}
	st.TotalAlerts = len(alerts)
	st.AlertTypes = map[string]int{}
	for _, a := range alerts {
		if a.Status == alert.StatusNew {
			st.NewAlerts++
		}
		at := a.DetectionTime.In(s.loc)
		if !at.Before(today) {
			st.AlertsToday++
		}
		if !at.Before(weekAgo) {
			st.AlertsThisWeek++
		}
		st.AlertTypes[string(a.AlertType)]++
	}

	usage := s.usage(ctx)
	st.CPUUsage, st.MemoryUsage, st.DiskUsage = usage.CPU, usage.Memory, usage.Disk
	st.SystemHealth = domain.Health(usage.CPU, usage.Memory, usage.Disk)
	st.Uptime = domain.FormatUptime(usage.Uptime)
	st.SystemVersion = s.version

	status := domain.CheckSuccess
	if st.SystemHealth == "critical" {
		status = domain.CheckError
	}
	_, err = s.store.CreateSystemCheck(ctx, domain.SystemCheck{
		CheckType:      "auto",
		Status:         status,
		Details:        fmt.Sprintf("System health: %s", st.SystemHealth),
		CPUUsage:       usage.CPU,
		MemoryUsage:    usage.Memory,
		DiskUsage:      usage.Disk,
		CameraCount:    st.TotalCameras,
		OnlineCameras:  st.OnlineCameras,
		OfflineCameras: st.OfflineCameras,
		Alerts24h:      countSince(alerts, s.now().Add(-24*time.Hour)),
	})
	if err != nil {
		s.log.WithError(err).Warn("record system check failed")
	}
	return st, nil
}

func (s *Service) usage(ctx context.Context) Usage {
	if s.host == nil {
		return Usage{}
	}
	u, err := s.host.Usage(ctx)
	if err != nil {
		s.log.WithError(err).Warn("host usage unavailable")
	}
	return u
}

func countSince(alerts []alert.Alert, since time.Time) int {
	n := 0
	for _, a := range alerts {
		if !a.DetectionTime.Before(since) {
			n++
		}
	}
	return n
}

// RunSystemCheck records a periodic health snapshot. Resource usage above 90%
// is an error; above 70% or missing detector models is a warning.
func (s *Service) RunSystemCheck(ctx context.Context) (domain.SystemCheck, error) {
	usage := s.usage(ctx)
	cams, _, err := s.cameras.ListCameras(ctx, camera.Filter{})
	if err != nil {
		return domain.SystemCheck{}, err
	}
	since := s.now().Add(-24 * time.Hour)
	_, recent, err := s.alerts.ListAlerts(ctx, alert.Filter{From: &since, Limit: 1})
	if err != nil {
		return domain.SystemCheck{}, err
	}

	check := domain.SystemCheck{
		CheckType:   "periodic",
		CPUUsage:    usage.CPU,
		MemoryUsage: usage.Memory,
		DiskUsage:   usage.Disk,
		CameraCount: len(cams),
		Alerts24h:   recent,
	}
	for _, c := range cams {
		switch c.Status {
		case camera.StatusOnline:
			check.OnlineCameras++
		case camera.StatusOffline:
			check.OfflineCameras++
		}
	}

	models := s.detectors.Validate()
	var details []string
	switch domain.Health(usage.CPU, usage.Memory, usage.Disk) {
	case "critical":
		check.Status = domain.CheckError
		details = append(details, "Resource usage above 90%.")
	case "warning":
		check.Status = domain.CheckWarning
		details = append(details, "Resource usage above 70%.")
	default:
		check.Status = domain.CheckSuccess
	}
	if !models.AllValid {
		if check.Status == domain.CheckSuccess {
			check.Status = domain.CheckWarning
		}
		details = append(details, "Missing models: "+strings.Join(models.MissingModels, ", ")+".")
	}
	if len(details) == 0 {
		details = append(details, "All systems operational.")
	}
	check.Details = strings.Join(details, " ")

	check, err = s.store.CreateSystemCheck(ctx, check)
	if err != nil {
		return domain.SystemCheck{}, err
	}
	s.log.WithField("status", check.Status).Info("system check recorded")
	return check, nil
}

// --- plans and subscriptions ------------------------------------------------

// ListPlans returns every plan ordered by price.
func (s *Service) ListPlans(ctx context.Context, p account.Principal) ([]domain.Plan, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	return plans, nil
}

// GetPlan returns one plan.
func (s *Service) GetPlan(ctx context.Context, p account.Principal, id int64) (domain.Plan, error) {
	if err := requireAdmin(p); err != nil {
		return domain.Plan{}, err
	}
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return domain.Plan{}, notFoundOr(err, "plan")
	}
	return plan, nil
}

// SavePlan creates plan when its id is zero and updates it otherwise.
func (s *Service) SavePlan(ctx context.Context, p account.Principal, plan domain.Plan) (domain.Plan, error) {
	if err := requireAdmin(p); err != nil {
		return domain.Plan{}, err
	}
	if errs := plan.Validate(); len(errs) > 0 {
		return domain.Plan{}, apperrors.Validation(errs...)
	}
	var err error
	if plan.ID == 0 {
		plan, err = s.store.CreatePlan(ctx, plan)
	} else {
		plan, err = s.store.UpdatePlan(ctx, plan)
	}
	if errors.Is(err, storage.ErrDuplicate) {
		return domain.Plan{}, apperrors.Validation(apperrors.Field("name", "subscription plan with this name already exists."))
	}
	if err != nil {
		return domain.Plan{}, notFoundOr(err, "plan")
	}
	return plan, nil
}

// DeletePlan removes a plan without subscribers.
func (s *Service) DeletePlan(ctx context.Context, p account.Principal, id int64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	err := s.store.DeletePlan(ctx, id)
	if errors.Is(err, storage.ErrReferenced) {
		return apperrors.Conflict("Cannot delete plan.", "This plan still has subscribers.")
	}
	if err != nil {
		return notFoundOr(err, "plan")
	}
	return nil
}

// UserSubscription returns the caller's own subscription.
func (s *Service) UserSubscription(ctx context.Context, p account.Principal) (domain.SubscriptionView, error) {
	if err := requireAdmin(p); err != nil {
		return domain.SubscriptionView{}, err
	}
	return s.subscriptionView(ctx, p.UserID)
}

func (s *Service) subscriptionView(ctx context.Context, userID int64) (domain.SubscriptionView, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return domain.SubscriptionView{}, notFoundOr(err, "subscription")
	}
	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return domain.SubscriptionView{}, apperrors.Internal("", err)
	}
	return sub.View(plan, s.now().In(s.loc)), nil
}

// Subscription returns the subscription of userID, or a fresh one on the
// given plan when the user has none. found reports which.
func (s *Service) Subscription(ctx context.Context, p account.Principal, userID int64) (sub domain.Subscription, found bool, err error) {
	if err := requireAdmin(p); err != nil {
		return domain.Subscription{}, false, err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return domain.Subscription{}, false, notFoundOr(err, "user")
	}
	sub, err = s.store.GetSubscriptionByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		today := s.now().In(s.loc)
		return domain.Subscription{UserID: userID, Status: "active", StartDate: today, EndDate: today.AddDate(0, 1, 0)}, false, nil
	}
	if err != nil {
		return domain.Subscription{}, false, apperrors.Internal("", err)
	}
	return sub, true, nil
}

// SaveSubscription validates and stores sub for its user.
func (s *Service) SaveSubscription(ctx context.Context, p account.Principal, sub domain.Subscription) (domain.SubscriptionView, error) {
	if err := requireAdmin(p); err != nil {
		return domain.SubscriptionView{}, err
	}
	errs := sub.ValidateStatus()
	if sub.PlanID == 0 {
		errs = append(errs, apperrors.Field("plan", "This field is required."))
	} else if _, err := s.store.GetPlan(ctx, sub.PlanID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.SubscriptionView{}, apperrors.Internal("", err)
		}
		errs = append(errs, apperrors.Field("plan", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", sub.PlanID)))
	}
	if len(errs) > 0 {
		return domain.SubscriptionView{}, apperrors.Validation(errs...)
	}
	if _, err := s.store.SaveSubscription(ctx, sub); err != nil {
		return domain.SubscriptionView{}, apperrors.Internal("", err)
	}
	s.log.WithField("user_id", sub.UserID).WithField("plan_id", sub.PlanID).Info("subscription saved")
	return s.subscriptionView(ctx, sub.UserID)
}

// --- settings -----------------------------------------------------------------

// ListSettings returns every system setting.
func (s *Service) ListSettings(ctx context.Context, p account.Principal) ([]domain.Setting, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	settings, err := s.store.ListSettings(ctx)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	return settings, nil
}

// SettingsByCategory groups settings by category.
func (s *Service) SettingsByCategory(ctx context.Context, p account.Principal) (map[string][]domain.Setting, error) {
	settings, err := s.ListSettings(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]domain.Setting)
	for _, st := range settings {
		out[st.CategoryName()] = append(out[st.CategoryName()], st)
	}
	return out, nil
}

// GetSetting returns one setting.
func (s *Service) GetSetting(ctx context.Context, p account.Principal, id int64) (domain.Setting, error) {
	if err := requireAdmin(p); err != nil {
		return domain.Setting{}, err
	}
	st, err := s.store.GetSetting(ctx, id)
	if err != nil {
		return domain.Setting{}, notFoundOr(err, "setting")
	}
	return st, nil
}

// CreateSetting stores a new setting attributed to the caller.
func (s *Service) CreateSetting(ctx context.Context, p account.Principal, st domain.Setting) (domain.Setting, error) {
	if err := requireAdmin(p); err != nil {
		return domain.Setting{}, err
	}
	if st.DataType == "" {
		st.DataType = domain.DataString
	}
	if errs := st.Validate(); len(errs) > 0 {
		return domain.Setting{}, apperrors.Validation(errs...)
	}
	st.ID = 0
	st.UpdatedBy = &p.UserID
	st, err := s.store.CreateSetting(ctx, st)
	if errors.Is(err, storage.ErrDuplicate) {
		return domain.Setting{}, apperrors.Validation(apperrors.Field("key", "system setting with this key already exists."))
	}
	if err != nil {
		return domain.Setting{}, apperrors.Internal("", err)
	}
	return st, nil
}

// UpdateSetting replaces an editable setting. next is the desired state.
func (s *Service) UpdateSetting(ctx context.Context, p account.Principal, id int64, next domain.Setting) (domain.Setting, error) {
	current, err := s.GetSetting(ctx, p, id)
	if err != nil {
		return domain.Setting{}, err
	}
	if !current.IsEditable {
		return domain.Setting{}, apperrors.BadRequest("Setting is not editable.", "This setting cannot be modified.")
	}
	if errs := next.Validate(); len(errs) > 0 {
		return domain.Setting{}, apperrors.Validation(errs...)
	}
	next.ID, next.CreatedAt = id, current.CreatedAt
	next.UpdatedBy = &p.UserID
	next, err = s.store.UpdateSetting(ctx, next)
	if errors.Is(err, storage.ErrDuplicate) {
		return domain.Setting{}, apperrors.Validation(apperrors.Field("key", "system setting with this key already exists."))
	}
	if err != nil {
		return domain.Setting{}, notFoundOr(err, "setting")
	}
	return next, nil
}

// DeleteSetting removes a setting.
func (s *Service) DeleteSetting(ctx context.Context, p account.Principal, id int64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := s.store.DeleteSetting(ctx, id); err != nil {
		return notFoundOr(err, "setting")
	}
	return nil
}
