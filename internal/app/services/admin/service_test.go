package admin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	domain "github.com/R3E-Network/sentinel/internal/app/domain/admin"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/storage/memory"
	"github.com/R3E-Network/sentinel/internal/config"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
)

type fakeHost struct {
	usage Usage
	err   error
}

func (h *fakeHost) Usage(context.Context) (Usage, error) { return h.usage, h.err }

type fixture struct {
	svc    *Service
	store  *memory.Store
	host   *fakeHost
	models string
	admin  account.Principal
	user   account.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	mk := func(email string, role account.Role) account.Principal {
		u, err := store.CreateUser(ctx, account.User{Email: email, FullName: email, Role: role, IsActive: true}, notification.DefaultSetting(0))
		require.NoError(t, err)
		return account.PrincipalOf(u)
	}
	adminP := mk("root@example.com", account.RoleAdmin)
	userP := mk("dana@example.com", account.RoleUser)

	models := t.TempDir()
	host := &fakeHost{usage: Usage{CPU: 10, Memory: 20, Disk: 30, Uptime: 26 * time.Hour}}
	svc := New(Stores{Users: store, Cameras: store, Alerts: store, Admin: store}, host,
		NewDetectors(config.DefaultDetectors(models)), "1.2.0", nil)
	return &fixture{svc: svc, store: store, host: host, models: models, admin: adminP, user: userP}
}

func (f *fixture) touchModels(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, os.WriteFile(filepath.Join(f.models, key+".pt"), []byte("weights"), 0o644))
	}
}

func TestNonAdminIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.ListUsers(ctx, f.user, UserQuery{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = f.svc.SystemStatus(ctx, f.user)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = f.svc.ListDetectors(ctx, f.user)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestUserManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cam := camera.New()
	cam.Name, cam.StreamURL, cam.UserID = "Porch", "rtsp://cam/1", f.user.UserID
	cam, err := f.store.CreateCamera(ctx, cam)
	require.NoError(t, err)
	_, err = f.store.CreateAlert(ctx, alert.Alert{Title: "Fall", AlertType: alert.TypeFall, Status: alert.StatusNew, Severity: alert.SeverityHigh, CameraID: cam.ID})
	require.NoError(t, err)

	users, total, err := f.svc.ListUsers(ctx, f.admin, UserQuery{Search: "dana"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, 1, users[0].CamerasCount)
	assert.Equal(t, 1, users[0].AlertsCount)
	assert.Nil(t, users[0].SubscriptionDetails)

	off, err := f.svc.SetActive(ctx, f.admin, f.user.UserID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	bad := account.Role("owner")
	_, err = f.svc.UpdateUser(ctx, f.admin, f.user.UserID, UserPatch{Role: &bad})
	assert.True(t, apperrors.IsValidation(err))

	email := "root@EXAMPLE.com"
	_, err = f.svc.UpdateUser(ctx, f.admin, f.user.UserID, UserPatch{Email: &email})
	assert.True(t, apperrors.IsValidation(err), "duplicate email, got %v", err)

	require.NoError(t, f.svc.DeleteUser(ctx, f.admin, f.user.UserID))
	_, err = f.svc.GetUser(ctx, f.admin, f.user.UserID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSystemStatusRecordsAutoCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cam := camera.New()
	cam.Name, cam.StreamURL, cam.UserID, cam.Status = "Gate", "rtsp://cam/2", f.user.UserID, camera.StatusOnline
	cam, err := f.store.CreateCamera(ctx, cam)
	require.NoError(t, err)
	for _, tc := range []struct {
		typ alert.Type
		at  time.Time
	}{
		{alert.TypeFireSmoke, time.Time{}},
		{alert.TypeFireSmoke, time.Now().AddDate(0, 0, -20)},
		{alert.TypeFall, time.Time{}},
	} {
		_, err := f.store.CreateAlert(ctx, alert.Alert{Title: "x", AlertType: tc.typ, Status: alert.StatusNew, Severity: alert.SeverityLow, CameraID: cam.ID, DetectionTime: tc.at})
		require.NoError(t, err)
	}

	st, err := f.svc.SystemStatus(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalUsers)
	assert.Equal(t, 1, st.OnlineCameras)
	assert.Equal(t, 3, st.TotalAlerts)
	assert.Equal(t, 2, st.AlertsToday)
	assert.Equal(t, 2, st.AlertsThisWeek)
	assert.Equal(t, map[string]int{"fire_smoke": 2, "fall": 1}, st.AlertTypes)
	assert.Equal(t, "good", st.SystemHealth)
	assert.Equal(t, "1 day, 2:00:00", st.Uptime)
	assert.Equal(t, "1.2.0", st.SystemVersion)

	check, err := f.store.LatestSystemCheck(ctx, "auto")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckSuccess, check.Status)
	assert.Equal(t, 2, check.Alerts24h)

	f.host.usage.Disk = 95
	st, err = f.svc.SystemStatus(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, "critical", st.SystemHealth)
	check, err = f.store.LatestSystemCheck(ctx, "auto")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckError, check.Status)
}

func TestRunSystemCheck(t *testing.T) {
	cases := []struct {
		name   string
		usage  Usage
		models []string
		want   string
	}{
		{"healthy", Usage{CPU: 5}, []string{"fire_smoke", "fall", "violence", "choking"}, domain.CheckSuccess},
		{"missing models", Usage{CPU: 5}, []string{"fall"}, domain.CheckWarning},
		{"busy", Usage{Memory: 75}, []string{"fire_smoke", "fall", "violence", "choking"}, domain.CheckWarning},
		{"overloaded", Usage{CPU: 91}, nil, domain.CheckError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.host.usage = tc.usage
			f.touchModels(t, tc.models...)

			check, err := f.svc.RunSystemCheck(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, check.Status, check.Details)
			assert.Equal(t, "periodic", check.CheckType)
		})
	}
}

func TestHostErrorStillRecordsCheck(t *testing.T) {
	f := newFixture(t)
	f.host.err = errors.New("no /proc")
	f.host.usage = Usage{}
	_, err := f.svc.SystemStatus(context.Background(), f.admin)
	require.NoError(t, err)
}

func TestPlansAndSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := domain.NewPlan()
	plan.Name, plan.PlanType, plan.Price = "Basic", "basic", 9.99
	plan, err := f.svc.SavePlan(ctx, f.admin, plan)
	require.NoError(t, err)

	_, err = f.svc.SavePlan(ctx, f.admin, domain.Plan{Name: "", PlanType: "gold", BillingCycle: "monthly"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.UserSubscription(ctx, f.admin)
	assert.True(t, apperrors.IsNotFound(err))

	sub, found, err := f.svc.Subscription(ctx, f.admin, f.user.UserID)
	require.NoError(t, err)
	assert.False(t, found)
	sub.PlanID = 999
	_, err = f.svc.SaveSubscription(ctx, f.admin, sub)
	assert.True(t, apperrors.IsValidation(err))

	sub.PlanID = plan.ID
	cameras := 12
	sub.CustomMaxCameras = &cameras
	view, err := f.svc.SaveSubscription(ctx, f.admin, sub)
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.Equal(t, 12, view.MaxCameras)
	assert.Equal(t, 3, view.MaxUsers)

	err = f.svc.DeletePlan(ctx, f.admin, plan.ID)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, 400, se.HTTPStatus)

	users, _, err := f.svc.ListUsers(ctx, f.admin, UserQuery{Search: "dana"})
	require.NoError(t, err)
	require.NotNil(t, users[0].SubscriptionDetails)
	assert.Equal(t, "Basic", users[0].SubscriptionDetails.PlanDetails.Name)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.CreateSetting(ctx, f.admin, domain.Setting{Key: "retention_days", Value: "30", DataType: domain.DataInteger, IsEditable: true, Category: "storage"})
	require.NoError(t, err)
	require.NotNil(t, st.UpdatedBy)
	assert.Equal(t, f.admin.UserID, *st.UpdatedBy)

	_, err = f.svc.CreateSetting(ctx, f.admin, domain.Setting{Key: "bad", Value: "thirty", DataType: domain.DataInteger})
	assert.True(t, apperrors.IsValidation(err))

	locked, err := f.svc.CreateSetting(ctx, f.admin, domain.Setting{Key: "site_name", Value: "HQ"})
	require.NoError(t, err)
	_, err = f.svc.UpdateSetting(ctx, f.admin, locked.ID, domain.Setting{Key: "site_name", Value: "Branch", DataType: domain.DataString})
	assert.Error(t, err, "non-editable settings reject updates")

	st.Value = "45"
	st, err = f.svc.UpdateSetting(ctx, f.admin, st.ID, st)
	require.NoError(t, err)
	assert.Equal(t, "45", st.Value)

	groups, err := f.svc.SettingsByCategory(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, groups["storage"], 1)
	assert.Len(t, groups["Uncategorized"], 1)

	require.NoError(t, f.svc.DeleteSetting(ctx, f.admin, st.ID))
	_, err = f.svc.GetSetting(ctx, f.admin, st.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDetectorConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.touchModels(t, "fall")

	list, err := f.svc.ListDetectors(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, list, 4)

	v, err := f.svc.ValidateDetectors(ctx, f.admin)
	require.NoError(t, err)
	assert.False(t, v.AllValid)
	assert.ElementsMatch(t, []string{"fire_smoke", "violence", "choking"}, v.MissingModels)

	_, err = f.svc.UpdateDetectorConfig(ctx, f.admin, "unknown", DetectorPatch{})
	assert.True(t, apperrors.IsNotFound(err))

	tooHigh := 1.5
	_, err = f.svc.UpdateDetectorConfig(ctx, f.admin, "fall", DetectorPatch{ConfThreshold: &tooHigh})
	assert.True(t, apperrors.IsValidation(err))

	conf, size := 0.55, 320
	det, err := f.svc.UpdateDetectorConfig(ctx, f.admin, "fall", DetectorPatch{ConfThreshold: &conf, ImageSize: &size})
	require.NoError(t, err)
	assert.Equal(t, 0.55, det.Config.ConfThreshold)
	assert.Equal(t, 0.37, det.Config.IOUThreshold)

	saved, err := f.store.GetSettingByKey(ctx, "detectors.fall")
	require.NoError(t, err)
	assert.JSONEq(t, `{"conf_threshold":0.55,"iou_threshold":0.37,"image_size":320}`, saved.Value)

	// A fresh registry picks the persisted values up.
	other := New(Stores{Users: f.store, Cameras: f.store, Alerts: f.store, Admin: f.store}, f.host,
		NewDetectors(config.DefaultDetectors(f.models)), "", nil)
	list, err = other.ListDetectors(ctx, f.admin)
	require.NoError(t, err)
	for _, d := range list {
		if d.Key == "fall" {
			assert.Equal(t, 320, d.Config.ImageSize)
			assert.True(t, d.ModelExists)
		}
	}
}
