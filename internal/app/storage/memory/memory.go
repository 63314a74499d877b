package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/admin"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/domain/face"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	users         map[int64]account.User
	cameras       map[int64]camera.Camera
	alerts        map[int64]alert.Alert
	faces         map[int64]face.AuthorizedFace
	verifications map[int64]face.VerificationLog
	settings      map[int64]notification.Setting // by user id
	logs          map[int64]notification.Log
	checks        map[int64]admin.SystemCheck
	sysSettings   map[int64]admin.Setting
	plans         map[int64]admin.Plan
	subscriptions map[int64]admin.Subscription // by user id
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.CameraStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)
var _ storage.FaceStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		users:         make(map[int64]account.User),
		cameras:       make(map[int64]camera.Camera),
		alerts:        make(map[int64]alert.Alert),
		faces:         make(map[int64]face.AuthorizedFace),
		verifications: make(map[int64]face.VerificationLog),
		settings:      make(map[int64]notification.Setting),
		logs:          make(map[int64]notification.Log),
		checks:        make(map[int64]admin.SystemCheck),
		sysSettings:   make(map[int64]admin.Setting),
		plans:         make(map[int64]admin.Plan),
		subscriptions: make(map[int64]admin.Subscription),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func notFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, sql.ErrNoRows)
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func now() time.Time { return time.Now().UTC() }

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, user account.User, settings notification.Setting) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return account.User{}, storage.ErrDuplicate
		}
	}

	user.ID = s.nextIDLocked()
	if user.DateJoined.IsZero() {
		user.DateJoined = now()
	}
	s.users[user.ID] = user

	settings.ID = s.nextIDLocked()
	settings.UserID = user.ID
	settings.CreatedAt = now()
	settings.UpdatedAt = settings.CreatedAt
	s.settings[user.ID] = settings
	return user, nil
}

func (s *Store) UpdateUser(_ context.Context, user account.User) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[user.ID]
	if !ok {
		return account.User{}, notFound("user", user.ID)
	}
	for id, existing := range s.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return account.User{}, storage.ErrDuplicate
		}
	}
	user.DateJoined = original.DateJoined
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return account.User{}, notFound("user", id)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return account.User{}, notFound("user", email)
}

func (s *Store) ListUsers(_ context.Context, filter account.Filter) ([]account.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]account.User, 0, len(s.users))
	for _, user := range s.users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(user.Email), search) &&
			!strings.Contains(strings.ToLower(user.FullName), search) {
			continue
		}
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DateJoined.After(result[j].DateJoined) || (result[i].DateJoined.Equal(result[j].DateJoined) && result[i].ID > result[j].ID)
	})
	return window(result, filter.Limit, filter.Offset), len(result), nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.users, id)
	delete(s.settings, id)
	delete(s.subscriptions, id)
	for camID, cam := range s.cameras {
		if cam.UserID == id {
			s.deleteCameraLocked(camID)
		}
	}
	for faceID, f := range s.faces {
		if f.UserID == id {
			s.deleteFaceLocked(faceID)
		}
	}
	for logID, l := range s.logs {
		if l.UserID == id {
			delete(s.logs, logID)
		}
	}
	for alertID, a := range s.alerts {
		if a.ResolvedBy != nil && *a.ResolvedBy == id {
			a.ResolvedBy = nil
			s.alerts[alertID] = a
		}
	}
	for settingID, st := range s.sysSettings {
		if st.UpdatedBy != nil && *st.UpdatedBy == id {
			st.UpdatedBy = nil
			s.sysSettings[settingID] = st
		}
	}
	return nil
}

// CameraStore implementation --------------------------------------------------

func (s *Store) CreateCamera(_ context.Context, cam camera.Camera) (camera.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cam.ID = s.nextIDLocked()
	cam.CreatedAt = now()
	cam.UpdatedAt = cam.CreatedAt
	s.cameras[cam.ID] = cam
	return cam, nil
}

func (s *Store) UpdateCamera(_ context.Context, cam camera.Camera) (camera.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.cameras[cam.ID]
	if !ok {
		return camera.Camera{}, notFound("camera", cam.ID)
	}
	cam.CreatedAt = original.CreatedAt
	cam.UpdatedAt = now()
	s.cameras[cam.ID] = cam
	return cam, nil
}

func (s *Store) GetCamera(_ context.Context, id int64) (camera.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cam, ok := s.cameras[id]
	if !ok {
		return camera.Camera{}, notFound("camera", id)
	}
	return cam, nil
}

func (s *Store) ListCameras(_ context.Context, filter camera.Filter) ([]camera.Camera, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]camera.Camera, 0, len(s.cameras))
	for _, cam := range s.cameras {
		if filter.UserID != 0 && cam.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && cam.Status != filter.Status {
			continue
		}
		result = append(result, cam)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return window(result, filter.Limit, filter.Offset), len(result), nil
}

func (s *Store) DeleteCamera(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cameras[id]; !ok {
		return notFound("camera", id)
	}
	s.deleteCameraLocked(id)
	return nil
}

func (s *Store) deleteCameraLocked(id int64) {
	delete(s.cameras, id)
	for alertID, a := range s.alerts {
		if a.CameraID == id {
			delete(s.alerts, alertID)
			for logID, l := range s.logs {
				if l.AlertID != nil && *l.AlertID == alertID {
					l.AlertID = nil
					s.logs[logID] = l
				}
			}
		}
	}
	for vID, v := range s.verifications {
		if v.SourceCameraID != nil && *v.SourceCameraID == id {
			v.SourceCameraID = nil
			s.verifications[vID] = v
		}
	}
}

// AlertStore implementation ---------------------------------------------------

func (s *Store) withCamera(a alert.Alert) alert.Alert {
	if cam, ok := s.cameras[a.CameraID]; ok {
		a.CameraName = cam.Name
		a.CameraOwnerID = cam.UserID
	}
	return a
}

func (s *Store) CreateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cameras[a.CameraID]; !ok {
		return alert.Alert{}, notFound("camera", a.CameraID)
	}
	a.ID = s.nextIDLocked()
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt
	if a.DetectionTime.IsZero() {
		a.DetectionTime = a.CreatedAt
	}
	s.alerts[a.ID] = a
	return s.withCamera(a), nil
}

func (s *Store) UpdateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.alerts[a.ID]
	if !ok {
		return alert.Alert{}, notFound("alert", a.ID)
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = now()
	s.alerts[a.ID] = a
	return s.withCamera(a), nil
}

func (s *Store) GetAlert(_ context.Context, id int64) (alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return alert.Alert{}, notFound("alert", id)
	}
	return s.withCamera(a), nil
}

func (s *Store) ListAlerts(_ context.Context, filter alert.Filter) ([]alert.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		a = s.withCamera(a)
		if filter.OwnerID != 0 && a.CameraOwnerID != filter.OwnerID {
			continue
		}
		if filter.CameraID != 0 && a.CameraID != filter.CameraID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Type != "" && a.AlertType != filter.Type {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.From != nil && a.DetectionTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.DetectionTime.Before(*filter.To) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DetectionTime.Equal(result[j].DetectionTime) {
			return result[i].ID > result[j].ID
		}
		return result[i].DetectionTime.After(result[j].DetectionTime)
	})
	return window(result, filter.Limit, filter.Offset), len(result), nil
}

// FaceStore implementation ----------------------------------------------------

func (s *Store) CreateFace(_ context.Context, f face.AuthorizedFace) (face.AuthorizedFace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.nextIDLocked()
	f.CreatedAt = now()
	f.UpdatedAt = f.CreatedAt
	f.FaceEncoding = append([]byte(nil), f.FaceEncoding...)
	s.faces[f.ID] = f
	return f, nil
}

func (s *Store) UpdateFace(_ context.Context, f face.AuthorizedFace) (face.AuthorizedFace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.faces[f.ID]
	if !ok {
		return face.AuthorizedFace{}, notFound("face", f.ID)
	}
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = now()
	f.FaceEncoding = append([]byte(nil), f.FaceEncoding...)
	s.faces[f.ID] = f
	return f, nil
}

func (s *Store) GetFace(_ context.Context, id int64) (face.AuthorizedFace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.faces[id]
	if !ok {
		return face.AuthorizedFace{}, notFound("face", id)
	}
	return f, nil
}

func (s *Store) ListFaces(_ context.Context, filter face.Filter) ([]face.AuthorizedFace, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(filter.Name)
	role := strings.ToLower(filter.Role)
	result := make([]face.AuthorizedFace, 0, len(s.faces))
	for _, f := range s.faces {
		if filter.UserID != 0 && f.UserID != filter.UserID {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(f.Name), name) {
			continue
		}
		if role != "" && !strings.Contains(strings.ToLower(f.Role), role) {
			continue
		}
		if filter.IsActive != nil && f.IsActive != *filter.IsActive {
			continue
		}
		if filter.ActiveOnly && !f.IsActive {
			continue
		}
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return window(result, filter.Limit, filter.Offset), len(result), nil
}

func (s *Store) DeleteFace(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.faces[id]; !ok {
		return notFound("face", id)
	}
	s.deleteFaceLocked(id)
	return nil
}

func (s *Store) deleteFaceLocked(id int64) {
	delete(s.faces, id)
	for vID, v := range s.verifications {
		if v.AuthorizedFaceID != nil && *v.AuthorizedFaceID == id {
			v.AuthorizedFaceID = nil
			s.verifications[vID] = v
		}
	}
}

func (s *Store) CreateVerificationLog(_ context.Context, log face.VerificationLog) (face.VerificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = s.nextIDLocked()
	if log.VerifiedAt.IsZero() {
		log.VerifiedAt = now()
	}
	s.verifications[log.ID] = log
	return log, nil
}

// VerificationLogs returns every stored verification log, newest first.
func (s *Store) VerificationLogs() []face.VerificationLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]face.VerificationLog, 0, len(s.verifications))
	for _, v := range s.verifications {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// NotificationStore implementation --------------------------------------------

func (s *Store) GetNotificationSetting(_ context.Context, userID int64) (notification.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[userID]
	if !ok {
		return notification.Setting{}, notFound("notification setting for user", userID)
	}
	return st, nil
}

func (s *Store) SaveNotificationSetting(_ context.Context, st notification.Setting) (notification.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[st.UserID]; !ok {
		return notification.Setting{}, notFound("user", st.UserID)
	}
	if existing, ok := s.settings[st.UserID]; ok {
		st.ID = existing.ID
		st.CreatedAt = existing.CreatedAt
	} else {
		st.ID = s.nextIDLocked()
		st.CreatedAt = now()
	}
	st.UpdatedAt = now()
	s.settings[st.UserID] = st
	return st, nil
}

func (s *Store) CreateNotificationLog(_ context.Context, log notification.Log) (notification.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = s.nextIDLocked()
	log.CreatedAt = now()
	s.logs[log.ID] = log
	return log, nil
}

func (s *Store) UpdateNotificationLog(_ context.Context, log notification.Log) (notification.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.logs[log.ID]
	if !ok {
		return notification.Log{}, notFound("notification log", log.ID)
	}
	log.CreatedAt = original.CreatedAt
	s.logs[log.ID] = log
	return log, nil
}

func (s *Store) ListNotificationLogs(_ context.Context, filter notification.LogFilter) ([]notification.Log, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]notification.Log, 0, len(s.logs))
	for _, l := range s.logs {
		if filter.UserID != 0 && l.UserID != filter.UserID {
			continue
		}
		if filter.AlertID != 0 && (l.AlertID == nil || *l.AlertID != filter.AlertID) {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return window(result, filter.Limit, filter.Offset), len(result), nil
}

// AdminStore implementation ---------------------------------------------------

func (s *Store) CreateSystemCheck(_ context.Context, check admin.SystemCheck) (admin.SystemCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	check.ID = s.nextIDLocked()
	check.CreatedAt = now()
	s.checks[check.ID] = check
	return check, nil
}

func (s *Store) LatestSystemCheck(_ context.Context, checkType string) (admin.SystemCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest admin.SystemCheck
		found  bool
	)
	for _, c := range s.checks {
		if checkType != "" && c.CheckType != checkType {
			continue
		}
		if !found || c.ID > latest.ID {
			latest, found = c, true
		}
	}
	if !found {
		return admin.SystemCheck{}, notFound("system check", checkType)
	}
	return latest, nil
}

func (s *Store) CreateSetting(_ context.Context, st admin.Setting) (admin.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sysSettings {
		if existing.Key == st.Key {
			return admin.Setting{}, storage.ErrDuplicate
		}
	}
	st.ID = s.nextIDLocked()
	st.CreatedAt = now()
	st.UpdatedAt = st.CreatedAt
	s.sysSettings[st.ID] = st
	return st, nil
}

func (s *Store) UpdateSetting(_ context.Context, st admin.Setting) (admin.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.sysSettings[st.ID]
	if !ok {
		return admin.Setting{}, notFound("setting", st.ID)
	}
	for id, existing := range s.sysSettings {
		if id != st.ID && existing.Key == st.Key {
			return admin.Setting{}, storage.ErrDuplicate
		}
	}
	st.CreatedAt = original.CreatedAt
	st.UpdatedAt = now()
	s.sysSettings[st.ID] = st
	return st, nil
}

func (s *Store) GetSetting(_ context.Context, id int64) (admin.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sysSettings[id]
	if !ok {
		return admin.Setting{}, notFound("setting", id)
	}
	return st, nil
}

func (s *Store) GetSettingByKey(_ context.Context, key string) (admin.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.sysSettings {
		if st.Key == key {
			return st, nil
		}
	}
	return admin.Setting{}, notFound("setting", key)
}

func (s *Store) ListSettings(_ context.Context) ([]admin.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]admin.Setting, 0, len(s.sysSettings))
	for _, st := range s.sysSettings {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Key < result[j].Key
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) DeleteSetting(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sysSettings[id]; !ok {
		return notFound("setting", id)
	}
	delete(s.sysSettings, id)
	return nil
}

func (s *Store) CreatePlan(_ context.Context, p admin.Plan) (admin.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextIDLocked()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	s.plans[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePlan(_ context.Context, p admin.Plan) (admin.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.plans[p.ID]
	if !ok {
		return admin.Plan{}, notFound("plan", p.ID)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = now()
	s.plans[p.ID] = p
	return p, nil
}

func (s *Store) GetPlan(_ context.Context, id int64) (admin.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return admin.Plan{}, notFound("plan", id)
	}
	return p, nil
}

func (s *Store) ListPlans(_ context.Context) ([]admin.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]admin.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Price == result[j].Price {
			return result[i].ID < result[j].ID
		}
		return result[i].Price < result[j].Price
	})
	return result, nil
}

// DeletePlan refuses to remove plans that still have subscriptions.
func (s *Store) DeletePlan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[id]; !ok {
		return notFound("plan", id)
	}
	for _, sub := range s.subscriptions {
		if sub.PlanID == id {
			return fmt.Errorf("plan %d is referenced by subscriptions: %w", id, storage.ErrReferenced)
		}
	}
	delete(s.plans, id)
	return nil
}

func (s *Store) GetSubscriptionByUser(_ context.Context, userID int64) (admin.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return admin.Subscription{}, notFound("subscription for user", userID)
	}
	return sub, nil
}

func (s *Store) SaveSubscription(_ context.Context, sub admin.Subscription) (admin.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sub.UserID]; !ok {
		return admin.Subscription{}, notFound("user", sub.UserID)
	}
	if _, ok := s.plans[sub.PlanID]; !ok {
		return admin.Subscription{}, notFound("plan", sub.PlanID)
	}
	if existing, ok := s.subscriptions[sub.UserID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.ID = s.nextIDLocked()
		sub.CreatedAt = now()
	}
	sub.UpdatedAt = now()
	s.subscriptions[sub.UserID] = sub
	return sub, nil
}
