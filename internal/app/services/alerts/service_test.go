package alerts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []string
	fail  bool
}

func (q *recordingQueue) Enqueue(_ context.Context, name string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("queue down")
	}
	q.tasks = append(q.tasks, name)
	return nil
}

type recordingPublisher struct {
	events []alert.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev alert.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	svc   *Service
	store *memory.Store
	queue *recordingQueue
	pub   *recordingPublisher
	owner account.Principal
	other account.Principal
	camID int64
	files *media.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	owner, err := store.CreateUser(ctx, account.User{Email: "o@example.com", Role: account.RoleUser, IsActive: true}, notification.DefaultSetting(0))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	other, err := store.CreateUser(ctx, account.User{Email: "x@example.com", Role: account.RoleUser, IsActive: true}, notification.DefaultSetting(0))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cam := camera.New()
	cam.Name, cam.StreamURL, cam.UserID, cam.Location = "Garage", "rtsp://cam/1", owner.ID, "Back"
	cam, err = store.CreateCamera(ctx, cam)
	if err != nil {
		t.Fatalf("create camera: %v", err)
	}

	files := media.New(t.TempDir())
	svc := New(store, store, store, files, nil)
	q := &recordingQueue{}
	pub := &recordingPublisher{}
	svc.WithQueue(q)
	svc.WithPublisher(pub)
	return &fixture{
		svc:   svc,
		store: store,
		queue: q,
		pub:   pub,
		owner: account.PrincipalOf(owner),
		other: account.PrincipalOf(other),
		camID: cam.ID,
		files: files,
	}
}

func TestCreateDerivesSeverityAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.owner, CreateInput{Title: "Smoke", AlertType: alert.TypeFireSmoke, Confidence: 0.93, CameraID: f.camID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Severity != alert.SeverityCritical || d.Status != alert.StatusNew {
		t.Fatalf("unexpected defaults: %+v", d.Alert)
	}
	if d.CameraDetails == nil || d.CameraDetails.Name != "Garage" {
		t.Fatalf("camera details missing: %+v", d.CameraDetails)
	}
	if len(f.queue.tasks) != 1 || f.queue.tasks[0] != DispatchTask {
		t.Fatalf("dispatch not enqueued: %v", f.queue.tasks)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].OwnerID != f.owner.UserID {
		t.Fatalf("event not published: %+v", f.pub.events)
	}

	d, err = f.svc.Create(ctx, f.owner, CreateInput{Title: "Fall", AlertType: alert.TypeFall, Severity: alert.SeverityLow, Confidence: 0.95, CameraID: f.camID})
	if err != nil || d.Severity != alert.SeverityLow {
		t.Fatalf("explicit severity must win: %v %s", err, d.Severity)
	}

	d, err = f.svc.Create(ctx, f.owner, CreateInput{Title: "Other", AlertType: alert.TypeOther, CameraID: f.camID})
	if err != nil || d.Severity != alert.SeverityMedium {
		t.Fatalf("zero confidence keeps medium: %v %s", err, d.Severity)
	}
}

func TestCreateRejectsInvisibleCamera(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.other, CreateInput{Title: "Smoke", AlertType: alert.TypeFireSmoke, CameraID: f.camID})
	if !apperrors.IsValidation(err) {
		t.Fatalf("foreign camera should be a validation error, got %v", err)
	}
	if se := apperrors.GetServiceError(err); !strings.HasPrefix(se.Errors[0], "camera: Invalid pk") {
		t.Fatalf("unexpected errors %v", se.Errors)
	}

	_, err = f.svc.Create(context.Background(), f.owner, CreateInput{Title: "", AlertType: "bogus", CameraID: f.camID})
	if se := apperrors.GetServiceError(err); se == nil || len(se.Errors) != 2 {
		t.Fatalf("expected title and alert_type errors, got %v", err)
	}
}

func TestQueueFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.queue.fail = true
	if _, err := f.svc.Create(context.Background(), f.owner, CreateInput{Title: "Smoke", AlertType: alert.TypeFireSmoke, CameraID: f.camID}); err != nil {
		t.Fatalf("create should succeed when the queue is down: %v", err)
	}
}

func TestListFiltersAndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := func(d int) *time.Time {
		t := time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
		return &t
	}
	for i, in := range []CreateInput{
		{Title: "a", AlertType: alert.TypeFall, DetectionTime: day(1)},
		{Title: "b", AlertType: alert.TypeFall, DetectionTime: day(2)},
		{Title: "c", AlertType: alert.TypeViolence, DetectionTime: day(3)},
	} {
		in.CameraID = f.camID
		if _, err := f.svc.Create(ctx, f.owner, in); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	items, total, err := f.svc.List(ctx, f.owner, Query{Type: "fall"})
	if err != nil || total != 2 || items[0].Title != "b" {
		t.Fatalf("type filter: %v %d %+v", err, total, items)
	}
	items, total, _ = f.svc.List(ctx, f.owner, Query{StartDate: "2026-03-02", EndDate: "2026-03-02"})
	if total != 1 || items[0].Title != "b" {
		t.Fatalf("inclusive date range: %d %+v", total, items)
	}
	_, total, _ = f.svc.List(ctx, f.owner, Query{StartDate: "not-a-date"})
	if total != 3 {
		t.Fatalf("malformed dates are ignored, got %d", total)
	}
	if items[0].CameraName != "Garage" {
		t.Fatalf("camera name missing")
	}
	_, total, _ = f.svc.List(ctx, f.other, Query{})
	if total != 0 {
		t.Fatalf("other user sees %d alerts", total)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Create(ctx, f.owner, CreateInput{Title: "Smoke", AlertType: alert.TypeFireSmoke, Notes: "first", CameraID: f.camID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, f.owner, d.ID, alert.StatusNew, ""); !apperrors.IsValidation(err) {
		t.Fatalf("new is not a resolution status")
	}
	if _, err := f.svc.UpdateStatus(ctx, f.other, d.ID, alert.StatusConfirmed, ""); !apperrors.IsNotFound(err) {
		t.Fatalf("other user should not see the alert, got %v", err)
	}

	got, err := f.svc.UpdateStatus(ctx, f.owner, d.ID, alert.StatusDismissed, "")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if !got.IsResolved || got.ResolvedTime == nil || got.Notes != "first" {
		t.Fatalf("unexpected alert %+v", got)
	}
	if got.ResolvedByDetails == nil || got.ResolvedByDetails.ID != f.owner.UserID {
		t.Fatalf("resolver missing: %+v", got.ResolvedByDetails)
	}

	got, _ = f.svc.UpdateStatus(ctx, f.owner, d.ID, alert.StatusConfirmed, "checked")
	if got.Notes != "checked" {
		t.Fatalf("non-empty notes replace: %q", got.Notes)
	}
}

func TestVideoPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noVideo, _ := f.svc.Create(ctx, f.owner, CreateInput{Title: "a", AlertType: alert.TypeFall, CameraID: f.camID})
	_, err := f.svc.VideoPath(ctx, f.owner, noVideo.ID)
	if se := apperrors.GetServiceError(err); se == nil || se.Message != "No video file available for this alert." {
		t.Fatalf("unexpected error %v", err)
	}

	missing, _ := f.svc.Create(ctx, f.owner, CreateInput{Title: "b", AlertType: alert.TypeFall, CameraID: f.camID, VideoFile: "alerts/videos/gone.mp4"})
	_, err = f.svc.VideoPath(ctx, f.owner, missing.ID)
	if se := apperrors.GetServiceError(err); se == nil || se.Message != "Video file not found on the server." {
		t.Fatalf("unexpected error %v", err)
	}

	rel, err := f.files.Save(media.AlertVideos, "clip.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	present, _ := f.svc.Create(ctx, f.owner, CreateInput{Title: "c", AlertType: alert.TypeFall, CameraID: f.camID, VideoFile: rel})
	path, err := f.svc.VideoPath(ctx, f.owner, present.ID)
	if err != nil {
		t.Fatalf("video path: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "video" || filepath.Ext(path) != ".mp4" {
		t.Fatalf("unexpected file %s", path)
	}
}

func TestSummaryCountsVisibleAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	for _, at := range []time.Time{now.Add(-time.Hour), now.AddDate(0, 0, -1), now.AddDate(0, -2, 0)} {
		at := at
		if _, err := f.svc.Create(ctx, f.owner, CreateInput{Title: "x", AlertType: alert.TypeFall, Severity: alert.SeverityHigh, DetectionTime: &at, CameraID: f.camID}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	s, err := f.svc.Summary(ctx, f.owner)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalAlerts != 3 || s.NewAlerts != 3 || s.ByType["fall"] != 3 || s.BySeverity["high"] != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(s.DailyCount) != 7 || len(s.WeeklyCount) != 4 || len(s.MonthlyCount) != 6 {
		t.Fatalf("unexpected series lengths")
	}
	if s.MonthlyCount[5].Month != "May 2026" || s.MonthlyCount[5].Count != 2 {
		t.Fatalf("unexpected current month bucket %+v", s.MonthlyCount[5])
	}

	other, _ := f.svc.Summary(ctx, f.other)
	if other.TotalAlerts != 0 {
		t.Fatalf("other user summary should be empty")
	}
}
