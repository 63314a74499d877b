package cameras

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
)

func strPtr(v string) *string { return &v }

func fixedProber(status camera.Status, err error) Prober {
	return ProberFunc(func(context.Context, camera.Camera) (camera.Status, error) { return status, err })
}

func TestCameraCRUDScopesOwners(t *testing.T) {
	store := memory.New()
	svc := New(store, fixedProber(camera.StatusOnline, nil), nil)
	ctx := context.Background()
	owner := account.Principal{UserID: 1, Role: account.RoleUser}
	other := account.Principal{UserID: 2, Role: account.RoleUser}
	admin := account.Principal{UserID: 3, Role: account.RoleAdmin}

	if _, err := svc.Create(ctx, owner, camera.Patch{Name: strPtr("Hall")}); !apperrors.IsValidation(err) {
		t.Fatalf("missing stream_url should be rejected, got %v", err)
	}

	cam, err := svc.Create(ctx, owner, camera.Patch{Name: strPtr("Hall"), StreamURL: strPtr("rtsp://10.0.0.5/live")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cam.UserID != 1 || cam.Status != camera.StatusOffline || cam.Port != 554 {
		t.Fatalf("defaults not applied: %+v", cam)
	}

	if _, err := svc.Get(ctx, other, cam.ID); !apperrors.IsNotFound(err) {
		t.Fatalf("foreign camera should be hidden, got %v", err)
	}
	if _, err := svc.Get(ctx, admin, cam.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}

	list, total, err := svc.List(ctx, other, 20, 0)
	if err != nil || total != 0 || len(list) != 0 {
		t.Fatalf("other user should see nothing: %v %d", err, total)
	}

	bad := 2.0
	if _, err := svc.UpdateSettings(ctx, owner, cam.ID, camera.SettingsPatch{ConfidenceThreshold: &bad}); !apperrors.IsValidation(err) {
		t.Fatalf("threshold above 1 should be rejected, got %v", err)
	}
	face := true
	settings, err := svc.UpdateSettings(ctx, owner, cam.ID, camera.SettingsPatch{FaceRecognition: &face})
	if err != nil || !settings.FaceRecognition {
		t.Fatalf("update settings: %v %+v", err, settings)
	}

	if _, err := svc.Update(ctx, owner, cam.ID, camera.Patch{Location: strPtr("Lobby")}, false); !apperrors.IsValidation(err) {
		t.Fatalf("full update without required fields should fail")
	}
	updated, err := svc.Update(ctx, owner, cam.ID, camera.Patch{Location: strPtr("Lobby")}, true)
	if err != nil || updated.Location != "Lobby" {
		t.Fatalf("partial update: %v", err)
	}

	if err := svc.Delete(ctx, other, cam.ID); !apperrors.IsNotFound(err) {
		t.Fatalf("other user cannot delete, got %v", err)
	}
	if err := svc.Delete(ctx, owner, cam.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestStreamRecordsStatus(t *testing.T) {
	cases := []struct {
		name     string
		prober   Prober
		status   camera.Status
		httpCode int
		message  string
	}{
		{"online", fixedProber(camera.StatusOnline, nil), camera.StatusOnline, 0, ""},
		{"offline", fixedProber(camera.StatusOffline, nil), camera.StatusOffline, http.StatusNotFound, "Camera is offline."},
		{"error", fixedProber(camera.StatusError, nil), camera.StatusError, http.StatusNotFound, "Camera is error."},
		{"unexpected", fixedProber("", errors.New("boom")), camera.StatusError, http.StatusInternalServerError, "Error connecting to camera."},
		{"panic", ProberFunc(func(context.Context, camera.Camera) (camera.Status, error) { panic("x") }), camera.StatusError, http.StatusInternalServerError, "Error connecting to camera."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New()
			svc := New(store, tc.prober, nil)
			ctx := context.Background()
			owner := account.Principal{UserID: 1}
			cam, err := svc.Create(ctx, owner, camera.Patch{Name: strPtr("Gate"), StreamURL: strPtr("rtsp://10.0.0.9:8554/live"), Username: strPtr("u"), Password: strPtr("p")})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			info, err := svc.Stream(ctx, owner, cam.ID)
			if tc.httpCode == 0 {
				if err != nil {
					t.Fatalf("stream: %v", err)
				}
				if info.StreamURL != "rtsp://u:p@10.0.0.9:8554/live" {
					t.Fatalf("credentials not embedded: %s", info.StreamURL)
				}
			} else {
				se := apperrors.GetServiceError(err)
				if se == nil || se.HTTPStatus != tc.httpCode || se.Message != tc.message {
					t.Fatalf("unexpected error %v", err)
				}
			}

			stored, _ := store.GetCamera(ctx, cam.ID)
			if stored.Status != tc.status {
				t.Fatalf("status = %s, want %s", stored.Status, tc.status)
			}
			if (tc.status == camera.StatusOnline) != (stored.LastOnline != nil) {
				t.Fatalf("last_online mismatch: %v", stored.LastOnline)
			}
		})
	}
}

func TestUpdateStatuses(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	mk := func(name string, status camera.Status) camera.Camera {
		c := camera.New()
		c.Name, c.StreamURL, c.UserID, c.Status = name, "rtsp://"+name+"/live", 1, status
		c, err := store.CreateCamera(ctx, c)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return c
	}
	up := mk("up", camera.StatusOffline)
	down := mk("down", camera.StatusOnline)
	stays := mk("stays", camera.StatusOffline)
	broken := mk("broken", camera.StatusOnline)

	prober := ProberFunc(func(_ context.Context, c camera.Camera) (camera.Status, error) {
		switch c.Name {
		case "up":
			return camera.StatusOnline, nil
		case "broken":
			return "", errors.New("unexpected")
		}
		return camera.StatusOffline, nil
	})
	svc := New(store, prober, nil)
	report, err := svc.UpdateStatuses(ctx)
	if err != nil {
		t.Fatalf("update statuses: %v", err)
	}
	if report.Checked != 4 || report.Changed != 3 {
		t.Fatalf("unexpected report %+v", report)
	}

	want := map[int64]camera.Status{up.ID: camera.StatusOnline, down.ID: camera.StatusOffline, stays.ID: camera.StatusOffline, broken.ID: camera.StatusError}
	for id, status := range want {
		c, _ := store.GetCamera(ctx, id)
		if c.Status != status {
			t.Fatalf("camera %s: status %s, want %s", c.Name, c.Status, status)
		}
	}
	if c, _ := store.GetCamera(ctx, up.ID); c.LastOnline == nil {
		t.Fatalf("last_online should be set when a camera comes online")
	}
}

func TestNetProberTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p := NewNetProber(time.Second)
	cam := camera.New()
	cam.StreamURL = "rtsp://" + ln.Addr().String() + "/live"
	if status, err := p.Probe(context.Background(), cam); err != nil || status != camera.StatusOnline {
		t.Fatalf("listening port should be online: %s %v", status, err)
	}

	addr := ln.Addr().String()
	ln.Close()
	cam.StreamURL = "rtsp://" + addr + "/live"
	if status, _ := p.Probe(context.Background(), cam); status != camera.StatusOffline {
		t.Fatalf("closed port should be offline, got %s", status)
	}
}

func TestNetProberHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snapshot.jpg":
			if u, p, ok := r.BasicAuth(); !ok || u != "admin" || p != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
		case "/page":
			w.Header().Set("Content-Type", "text/html")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewNetProber(time.Second)
	cam := camera.New()
	cam.CameraType = camera.TypeIP
	cam.Username, cam.Password = "admin", "pw"

	cases := map[string]camera.Status{
		"/snapshot.jpg": camera.StatusOnline,
		"/page":         camera.StatusError,
		"/missing":      camera.StatusError,
	}
	for path, want := range cases {
		cam.StreamURL = srv.URL + path
		if status, err := p.Probe(context.Background(), cam); err != nil || status != want {
			t.Fatalf("%s: got %s %v, want %s", path, status, err, want)
		}
	}
}

func TestNetProberUSB(t *testing.T) {
	dev := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(dev, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p := NewNetProber(time.Second)
	cam := camera.New()
	cam.CameraType = camera.TypeUSB
	cam.StreamURL = dev
	if status, _ := p.Probe(context.Background(), cam); status != camera.StatusOnline {
		t.Fatalf("existing device should be online")
	}
	cam.StreamURL = dev + "-missing"
	if status, _ := p.Probe(context.Background(), cam); status != camera.StatusOffline {
		t.Fatalf("missing device should be offline")
	}
}
