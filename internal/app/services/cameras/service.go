package cameras

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/app/metrics"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// Service manages cameras and their reachability.
type Service struct {
	store  storage.CameraStore
	prober Prober
	log    *logging.Logger
	now    func() time.Time
}

// New constructs a camera service. A nil prober uses NewNetProber.
func New(store storage.CameraStore, prober Prober, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("cameras")
	}
	if prober == nil {
		prober = NewNetProber(DefaultProbeTimeout)
	}
	return &Service{store: store, prober: prober, log: log, now: time.Now}
}

// List returns the cameras visible to p, newest first.
func (s *Service) List(ctx context.Context, p account.Principal, limit, offset int) ([]camera.Camera, int, error) {
	cams, total, err := s.store.ListCameras(ctx, camera.Filter{UserID: p.ScopeOwner(), Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, apperrors.Internal("", err)
	}
	return cams, total, nil
}

// Create registers a camera owned by p.
func (s *Service) Create(ctx context.Context, p account.Principal, patch camera.Patch) (camera.Camera, error) {
	if missing := patch.MissingRequired(); len(missing) > 0 {
		return camera.Camera{}, apperrors.Validation(missing...)
	}
	cam := camera.New()
	patch.Apply(&cam)
	cam.UserID = p.UserID
	if errs := cam.Validate(); len(errs) > 0 {
		return camera.Camera{}, apperrors.Validation(errs...)
	}
	cam, err := s.store.CreateCamera(ctx, cam)
	if err != nil {
		return camera.Camera{}, apperrors.Internal("", err)
	}
	s.log.WithField("camera_id", cam.ID).WithField("user_id", p.UserID).Info("camera created")
	return cam, nil
}

// Get returns a camera visible to p. Cameras of other users are reported as
// missing.
func (s *Service) Get(ctx context.Context, p account.Principal, id int64) (camera.Camera, error) {
	cam, err := s.store.GetCamera(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return camera.Camera{}, apperrors.NotFound("camera")
	}
	if err != nil {
		return camera.Camera{}, apperrors.Internal("", err)
	}
	if !p.CanAccess(cam.UserID) {
		return camera.Camera{}, apperrors.NotFound("camera")
	}
	return cam, nil
}

// Update applies patch. A full update requires every required field.
func (s *Service) Update(ctx context.Context, p account.Principal, id int64, patch camera.Patch, partial bool) (camera.Camera, error) {
	cam, err := s.Get(ctx, p, id)
	if err != nil {
		return camera.Camera{}, err
	}
	if !partial {
		if missing := patch.MissingRequired(); len(missing) > 0 {
			return camera.Camera{}, apperrors.Validation(missing...)
		}
	}
	patch.Apply(&cam)
	return s.save(ctx, cam)
}

// Delete removes a camera and, through the store, its alerts.
func (s *Service) Delete(ctx context.Context, p account.Principal, id int64) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}
	if err := s.store.DeleteCamera(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("camera")
		}
		return apperrors.Internal("", err)
	}
	s.log.WithField("camera_id", id).Info("camera deleted")
	return nil
}

// Settings returns the detection settings of a camera.
func (s *Service) Settings(ctx context.Context, p account.Principal, id int64) (camera.Settings, error) {
	cam, err := s.Get(ctx, p, id)
	if err != nil {
		return camera.Settings{}, err
	}
	return cam.Settings(), nil
}

// UpdateSettings applies a detection settings patch.
func (s *Service) UpdateSettings(ctx context.Context, p account.Principal, id int64, patch camera.SettingsPatch) (camera.Settings, error) {
	cam, err := s.Get(ctx, p, id)
	if err != nil {
		return camera.Settings{}, err
	}
	patch.Apply(&cam)
	cam, err = s.save(ctx, cam)
	if err != nil {
		return camera.Settings{}, err
	}
	return cam.Settings(), nil
}

func (s *Service) save(ctx context.Context, cam camera.Camera) (camera.Camera, error) {
	if errs := cam.Validate(); len(errs) > 0 {
		return camera.Camera{}, apperrors.Validation(errs...)
	}
	cam, err := s.store.UpdateCamera(ctx, cam)
	if errors.Is(err, sql.ErrNoRows) {
		return camera.Camera{}, apperrors.NotFound("camera")
	}
	if err != nil {
		return camera.Camera{}, apperrors.Internal("", err)
	}
	return cam, nil
}

// Statuses returns the status projection of every visible camera.
func (s *Service) Statuses(ctx context.Context, p account.Principal) ([]camera.StatusView, error) {
	cams, _, err := s.store.ListCameras(ctx, camera.Filter{UserID: p.ScopeOwner()})
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	out := make([]camera.StatusView, 0, len(cams))
	for _, c := range cams {
		out = append(out, camera.StatusView{ID: c.ID, Name: c.Name, Status: c.Status, LastOnline: c.LastOnline})
	}
	return out, nil
}

// StreamInfo is returned for a reachable camera.
type StreamInfo struct {
	StreamURL string        `json:"stream_url"`
	Status    camera.Status `json:"status"`
}

// Stream probes the camera, records the observed status and returns the
// stream URL when it is online.
func (s *Service) Stream(ctx context.Context, p account.Principal, id int64) (StreamInfo, error) {
	cam, err := s.Get(ctx, p, id)
	if err != nil {
		return StreamInfo{}, err
	}

	status, probeErr := s.probe(ctx, cam)
	if probeErr != nil {
		status = camera.StatusError
	}
	cam.Status = status
	if status == camera.StatusOnline {
		now := s.now().UTC()
		cam.LastOnline = &now
	}
	if _, err := s.store.UpdateCamera(ctx, cam); err != nil {
		return StreamInfo{}, apperrors.Internal("", err)
	}

	switch {
	case probeErr != nil:
		s.log.WithError(probeErr).WithField("camera_id", id).Warn("camera probe failed")
		return StreamInfo{}, apperrors.New(http.StatusInternalServerError, apperrors.CodeInternal, "Error connecting to camera.", probeErr.Error())
	case status != camera.StatusOnline:
		return StreamInfo{}, apperrors.New(http.StatusNotFound, apperrors.CodeNotFound, "Camera is "+string(status)+".")
	}
	return StreamInfo{StreamURL: cam.AuthenticatedStreamURL(), Status: status}, nil
}

func (s *Service) probe(ctx context.Context, cam camera.Camera) (status camera.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("camera probe panicked")
		}
		if err != nil {
			status = camera.StatusError
		}
		metrics.RecordCameraProbe(string(status))
	}()
	return s.prober.Probe(ctx, cam)
}

// StatusReport summarizes one UpdateStatuses run.
type StatusReport struct {
	Checked int `json:"checked"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Errored int `json:"error"`
	Changed int `json:"changed"`
}

// UpdateStatuses probes every camera. Reachable cameras become online,
// unreachable online cameras become offline and unexpected probe failures
// mark the camera as error.
func (s *Service) UpdateStatuses(ctx context.Context) (StatusReport, error) {
	cams, _, err := s.store.ListCameras(ctx, camera.Filter{})
	if err != nil {
		return StatusReport{}, err
	}
	var report StatusReport
	for _, cam := range cams {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		status, probeErr := s.probe(ctx, cam)

		next := cam.Status
		switch {
		case probeErr != nil:
			next = camera.StatusError
		case status == camera.StatusOnline:
			next = camera.StatusOnline
		case cam.Status == camera.StatusOnline:
			next = camera.StatusOffline
		}

		switch next {
		case camera.StatusOnline:
			report.Online++
		case camera.StatusError:
			report.Errored++
		default:
			report.Offline++
		}

		if next == cam.Status {
			continue
		}
		report.Changed++
		cam.Status = next
		if next == camera.StatusOnline {
			now := s.now().UTC()
			cam.LastOnline = &now
		}
		if _, err := s.store.UpdateCamera(ctx, cam); err != nil {
			s.log.WithError(err).WithField("camera_id", cam.ID).Warn("camera status update failed")
		}
	}
	s.log.WithField("checked", report.Checked).WithField("changed", report.Changed).Info("camera statuses updated")
	return report, nil
}
