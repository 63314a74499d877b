package postgres

import (
	"context"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
)

const cameraColumns = `id, name, description, location, camera_type, stream_url, username, password,
	port, status, last_online, created_at, updated_at, user_id, detection_enabled,
	fire_smoke_detection, fall_detection, violence_detection, choking_detection, face_recognition,
	confidence_threshold, iou_threshold, image_size, frame_rate`

// --- CameraStore ------------------------------------------------------------

func (s *Store) CreateCamera(ctx context.Context, cam camera.Camera) (camera.Camera, error) {
	now := time.Now().UTC()
	cam.CreatedAt, cam.UpdatedAt = now, now
	err := getNamed(ctx, s.db, &cam.ID, `
		INSERT INTO cameras (name, description, location, camera_type, stream_url, username, password,
			port, status, last_online, created_at, updated_at, user_id, detection_enabled,
			fire_smoke_detection, fall_detection, violence_detection, choking_detection, face_recognition,
			confidence_threshold, iou_threshold, image_size, frame_rate)
		VALUES (:name, :description, :location, :camera_type, :stream_url, :username, :password,
			:port, :status, :last_online, :created_at, :updated_at, :user_id, :detection_enabled,
			:fire_smoke_detection, :fall_detection, :violence_detection, :choking_detection, :face_recognition,
			:confidence_threshold, :iou_threshold, :image_size, :frame_rate)
		RETURNING id`, cam)
	if err != nil {
		return camera.Camera{}, translate(err, "camera", cam.Name)
	}
	return cam, nil
}

func (s *Store) UpdateCamera(ctx context.Context, cam camera.Camera) (camera.Camera, error) {
	cam.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE cameras SET name = :name, description = :description, location = :location,
			camera_type = :camera_type, stream_url = :stream_url, username = :username,
			password = :password, port = :port, status = :status, last_online = :last_online,
			updated_at = :updated_at, detection_enabled = :detection_enabled,
			fire_smoke_detection = :fire_smoke_detection, fall_detection = :fall_detection,
			violence_detection = :violence_detection, choking_detection = :choking_detection,
			face_recognition = :face_recognition, confidence_threshold = :confidence_threshold,
			iou_threshold = :iou_threshold, image_size = :image_size, frame_rate = :frame_rate
		WHERE id = :id`, cam)
	if err != nil {
		return camera.Camera{}, translate(err, "camera", cam.ID)
	}
	if err := mustAffect(res, "camera", cam.ID); err != nil {
		return camera.Camera{}, err
	}
	return s.GetCamera(ctx, cam.ID)
}

func (s *Store) GetCamera(ctx context.Context, id int64) (camera.Camera, error) {
	var cam camera.Camera
	err := s.db.GetContext(ctx, &cam, `SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id)
	return cam, translate(err, "camera", id)
}

func (s *Store) ListCameras(ctx context.Context, filter camera.Filter) ([]camera.Camera, int, error) {
	w := &where{}
	if filter.UserID != 0 {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM cameras`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + cameraColumns + ` FROM cameras` + w.String() + ` ORDER BY created_at DESC, id DESC`
	query += w.page(filter.Limit, filter.Offset)

	cams := []camera.Camera{}
	if err := s.db.SelectContext(ctx, &cams, query, w.args...); err != nil {
		return nil, 0, err
	}
	return cams, total, nil
}

func (s *Store) DeleteCamera(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return translate(err, "camera", id)
	}
	return mustAffect(res, "camera", id)
}

// --- AlertStore -------------------------------------------------------------

const alertSelect = `SELECT a.id, a.title, a.description, a.alert_type, a.status, a.severity,
	a.confidence, a.detection_time, a.resolved_time, a.resolved_by, a.camera_id, a.location,
	a.video_file, a.thumbnail, a.notes, a.is_test, a.created_at, a.updated_at,
	c.name AS camera_name, c.user_id AS camera_owner_id
	FROM alerts a JOIN cameras c ON c.id = a.camera_id`

func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.DetectionTime.IsZero() {
		a.DetectionTime = now
	}
	err := getNamed(ctx, s.db, &a.ID, `
		INSERT INTO alerts (title, description, alert_type, status, severity, confidence,
			detection_time, resolved_time, resolved_by, camera_id, location, video_file, thumbnail,
			notes, is_test, created_at, updated_at)
		VALUES (:title, :description, :alert_type, :status, :severity, :confidence,
			:detection_time, :resolved_time, :resolved_by, :camera_id, :location, :video_file, :thumbnail,
			:notes, :is_test, :created_at, :updated_at)
		RETURNING id`, a)
	if err != nil {
		return alert.Alert{}, translate(err, "alert", a.Title)
	}
	return s.GetAlert(ctx, a.ID)
}

func (s *Store) UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE alerts SET title = :title, description = :description, alert_type = :alert_type,
			status = :status, severity = :severity, confidence = :confidence,
			detection_time = :detection_time, resolved_time = :resolved_time,
			resolved_by = :resolved_by, camera_id = :camera_id, location = :location,
			video_file = :video_file, thumbnail = :thumbnail, notes = :notes, is_test = :is_test,
			updated_at = :updated_at
		WHERE id = :id`, a)
	if err != nil {
		return alert.Alert{}, translate(err, "alert", a.ID)
	}
	if err := mustAffect(res, "alert", a.ID); err != nil {
		return alert.Alert{}, err
	}
	return s.GetAlert(ctx, a.ID)
}

func (s *Store) GetAlert(ctx context.Context, id int64) (alert.Alert, error) {
	var a alert.Alert
	err := s.db.GetContext(ctx, &a, alertSelect+` WHERE a.id = $1`, id)
	return a, translate(err, "alert", id)
}

func (s *Store) ListAlerts(ctx context.Context, filter alert.Filter) ([]alert.Alert, int, error) {
	w := &where{}
	if filter.OwnerID != 0 {
		w.add("c.user_id = $%d", filter.OwnerID)
	}
	if filter.CameraID != 0 {
		w.add("a.camera_id = $%d", filter.CameraID)
	}
	if filter.Status != "" {
		w.add("a.status = $%d", filter.Status)
	}
	if filter.Type != "" {
		w.add("a.alert_type = $%d", filter.Type)
	}
	if filter.Severity != "" {
		w.add("a.severity = $%d", filter.Severity)
	}
	if filter.From != nil {
		w.add("a.detection_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("a.detection_time < $%d", *filter.To)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM alerts a JOIN cameras c ON c.id = a.camera_id` + w.String()
	if err := s.db.GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, err
	}
	query := alertSelect + w.String() + ` ORDER BY a.detection_time DESC, a.id DESC`
	query += w.page(filter.Limit, filter.Offset)

	alerts := []alert.Alert{}
	if err := s.db.SelectContext(ctx, &alerts, query, w.args...); err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}
