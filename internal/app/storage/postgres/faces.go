package postgres

import (
	"context"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/face"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
)

const faceColumns = `id, name, description, face_image, face_encoding, role, access_level, user_id,
	created_at, updated_at, is_active`

// --- FaceStore --------------------------------------------------------------

func (s *Store) CreateFace(ctx context.Context, f face.AuthorizedFace) (face.AuthorizedFace, error) {
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	err := getNamed(ctx, s.db, &f.ID, `
		INSERT INTO authorized_faces (name, description, face_image, face_encoding, role, access_level,
			user_id, created_at, updated_at, is_active)
		VALUES (:name, :description, :face_image, :face_encoding, :role, :access_level,
			:user_id, :created_at, :updated_at, :is_active)
		RETURNING id`, f)
	if err != nil {
		return face.AuthorizedFace{}, translate(err, "face", f.Name)
	}
	return f, nil
}

func (s *Store) UpdateFace(ctx context.Context, f face.AuthorizedFace) (face.AuthorizedFace, error) {
	f.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE authorized_faces SET name = :name, description = :description, face_image = :face_image,
			face_encoding = :face_encoding, role = :role, access_level = :access_level,
			updated_at = :updated_at, is_active = :is_active
		WHERE id = :id`, f)
	if err != nil {
		return face.AuthorizedFace{}, translate(err, "face", f.ID)
	}
	if err := mustAffect(res, "face", f.ID); err != nil {
		return face.AuthorizedFace{}, err
	}
	return s.GetFace(ctx, f.ID)
}

func (s *Store) GetFace(ctx context.Context, id int64) (face.AuthorizedFace, error) {
	var f face.AuthorizedFace
	err := s.db.GetContext(ctx, &f, `SELECT `+faceColumns+` FROM authorized_faces WHERE id = $1`, id)
	return f, translate(err, "face", id)
}

func (s *Store) ListFaces(ctx context.Context, filter face.Filter) ([]face.AuthorizedFace, int, error) {
	w := &where{}
	if filter.UserID != 0 {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.Name != "" {
		w.add(`name ILIKE $%d ESCAPE '\'`, containsPattern(filter.Name))
	}
	if filter.Role != "" {
		w.add(`role ILIKE $%d ESCAPE '\'`, containsPattern(filter.Role))
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}
	if filter.ActiveOnly {
		w.add("is_active = $%d", true)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM authorized_faces`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + faceColumns + ` FROM authorized_faces` + w.String() + ` ORDER BY name, id`
	query += w.page(filter.Limit, filter.Offset)

	faces := []face.AuthorizedFace{}
	if err := s.db.SelectContext(ctx, &faces, query, w.args...); err != nil {
		return nil, 0, err
	}
	return faces, total, nil
}

func (s *Store) DeleteFace(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM authorized_faces WHERE id = $1`, id)
	if err != nil {
		return translate(err, "face", id)
	}
	return mustAffect(res, "face", id)
}

func (s *Store) CreateVerificationLog(ctx context.Context, log face.VerificationLog) (face.VerificationLog, error) {
	if log.VerifiedAt.IsZero() {
		log.VerifiedAt = time.Now().UTC()
	}
	err := getNamed(ctx, s.db, &log.ID, `
		INSERT INTO face_verification_logs (authorized_face_id, is_match, confidence, source_image,
			source_camera_id, verified_at, notes)
		VALUES (:authorized_face_id, :is_match, :confidence, :source_image,
			:source_camera_id, :verified_at, :notes)
		RETURNING id`, log)
	if err != nil {
		return face.VerificationLog{}, translate(err, "verification log", "")
	}
	return log, nil
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) GetNotificationSetting(ctx context.Context, userID int64) (notification.Setting, error) {
	var st notification.Setting
	err := s.db.GetContext(ctx, &st, `SELECT id, `+settingColumns+`, created_at, updated_at
		FROM notification_settings WHERE user_id = $1`, userID)
	return st, translate(err, "notification setting for user", userID)
}

// SaveNotificationSetting upserts by user id.
func (s *Store) SaveNotificationSetting(ctx context.Context, st notification.Setting) (notification.Setting, error) {
	err := getNamed(ctx, s.db, &st.ID, `
		INSERT INTO notification_settings (`+settingColumns+`)
		VALUES (`+settingValues+`)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			email_for_fire_smoke = EXCLUDED.email_for_fire_smoke,
			email_for_fall = EXCLUDED.email_for_fall,
			email_for_violence = EXCLUDED.email_for_violence,
			email_for_choking = EXCLUDED.email_for_choking,
			email_for_unauthorized_face = EXCLUDED.email_for_unauthorized_face,
			sms_enabled = EXCLUDED.sms_enabled,
			sms_for_fire_smoke = EXCLUDED.sms_for_fire_smoke,
			sms_for_fall = EXCLUDED.sms_for_fall,
			sms_for_violence = EXCLUDED.sms_for_violence,
			sms_for_choking = EXCLUDED.sms_for_choking,
			sms_for_unauthorized_face = EXCLUDED.sms_for_unauthorized_face,
			push_enabled = EXCLUDED.push_enabled,
			push_for_fire_smoke = EXCLUDED.push_for_fire_smoke,
			push_for_fall = EXCLUDED.push_for_fall,
			push_for_violence = EXCLUDED.push_for_violence,
			push_for_choking = EXCLUDED.push_for_choking,
			push_for_unauthorized_face = EXCLUDED.push_for_unauthorized_face,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			min_severity_email = EXCLUDED.min_severity_email,
			min_severity_sms = EXCLUDED.min_severity_sms,
			min_severity_push = EXCLUDED.min_severity_push,
			updated_at = NOW()
		RETURNING id`, st)
	if err != nil {
		return notification.Setting{}, translate(err, "notification setting for user", st.UserID)
	}
	return s.GetNotificationSetting(ctx, st.UserID)
}

func (s *Store) CreateNotificationLog(ctx context.Context, log notification.Log) (notification.Log, error) {
	log.CreatedAt = time.Now().UTC()
	err := getNamed(ctx, s.db, &log.ID, `
		INSERT INTO notification_logs (user_id, title, message, notification_type, status, alert_id,
			created_at, sent_at, error_message)
		VALUES (:user_id, :title, :message, :notification_type, :status, :alert_id,
			:created_at, :sent_at, :error_message)
		RETURNING id`, log)
	if err != nil {
		return notification.Log{}, translate(err, "notification log", log.Title)
	}
	return log, nil
}

func (s *Store) UpdateNotificationLog(ctx context.Context, log notification.Log) (notification.Log, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE notification_logs SET title = :title, message = :message, status = :status,
			sent_at = :sent_at, error_message = :error_message
		WHERE id = :id`, log)
	if err != nil {
		return notification.Log{}, translate(err, "notification log", log.ID)
	}
	if err := mustAffect(res, "notification log", log.ID); err != nil {
		return notification.Log{}, err
	}
	return log, nil
}

func (s *Store) ListNotificationLogs(ctx context.Context, filter notification.LogFilter) ([]notification.Log, int, error) {
	w := &where{}
	if filter.UserID != 0 {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.AlertID != 0 {
		w.add("alert_id = $%d", filter.AlertID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notification_logs`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, user_id, title, message, notification_type, status, alert_id, created_at,
		sent_at, error_message FROM notification_logs` + w.String() + ` ORDER BY created_at DESC, id DESC`
	query += w.page(filter.Limit, filter.Offset)

	logs := []notification.Log{}
	if err := s.db.SelectContext(ctx, &logs, query, w.args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
