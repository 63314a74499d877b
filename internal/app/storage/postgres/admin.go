package postgres

import (
	"context"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/admin"
)

func (s *Store) CreateSystemCheck(ctx context.Context, check admin.SystemCheck) (admin.SystemCheck, error) {
	check.CreatedAt = time.Now().UTC()
	err := getNamed(ctx, s.db, &check.ID, `
		INSERT INTO system_checks (check_type, status, details, cpu_usage, memory_usage, disk_usage,
			camera_count, online_cameras, offline_cameras, alerts_24h, created_at)
		VALUES (:check_type, :status, :details, :cpu_usage, :memory_usage, :disk_usage,
			:camera_count, :online_cameras, :offline_cameras, :alerts_24h, :created_at)
		RETURNING id`, check)
	if err != nil {
		return admin.SystemCheck{}, translate(err, "system check", check.CheckType)
	}
	return check, nil
}

func (s *Store) LatestSystemCheck(ctx context.Context, checkType string) (admin.SystemCheck, error) {
	var check admin.SystemCheck
	err := s.db.GetContext(ctx, &check, `
		SELECT id, check_type, status, details, cpu_usage, memory_usage, disk_usage, camera_count,
			online_cameras, offline_cameras, alerts_24h, created_at
		FROM system_checks WHERE ($1 = '' OR check_type = $1)
		ORDER BY created_at DESC, id DESC LIMIT 1`, checkType)
	return check, translate(err, "system check", checkType)
}

// --- settings ---------------------------------------------------------------

const systemSettingColumns = `id, key, value, description, data_type, is_editable, category, updated_by,
	created_at, updated_at`

func (s *Store) CreateSetting(ctx context.Context, st admin.Setting) (admin.Setting, error) {
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	err := getNamed(ctx, s.db, &st.ID, `
		INSERT INTO system_settings (key, value, description, data_type, is_editable, category,
			updated_by, created_at, updated_at)
		VALUES (:key, :value, :description, :data_type, :is_editable, :category,
			:updated_by, :created_at, :updated_at)
		RETURNING id`, st)
	if err != nil {
		return admin.Setting{}, translate(err, "setting", st.Key)
	}
	return st, nil
}

func (s *Store) UpdateSetting(ctx context.Context, st admin.Setting) (admin.Setting, error) {
	st.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE system_settings SET key = :key, value = :value, description = :description,
			data_type = :data_type, is_editable = :is_editable, category = :category,
			updated_by = :updated_by, updated_at = :updated_at
		WHERE id = :id`, st)
	if err != nil {
		return admin.Setting{}, translate(err, "setting", st.ID)
	}
	if err := mustAffect(res, "setting", st.ID); err != nil {
		return admin.Setting{}, err
	}
	return s.GetSetting(ctx, st.ID)
}

func (s *Store) GetSetting(ctx context.Context, id int64) (admin.Setting, error) {
	var st admin.Setting
	err := s.db.GetContext(ctx, &st, `SELECT `+systemSettingColumns+` FROM system_settings WHERE id = $1`, id)
	return st, translate(err, "setting", id)
}

func (s *Store) GetSettingByKey(ctx context.Context, key string) (admin.Setting, error) {
	var st admin.Setting
	err := s.db.GetContext(ctx, &st, `SELECT `+systemSettingColumns+` FROM system_settings WHERE key = $1`, key)
	return st, translate(err, "setting", key)
}

func (s *Store) ListSettings(ctx context.Context) ([]admin.Setting, error) {
	settings := []admin.Setting{}
	err := s.db.SelectContext(ctx, &settings, `SELECT `+systemSettingColumns+` FROM system_settings ORDER BY category, key`)
	return settings, err
}

func (s *Store) DeleteSetting(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM system_settings WHERE id = $1`, id)
	if err != nil {
		return translate(err, "setting", id)
	}
	return mustAffect(res, "setting", id)
}

// --- plans ------------------------------------------------------------------

const planColumns = `id, name, plan_type, description, max_cameras, max_users, face_recognition,
	violence_detection, storage_days, price, billing_cycle, is_active, created_at, updated_at`

func (s *Store) CreatePlan(ctx context.Context, p admin.Plan) (admin.Plan, error) {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	err := getNamed(ctx, s.db, &p.ID, `
		INSERT INTO subscription_plans (name, plan_type, description, max_cameras, max_users,
			face_recognition, violence_detection, storage_days, price, billing_cycle, is_active,
			created_at, updated_at)
		VALUES (:name, :plan_type, :description, :max_cameras, :max_users,
			:face_recognition, :violence_detection, :storage_days, :price, :billing_cycle, :is_active,
			:created_at, :updated_at)
		RETURNING id`, p)
	if err != nil {
		return admin.Plan{}, translate(err, "plan", p.Name)
	}
	return p, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p admin.Plan) (admin.Plan, error) {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE subscription_plans SET name = :name, plan_type = :plan_type, description = :description,
			max_cameras = :max_cameras, max_users = :max_users, face_recognition = :face_recognition,
			violence_detection = :violence_detection, storage_days = :storage_days, price = :price,
			billing_cycle = :billing_cycle, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, p)
	if err != nil {
		return admin.Plan{}, translate(err, "plan", p.ID)
	}
	if err := mustAffect(res, "plan", p.ID); err != nil {
		return admin.Plan{}, err
	}
	return s.GetPlan(ctx, p.ID)
}

func (s *Store) GetPlan(ctx context.Context, id int64) (admin.Plan, error) {
	var p admin.Plan
	err := s.db.GetContext(ctx, &p, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id)
	return p, translate(err, "plan", id)
}

func (s *Store) ListPlans(ctx context.Context) ([]admin.Plan, error) {
	plans := []admin.Plan{}
	err := s.db.SelectContext(ctx, &plans, `SELECT `+planColumns+` FROM subscription_plans ORDER BY price, id`)
	return plans, err
}

func (s *Store) DeletePlan(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscription_plans WHERE id = $1`, id)
	if err != nil {
		return translate(err, "plan", id)
	}
	return mustAffect(res, "plan", id)
}

// --- subscriptions ----------------------------------------------------------

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, trial_end_date,
	custom_max_cameras, custom_max_users, custom_storage_days, last_payment_date, next_payment_date,
	payment_method, created_at, updated_at`

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID int64) (admin.Subscription, error) {
	var sub admin.Subscription
	err := s.db.GetContext(ctx, &sub, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = $1`, userID)
	return sub, translate(err, "subscription for user", userID)
}

// SaveSubscription upserts by user id.
func (s *Store) SaveSubscription(ctx context.Context, sub admin.Subscription) (admin.Subscription, error) {
	err := getNamed(ctx, s.db, &sub.ID, `
		INSERT INTO user_subscriptions (user_id, plan_id, status, start_date, end_date, trial_end_date,
			custom_max_cameras, custom_max_users, custom_storage_days, last_payment_date,
			next_payment_date, payment_method)
		VALUES (:user_id, :plan_id, :status, :start_date, :end_date, :trial_end_date,
			:custom_max_cameras, :custom_max_users, :custom_storage_days, :last_payment_date,
			:next_payment_date, :payment_method)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id, status = EXCLUDED.status, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, trial_end_date = EXCLUDED.trial_end_date,
			custom_max_cameras = EXCLUDED.custom_max_cameras, custom_max_users = EXCLUDED.custom_max_users,
			custom_storage_days = EXCLUDED.custom_storage_days,
			last_payment_date = EXCLUDED.last_payment_date, next_payment_date = EXCLUDED.next_payment_date,
			payment_method = EXCLUDED.payment_method, updated_at = NOW()
		RETURNING id`, sub)
	if err != nil {
		return admin.Subscription{}, translate(err, "subscription for user", sub.UserID)
	}
	return s.GetSubscriptionByUser(ctx, sub.UserID)
}
