package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.CameraStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)
var _ storage.FaceStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to dsn and applies the pool limits.
func Open(dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	return db, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// translate maps driver errors onto storage sentinels.
func translate(err error, kind string, id interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", kind, id, sql.ErrNoRows)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pqErr.Constraint, storage.ErrDuplicate)
		case "23503":
			if strings.HasPrefix(pqErr.Message, "update or delete") {
				return fmt.Errorf("%s %v: %w", kind, id, storage.ErrReferenced)
			}
			return fmt.Errorf("%s references a missing record: %w", kind, sql.ErrNoRows)
		}
	}
	return err
}

func mustAffect(res sql.Result, kind string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, sql.ErrNoRows)
	}
	return nil
}

// getNamed runs a named query that returns one row into dest.
func getNamed(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, arg interface{}) error {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, q, dest, sqlx.Rebind(sqlx.DOLLAR, bound), args...)
}

// where accumulates positional predicates.
type where struct {
	parts []string
	args  []interface{}
}

func (w *where) add(expr string, v interface{}) {
	w.args = append(w.args, v)
	w.parts = append(w.parts, fmt.Sprintf(expr, len(w.args)))
}

func (w *where) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns user text into a substring LIKE pattern with its
// wildcards taken literally.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func (w *where) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

// --- UserStore --------------------------------------------------------------

const userColumns = `id, email, full_name, role, phone_number, profile_picture, date_joined,
	last_login, is_active, is_staff, is_superuser, password_hash`

const settingColumns = `user_id, email_enabled, email_for_fire_smoke, email_for_fall, email_for_violence,
	email_for_choking, email_for_unauthorized_face, sms_enabled, sms_for_fire_smoke, sms_for_fall,
	sms_for_violence, sms_for_choking, sms_for_unauthorized_face, push_enabled, push_for_fire_smoke,
	push_for_fall, push_for_violence, push_for_choking, push_for_unauthorized_face,
	quiet_hours_enabled, quiet_hours_start, quiet_hours_end, min_severity_email, min_severity_sms,
	min_severity_push`

const settingValues = `:user_id, :email_enabled, :email_for_fire_smoke, :email_for_fall, :email_for_violence,
	:email_for_choking, :email_for_unauthorized_face, :sms_enabled, :sms_for_fire_smoke, :sms_for_fall,
	:sms_for_violence, :sms_for_choking, :sms_for_unauthorized_face, :push_enabled, :push_for_fire_smoke,
	:push_for_fall, :push_for_violence, :push_for_choking, :push_for_unauthorized_face,
	:quiet_hours_enabled, :quiet_hours_start, :quiet_hours_end, :min_severity_email, :min_severity_sms,
	:min_severity_push`

// CreateUser inserts the user and its notification settings in one transaction.
func (s *Store) CreateUser(ctx context.Context, user account.User, settings notification.Setting) (account.User, error) {
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return account.User{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	err = getNamed(ctx, tx, &user.ID, `
		INSERT INTO users (email, full_name, role, phone_number, profile_picture, date_joined,
			last_login, is_active, is_staff, is_superuser, password_hash)
		VALUES (:email, :full_name, :role, :phone_number, :profile_picture, :date_joined,
			:last_login, :is_active, :is_staff, :is_superuser, :password_hash)
		RETURNING id`, user)
	if err != nil {
		return account.User{}, translate(err, "user", user.Email)
	}

	settings.UserID = user.ID
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO notification_settings (`+settingColumns+`) VALUES (`+settingValues+`)`, settings); err != nil {
		return account.User{}, translate(err, "notification setting", user.ID)
	}
	if err := tx.Commit(); err != nil {
		return account.User{}, err
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user account.User) (account.User, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE users SET email = :email, full_name = :full_name, role = :role,
			phone_number = :phone_number, profile_picture = :profile_picture,
			last_login = :last_login, is_active = :is_active, is_staff = :is_staff,
			is_superuser = :is_superuser, password_hash = :password_hash
		WHERE id = :id`, user)
	if err != nil {
		return account.User{}, translate(err, "user", user.ID)
	}
	if err := mustAffect(res, "user", user.ID); err != nil {
		return account.User{}, err
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Store) GetUser(ctx context.Context, id int64) (account.User, error) {
	var u account.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return u, translate(err, "user", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (account.User, error) {
	var u account.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return u, translate(err, "user", email)
}

func (s *Store) ListUsers(ctx context.Context, filter account.Filter) ([]account.User, int, error) {
	w := &where{}
	if filter.Role != "" {
		w.add("role = $%d", filter.Role)
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		w.add(`(email ILIKE $%[1]d ESCAPE '\' OR full_name ILIKE $%[1]d ESCAPE '\')`, containsPattern(q))
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY date_joined DESC, id DESC`
	query += w.page(filter.Limit, filter.Offset)

	users := []account.User{}
	if err := s.db.SelectContext(ctx, &users, query, w.args...); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translate(err, "user", id)
	}
	return mustAffect(res, "user", id)
}
