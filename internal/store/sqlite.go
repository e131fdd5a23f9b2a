package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dailyflow/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Open opens the SQLite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist. Times are unix millis.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  profession TEXT NOT NULL DEFAULT '',
  bio TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  start_time INTEGER NOT NULL,
  end_time INTEGER NOT NULL,
  priority TEXT NOT NULL CHECK(priority IN ('High','Medium','Low')) DEFAULT 'Medium',
  completed INTEGER NOT NULL DEFAULT 0,
  has_reminder INTEGER NOT NULL DEFAULT 0,
  reminder_enabled INTEGER NOT NULL DEFAULT 0,
  reminder_minutes INTEGER NOT NULL DEFAULT 0,
  reminder_notified INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_start ON tasks(user_id, start_time);
`
	_, err := db.Exec(schema)
	return err
}

type Repository interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	// UpdateUser writes the editable profile fields: full name, profession, bio.
	UpdateUser(ctx context.Context, u domain.User) (domain.User, error)
	UpdatePassword(ctx context.Context, userID, hash string) error

	// Task operations are always scoped to the owning user.
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	MarkReminderNotified(ctx context.Context, userID, taskID string) error
}

type sqliteRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db, now: time.Now} }

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *sqliteRepo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = "usr_" + uuid.NewString()
	}
	u.Email = normalizeEmail(u.Email)
	now := r.now().UTC().Truncate(time.Millisecond)
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id,full_name,email,password_hash,profession,bio,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`, u.ID, u.FullName, u.Email, u.PasswordHash, u.Profession, u.Bio, millis(now), millis(now))
	if isUniqueViolation(err) {
		return domain.User{}, ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

const userColumns = `id,full_name,email,password_hash,profession,bio,created_at,updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	var created, updated int64
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Profession, &u.Bio, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
	return u, nil
}

func (r *sqliteRepo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r *sqliteRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, normalizeEmail(email)))
}

func (r *sqliteRepo) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	res, err := r.db.ExecContext(ctx, `
UPDATE users SET full_name=?, profession=?, bio=?, updated_at=? WHERE id=?`,
		u.FullName, u.Profession, u.Bio, millis(now), u.ID)
	if err != nil {
		return domain.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.User{}, ErrNotFound
	}
	return r.GetUser(ctx, u.ID)
}

func (r *sqliteRepo) UpdatePassword(ctx context.Context, userID, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`,
		hash, millis(r.now()), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskColumns = `id,user_id,title,description,start_time,end_time,priority,completed,
has_reminder,reminder_enabled,reminder_minutes,reminder_notified,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var (
		t                          domain.Task
		start, end                 int64
		created, updated           int64
		hasReminder, enabled, sent bool
		minutes                    int
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &start, &end, &t.Priority, &t.Completed,
		&hasReminder, &enabled, &minutes, &sent, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	t.StartTime, t.EndTime = fromMillis(start), fromMillis(end)
	t.CreatedAt, t.UpdatedAt = fromMillis(created), fromMillis(updated)
	if hasReminder {
		t.Reminder = &domain.Reminder{Enabled: enabled, MinutesBefore: minutes, Notified: sent}
	}
	return t, nil
}

func reminderArgs(t domain.Task) (has, enabled bool, minutes int, notified bool) {
	if t.Reminder == nil {
		return false, false, 0, false
	}
	return true, t.Reminder.Enabled, t.Reminder.MinutesBefore, t.Reminder.Notified
}

func (r *sqliteRepo) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = "tsk_" + uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	t.CreatedAt, t.UpdatedAt = now, now
	has, enabled, minutes, notified := reminderArgs(t)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, millis(t.StartTime), millis(t.EndTime), t.Priority, t.Completed,
		has, enabled, minutes, notified, millis(now), millis(now))
	if err != nil {
		return domain.Task{}, err
	}
	t.StartTime, t.EndTime = fromMillis(millis(t.StartTime)), fromMillis(millis(t.EndTime))
	return t, nil
}

func (r *sqliteRepo) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+taskColumns+` FROM tasks WHERE user_id=? ORDER BY start_time ASC, created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *sqliteRepo) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND user_id=?`, id, userID))
}

func (r *sqliteRepo) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	has, enabled, minutes, notified := reminderArgs(t)
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET title=?,description=?,start_time=?,end_time=?,priority=?,completed=?,
  has_reminder=?,reminder_enabled=?,reminder_minutes=?,reminder_notified=?,updated_at=?
WHERE id=? AND user_id=?`,
		t.Title, t.Description, millis(t.StartTime), millis(t.EndTime), t.Priority, t.Completed,
		has, enabled, minutes, notified, millis(now), t.ID, t.UserID)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ErrNotFound
	}
	return r.GetTask(ctx, t.UserID, t.ID)
}

func (r *sqliteRepo) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) MarkReminderNotified(ctx context.Context, userID, taskID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET reminder_notified=1, updated_at=? WHERE id=? AND user_id=? AND has_reminder=1`,
		millis(r.now()), taskID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
