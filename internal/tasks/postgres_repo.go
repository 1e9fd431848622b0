package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

type PostgresRepo struct {
	db *pgxpool.Pool

	Clock func() time.Time
}

func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepo{db: pool}, nil
}

func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}

func (r *PostgresRepo) Ping(ctx context.Context) error { return r.db.Ping(ctx) }

func (r *PostgresRepo) ApplyMigrations(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email VARCHAR(255) NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	title VARCHAR(500) NOT NULL,
	description TEXT,
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_is_completed ON tasks(is_completed);
CREATE INDEX IF NOT EXISTS idx_tasks_user_completed ON tasks(user_id, is_completed);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`)
	return err
}

func (r *PostgresRepo) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = stamp(r.Clock)
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)`,
		u.ID, u.Email, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "users_pkey" {
				return User{}, ErrUserExists
			}
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) Insert(ctx context.Context, t Task) (Task, error) {
	at := stamp(r.Clock)
	err := r.db.QueryRow(ctx, `
		INSERT INTO tasks (title, description, is_completed, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, t.Title, t.Description, t.IsCompleted, t.UserID, at).Scan(&t.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return Task{}, ErrInvalidOwner
		}
		return Task{}, err
	}
	t.CreatedAt = at
	t.UpdatedAt = at
	return t, nil
}

const pgTaskColumns = `id, title, description, is_completed, user_id, created_at, updated_at`

func (r *PostgresRepo) FindOne(ctx context.Context, id int64, ownerID string) (Task, error) {
	return scanPgTask(r.db.QueryRow(ctx,
		`SELECT `+pgTaskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	))
}

func (r *PostgresRepo) FindAll(ctx context.Context, ownerID string, completed *bool) ([]Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{ownerID}
	if completed != nil {
		query += ` AND is_completed = $2`
		args = append(args, *completed)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, id int64, ownerID string, p Patch) (Task, error) {
	var t Task
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		t, err = scanPgTask(tx.QueryRow(ctx,
			`SELECT `+pgTaskColumns+` FROM tasks WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			id, ownerID,
		))
		if err != nil {
			return err
		}

		p.apply(&t)
		t.UpdatedAt = bump(t.UpdatedAt, stamp(r.Clock))

		_, err = tx.Exec(ctx, `
			UPDATE tasks SET title = $1, description = $2, is_completed = $3, updated_at = $4
			WHERE id = $5 AND user_id = $6
		`, t.Title, t.Description, t.IsCompleted, t.UpdatedAt, id, ownerID)
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64, ownerID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.IsCompleted, &t.UserID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
