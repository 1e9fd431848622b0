package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the ownership-scoped task store. Every lookup by id also
// matches the owner, and a mismatch is reported exactly like a missing row.
type Repository interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	Insert(ctx context.Context, t Task) (Task, error)
	FindOne(ctx context.Context, id int64, ownerID string) (Task, error)
	FindAll(ctx context.Context, ownerID string, completed *bool) ([]Task, error)
	Update(ctx context.Context, id int64, ownerID string, p Patch) (Task, error)
	Delete(ctx context.Context, id int64, ownerID string) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	// DeleteUser removes the user and every task they own.
	DeleteUser(ctx context.Context, id string) error
}

// Store is a complete backend as opened by Open.
type Store interface {
	Repository
	UserRepository
	ApplyMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type InMemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	tasks map[int64]Task
	users map[string]User

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		tasks: make(map[int64]Task),
		users: make(map[string]User),
	}
}

func (r *InMemoryRepo) ApplyMigrations(context.Context) error { return nil }
func (r *InMemoryRepo) Ping(context.Context) error            { return nil }
func (r *InMemoryRepo) Close() error                          { return nil }

func (r *InMemoryRepo) CreateUser(_ context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, ok := r.users[u.ID]; ok {
		return User{}, ErrUserExists
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	u.CreatedAt = stamp(r.Clock)
	r.users[u.ID] = u
	return u, nil
}

func (r *InMemoryRepo) GetUser(_ context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *InMemoryRepo) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	for tid, t := range r.tasks {
		if t.UserID == id {
			delete(r.tasks, tid)
		}
	}
	return nil
}

func (r *InMemoryRepo) UserExists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.users[userID]
	return ok, nil
}

func (r *InMemoryRepo) Insert(_ context.Context, t Task) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[t.UserID]; !ok {
		return Task{}, ErrInvalidOwner
	}

	r.seq++
	at := stamp(r.Clock)
	t.ID = r.seq
	t.CreatedAt = at
	t.UpdatedAt = at
	r.tasks[t.ID] = t
	return t, nil
}

func (r *InMemoryRepo) FindOne(_ context.Context, id int64, ownerID string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != ownerID {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (r *InMemoryRepo) FindAll(_ context.Context, ownerID string, completed *bool) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0)
	for _, t := range r.tasks {
		if t.UserID != ownerID {
			continue
		}
		if completed != nil && t.IsCompleted != *completed {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *InMemoryRepo) Update(_ context.Context, id int64, ownerID string, p Patch) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != ownerID {
		return Task{}, ErrNotFound
	}
	p.apply(&t)
	t.UpdatedAt = bump(t.UpdatedAt, stamp(r.Clock))
	r.tasks[id] = t
	return t, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id int64, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != ownerID {
		return ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}
