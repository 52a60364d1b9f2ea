package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository exposes the user records the core reads, plus the presence
// columns it is allowed to write.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	ListUsers(ctx context.Context, excludeID int) ([]models.User, error)
	UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, name, email, password_hash, online, last_seen, created_at`

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every user except excludeID, ordered by name.
func (r *UserRepo) ListUsers(ctx context.Context, excludeID int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY name ASC`, excludeID)
	return users, err
}

// UpdatePresence persists the durable online flag and last-seen timestamp.
// Callers treat this as fire-and-forget relative to in-memory presence.
func (r *UserRepo) UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET online=$2, last_seen=$3 WHERE id=$1`, userID, online, lastSeen)
	return err
}
