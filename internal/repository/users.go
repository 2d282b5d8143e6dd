package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"siwatt-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// CreateUser inserts a new account. The password must already be hashed.
func (r *Repository) CreateUser(ctx context.Context, username, email, hashedPassword, fullName string) (*models.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var u models.User
	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, email, password, full_name, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, username, email, COALESCE(full_name, ''), created_at
	`, username, email, hashedPassword, fullName).Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail returns the user with the given email, or nil.
// The password hash is included for credential checks.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, "email = $1", email)
}

// GetUserByUsername returns the user with the given username, or nil.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, "username = $1", username)
}

// GetUserByID returns the user with the given id, or nil.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, email, password, COALESCE(full_name, ''), created_at, last_login
		FROM users
		WHERE `+where, arg).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.FullName, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, userID)
	return err
}
