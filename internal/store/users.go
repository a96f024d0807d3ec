package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

// Users is the thin account surface orders hang off of. Authentication
// lives outside this repo.
type Users struct{}

func NewUsers() *Users { return &Users{} }

func (Users) Create(ctx context.Context, q database.Querier, email, name string) (*models.User, error) {
	user := &models.User{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO users (email, name, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 RETURNING id, email, name, created_at, updated_at`,
		email, name).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (Users) Get(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	err := q.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at
		 FROM users
		 WHERE id = $1`,
		id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func (Users) Exists(ctx context.Context, q database.Querier, id int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}
