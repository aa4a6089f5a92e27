package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablehub/api/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, restaurant_id, name, email, password_hash, role, permissions, active, avatar_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.RestaurantID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Permissions,
		user.Active,
		user.AvatarURL,
	)
	return err
}

// FindByEmail matches case-insensitively; the unique index on
// lower(email) guarantees at most one row.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT id, restaurant_id, name, email, password_hash, role, permissions, active, avatar_url, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`
	return r.queryOne(ctx, query, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `
		SELECT id, restaurant_id, name, email, password_hash, role, permissions, active, avatar_url, created_at, updated_at
		FROM users WHERE id = $1
	`
	return r.queryOne(ctx, query, id)
}

func (r *UserRepository) ListActive(ctx context.Context) ([]models.User, error) {
	const query = `
		SELECT id, restaurant_id, name, email, password_hash, role, permissions, active, avatar_url, created_at, updated_at
		FROM users
		WHERE active
		ORDER BY role, name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `
		UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id string, avatarURL string) error {
	const query = `
		UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, avatarURL)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) queryOne(ctx context.Context, query string, arg any) (models.User, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.RestaurantID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Permissions,
		&user.Active,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
