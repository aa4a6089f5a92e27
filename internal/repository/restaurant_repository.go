package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablehub/api/internal/models"
)

var ErrRestaurantNotFound = errors.New("restaurant not found")

type RestaurantRepository struct {
	pool *pgxpool.Pool
}

func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

// CreateWithOwner inserts a restaurant and its owner account in one
// transaction so signup can never leave a restaurant without an owner
// or an owner pointing at a missing restaurant.
func (r *RestaurantRepository) CreateWithOwner(ctx context.Context, restaurant models.Restaurant, owner models.User) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin signup tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const restaurantQuery = `
		INSERT INTO restaurants (id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
	`
	if _, err := tx.Exec(ctx, restaurantQuery, restaurant.ID, restaurant.Name); err != nil {
		return fmt.Errorf("insert restaurant: %w", err)
	}

	const ownerQuery = `
		INSERT INTO users (
			id, restaurant_id, name, email, password_hash, role, permissions, active, avatar_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
	`
	if _, err := tx.Exec(ctx, ownerQuery,
		owner.ID,
		owner.RestaurantID,
		owner.Name,
		owner.Email,
		owner.PasswordHash,
		owner.Role,
		owner.Permissions,
		owner.Active,
		owner.AvatarURL,
	); err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *RestaurantRepository) GetByID(ctx context.Context, id string) (models.Restaurant, error) {
	const query = `
		SELECT id, name, created_at, updated_at FROM restaurants WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	var restaurant models.Restaurant
	if err := row.Scan(
		&restaurant.ID,
		&restaurant.Name,
		&restaurant.CreatedAt,
		&restaurant.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Restaurant{}, ErrRestaurantNotFound
		}
		return models.Restaurant{}, err
	}
	return restaurant, nil
}
