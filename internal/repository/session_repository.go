package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablehub/api/internal/models"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO auth_sessions (
			id, user_id, token_hash, token_index, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.TokenIndex,
		session.ExpiresAt,
	)
	return err
}

// FindByIndex returns the unexpired sessions whose fast index matches.
// Normally zero or one row; index collisions just mean the caller
// verifies each candidate against its slow hash.
func (r *SessionRepository) FindByIndex(ctx context.Context, index string, now time.Time) ([]models.Session, error) {
	const query = `
		SELECT id, user_id, token_hash, token_index, expires_at, created_at
		FROM auth_sessions
		WHERE token_index = $1 AND expires_at > $2
	`

	rows, err := r.pool.Query(ctx, query, index, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// FindLegacy returns the unexpired sessions created before the fast
// index column existed. The set only shrinks: each row leaves it on
// its first successful refresh via UpgradeIndex, or by expiring.
func (r *SessionRepository) FindLegacy(ctx context.Context, now time.Time) ([]models.Session, error) {
	const query = `
		SELECT id, user_id, token_hash, token_index, expires_at, created_at
		FROM auth_sessions
		WHERE token_index IS NULL AND expires_at > $1
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// UpgradeIndex backfills the fast index on a legacy row. Only called
// after the row's slow hash has verified against the presented token.
func (r *SessionRepository) UpgradeIndex(ctx context.Context, id string, index string) error {
	const query = `
		UPDATE auth_sessions SET token_index = $2 WHERE id = $1 AND token_index IS NULL
	`
	_, err := r.pool.Exec(ctx, query, id, index)
	return err
}

// DeleteByID is idempotent: removing an absent row is not an error,
// the caller's intent is already satisfied.
func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM auth_sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM auth_sessions WHERE user_id = $1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// DeleteExpired is hygiene, not correctness: every read already
// filters on expires_at. Purging keeps the legacy scan set small.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM auth_sessions WHERE expires_at <= $1`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.TokenIndex,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	return session, err
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
