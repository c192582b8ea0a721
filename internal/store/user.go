package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Fjallroth/matesrace/types"
	"github.com/lib/pq"
)

const userColumns = `id, strava_id, display_name, first_name, last_name, sex, city, state, country,
		profile_picture, access_token, refresh_token, token_expires_at, premium, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByStravaID(ctx context.Context, stravaID int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE strava_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, stravaID))
}

// ListByIDs returns the users with the given ids in no particular order.
// Unknown ids are ignored.
func (r *UserRepository) ListByIDs(ctx context.Context, ids []int64) ([]types.User, error) {
	users := make([]types.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Upsert inserts the user or refreshes the profile and tokens of the
// existing user with the same Strava id. An empty refresh token keeps the
// stored one and the premium flag is never touched.
func (r *UserRepository) Upsert(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()

	const query = `
		INSERT INTO users (
			strava_id, display_name, first_name, last_name, sex, city, state, country,
			profile_picture, access_token, refresh_token, token_expires_at, premium, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13, $13)
		ON CONFLICT (strava_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			sex = EXCLUDED.sex,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			country = EXCLUDED.country,
			profile_picture = EXCLUDED.profile_picture,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), users.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(
		ctx,
		query,
		user.StravaID,
		user.DisplayName,
		user.FirstName,
		user.LastName,
		user.Sex,
		user.City,
		user.State,
		user.Country,
		user.ProfilePicture,
		user.AccessToken,
		user.RefreshToken,
		nullTime(user.TokenExpiresAt),
		now,
	))
}

// UpdateTokens persists the token fields of the user, including cleared ones.
func (r *UserRepository) UpdateTokens(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET access_token = $1,
			refresh_token = $2,
			token_expires_at = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.AccessToken,
		user.RefreshToken,
		nullTime(user.TokenExpiresAt),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	if err := checkRowsAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) SetPremium(ctx context.Context, stravaID int64, premium bool) error {
	const query = `UPDATE users SET premium = $1, updated_at = $2 WHERE strava_id = $3`
	result, err := r.db.ExecContext(ctx, query, premium, time.Now(), stravaID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result)
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var expiresAt sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.StravaID,
		&user.DisplayName,
		&user.FirstName,
		&user.LastName,
		&user.Sex,
		&user.City,
		&user.State,
		&user.Country,
		&user.ProfilePicture,
		&user.AccessToken,
		&user.RefreshToken,
		&expiresAt,
		&user.Premium,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if expiresAt.Valid {
		user.TokenExpiresAt = expiresAt.Time
	}
	return user, nil
}
