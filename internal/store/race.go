package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Fjallroth/matesrace/types"
	"github.com/lib/pq"
)

const raceColumns = `id, name, info, start_date, end_date, segment_ids, organiser_id, password,
		is_private, hide_leaderboard_until_finish, use_sex_categories, created_at, updated_at`

// RaceRepository handles persistence for races.
type RaceRepository struct {
	db *sql.DB
}

func NewRaceRepository(db *sql.DB) *RaceRepository {
	return &RaceRepository{db: db}
}

func (r *RaceRepository) Get(ctx context.Context, id int64) (types.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = $1`
	return scanRace(r.db.QueryRowContext(ctx, query, id))
}

// List returns races newest first together with the total race count.
func (r *RaceRepository) List(ctx context.Context, offset, limit int) ([]types.Race, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM races`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + raceColumns + ` FROM races ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`
	races, err := r.queryRaces(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return races, total, nil
}

// ListByParticipant returns the races the user participates in, newest first.
func (r *RaceRepository) ListByParticipant(ctx context.Context, userID int64) ([]types.Race, error) {
	const query = `
		SELECT r.id, r.name, r.info, r.start_date, r.end_date, r.segment_ids, r.organiser_id, r.password,
		       r.is_private, r.hide_leaderboard_until_finish, r.use_sex_categories, r.created_at, r.updated_at
		FROM races r
		JOIN participants p ON p.race_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.created_at DESC, r.id DESC`
	return r.queryRaces(ctx, query, userID)
}

// CountActiveByOrganiser counts the organiser's races that end after now.
func (r *RaceRepository) CountActiveByOrganiser(ctx context.Context, organiserID int64, now time.Time) (int, error) {
	const query = `SELECT COUNT(1) FROM races WHERE organiser_id = $1 AND end_date > $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, organiserID, now).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateWithOrganiser inserts the race and enrolls its organiser as the
// first participant in a single transaction.
func (r *RaceRepository) CreateWithOrganiser(ctx context.Context, race types.Race) (types.Race, types.Participant, error) {
	now := time.Now()
	race.CreatedAt = now
	race.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Race{}, types.Participant{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const raceQuery = `
		INSERT INTO races (
			name, info, start_date, end_date, segment_ids, organiser_id, password,
			is_private, hide_leaderboard_until_finish, use_sex_categories, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		raceQuery,
		race.Name,
		race.Info,
		race.StartDate,
		race.EndDate,
		pq.Array(race.SegmentIDs),
		race.OrganiserID,
		race.Password,
		race.IsPrivate,
		race.HideLeaderboardUntilFinish,
		race.UseSexCategories,
		race.CreatedAt,
		race.UpdatedAt,
	).Scan(&race.ID); err != nil {
		return types.Race{}, types.Participant{}, fmt.Errorf("insert race: %w", err)
	}

	participant := types.Participant{
		RaceID:         race.ID,
		UserID:         race.OrganiserID,
		SegmentResults: []types.SegmentResult{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	const participantQuery = `
		INSERT INTO participants (race_id, user_id, submitted_ride, segment_results, created_at, updated_at)
		VALUES ($1, $2, FALSE, '[]'::jsonb, $3, $4)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		participantQuery,
		participant.RaceID,
		participant.UserID,
		participant.CreatedAt,
		participant.UpdatedAt,
	).Scan(&participant.ID); err != nil {
		return types.Race{}, types.Participant{}, fmt.Errorf("insert organiser participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.Race{}, types.Participant{}, err
	}
	return race, participant, nil
}

func (r *RaceRepository) Update(ctx context.Context, race types.Race) (types.Race, error) {
	race.UpdatedAt = time.Now()

	const query = `
		UPDATE races
		SET name = $1,
			info = $2,
			start_date = $3,
			end_date = $4,
			segment_ids = $5,
			password = $6,
			is_private = $7,
			hide_leaderboard_until_finish = $8,
			use_sex_categories = $9,
			updated_at = $10
		WHERE id = $11`
	result, err := r.db.ExecContext(
		ctx,
		query,
		race.Name,
		race.Info,
		race.StartDate,
		race.EndDate,
		pq.Array(race.SegmentIDs),
		race.Password,
		race.IsPrivate,
		race.HideLeaderboardUntilFinish,
		race.UseSexCategories,
		race.UpdatedAt,
		race.ID,
	)
	if err != nil {
		return types.Race{}, err
	}
	if err := checkRowsAffected(result); err != nil {
		return types.Race{}, err
	}
	return race, nil
}

// Delete removes the race. Its participants go with it through the
// ON DELETE CASCADE foreign key.
func (r *RaceRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM races WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result)
}

func (r *RaceRepository) queryRaces(ctx context.Context, query string, args ...any) ([]types.Race, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	races := make([]types.Race, 0)
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, race)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return races, nil
}

func scanRace(row rowScanner) (types.Race, error) {
	var race types.Race
	err := row.Scan(
		&race.ID,
		&race.Name,
		&race.Info,
		&race.StartDate,
		&race.EndDate,
		pq.Array(&race.SegmentIDs),
		&race.OrganiserID,
		&race.Password,
		&race.IsPrivate,
		&race.HideLeaderboardUntilFinish,
		&race.UseSexCategories,
		&race.CreatedAt,
		&race.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Race{}, ErrNotFound
		}
		return types.Race{}, err
	}
	return race, nil
}
