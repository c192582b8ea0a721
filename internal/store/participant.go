package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Fjallroth/matesrace/types"
	"github.com/lib/pq"
)

const participantColumns = `id, race_id, user_id, submitted_ride, submitted_activity_id, segment_results, created_at, updated_at`

// ParticipantRepository handles persistence for race participants.
type ParticipantRepository struct {
	db *sql.DB
}

func NewParticipantRepository(db *sql.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Get(ctx context.Context, id int64) (types.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	return scanParticipant(r.db.QueryRowContext(ctx, query, id))
}

func (r *ParticipantRepository) GetByRaceAndUser(ctx context.Context, raceID, userID int64) (types.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE race_id = $1 AND user_id = $2`
	return scanParticipant(r.db.QueryRowContext(ctx, query, raceID, userID))
}

// ListByRace returns the race's participants with their users, in join order.
func (r *ParticipantRepository) ListByRace(ctx context.Context, raceID int64) ([]types.ParticipantDetail, error) {
	const query = `
		SELECT p.id, p.race_id, p.user_id, p.submitted_ride, p.submitted_activity_id, p.segment_results,
		       p.created_at, p.updated_at,
		       u.id, u.strava_id, u.display_name, u.first_name, u.last_name, u.sex, u.profile_picture
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.race_id = $1
		ORDER BY p.created_at, p.id`
	rows, err := r.db.QueryContext(ctx, query, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]types.ParticipantDetail, 0)
	for rows.Next() {
		var detail types.ParticipantDetail
		var activityID sql.NullInt64
		var resultsJSON []byte
		if err := rows.Scan(
			&detail.Participant.ID,
			&detail.Participant.RaceID,
			&detail.Participant.UserID,
			&detail.Participant.SubmittedRide,
			&activityID,
			&resultsJSON,
			&detail.Participant.CreatedAt,
			&detail.Participant.UpdatedAt,
			&detail.User.ID,
			&detail.User.StravaID,
			&detail.User.DisplayName,
			&detail.User.FirstName,
			&detail.User.LastName,
			&detail.User.Sex,
			&detail.User.ProfilePicture,
		); err != nil {
			return nil, err
		}
		detail.Participant.SubmittedActivityID = int64Ptr(activityID)
		detail.Participant.SegmentResults, err = decodeSegmentResults(resultsJSON)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", detail.Participant.ID, err)
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

func (r *ParticipantRepository) CountByRace(ctx context.Context, raceID int64) (int, error) {
	const query = `SELECT COUNT(1) FROM participants WHERE race_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, raceID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ParticipantRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(1) FROM participants WHERE user_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountByRaces returns participant counts keyed by race id. Races without
// participants are absent from the map.
func (r *ParticipantRepository) CountByRaces(ctx context.Context, raceIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(raceIDs))
	if len(raceIDs) == 0 {
		return counts, nil
	}

	const query = `SELECT race_id, COUNT(1) FROM participants WHERE race_id = ANY($1) GROUP BY race_id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(raceIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var raceID int64
		var count int
		if err := rows.Scan(&raceID, &count); err != nil {
			return nil, err
		}
		counts[raceID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Create inserts a participant with empty results. A second participation of
// the same user in the same race fails with ErrDuplicate.
func (r *ParticipantRepository) Create(ctx context.Context, participant types.Participant) (types.Participant, error) {
	now := time.Now()
	participant.CreatedAt = now
	participant.UpdatedAt = now
	participant.SubmittedRide = false
	participant.SubmittedActivityID = nil
	participant.SegmentResults = []types.SegmentResult{}

	const query = `
		INSERT INTO participants (race_id, user_id, submitted_ride, segment_results, created_at, updated_at)
		VALUES ($1, $2, FALSE, '[]'::jsonb, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		participant.RaceID,
		participant.UserID,
		participant.CreatedAt,
		participant.UpdatedAt,
	).Scan(&participant.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Participant{}, ErrDuplicate
		}
		return types.Participant{}, err
	}
	return participant, nil
}

// UpdateResults overwrites the submission fields of the participant in one
// statement.
func (r *ParticipantRepository) UpdateResults(ctx context.Context, participant types.Participant) (types.Participant, error) {
	participant.UpdatedAt = time.Now()
	if participant.SegmentResults == nil {
		participant.SegmentResults = []types.SegmentResult{}
	}

	resultsJSON, err := json.Marshal(participant.SegmentResults)
	if err != nil {
		return types.Participant{}, err
	}

	const query = `
		UPDATE participants
		SET submitted_ride = $1,
			submitted_activity_id = $2,
			segment_results = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		participant.SubmittedRide,
		nullInt64(participant.SubmittedActivityID),
		resultsJSON,
		participant.UpdatedAt,
		participant.ID,
	)
	if err != nil {
		return types.Participant{}, err
	}
	if err := checkRowsAffected(result); err != nil {
		return types.Participant{}, err
	}
	return participant, nil
}

func (r *ParticipantRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM participants WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result)
}

func scanParticipant(row rowScanner) (types.Participant, error) {
	var participant types.Participant
	var activityID sql.NullInt64
	var resultsJSON []byte
	err := row.Scan(
		&participant.ID,
		&participant.RaceID,
		&participant.UserID,
		&participant.SubmittedRide,
		&activityID,
		&resultsJSON,
		&participant.CreatedAt,
		&participant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Participant{}, ErrNotFound
		}
		return types.Participant{}, err
	}
	participant.SubmittedActivityID = int64Ptr(activityID)
	participant.SegmentResults, err = decodeSegmentResults(resultsJSON)
	if err != nil {
		return types.Participant{}, fmt.Errorf("participant %d: %w", participant.ID, err)
	}
	return participant, nil
}

func decodeSegmentResults(data []byte) ([]types.SegmentResult, error) {
	results := []types.SegmentResult{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &results); err != nil {
			return nil, fmt.Errorf("decode segment results: %w", err)
		}
	}
	return results, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}
