package types

import "time"

// Participant is a user's membership in a race together with the results
// of the activity they last submitted.
type Participant struct {
	// ID is the unique identifier of the participation.
	ID int64 `json:"id" db:"id"`

	// RaceID identifies the race. A user participates in a race at most once.
	RaceID int64 `json:"race_id" db:"race_id"`

	// UserID identifies the participating user.
	UserID int64 `json:"user_id" db:"user_id"`

	// SubmittedRide is set once an activity has been submitted.
	SubmittedRide bool `json:"submitted_ride" db:"submitted_ride"`

	// SubmittedActivityID is the Strava activity the results came from.
	SubmittedActivityID *int64 `json:"submitted_activity_id" db:"submitted_activity_id"`

	// SegmentResults are replaced as a whole on every submission.
	SegmentResults []SegmentResult `json:"segment_results" db:"segment_results"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SegmentResult is the elapsed time recorded on one race segment.
type SegmentResult struct {
	SegmentID          int64  `json:"segment_id"`
	SegmentName        string `json:"segment_name"`
	ElapsedTimeSeconds int    `json:"elapsed_time_seconds"`
}

// ParticipantDetail pairs a participant with the user behind it.
type ParticipantDetail struct {
	Participant Participant
	User        User
}
