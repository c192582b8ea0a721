package types

import "time"

// Race is a time-boxed competition over a fixed set of Strava segments.
// Races are always private and joined with a shared password.
type Race struct {
	// ID is the unique identifier of the race.
	ID int64 `json:"id" db:"id"`

	// Name is the human-readable race name, at least three characters.
	Name string `json:"name" db:"name"`

	// Info is free-form text shown with the race.
	Info string `json:"info" db:"info"`

	// StartDate opens the race window. EndDate is always after StartDate.
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`

	// SegmentIDs are the Strava segments that count towards the race, in
	// the order the organiser listed them.
	SegmentIDs []int64 `json:"segment_ids" db:"segment_ids"`

	// OrganiserID references the user who created the race.
	OrganiserID int64 `json:"organiser_id" db:"organiser_id"`

	// Password is the shared access code. It is compared in plaintext.
	Password string `json:"-" db:"password"`

	IsPrivate bool `json:"is_private" db:"is_private"`

	// HideLeaderboardUntilFinish hides other participants' times from
	// non-organisers until EndDate has passed.
	HideLeaderboardUntilFinish bool `json:"hide_leaderboard_until_finish" db:"hide_leaderboard_until_finish"`

	// UseSexCategories splits the leaderboard by athlete sex.
	UseSexCategories bool `json:"use_sex_categories" db:"use_sex_categories"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasSegment reports whether id is one of the race's segments.
func (r Race) HasSegment(id int64) bool {
	for _, segmentID := range r.SegmentIDs {
		if segmentID == id {
			return true
		}
	}
	return false
}

// Finished reports whether the race window has closed at now.
func (r Race) Finished(now time.Time) bool {
	return r.EndDate.Before(now)
}

// RaceInput carries the fields of a new race.
type RaceInput struct {
	Name                       string
	Info                       string
	StartDate                  time.Time
	EndDate                    time.Time
	SegmentIDs                 []int64
	Password                   string
	HideLeaderboardUntilFinish bool
	UseSexCategories           bool
}

// RaceUpdate is a partial edit of a race. Nil fields are left unchanged.
// An empty Password also leaves the stored password unchanged.
type RaceUpdate struct {
	Name                       *string
	Info                       *string
	StartDate                  *time.Time
	EndDate                    *time.Time
	SegmentIDs                 []int64
	Password                   *string
	HideLeaderboardUntilFinish *bool
	UseSexCategories           *bool
}
