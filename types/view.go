package types

// RaceView is a race as presented to one viewer at one instant.
// Which fields are populated depends on the viewer; see services.BuildRaceView.
type RaceView struct {
	ID                         int64             `json:"id"`
	Name                       string            `json:"name"`
	Info                       string            `json:"info"`
	StartDate                  string            `json:"start_date"`
	EndDate                    string            `json:"end_date"`
	SegmentIDs                 []int64           `json:"segment_ids"`
	Organiser                  *UserSummary      `json:"organiser"`
	IsPrivate                  bool              `json:"is_private"`
	HideLeaderboardUntilFinish bool              `json:"hide_leaderboard_until_finish"`
	UseSexCategories           bool              `json:"use_sex_categories"`
	Participants               []ParticipantView `json:"participants"`
	ParticipantCount           int               `json:"participant_count"`

	// Password is only set for the organiser.
	Password *string `json:"password"`
}

// UserSummary is the public part of a user profile.
type UserSummary struct {
	StravaID       int64  `json:"strava_id"`
	DisplayName    string `json:"display_name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ProfilePicture string `json:"profile_picture"`
	Sex            string `json:"sex"`
}

type ParticipantView struct {
	ID                  int64               `json:"id"`
	User                *UserSummary        `json:"user"`
	SubmittedRide       bool                `json:"submitted_ride"`
	SubmittedActivityID *int64              `json:"submitted_activity_id"`
	SegmentResults      []SegmentResultView `json:"segment_results"`
}

// SegmentResultView carries a nil ElapsedTimeSeconds when the time is
// hidden from the viewer.
type SegmentResultView struct {
	SegmentID          int64  `json:"segment_id"`
	SegmentName        string `json:"segment_name"`
	ElapsedTimeSeconds *int   `json:"elapsed_time_seconds"`
}
