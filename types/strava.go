package types

import (
	"encoding/json"
	"time"
)

// Athlete is the subset of the Strava athlete profile mirrored onto User.
type Athlete struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"firstname"`
	LastName      string `json:"lastname"`
	Sex           string `json:"sex"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	Profile       string `json:"profile"`
	ProfileMedium string `json:"profile_medium"`
}

// OAuthToken is a token set issued by the Strava token endpoint.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ActivityDetail is a fetched Strava activity.
//
// Segment efforts are kept raw so that malformed entries can be skipped one
// by one. HasSegmentEfforts is false when the payload carried no usable
// segment_efforts array.
type ActivityDetail struct {
	ID                int64
	Name              string
	Type              string
	HasSegmentEfforts bool
	SegmentEfforts    []json.RawMessage

	// Raw is the payload exactly as returned by Strava.
	Raw json.RawMessage
}

// ActivitySummary is a Strava activity as listed for a race window.
type ActivitySummary struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	StartDateLocal string  `json:"start_date_local"`
	Distance       float64 `json:"distance"`
	ElapsedTime    int     `json:"elapsed_time"`
	Type           string  `json:"type"`
}
