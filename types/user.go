package types

import "time"

// User represents a Strava athlete who has logged in to the system.
// Profile fields mirror Strava and are refreshed on every login.
type User struct {
	// ID is the internal identifier of the user.
	ID int64 `json:"id" db:"id"`

	// StravaID is the Strava athlete id. It is unique and never changes.
	StravaID int64 `json:"strava_id" db:"strava_id"`

	// DisplayName is "first last" as reported by Strava at last login.
	DisplayName string `json:"display_name" db:"display_name"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Sex is the Strava sex code, typically "M" or "F".
	Sex string `json:"sex" db:"sex"`

	City    string `json:"city" db:"city"`
	State   string `json:"state" db:"state"`
	Country string `json:"country" db:"country"`

	// ProfilePicture is the URL of the athlete's Strava avatar.
	ProfilePicture string `json:"profile_picture" db:"profile_picture"`

	// AccessToken is the current Strava access token.
	// Tokens are never exposed in API responses.
	AccessToken string `json:"-" db:"access_token"`

	// RefreshToken is used to obtain a new access token once it expires.
	RefreshToken string `json:"-" db:"refresh_token"`

	// TokenExpiresAt is the expiry of AccessToken. The zero value means unknown.
	TokenExpiresAt time.Time `json:"-" db:"token_expires_at"`

	// Premium lifts the organiser and joined-race quotas.
	Premium bool `json:"premium" db:"premium"`

	// CreatedAt is the timestamp of the first login.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent login or token refresh.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is the authenticated caller of a race operation.
type Identity struct {
	UserID   int64
	StravaID int64
}
