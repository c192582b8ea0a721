package services

import (
	"context"
	"encoding/json"
)

// ActivityArchive keeps the raw Strava activity each participant's current
// results were taken from.
type ActivityArchive interface {
	PutActivity(ctx context.Context, raceID, userID int64, raw json.RawMessage) error
	GetActivity(ctx context.Context, raceID, userID int64) (json.RawMessage, error)
	DeleteActivity(ctx context.Context, raceID, userID int64) error
}
