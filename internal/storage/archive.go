package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

const maxArchivedActivityBytes = 16 << 20

// ActivityArchive stores raw Strava activity payloads under one key per
// race participant. A new submission overwrites the previous payload.
type ActivityArchive struct {
	storage *Storage
}

func NewActivityArchive(storage *Storage) *ActivityArchive {
	return &ActivityArchive{storage: storage}
}

// ActivityKey is the object key holding a participant's activity.
func ActivityKey(raceID, userID int64) string {
	return fmt.Sprintf("races/%d/participants/%d/activity.json", raceID, userID)
}

func (a *ActivityArchive) PutActivity(ctx context.Context, raceID, userID int64, raw json.RawMessage) error {
	return a.storage.Put(ctx, ActivityKey(raceID, userID), bytes.NewReader(raw), int64(len(raw)), "application/json")
}

func (a *ActivityArchive) GetActivity(ctx context.Context, raceID, userID int64) (json.RawMessage, error) {
	reader, err := a.storage.Get(ctx, ActivityKey(raceID, userID))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxArchivedActivityBytes))
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("archived activity for race %d user %d is not valid json", raceID, userID)
	}
	return json.RawMessage(data), nil
}

func (a *ActivityArchive) DeleteActivity(ctx context.Context, raceID, userID int64) error {
	return a.storage.Delete(ctx, ActivityKey(raceID, userID))
}
