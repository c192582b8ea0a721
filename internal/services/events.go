package services

import (
	"context"
	"time"

	"github.com/Fjallroth/matesrace/types"
	"github.com/google/uuid"
)

// EventPublisher delivers race lifecycle events to a message broker.
type EventPublisher interface {
	PublishRaceEvent(ctx context.Context, event types.RaceEvent) error
}

func newRaceEvent(eventType types.RaceEventType, raceID, userID int64, now time.Time) types.RaceEvent {
	return types.RaceEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		RaceID:     raceID,
		UserID:     userID,
		OccurredAt: now.UTC(),
	}
}
