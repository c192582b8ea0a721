package types

import "time"

// RaceEventType names a race lifecycle event.
type RaceEventType string

const (
	EventRaceCreated        RaceEventType = "race.created"
	EventRaceUpdated        RaceEventType = "race.updated"
	EventRaceDeleted        RaceEventType = "race.deleted"
	EventParticipantJoined  RaceEventType = "participant.joined"
	EventParticipantRemoved RaceEventType = "participant.removed"
	EventResultSubmitted    RaceEventType = "result.submitted"
)

// RaceEvent is published to the message queue after a race mutation.
type RaceEvent struct {
	ID         string        `json:"id"`
	Type       RaceEventType `json:"type"`
	RaceID     int64         `json:"race_id"`
	UserID     int64         `json:"user_id"`
	ActivityID *int64        `json:"activity_id,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
