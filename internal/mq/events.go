package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Fjallroth/matesrace/types"
)

const (
	attrEventType = "event_type"
	attrRaceID    = "race_id"
)

// EventBus publishes and consumes race events on one channel.
type EventBus struct {
	mq      *MQ
	channel string
}

func NewEventBus(mq *MQ, channel string) *EventBus {
	return &EventBus{mq: mq, channel: channel}
}

// PublishRaceEvent sends event as JSON. The type and race id are duplicated
// into message attributes so consumers can filter without decoding.
func (b *EventBus) PublishRaceEvent(ctx context.Context, event types.RaceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		attrEventType: string(event.Type),
		attrRaceID:    strconv.FormatInt(event.RaceID, 10),
	}
	if _, err := b.mq.Publish(ctx, b.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Tail delivers every race event on the channel to fn until ctx ends.
// Messages that are not race events are acknowledged and dropped.
func (b *EventBus) Tail(ctx context.Context, fn func(types.RaceEvent) error) error {
	return b.mq.Subscribe(ctx, b.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeRaceEvent(msg)
		if err != nil {
			return nil
		}
		return fn(event)
	})
}

func DecodeRaceEvent(msg Message) (types.RaceEvent, error) {
	var event types.RaceEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.RaceEvent{}, fmt.Errorf("decode race event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		return types.RaceEvent{}, fmt.Errorf("race event %s has no type", msg.ID)
	}
	return event, nil
}
