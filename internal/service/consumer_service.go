// FILE: internal/service/consumer_service.go
package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"streamworks-assistant-be/pkg/events"
	natsbus "streamworks-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IEventBridgeService forwards dialog lifecycle events from the in-process
// bus to the external NATS stream where the XML renderer listens.
type IEventBridgeService interface {
	Run(ctx context.Context) error
}

type eventBridgeService struct {
	pubSub    *gochannel.GoChannel
	topics    []string
	publisher *natsbus.Publisher
}

func NewEventBridgeService(
	pubSub *gochannel.GoChannel,
	topics []string,
	publisher *natsbus.Publisher,
) IEventBridgeService {
	return &eventBridgeService{
		pubSub:    pubSub,
		topics:    topics,
		publisher: publisher,
	}
}

// Run subscribes to every bridged topic and pumps messages until the
// context is cancelled. It returns after all subscriptions are set up;
// forwarding happens in background goroutines.
func (s *eventBridgeService) Run(ctx context.Context) error {
	for _, topic := range s.topics {
		messages, err := s.pubSub.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go func(topic string) {
			for msg := range messages {
				s.forward(ctx, topic, msg.Payload)
				// Ack always: the in-process bus has no durable retry,
				// and a NATS outage is logged rather than replayed.
				msg.Ack()
			}
		}(topic)
	}

	return nil
}

type bridgedEvent struct {
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (s *eventBridgeService) forward(ctx context.Context, topic string, payload []byte) {
	var ev bridgedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("[ERROR] Bridge: failed to unmarshal event on %s: %v", topic, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.publisher.Publish(pubCtx, events.BaseEvent{
		Type:       ev.Type,
		Data:       ev.Payload,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		log.Printf("[ERROR] Bridge: failed to forward %s to NATS: %v", ev.Type, err)
		return
	}

	log.Printf("[INFO] Bridge: forwarded %s from %s", ev.Type, topic)
}
