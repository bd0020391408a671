package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/leadmill/leadmill/pkg/events"
)

// WatermillBus implements Bus over a watermill publisher/subscriber pair.
// Each channel is a separate topic with JSON payloads; the event type rides
// in message metadata.
type WatermillBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	domainHandler DomainHandler
	fireHandler   FireHandler
}

func NewWatermillBus(pub message.Publisher, sub message.Subscriber) *WatermillBus {
	return &WatermillBus{
		publisher:  pub,
		subscriber: sub,
	}
}

func (b *WatermillBus) PublishDomainEvent(ctx context.Context, event *events.DomainEvent) error {
	return b.publish(events.DomainTopic, string(event.Type), event)
}

func (b *WatermillBus) PublishTriggerFired(ctx context.Context, fired *events.TriggerFired) error {
	return b.publish(events.FiresTopic, string(fired.TriggerType), fired)
}

func (b *WatermillBus) publish(topic, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %s: %w", topic, err)
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), data)
	msg.Metadata.Set(events.EventTypeMetadataKey, eventType)

	return b.publisher.Publish(topic, msg)
}

func (b *WatermillBus) HandleDomainEvents(handler DomainHandler) {
	b.domainHandler = handler
}

func (b *WatermillBus) HandleTriggerFires(handler FireHandler) {
	b.fireHandler = handler
}

// Subscribe starts one consuming goroutine per topic that has a handler
// registered. A handler error nacks the message; decode failures ack and
// drop, there is nothing to gain from redelivering an unreadable payload.
func (b *WatermillBus) Subscribe(ctx context.Context) error {
	if b.domainHandler != nil {
		messages, err := b.subscriber.Subscribe(ctx, events.DomainTopic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", events.DomainTopic, err)
		}

		go consume(ctx, messages, b.domainHandler)
	}

	if b.fireHandler != nil {
		messages, err := b.subscriber.Subscribe(ctx, events.FiresTopic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", events.FiresTopic, err)
		}

		go consume(ctx, messages, b.fireHandler)
	}

	return nil
}

func (b *WatermillBus) Close() error {
	err := b.publisher.Close()
	if err != nil {
		return err
	}

	return b.subscriber.Close()
}

func consume[E any](ctx context.Context, messages <-chan *message.Message, handler func(context.Context, *E) error) {
	for msg := range messages {
		event := new(E)

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			msg.Ack()

			continue
		}

		if err := handler(ctx, event); err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}
