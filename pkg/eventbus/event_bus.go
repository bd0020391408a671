// Package eventbus carries the two process-internal channels of the
// automation core: domain-event ingestion (API surface -> trigger manager)
// and trigger-fire notifications (trigger manager -> execution engine).
package eventbus

import (
	"context"

	"github.com/leadmill/leadmill/pkg/events"
)

// DomainHandler consumes one domain event.
type DomainHandler func(ctx context.Context, event *events.DomainEvent) error

// FireHandler consumes one trigger-fire notification.
type FireHandler func(ctx context.Context, fired *events.TriggerFired) error

// Bus is the typed pub/sub contract. Handlers are registered before
// Subscribe is called; Subscribe starts the consuming loops and returns.
type Bus interface {
	PublishDomainEvent(ctx context.Context, event *events.DomainEvent) error
	PublishTriggerFired(ctx context.Context, fired *events.TriggerFired) error

	HandleDomainEvents(handler DomainHandler)
	HandleTriggerFires(handler FireHandler)

	Subscribe(ctx context.Context) error
	Close() error
}
