// Package cmd provides common initialization for the command-line
// entrypoints.
package cmd

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/leadmill/leadmill/pkg/channels/gochannel"
	"github.com/leadmill/leadmill/pkg/eventbus"
)

// NewEventBus creates the in-process event bus carrying the domain-event and
// trigger-fire channels.
func NewEventBus(logger *slog.Logger) eventbus.Bus {
	pub, sub := gochannel.CreateChannel(watermill.NewSlogLogger(logger))

	return eventbus.NewWatermillBus(pub, sub)
}
