package cmd

import (
	"log/slog"
	"time"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/messaging"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// NewActionRegistry builds the action registry with every built-in handler
// wired against the store, the messaging gateway and the domain-event
// announcer.
func NewActionRegistry(
	logger *slog.Logger,
	store persistence.Persistence,
	announcer actions.Announcer,
	gatewayURL string,
	gatewayTimeout time.Duration,
) (*actions.Registry, error) {
	sender := messaging.NewHTTPSender(logger, gatewayURL, gatewayTimeout)

	return actions.NewDefaultRegistry(logger, actions.Dependencies{
		Leads:    store.LeadRepository(),
		Tasks:    store.TaskRepository(),
		Messages: store.MessageRepository(),
		Sender:   sender,
		Events:   announcer,
	})
}
