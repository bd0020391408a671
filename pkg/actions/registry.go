// Package actions implements the per-target side effects a workflow pipeline
// executes: sending messages, mutating lead records, creating follow-up tasks
// and pausing a pipeline. Handlers are looked up through a registry that also
// owns each action type's config schema.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadmill/leadmill/pkg/messaging"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

var ErrUnknownActionType = errors.New("action type not registered")

// Context carries the per-invocation data a handler needs: which run it
// belongs to, the target lead, the action's config map and the idempotency
// key for external calls.
type Context struct {
	ExecutionID    string
	WorkflowID     string
	Lead           *models.Lead
	Config         map[string]any
	IdempotencyKey string
}

type Handler interface {
	Type() models.ActionType
	Schema() map[string]any
	Execute(ctx context.Context, logger *slog.Logger, actionCtx Context) error
}

type Registry struct {
	logger   *slog.Logger
	handlers map[models.ActionType]Handler
	schemas  map[models.ActionType]*gojsonschema.Schema
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[models.ActionType]Handler),
		schemas:  make(map[models.ActionType]*gojsonschema.Schema),
	}
}

// Announcer publishes a domain event for a message the engine sent, so
// event-based triggers can react to outbound traffic. Optional.
type Announcer interface {
	OnMessageSent(ctx context.Context, message *models.Message) error
}

// Dependencies are the collaborators the built-in handlers act against.
type Dependencies struct {
	Leads    persistence.LeadRepository
	Tasks    persistence.TaskRepository
	Messages persistence.MessageRepository
	Sender   messaging.Sender
	Events   Announcer
}

// NewDefaultRegistry builds a registry with every built-in action type
// registered.
func NewDefaultRegistry(logger *slog.Logger, deps Dependencies) (*Registry, error) {
	registry := NewRegistry(logger)

	handlers := []Handler{
		&SendMessageHandler{sender: deps.Sender, messages: deps.Messages, events: deps.Events},
		&UpdateLeadStatusHandler{leads: deps.Leads},
		&AssignLeadHandler{leads: deps.Leads},
		&CreateTaskHandler{tasks: deps.Tasks},
		&UpdateTagsHandler{leads: deps.Leads},
		&WaitHandler{},
	}

	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func (r *Registry) Register(handler Handler) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(handler.Schema()))
	if err != nil {
		return fmt.Errorf("invalid schema for action type '%s': %w", handler.Type(), err)
	}

	r.handlers[handler.Type()] = handler
	r.schemas[handler.Type()] = schema

	return nil
}

func (r *Registry) Handler(actionType models.ActionType) (Handler, error) {
	handler, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}

	return handler, nil
}

// ValidateConfig checks an action config against its type's schema. Called at
// workflow definition time so malformed configs fail fast, long before a run.
func (r *Registry) ValidateConfig(actionType models.ActionType, config map[string]any) error {
	schema, ok := r.schemas[actionType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate config for '%s': %w", actionType, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid config for '%s': %s", actionType, strings.Join(descriptions, "; "))
	}

	return nil
}

func configString(config map[string]any, key string) string {
	if value, ok := config[key].(string); ok {
		return value
	}

	return ""
}
