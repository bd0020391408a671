package actions

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/leadmill/leadmill/pkg/messaging"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []messaging.OutboundMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, message messaging.OutboundMessage) (*messaging.Result, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.sent = append(f.sent, message)

	return &messaging.Result{Success: true, ProviderMessageID: "prov-1"}, nil
}

func newTestRegistry(t *testing.T, sender messaging.Sender) (*Registry, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	registry, err := NewDefaultRegistry(slog.Default(), Dependencies{
		Leads:    store.LeadRepository(),
		Tasks:    store.TaskRepository(),
		Messages: store.MessageRepository(),
		Sender:   sender,
	})
	require.NoError(t, err)

	return registry, store
}

func TestRegistry_ValidateConfig(t *testing.T) {
	registry, _ := newTestRegistry(t, &fakeSender{})

	tests := []struct {
		name       string
		actionType models.ActionType
		config     map[string]any
		wantErr    bool
	}{
		{
			name:       "valid send_message",
			actionType: models.ActionSendMessage,
			config:     map[string]any{"content": "Hi {name}"},
		},
		{
			name:       "send_message without content",
			actionType: models.ActionSendMessage,
			config:     map[string]any{"channel": "sms"},
			wantErr:    true,
		},
		{
			name:       "update_lead_status with unknown stage",
			actionType: models.ActionUpdateLeadStatus,
			config:     map[string]any{"status": "ARCHIVED"},
			wantErr:    true,
		},
		{
			name:       "valid wait",
			actionType: models.ActionWait,
			config:     map[string]any{"duration_ms": float64(250)},
		},
		{
			name:       "wait with zero duration",
			actionType: models.ActionWait,
			config:     map[string]any{"duration_ms": float64(0)},
			wantErr:    true,
		},
		{
			name:       "update_tags with empty list",
			actionType: models.ActionUpdateTags,
			config:     map[string]any{"tags": []any{}},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.ValidateConfig(tt.actionType, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	registry, _ := newTestRegistry(t, &fakeSender{})

	_, err := registry.Handler("teleport_lead")
	assert.ErrorIs(t, err, ErrUnknownActionType)

	err = registry.ValidateConfig("teleport_lead", nil)
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestSendMessageHandler_RendersTemplate(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	registry, _ := newTestRegistry(t, sender)

	handler, err := registry.Handler(models.ActionSendMessage)
	require.NoError(t, err)

	lead := &models.Lead{ID: "lead-1", Name: "Ana", Phone: "+5511999990000", Channel: "whatsapp"}

	err = handler.Execute(ctx, slog.Default(), Context{
		ExecutionID:    "exec-1",
		Lead:           lead,
		Config:         map[string]any{"content": "Hi {name}, still interested?"},
		IdempotencyKey: "exec-1:0:lead-1",
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Hi Ana, still interested?", sender.sent[0].Content)
	assert.Equal(t, "whatsapp", sender.sent[0].Channel)
	assert.Equal(t, "exec-1:0:lead-1", sender.sent[0].IdempotencyKey)
}

func TestSendMessageHandler_MissingChannel(t *testing.T) {
	registry, _ := newTestRegistry(t, &fakeSender{})

	handler, err := registry.Handler(models.ActionSendMessage)
	require.NoError(t, err)

	lead := &models.Lead{ID: "lead-1", Name: "Ana", Phone: "+5511999990000"}

	err = handler.Execute(context.Background(), slog.Default(), Context{
		Lead:   lead,
		Config: map[string]any{"content": "Hi"},
	})
	assert.ErrorIs(t, err, ErrMissingChannel)
}

func TestSendMessageHandler_ProviderFailure(t *testing.T) {
	registry, _ := newTestRegistry(t, &fakeSender{err: errors.New("gateway timeout")})

	handler, err := registry.Handler(models.ActionSendMessage)
	require.NoError(t, err)

	err = handler.Execute(context.Background(), slog.Default(), Context{
		Lead:   &models.Lead{ID: "lead-1", Channel: "sms", Phone: "+551100000000"},
		Config: map[string]any{"content": "Hi"},
	})
	assert.ErrorContains(t, err, "gateway timeout")
}

type captureAnnouncer struct {
	announced []*models.Message
}

func (a *captureAnnouncer) OnMessageSent(_ context.Context, message *models.Message) error {
	a.announced = append(a.announced, message)

	return nil
}

func TestSendMessageHandler_AnnouncesSentMessage(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	announcer := &captureAnnouncer{}

	registry, err := NewDefaultRegistry(slog.Default(), Dependencies{
		Leads:    store.LeadRepository(),
		Tasks:    store.TaskRepository(),
		Messages: store.MessageRepository(),
		Sender:   &fakeSender{},
		Events:   announcer,
	})
	require.NoError(t, err)

	handler, err := registry.Handler(models.ActionSendMessage)
	require.NoError(t, err)

	err = handler.Execute(context.Background(), slog.Default(), Context{
		Lead:   &models.Lead{ID: "lead-1", Channel: "sms", Phone: "+551100000000"},
		Config: map[string]any{"content": "Hi"},
	})
	require.NoError(t, err)

	require.Len(t, announcer.announced, 1)
	assert.Equal(t, "lead-1", announcer.announced[0].LeadID)
	assert.Equal(t, models.MessageOutbound, announcer.announced[0].Direction)
}

func TestUpdateTagsHandler_MergesWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	registry, store := newTestRegistry(t, &fakeSender{})

	lead := &models.Lead{ID: "lead-1", Name: "Ana", Tags: []string{"vip", "sp"}}
	require.NoError(t, store.LeadRepository().Save(ctx, lead))

	handler, err := registry.Handler(models.ActionUpdateTags)
	require.NoError(t, err)

	err = handler.Execute(ctx, slog.Default(), Context{
		Lead:   lead,
		Config: map[string]any{"tags": []any{"sp", "follow-up"}},
	})
	require.NoError(t, err)

	updated, err := store.LeadRepository().GetByID(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"vip", "sp", "follow-up"}, updated.Tags)
}

func TestCreateTaskHandler_DueDateAndTemplating(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t, &fakeSender{})

	handler, err := registry.Handler(models.ActionCreateTask)
	require.NoError(t, err)

	err = handler.Execute(ctx, slog.Default(), Context{
		Lead: &models.Lead{ID: "lead-1", Name: "Ana", AssignedTo: "agent-7"},
		Config: map[string]any{
			"title":        "Call {name}",
			"due_in_hours": float64(24),
		},
	})
	require.NoError(t, err)
}

func TestWaitHandler_CancelledContext(t *testing.T) {
	registry, _ := newTestRegistry(t, &fakeSender{})

	handler, err := registry.Handler(models.ActionWait)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = handler.Execute(ctx, slog.Default(), Context{
		Config: map[string]any{"duration_ms": float64(60000)},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
