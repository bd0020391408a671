package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/leadmill/leadmill/pkg/cmd"
	"github.com/leadmill/leadmill/pkg/engine"
	"github.com/leadmill/leadmill/pkg/eventbus"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/otelhelper"
	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/retry"
	"github.com/leadmill/leadmill/pkg/services"
	"github.com/leadmill/leadmill/pkg/triggers"
	"github.com/leadmill/leadmill/pkg/web"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName         = "leadmill"
	gatewayTimeout      = 30 * time.Second
	shutdownGracePeriod = 15 * time.Second
)

type ServerConfig struct {
	Port                int
	DatabaseURL         string
	MessagingGatewayURL string
}

// Server wires the persistence, the two event channels, the trigger manager,
// the execution engine and the HTTP API together.
type Server struct {
	config      ServerConfig
	logger      *slog.Logger
	persistence persistence.Persistence
	bus         eventbus.Bus
	triggers    *triggers.Manager
	engine      *engine.Engine
	retries     *retry.Manager
	handlers    *web.APIHandlers
}

func NewServer(ctx context.Context, logger *slog.Logger, config ServerConfig) (*Server, error) {
	store, err := cmd.NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus := cmd.NewEventBus(logger)
	emitter := events.NewEmitter(bus, logger)

	registry, err := cmd.NewActionRegistry(logger, store, emitter, config.MessagingGatewayURL, gatewayTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build action registry: %w", err)
	}

	var tracer trace.Tracer

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracer, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	retries := retry.NewManager(logger)
	triggerManager := triggers.NewManager(logger, bus, store.WorkflowRepository())

	executionEngine := engine.NewEngine(logger, tracer,
		store.WorkflowRepository(), store.LeadRepository(), registry, retries, engine.Config{})

	validate := validator.New(validator.WithRequiredStructEnabled())

	workflowService := services.NewWorkflow(store, validate, registry, triggerManager, logger)
	leadService := services.NewLead(store, emitter, validate, logger)

	return &Server{
		config:      config,
		logger:      logger,
		persistence: store,
		bus:         bus,
		triggers:    triggerManager,
		engine:      executionEngine,
		retries:     retries,
		handlers:    web.NewAPIHandlers(workflowService, leadService, executionEngine, validate),
	}, nil
}

// Run starts the consuming loops, registers boot-time triggers and serves
// the API until SIGINT/SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.bus.HandleDomainEvents(s.triggers.HandleDomainEvent)
	s.bus.HandleTriggerFires(s.engine.HandleTriggerFired)

	if err := s.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event channels: %w", err)
	}

	if err := s.triggers.Start(ctx); err != nil {
		return err
	}

	app := web.NewApp(s.handlers)

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(s.config.Port))
	}()

	s.logger.InfoContext(ctx, "Leadmill server started", "port", s.config.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
		s.logger.InfoContext(ctx, "Shutting down server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to shut down HTTP server", "error", err)
	}

	s.triggers.Stop()
	cancel()

	if err := s.engine.Shutdown(shutdownCtx); err != nil {
		s.logger.ErrorContext(ctx, "Engine shutdown timed out", "error", err)
	}

	s.retries.Stop()

	if err := s.bus.Close(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if err := s.persistence.Close(context.Background()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}

	return nil
}
