package actions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
)

var ErrInvalidWaitDuration = errors.New("wait duration must be positive")

// WaitHandler suspends the owning target's pipeline for the configured
// duration. Each target runs in its own goroutine, so the pause never blocks
// other targets or other runs; cancellation cuts the wait short.
type WaitHandler struct{}

func (h *WaitHandler) Type() models.ActionType {
	return models.ActionWait
}

func (h *WaitHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{"type": "number", "minimum": 1},
		},
		"required": []string{"duration_ms"},
	}
}

func (h *WaitHandler) Execute(ctx context.Context, _ *slog.Logger, actionCtx Context) error {
	durationMs, ok := actionCtx.Config["duration_ms"].(float64)
	if !ok || durationMs <= 0 {
		return ErrInvalidWaitDuration
	}

	timer := time.NewTimer(time.Duration(durationMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
