package reconcile

import (
	"context"
	"log/slog"
)

// undoStack collects compensating actions during a multi-step link. On
// failure the completed steps are unwound in reverse order. Compensation is
// best effort: an undo that fails is logged and the rest still run.
type undoStack struct {
	steps []func(context.Context) error
}

func (u *undoStack) push(fn func(context.Context) error) {
	u.steps = append(u.steps, fn)
}

func (u *undoStack) unwind(ctx context.Context, log *slog.Logger) {
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](ctx); err != nil {
			log.ErrorContext(ctx, "compensating action failed", "step", i, "error", err)
		}
	}
	u.steps = nil
}
