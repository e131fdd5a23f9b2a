package local

import (
	"context"
	"fmt"

	"dailyflow/internal/domain"
	"dailyflow/internal/notify"
	"dailyflow/internal/worker"
)

type Presenters interface {
	Presenter(userID string) (*notify.Presenter, bool)
}

// Local shows the reminder as a desktop notification in the owner's open
// sessions. Users without a live session are skipped.
type Local struct {
	Sessions Presenters
}

func (h Local) Handle(ctx context.Context, due domain.DueReminder) error {
	p, ok := h.Sessions.Presenter(due.UserID)
	if !ok {
		return fmt.Errorf("%w: no live session", worker.ErrSkipped)
	}
	if !p.Supported() {
		return fmt.Errorf("%w: notifications unsupported", worker.ErrSkipped)
	}
	p.ShowTaskReminder(ctx, due.Task)
	return nil
}
