package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyflow/internal/domain"
	"dailyflow/internal/mail"
	"dailyflow/internal/store"
	"dailyflow/internal/worker"
)

type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	MarkReminderNotified(ctx context.Context, userID, taskID string) error
}

type Mailer interface {
	Configured() bool
	SendTaskReminder(ctx context.Context, email, name, title, description string, start, end time.Time) error
}

// Email sends the reminder to the task owner's address on record.
type Email struct {
	Users Users
	Mail  Mailer
}

func (h Email) Handle(ctx context.Context, due domain.DueReminder) error {
	if !h.Mail.Configured() {
		return fmt.Errorf("%w: %w", worker.ErrSkipped, mail.ErrNotConfigured)
	}
	if r := due.Task.Reminder; r != nil && r.Notified {
		return fmt.Errorf("%w: already notified", worker.ErrSkipped)
	}
	u, err := h.Users.GetUser(ctx, due.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: owner no longer exists", worker.ErrSkipped)
	}
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}

	t := due.Task
	if err := h.Mail.SendTaskReminder(ctx, u.Email, u.FullName, t.Title, t.Description, t.StartTime, t.EndTime); err != nil {
		return err
	}
	if err := h.Users.MarkReminderNotified(ctx, due.UserID, t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
