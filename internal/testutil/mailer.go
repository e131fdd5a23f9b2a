package testutil

import (
	"context"
	"sync"
	"time"

	"dailyflow/internal/mail"
)

// SentReminder records one SendTaskReminder call.
type SentReminder struct {
	Email       string
	Name        string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// FakeMailer records reminder emails instead of sending them.
type FakeMailer struct {
	mu   sync.Mutex
	sent []SentReminder

	Unconfigured bool
	Err          error
}

func (f *FakeMailer) Configured() bool { return !f.Unconfigured }

func (f *FakeMailer) SendTaskReminder(_ context.Context, email, name, title, description string, start, end time.Time) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentReminder{email, name, title, description, start, end})
	return nil
}

func (f *FakeMailer) Sent() []SentReminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentReminder(nil), f.sent...)
}

// FakeTransport is an in-memory mail.Transport.
type FakeTransport struct {
	mu   sync.Mutex
	msgs []mail.Message

	SendErr   error
	VerifyErr error
}

func (f *FakeTransport) Send(_ context.Context, m mail.Message) error {
	if f.SendErr != nil {
		return f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *FakeTransport) Verify(context.Context) error { return f.VerifyErr }

func (f *FakeTransport) Messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.msgs...)
}
