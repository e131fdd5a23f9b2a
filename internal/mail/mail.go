// Package mail renders and sends task reminder emails.
package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templatesFS embed.FS

var ErrNotConfigured = errors.New("email service not configured")

const (
	DefaultHost     = "smtp.gmail.com"
	DefaultPort     = 587
	DefaultFromName = "Daily Flow Reminders"
	DefaultTimezone = "Asia/Dhaka"
)

type Config struct {
	Host     string
	Port     int
	Secure   bool // implicit TLS (port 465); STARTTLS otherwise
	User     string
	Password string
	FromName string
	AppURL   string
	Location *time.Location
}

// Configured reports whether credentials are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.User) != "" && c.Password != ""
}

// MaskedUser returns the sender account with everything after the first three
// characters hidden.
func (c Config) MaskedUser() string {
	if c.User == "" {
		return "Not set"
	}
	if len(c.User) <= 3 {
		return c.User + "***"
	}
	return c.User[:3] + "***"
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Transport hands a rendered message to an outbound mail server.
type Transport interface {
	Send(ctx context.Context, m Message) error
	Verify(ctx context.Context) error
}

type Service struct {
	cfg  Config
	t    Transport
	html *htmltemplate.Template
	text *texttemplate.Template
}

func New(cfg Config, t Transport) (*Service, error) {
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if cfg.AppURL == "" {
		cfg.AppURL = "http://localhost:3000"
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/reminder.html")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	text, err := texttemplate.ParseFS(templatesFS, "templates/reminder.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &Service{cfg: cfg, t: t, html: html, text: text}, nil
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) Configured() bool { return s.t != nil && s.cfg.Configured() }

type reminderView struct {
	Name         string
	Title        string
	Description  string
	Start        string
	End          string
	DashboardURL string
}

// RenderTaskReminder builds the reminder message without sending it.
func (s *Service) RenderTaskReminder(email, name, title, description string, start, end time.Time) (Message, error) {
	if name == "" {
		name = "User"
	}
	if end.IsZero() {
		end = start
	}
	v := reminderView{
		Name:         name,
		Title:        title,
		Description:  description,
		Start:        start.In(s.cfg.Location).Format("Monday, January 2, 2006 at 03:04 PM"),
		End:          end.In(s.cfg.Location).Format("03:04 PM"),
		DashboardURL: strings.TrimRight(s.cfg.AppURL, "/") + "/dashboard",
	}
	var html, text bytes.Buffer
	if err := s.html.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := s.text.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{
		To:      email,
		ToName:  name,
		Subject: "⏰ Task Reminder: " + title,
		Text:    strings.TrimSpace(text.String()),
		HTML:    html.String(),
	}, nil
}

// SendTaskReminder renders and sends the reminder for one task. A nil error
// means the transport accepted the message.
func (s *Service) SendTaskReminder(ctx context.Context, email, name, title, description string, start, end time.Time) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(email) == "" {
		return errors.New("recipient email is required")
	}
	m, err := s.RenderTaskReminder(email, name, title, description, start, end)
	if err != nil {
		return err
	}
	if err := s.t.Send(ctx, m); err != nil {
		log.Error().Err(err).Str("component", "mail").Str("to", email).Msg("failed to send email")
		return fmt.Errorf("send reminder: %w", err)
	}
	log.Info().Str("component", "mail").Str("to", email).Str("title", title).Msg("reminder email sent")
	return nil
}

// Verify checks that the mail server accepts a connection and login.
func (s *Service) Verify(ctx context.Context) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	return s.t.Verify(ctx)
}
