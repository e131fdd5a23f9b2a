package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrTitleRequired    = errors.New("title is required")
	ErrTimeRequired     = errors.New("start time and end time are required")
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrInvalidPriority  = errors.New("priority must be High, Medium or Low")
	ErrNegativeLeadTime = errors.New("reminder minutesBefore must be >= 0")
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// DefaultLeadMinutes is used when a reminder is enabled without a lead time.
const DefaultLeadMinutes = 15

// LeadTimes are the reminder lead times offered to users, in minutes.
var LeadTimes = []int{5, 10, 15, 30, 60, 120, 1440}

type Reminder struct {
	Enabled       bool `json:"enabled"`
	MinutesBefore int  `json:"minutesBefore"`
	Notified      bool `json:"notified"`
}

type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Priority    Priority  `json:"priority"`
	Completed   bool      `json:"completed"`
	Reminder    *Reminder `json:"reminder,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FireTime returns the instant a reminder for t should trigger. ok is false
// when the task has no enabled reminder.
func (t Task) FireTime() (at time.Time, ok bool) {
	if t.Reminder == nil || !t.Reminder.Enabled {
		return time.Time{}, false
	}
	return t.StartTime.Add(-time.Duration(t.Reminder.MinutesBefore) * time.Minute), true
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.Reminder != nil {
		r := *t.Reminder
		t.Reminder = &r
	}
	return t
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return ErrTimeRequired
	}
	if !t.StartTime.Before(t.EndTime) {
		return ErrInvalidTimeRange
	}
	switch t.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return ErrInvalidPriority
	}
	if t.Reminder != nil && t.Reminder.MinutesBefore < 0 {
		return ErrNegativeLeadTime
	}
	return nil
}

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Profession   string    `json:"profession,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DueReminder is the snapshot handed to delivery when a reminder fires.
type DueReminder struct {
	UserID string
	Task   Task
	FireAt time.Time
}
