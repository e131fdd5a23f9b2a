package domain

import (
	"errors"
	"testing"
	"time"
)

func TestFireTime(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		r      *Reminder
		wantOK bool
		want   time.Time
	}{
		{name: "no reminder", r: nil},
		{name: "disabled", r: &Reminder{Enabled: false, MinutesBefore: 15}},
		{name: "fifteen", r: &Reminder{Enabled: true, MinutesBefore: 15}, wantOK: true, want: start.Add(-15 * time.Minute)},
		{name: "zero lead", r: &Reminder{Enabled: true}, wantOK: true, want: start},
		{name: "one day", r: &Reminder{Enabled: true, MinutesBefore: 1440}, wantOK: true, want: start.Add(-24 * time.Hour)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Task{StartTime: start, Reminder: tt.r}.FireTime()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("FireTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := Task{Title: "Write report", StartTime: start, EndTime: start.Add(time.Hour), Priority: PriorityMedium}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}

	cases := map[string]struct {
		mut  func(*Task)
		want error
	}{
		"blank title":   {mut: func(t *Task) { t.Title = "  " }, want: ErrTitleRequired},
		"missing end":   {mut: func(t *Task) { t.EndTime = time.Time{} }, want: ErrTimeRequired},
		"equal times":   {mut: func(t *Task) { t.EndTime = t.StartTime }, want: ErrInvalidTimeRange},
		"end first":     {mut: func(t *Task) { t.EndTime = t.StartTime.Add(-time.Minute) }, want: ErrInvalidTimeRange},
		"bad priority":  {mut: func(t *Task) { t.Priority = "Urgent" }, want: ErrInvalidPriority},
		"negative lead": {mut: func(t *Task) { t.Reminder = &Reminder{Enabled: true, MinutesBefore: -5} }, want: ErrNegativeLeadTime},
	}
	for name, c := range cases {
		task := base.Clone()
		c.mut(&task)
		if err := task.Validate(); !errors.Is(err, c.want) {
			t.Errorf("%s: Validate() = %v, want %v", name, err, c.want)
		}
	}
}

func TestCloneDetachesReminder(t *testing.T) {
	t.Parallel()
	orig := Task{ID: "tsk_1", Reminder: &Reminder{Enabled: true, MinutesBefore: 10}}
	cp := orig.Clone()
	cp.Reminder.Enabled = false
	if !orig.Reminder.Enabled {
		t.Fatal("clone shares reminder with source task")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	tasks := []Task{
		{ID: "running", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
		{ID: "later-today", StartTime: now.Add(2 * time.Hour), EndTime: now.Add(3 * time.Hour)},
		{ID: "tomorrow", StartTime: now.Add(24 * time.Hour), EndTime: now.Add(25 * time.Hour)},
		{ID: "three-days-ago", StartTime: now.AddDate(0, 0, -3), EndTime: now.AddDate(0, 0, -3).Add(time.Hour), Completed: true},
		{ID: "last-month", StartTime: now.AddDate(0, -1, 0), EndTime: now.AddDate(0, -1, 0).Add(time.Hour)},
	}
	s := Summarize(tasks, now, loc)

	ids := func(ts []Task) []string {
		out := make([]string, 0, len(ts))
		for _, t := range ts {
			out = append(out, t.ID)
		}
		return out
	}
	check := func(name string, got []Task, want ...string) {
		g := ids(got)
		if len(g) != len(want) {
			t.Fatalf("%s = %v, want %v", name, g, want)
		}
		for i := range want {
			if g[i] != want[i] {
				t.Fatalf("%s = %v, want %v", name, g, want)
			}
		}
	}
	check("Today", s.Today, "running", "later-today")
	check("Running", s.Running, "running")
	check("Upcoming", s.Upcoming, "later-today", "tomorrow")
	check("PastWeek", s.PastWeek, "three-days-ago")
	check("Completed", s.Completed, "three-days-ago")
	if s.Total != 5 || s.CompletedCount != 1 || s.PendingCount != 4 {
		t.Fatalf("counts = %d/%d/%d", s.Total, s.CompletedCount, s.PendingCount)
	}
}
