package domain

import "time"

// Summary groups a user's tasks the way the dashboard shows them.
type Summary struct {
	Today     []Task `json:"today"`
	Running   []Task `json:"running"`
	Upcoming  []Task `json:"upcoming"`
	PastWeek  []Task `json:"pastWeek"`
	Completed []Task `json:"completed"`

	Total          int `json:"total"`
	CompletedCount int `json:"completedCount"`
	PendingCount   int `json:"pendingCount"`
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Running reports whether now lies within [start, end].
func (t Task) Running(now time.Time) bool {
	return !now.Before(t.StartTime) && !now.After(t.EndTime)
}

// Upcoming reports whether the task has not started yet.
func (t Task) Upcoming(now time.Time) bool {
	return t.StartTime.After(now)
}

// InPastWeek reports whether the task started within the seven days before
// now, excluding today.
func (t Task) InPastWeek(now time.Time, loc *time.Location) bool {
	if SameDay(t.StartTime, now, loc) {
		return false
	}
	weekAgo := now.AddDate(0, 0, -7)
	return !t.StartTime.Before(weekAgo) && !t.StartTime.After(now)
}

// Summarize buckets tasks relative to now. A task can appear in more than one
// bucket (a running task started today is in Today and Running).
func Summarize(tasks []Task, now time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.Local
	}
	s := Summary{
		Today:     []Task{},
		Running:   []Task{},
		Upcoming:  []Task{},
		PastWeek:  []Task{},
		Completed: []Task{},
		Total:     len(tasks),
	}
	for _, t := range tasks {
		if t.Completed {
			s.Completed = append(s.Completed, t)
			s.CompletedCount++
		} else {
			s.PendingCount++
		}
		if SameDay(t.StartTime, now, loc) {
			s.Today = append(s.Today, t)
		}
		if !t.Completed && t.Running(now) {
			s.Running = append(s.Running, t)
		}
		if !t.Completed && t.Upcoming(now) {
			s.Upcoming = append(s.Upcoming, t)
		}
		if t.InPastWeek(now, loc) {
			s.PastWeek = append(s.PastWeek, t)
		}
	}
	return s
}
