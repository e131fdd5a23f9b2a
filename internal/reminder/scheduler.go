// Package reminder arms one-shot timers that deliver task reminders.
//
// A Scheduler belongs to one user session. It keeps at most one live entry
// per task id: every Schedule call first disarms the previous entry for the
// same task, so edits, completions and reloads never stack timers.
package reminder

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dailyflow/internal/clock"
	"dailyflow/internal/domain"
)

// Arming is the surface the rest of the application uses to arm and disarm
// reminders. It is implemented by *Scheduler and Unavailable.
type Arming interface {
	Available() bool
	Schedule(task domain.Task)
	Clear(taskID string)
	ScheduleAll(tasks []domain.Task)
	Revision() uint64
	Reload(rev uint64, tasks []domain.Task) bool
	ClearAll()
	Pending() int
	Entries() []Entry
}

// Sink receives reminders whose fire time elapsed. Deliver must not block for
// long; it runs on the timer goroutine.
type Sink interface {
	Deliver(due domain.DueReminder)
}

type SinkFunc func(due domain.DueReminder)

func (f SinkFunc) Deliver(due domain.DueReminder) { f(due) }

// Refresher loads the current persisted state of a task at fire time.
type Refresher func(ctx context.Context, userID, taskID string) (domain.Task, error)

// Entry describes an armed reminder.
type Entry struct {
	TaskID string    `json:"taskId"`
	Title  string    `json:"title"`
	FireAt time.Time `json:"fireAt"`
}

type entry struct {
	timer  clock.Timer
	fireAt time.Time
	task   domain.Task
	gen    uint64
}

type Scheduler struct {
	owner   string
	clock   clock.Clock
	sink    Sink
	refresh Refresher
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	rev     uint64 // bumped by every table mutation
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithRefresher makes the scheduler re-read the task before delivering and
// skip delivery if it was deleted, completed, disabled or rescheduled.
func WithRefresher(r Refresher) Option { return func(s *Scheduler) { s.refresh = r } }

func New(owner string, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		owner:   owner,
		clock:   clock.Real{},
		sink:    sink,
		entries: map[string]*entry{},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = log.With().Str("component", "reminder").Str("user_id", owner).Logger()
	return s
}

func (s *Scheduler) Available() bool { return true }

// Schedule disarms any entry for task.ID and arms a new one if the task has an
// enabled reminder, is not completed and its fire time is still ahead.
func (s *Scheduler) Schedule(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.clearLocked(task.ID)
	s.scheduleLocked(task)
}

func (s *Scheduler) Clear(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.clearLocked(taskID)
}

// ScheduleAll replaces the whole table. The clear and the re-arm happen under
// one lock so a timer about to be replaced cannot fire with stale data.
func (s *Scheduler) ScheduleAll(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(tasks)
}

// Revision identifies the current state of the table. Read it before loading
// tasks from the store and hand it to Reload.
func (s *Scheduler) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// Reload is ScheduleAll for a task list read while the table was at rev. If
// the table changed since, the list may predate that change and is dropped.
func (s *Scheduler) Reload(rev uint64, tasks []domain.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		s.log.Debug().Uint64("rev", rev).Uint64("current", s.rev).Msg("stale reload dropped")
		return false
	}
	s.replaceLocked(tasks)
	return true
}

func (s *Scheduler) replaceLocked(tasks []domain.Task) {
	s.rev++
	n := s.clearAllLocked()
	for _, t := range tasks {
		s.clearLocked(t.ID)
		s.scheduleLocked(t)
	}
	s.log.Debug().Int("cancelled", n).Int("tasks", len(tasks)).Int("armed", len(s.entries)).Msg("reminders reloaded")
}

func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	if n := s.clearAllLocked(); n > 0 {
		s.log.Debug().Int("cancelled", n).Msg("reminders cleared")
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns the armed reminders ordered by fire time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Entry{TaskID: id, Title: e.task.Title, FireAt: e.fireAt})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

func (s *Scheduler) scheduleLocked(task domain.Task) {
	if task.Completed {
		return
	}
	fireAt, ok := task.FireTime()
	if !ok {
		return
	}
	now := s.clock.Now()
	if !fireAt.After(now) {
		// Reminder window already passed; never fire retroactively.
		s.log.Debug().Str("task_id", task.ID).Time("fire_at", fireAt).Msg("reminder window passed, not armed")
		return
	}

	s.gen++
	gen := s.gen
	id := task.ID
	e := &entry{fireAt: fireAt, task: task.Clone(), gen: gen}
	e.timer = s.clock.AfterFunc(fireAt.Sub(now), func() { s.fire(id, gen) })
	s.entries[id] = e
	s.log.Debug().Str("task_id", id).Time("fire_at", fireAt).Dur("in", fireAt.Sub(now)).Msg("reminder armed")
}

func (s *Scheduler) clearLocked(taskID string) {
	e, ok := s.entries[taskID]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(s.entries, taskID)
}

func (s *Scheduler) clearAllLocked() int {
	n := len(s.entries)
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.entries = map[string]*entry{}
	return n
}

func (s *Scheduler) fire(taskID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[taskID]
	if !ok || e.gen != gen {
		// Cancelled or re-armed after this callback was already scheduled.
		s.mu.Unlock()
		return
	}
	delete(s.entries, taskID)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Str("task_id", taskID).Msg("panic in reminder delivery")
		}
	}()

	task := e.task
	if task.Completed {
		return
	}
	if s.refresh != nil {
		fresh, ok := s.refreshed(task, e.fireAt)
		if !ok {
			return
		}
		task = fresh
	}

	s.log.Info().Str("task_id", taskID).Str("title", task.Title).Time("fire_at", e.fireAt).Msg("reminder fired")
	if s.sink != nil {
		s.sink.Deliver(domain.DueReminder{UserID: s.owner, Task: task, FireAt: e.fireAt})
	}
}

const refreshTimeout = 5 * time.Second

var errStale = errors.New("task changed since reminder was armed")

// refreshed re-reads the task and reports whether the reminder still applies.
func (s *Scheduler) refreshed(snap domain.Task, fireAt time.Time) (domain.Task, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	fresh, err := s.refresh(ctx, s.owner, snap.ID)
	if err == nil {
		at, ok := fresh.FireTime()
		switch {
		case fresh.Completed, !ok:
			err = errStale
		case !at.Equal(fireAt):
			err = errStale
		}
	}
	if err != nil {
		s.log.Info().Err(err).Str("task_id", snap.ID).Msg("reminder skipped")
		return domain.Task{}, false
	}
	return fresh, true
}
