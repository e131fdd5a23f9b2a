package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"dailyflow/internal/domain"
	"dailyflow/internal/session"
)

const (
	DefaultResync = "@every 5m"
	DefaultExpire = "@every 1m"
)

type TaskLister interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
}

type Sessions interface {
	Each(fn func(*session.Session))
	EndIdle(maxIdle time.Duration) []string
}

type Config struct {
	Resync      string
	Expire      string
	SessionIdle time.Duration
}

// Service runs periodic housekeeping for live sessions: re-arming reminders
// from the store and ending idle sessions.
type Service struct {
	tasks    TaskLister
	sessions Sessions
	cfg      Config
	cron     *cron.Cron

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewService(tasks TaskLister, sessions Sessions, cfg Config) (*Service, error) {
	if cfg.Resync == "" {
		cfg.Resync = DefaultResync
	}
	if cfg.Expire == "" {
		cfg.Expire = DefaultExpire
	}
	s := &Service{
		tasks:    tasks,
		sessions: sessions,
		cfg:      cfg,
		cron:     cron.New(),
		lastRun:  map[string]time.Time{},
	}
	if _, err := s.cron.AddFunc(cfg.Resync, func() { s.Resync(context.Background()) }); err != nil {
		return nil, fmt.Errorf("resync schedule %q: %w", cfg.Resync, err)
	}
	if cfg.SessionIdle > 0 {
		if _, err := s.cron.AddFunc(cfg.Expire, func() { s.Expire() }); err != nil {
			return nil, fmt.Errorf("expire schedule %q: %w", cfg.Expire, err)
		}
	}
	return s, nil
}

// Start runs the cron jobs until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.cron.Start()
	log.Info().Str("resync", s.cfg.Resync).Time("next_resync", s.NextResync(time.Now())).
		Str("expire", s.cfg.Expire).Dur("session_idle", s.cfg.SessionIdle).Msg("housekeeping started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Resync reloads every live session's tasks and re-arms its reminders.
func (s *Service) Resync(ctx context.Context) int {
	n := 0
	s.sessions.Each(func(sess *session.Session) {
		if !sess.Reminders.Available() {
			return
		}
		rev := sess.Reminders.Revision()
		tasks, err := s.tasks.ListTasks(ctx, sess.UserID)
		if err != nil {
			log.Error().Err(err).Str("user_id", sess.UserID).Msg("failed to reload tasks")
			return
		}
		// An edit landed while listing; the next run picks up the rest.
		if sess.Reminders.Reload(rev, tasks) {
			n++
		}
	})
	s.mark("resync")
	log.Debug().Int("sessions", n).Msg("reminders resynced")
	return n
}

// Expire ends sessions idle for longer than the configured limit.
func (s *Service) Expire() []string {
	if s.cfg.SessionIdle <= 0 {
		return nil
	}
	ids := s.sessions.EndIdle(s.cfg.SessionIdle)
	s.mark("expire")
	return ids
}

// NextResync reports when the resync job runs next after from.
func (s *Service) NextResync(from time.Time) time.Time {
	next, err := NextRunTime(s.cfg.Resync, from)
	if err != nil {
		return time.Time{}
	}
	return next
}

// LastRun reports when the named job last completed.
func (s *Service) LastRun(job string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[job]
	return t, ok
}

func (s *Service) mark(job string) {
	s.mu.Lock()
	s.lastRun[job] = time.Now()
	s.mu.Unlock()
}

// ValidateCronExpression checks a job schedule from configuration.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime returns the first activation of the job schedule expr after from.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
