// Package session tracks signed-in users. Each session owns one reminder
// scheduler and one notification presenter for the lifetime of the login.
package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"dailyflow/internal/clock"
	"dailyflow/internal/notify"
	"dailyflow/internal/reminder"
)

type Session struct {
	UserID    string
	Reminders reminder.Arming
	Presenter *notify.Presenter
	Started   time.Time

	lastSeen atomic.Int64 // unix millis
}

func (s *Session) LastSeen() time.Time { return time.UnixMilli(s.lastSeen.Load()) }

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixMilli()) }

// ArmingFactory builds the reminder scheduler for a new session.
type ArmingFactory func(userID string) reminder.Arming

// PresenterFactory builds the notification presenter for a new session.
type PresenterFactory func(userID string) *notify.Presenter

// Schedulers returns a factory producing one reminder.Scheduler per user, or
// reminder.Unavailable for everyone when enabled is false.
func Schedulers(enabled bool, sink reminder.Sink, opts ...reminder.Option) ArmingFactory {
	if !enabled {
		return func(string) reminder.Arming { return reminder.Unavailable{} }
	}
	return func(userID string) reminder.Arming { return reminder.New(userID, sink, opts...) }
}

type Manager struct {
	newArming    ArmingFactory
	newPresenter PresenterFactory
	clock        clock.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(arming ArmingFactory, presenter PresenterFactory, clk clock.Clock) *Manager {
	if arming == nil {
		arming = func(string) reminder.Arming { return reminder.Unavailable{} }
	}
	if presenter == nil {
		presenter = func(string) *notify.Presenter { return notify.NewPresenter(nil, notify.Options{}) }
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{newArming: arming, newPresenter: presenter, clock: clk, sessions: map[string]*Session{}}
}

// Start returns the user's session, creating it on first use. created reports
// whether a new session was made.
func (m *Manager) Start(userID string) (s *Session, created bool) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.touch(now)
		return s, false
	}
	s = &Session{
		UserID:    userID,
		Reminders: m.newArming(userID),
		Presenter: m.newPresenter(userID),
		Started:   now,
	}
	s.touch(now)
	m.sessions[userID] = s
	log.Info().Str("component", "session").Str("user_id", userID).Bool("reminders", s.Reminders.Available()).Msg("session started")
	return s, true
}

// Get returns the user's live session and marks it as seen.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		s.touch(m.clock.Now())
	}
	return s, ok
}

// Presenter returns the presenter of the user's live session.
func (m *Manager) Presenter(userID string) (*notify.Presenter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.Presenter, true
}

// End cancels every pending reminder of the session and forgets it.
func (m *Manager) End(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	shutdown(s)
	log.Info().Str("component", "session").Str("user_id", userID).Msg("session ended")
	return true
}

// EndIdle ends every session not seen for longer than maxIdle and returns the
// affected user ids.
func (m *Manager) EndIdle(maxIdle time.Duration) []string {
	cutoff := m.clock.Now().Add(-maxIdle)
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		shutdown(s)
		ids = append(ids, s.UserID)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		log.Info().Str("component", "session").Strs("user_ids", ids).Msg("expired idle sessions")
	}
	return ids
}

// Each calls fn for a snapshot of the live sessions. fn runs without the
// manager lock held.
func (m *Manager) Each(fn func(*Session)) {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	for _, s := range list {
		fn(s)
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Pending sums armed reminders across all sessions.
func (m *Manager) Pending() int {
	n := 0
	m.Each(func(s *Session) { n += s.Reminders.Pending() })
	return n
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range all {
		shutdown(s)
	}
}

func shutdown(s *Session) {
	s.Reminders.ClearAll()
	s.Presenter.Close()
}
