// Package notify shows user-visible reminder notifications in the user's
// open application tabs.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dailyflow/internal/clock"
	"dailyflow/internal/domain"
)

const (
	DefaultDismissAfter = 10 * time.Second
	DefaultIcon         = "/favicon.ico"
	DefaultTag          = "daily-flow-task"
)

type Options struct {
	DismissAfter time.Duration
	Icon         string
	URL          string
	Location     *time.Location
	Clock        clock.Clock
}

// Presenter asks for permission and shows notifications through a Runtime.
// Every method degrades to a no-op when the runtime is unsupported or the
// user refused permission.
type Presenter struct {
	rt  Runtime
	opt Options
	log zerolog.Logger

	mu         sync.Mutex
	permission Permission
	open       map[string]*shown
	seq        uint64
}

type shown struct {
	timer clock.Timer
	seq   uint64
}

func NewPresenter(rt Runtime, opt Options) *Presenter {
	if rt == nil {
		rt = Unsupported{}
	}
	if opt.DismissAfter <= 0 {
		opt.DismissAfter = DefaultDismissAfter
	}
	if opt.Icon == "" {
		opt.Icon = DefaultIcon
	}
	if opt.URL == "" {
		opt.URL = "/dashboard"
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if opt.Clock == nil {
		opt.Clock = clock.Real{}
	}
	return &Presenter{
		rt:         rt,
		opt:        opt,
		log:        log.With().Str("component", "notify").Logger(),
		permission: PermissionDefault,
		open:       map[string]*shown{},
	}
}

func (p *Presenter) Supported() bool { return p.rt.Supported() }

func (p *Presenter) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// RequestPermission asks the runtime for permission and caches the answer.
func (p *Presenter) RequestPermission(ctx context.Context) bool {
	if !p.rt.Supported() {
		p.log.Debug().Msg("notifications not supported")
		return false
	}
	p.mu.Lock()
	cached := p.permission
	p.mu.Unlock()
	if cached == PermissionGranted {
		return true
	}

	perm, err := p.rt.RequestPermission(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("permission request failed")
		perm = PermissionDenied
	}
	p.mu.Lock()
	p.permission = perm
	p.mu.Unlock()
	return perm == PermissionGranted
}

// ShowNotification shows a notification under tag, replacing any notification
// already shown with the same tag, and closes it after the dismiss interval.
func (p *Presenter) ShowNotification(ctx context.Context, title, body, tag string) {
	if !p.rt.Supported() {
		return
	}
	if p.Permission() != PermissionGranted && !p.RequestPermission(ctx) {
		p.log.Debug().Str("tag", tag).Msg("notification permission denied")
		return
	}
	if tag == "" {
		tag = DefaultTag
	}

	n := Notification{
		Title:              title,
		Body:               body,
		Tag:                tag,
		Icon:               p.opt.Icon,
		Badge:              p.opt.Icon,
		URL:                p.opt.URL,
		RequireInteraction: true,
	}
	if err := p.rt.Show(ctx, n); err != nil {
		p.log.Warn().Err(err).Str("tag", tag).Msg("show notification failed")
		return
	}

	p.mu.Lock()
	if prev, ok := p.open[tag]; ok {
		prev.timer.Stop()
	}
	p.seq++
	seq := p.seq
	p.open[tag] = &shown{
		seq:   seq,
		timer: p.opt.Clock.AfterFunc(p.opt.DismissAfter, func() { p.dismiss(tag, seq) }),
	}
	p.mu.Unlock()
}

// ShowTaskReminder shows the reminder for a task that is about to start.
func (p *Presenter) ShowTaskReminder(ctx context.Context, t domain.Task) {
	at := t.StartTime.In(p.opt.Location).Format("15:04")
	p.ShowNotification(ctx, "Task Reminder", fmt.Sprintf("\"%s\" is starting at %s", t.Title, at), TaskTag(t.ID))
}

// Click handles a click on the notification shown under tag: the application
// is focused and the notification closed.
func (p *Presenter) Click(tag string) {
	p.rt.Focus()
	p.mu.Lock()
	if s, ok := p.open[tag]; ok {
		s.timer.Stop()
		delete(p.open, tag)
	}
	p.mu.Unlock()
	p.rt.Close(tag)
}

// Open returns the number of notifications not yet dismissed.
func (p *Presenter) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

// Close stops every pending dismissal timer.
func (p *Presenter) Close() {
	p.mu.Lock()
	for tag, s := range p.open {
		s.timer.Stop()
		delete(p.open, tag)
	}
	p.mu.Unlock()
}

func (p *Presenter) dismiss(tag string, seq uint64) {
	p.mu.Lock()
	s, ok := p.open[tag]
	if !ok || s.seq != seq {
		p.mu.Unlock()
		return
	}
	delete(p.open, tag)
	p.mu.Unlock()
	p.rt.Close(tag)
}

func TaskTag(taskID string) string { return "task-reminder-" + taskID }
