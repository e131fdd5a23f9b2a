package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"dailyflow/internal/domain"
)

// ErrSkipped is returned by handlers that had nothing to do for a reminder.
var ErrSkipped = errors.New("delivery skipped")

type Handler interface {
	Handle(ctx context.Context, due domain.DueReminder) error
}

type HandlerFunc func(ctx context.Context, due domain.DueReminder) error

func (f HandlerFunc) Handle(ctx context.Context, due domain.DueReminder) error { return f(ctx, due) }

type job struct {
	channel string
	due     domain.DueReminder
}

type Stats struct {
	Delivered int64 `json:"delivered"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Pool fans each due reminder out to every registered channel handler and
// runs deliveries on a fixed set of workers. Failures are logged and never
// retried.
type Pool struct {
	handlers map[string]Handler
	channels []string
	jobs     chan job
	size     int
	limiter  *rate.Limiter
	timeout  time.Duration

	delivered atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewPool(handlers map[string]Handler, size, queue int, ratePerSec float64) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue <= 0 {
		queue = 64
	}
	channels := make([]string, 0, len(handlers))
	for name := range handlers {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	p := &Pool{
		handlers: handlers,
		channels: channels,
		jobs:     make(chan job, queue),
		size:     size,
		timeout:  30 * time.Second,
	}
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return p
}

// Channels lists the registered handler names in delivery order.
func (p *Pool) Channels() []string { return append([]string(nil), p.channels...) }

// Deliver enqueues one job per channel. It never blocks: when the queue is
// full the job is dropped.
func (p *Pool) Deliver(due domain.DueReminder) {
	for _, ch := range p.channels {
		select {
		case p.jobs <- job{channel: ch, due: due}:
		default:
			p.dropped.Add(1)
			log.Warn().Str("component", "worker").Str("channel", ch).
				Str("user_id", due.UserID).Str("task_id", due.Task.ID).
				Msg("delivery queue full, dropping reminder")
		}
	}
}

// Run starts the workers and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			p.work(ctx, idx)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}
			}
			p.handle(ctx, idx, j)
		}
	}
}

func (p *Pool) handle(ctx context.Context, idx int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Error().Str("component", "worker").Int("worker", idx).Str("channel", j.channel).
				Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in delivery worker")
		}
	}()

	c, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	l := log.With().Str("component", "worker").Str("channel", j.channel).
		Str("user_id", j.due.UserID).Str("task_id", j.due.Task.ID).Logger()
	err := p.handlers[j.channel].Handle(c, j.due)
	switch {
	case err == nil:
		p.delivered.Add(1)
		l.Info().Msg("reminder delivered")
	case errors.Is(err, ErrSkipped):
		p.skipped.Add(1)
		l.Debug().Err(err).Msg("reminder not delivered")
	default:
		p.failed.Add(1)
		l.Error().Err(err).Msg("reminder delivery failed")
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Delivered: p.delivered.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}
