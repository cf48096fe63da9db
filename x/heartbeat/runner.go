// Package heartbeat emits HEARTBEAT messages at a fixed cadence. Ticks are
// aligned to an origin: tick K fires at origin + K*interval, and ticks missed
// while the process was busy are caught up in order.
package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/message"
)

// TickCallback is invoked for every tick. An error stops the runner.
type TickCallback func(context.Context, Tick) error

// Tick identifies one slot of the cadence.
type Tick struct {
	ID       uint64
	At       time.Time
	Interval time.Duration
}

// Runner invokes its handler at origin + K*interval for K = 0,1,2,...
type Runner struct {
	log      zerolog.Logger
	handler  TickCallback
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	origin  time.Time
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

var ErrNoHandler = errors.New("heartbeat runner requires a handler")

// NewRunner constructs a Runner. If cfg.Handler is nil, SetHandler must be
// called before Start.
func NewRunner(cfg Config) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Runner{
		log:      cfg.Logger,
		handler:  cfg.Handler,
		interval: cfg.Interval,
		now:      cfg.Now,
		origin:   cfg.Origin,
	}
}

// SetHandler sets the handler called on every tick.
func (r *Runner) SetHandler(h TickCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Start begins ticking until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handler == nil {
		return ErrNoHandler
	}
	if r.started {
		return nil
	}
	if r.origin.IsZero() {
		r.origin = r.now()
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	r.done = make(chan struct{})

	go r.run(runCtx, r.handler, r.done)
	r.log.Info().Dur("interval", r.interval).Time("origin", r.origin).Msg("Heartbeat started")
	return nil
}

// Stop halts the runner and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	<-done
}

func (r *Runner) run(ctx context.Context, handler TickCallback, done chan struct{}) {
	defer close(done)

	var (
		lastEmitted uint64
		hasEmitted  bool
	)

	// emitUpTo fires every tick not yet emitted up to the one covering now.
	emitUpTo := func(now time.Time) bool {
		if now.Before(r.origin) {
			return true
		}
		current, _ := r.TickForTime(now)
		startID := current
		if hasEmitted {
			startID = lastEmitted + 1
		}
		for id := startID; id <= current; id++ {
			if ctx.Err() != nil {
				return false
			}
			tick := Tick{ID: id, At: r.tickStart(id), Interval: r.interval}
			if err := handler(ctx, tick); err != nil {
				r.log.Error().Err(err).Uint64("tick", id).Msg("Heartbeat handler returned error")
				return false
			}
			lastEmitted, hasEmitted = id, true
		}
		return true
	}

	next := func(now time.Time) time.Duration {
		var at time.Time
		switch {
		case now.Before(r.origin):
			at = r.origin
		case hasEmitted:
			at = r.tickStart(lastEmitted + 1)
		default:
			id, _ := r.TickForTime(now)
			at = r.tickStart(id + 1)
		}
		return max(0, at.Sub(r.now()))
	}

	now := r.now()
	if !emitUpTo(now) {
		return
	}
	timer := time.NewTimer(next(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			now = r.now()
			if !emitUpTo(now) {
				return
			}
			timer.Reset(next(now))
		}
	}
}

// TickForTime returns the tick covering t and its start time.
func (r *Runner) TickForTime(t time.Time) (uint64, time.Time) {
	if t.Before(r.origin) {
		return 0, r.origin
	}
	id := uint64(t.Sub(r.origin) / r.interval) //nolint:gosec // t is not before origin
	return id, r.tickStart(id)
}

func (r *Runner) tickStart(id uint64) time.Time {
	return r.origin.Add(time.Duration(id) * r.interval) //nolint:gosec // bounded by elapsed time
}

// Sender queues a message for transmission.
type Sender interface {
	Send(m message.Message) bool
}

// Emitter returns a TickCallback sending one HEARTBEAT per tick to
// recipient, or to everyone when recipient is empty. A rejected send is
// logged and does not stop the runner.
func Emitter(s Sender, recipient string, log zerolog.Logger) TickCallback {
	return func(_ context.Context, t Tick) error {
		if !s.Send(message.NewHeartbeat(message.Header{}, recipient)) {
			log.Warn().Uint64("tick", t.ID).Msg("Heartbeat not queued")
		}
		return nil
	}
}
