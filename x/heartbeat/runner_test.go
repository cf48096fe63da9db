package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniity/sedap-express/x/message"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func nextTick(t *testing.T, ch <-chan Tick) Tick {
	t.Helper()
	select {
	case tick := <-ch:
		return tick
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for tick")
		return Tick{}
	}
}

func TestRunner_EmitsCurrentTickAndCatchesUp(t *testing.T) {
	t.Parallel()

	interval := 20 * time.Millisecond
	origin := time.Unix(1000, 0)
	clock := &fakeClock{now: origin.Add(5 * interval)}

	ticks := make(chan Tick, 10)
	r := NewRunner(Config{
		Handler: func(_ context.Context, tick Tick) error {
			ticks <- tick
			return nil
		},
		Interval: interval,
		Origin:   origin,
		Now:      clock.Now,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	first := nextTick(t, ticks)
	assert.Equal(t, uint64(5), first.ID)
	assert.Equal(t, origin.Add(5*interval), first.At)
	assert.Equal(t, interval, first.Interval)

	clock.Set(origin.Add(8 * interval))
	for _, want := range []uint64{6, 7, 8} {
		tick := nextTick(t, ticks)
		assert.Equal(t, want, tick.ID)
		assert.Equal(t, origin.Add(time.Duration(want)*interval), tick.At)
	}
}

func TestRunner_WaitsForOrigin(t *testing.T) {
	t.Parallel()

	interval := 15 * time.Millisecond
	origin := time.Unix(2000, 0)
	clock := &fakeClock{now: origin.Add(-interval / 2)}

	ticks := make(chan Tick, 2)
	r := NewRunner(Config{
		Handler: func(_ context.Context, tick Tick) error {
			ticks <- tick
			return nil
		},
		Interval: interval,
		Origin:   origin,
		Now:      clock.Now,
	})
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	time.Sleep(interval)
	select {
	case <-ticks:
		t.Fatal("tick emitted before origin")
	default:
	}

	clock.Set(origin)
	tick := nextTick(t, ticks)
	assert.Equal(t, uint64(0), tick.ID)
	assert.Equal(t, origin, tick.At)
}

func TestRunner_HandlerErrorStops(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 10)
	r := NewRunner(Config{
		Handler: func(context.Context, Tick) error {
			calls <- struct{}{}
			return errors.New("boom")
		},
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, r.Start(context.Background()))

	<-calls
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, calls)
	r.Stop()
}

func TestRunner_RequiresHandler(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})
	require.ErrorIs(t, r.Start(context.Background()), ErrNoHandler)
	r.Stop()
}

func TestRunner_TickForTime(t *testing.T) {
	t.Parallel()

	origin := time.Unix(3000, 0)
	r := NewRunner(Config{Interval: time.Second, Origin: origin})

	id, at := r.TickForTime(origin.Add(2500 * time.Millisecond))
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, origin.Add(2*time.Second), at)

	id, at = r.TickForTime(origin.Add(-time.Hour))
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, origin, at)
}

type sendFunc func(message.Message) bool

func (f sendFunc) Send(m message.Message) bool { return f(m) }

func TestEmitter(t *testing.T) {
	t.Parallel()

	var sent []message.Message
	emit := Emitter(sendFunc(func(m message.Message) bool {
		sent = append(sent, m)
		return len(sent) < 2
	}), "324E", zerolog.Nop())

	require.NoError(t, emit(context.Background(), Tick{ID: 0}))
	require.NoError(t, emit(context.Background(), Tick{ID: 1}))

	require.Len(t, sent, 2)
	hb, ok := sent[0].(message.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, "324E", hb.Recipient)
}
