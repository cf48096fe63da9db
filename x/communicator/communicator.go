package communicator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/message"
)

var (
	ErrStopped   = errors.New("communicator stopped")
	ErrQueueFull = errors.New("outbound queue full")
)

// DefaultQueueSize is the outbound queue capacity.
const DefaultQueueSize = 1024

type subscription struct {
	sub   Subscriber
	types map[message.Type]struct{}
}

func (s subscription) matches(t message.Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Stats is a snapshot of the hub counters.
type Stats struct {
	Sent               uint64 `json:"sent"`
	Received           uint64 `json:"received"`
	Dropped            uint64 `json:"dropped"`
	SubscriberFailures uint64 `json:"subscriber_failures"`
	Queued             int    `json:"queued"`
	Subscribers        int    `json:"subscribers"`
}

// Communicator fans received messages out to subscribers and queues outbound
// messages for a single transport writer.
type Communicator struct {
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	subs      []subscription
	observers []Observer
	closers   []func() error

	queue    chan message.Message
	stopped  atomic.Bool
	stopOnce sync.Once

	errMu   sync.RWMutex
	lastErr error

	// outbound envelope defaults
	sequencer      bool
	sender         string
	classification message.Classification
	seq            atomic.Uint32

	autoAck bool
	auth    Authenticator
	metrics *Metrics

	sent, received, dropped, failures atomic.Uint64
}

type Option func(*Communicator)

// WithQueueSize sets the outbound queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Communicator) {
		if n > 0 {
			c.queue = make(chan message.Message, n)
		}
	}
}

// WithAuthenticator signs outbound and verifies inbound messages.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Communicator) { c.auth = a }
}

// WithAutoAck answers every received message that requests acknowledgement.
func WithAutoAck() Option {
	return func(c *Communicator) { c.autoAck = true }
}

// WithSequencer fills missing envelope fields of outbound messages: the next
// number modulo 256, the current time, sender and classification.
func WithSequencer(sender string, cls message.Classification) Option {
	return func(c *Communicator) {
		c.sequencer = true
		c.sender = sender
		c.classification = cls
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Communicator) { c.metrics = m }
}

// New creates a running communicator.
func New(log zerolog.Logger, opts ...Option) *Communicator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Communicator{
		log:    log.With().Str("component", "communicator").Logger(),
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan message.Message, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers sub for the given types, all types when none are given.
func (c *Communicator) Subscribe(sub Subscriber, types ...message.Type) {
	s := subscription{sub: sub}
	if len(types) > 0 {
		s.types = make(map[message.Type]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	c.mu.Lock()
	c.subs = append(c.subs, s)
	n := len(c.subs)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Subscribers.Set(float64(n))
	}
}

// Unsubscribe removes every registration of sub. Subscribers of a
// non-comparable type, such as SubscriberFunc, cannot be removed.
func (c *Communicator) Unsubscribe(sub Subscriber) {
	if sub == nil || !reflect.TypeOf(sub).Comparable() {
		return
	}

	c.mu.Lock()
	kept := c.subs[:0]
	for _, s := range c.subs {
		if !reflect.TypeOf(s.sub).Comparable() || s.sub != sub {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(c.subs); i++ {
		c.subs[i] = subscription{}
	}
	c.subs = kept
	n := len(c.subs)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Subscribers.Set(float64(n))
	}
}

// AddObserver registers an audit hook for both directions.
func (c *Communicator) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// AddCloser registers a function run by Stop, in reverse order of registration.
func (c *Communicator) AddCloser(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

// Distribute hands a received message to every matching subscriber on the
// calling goroutine.
func (c *Communicator) Distribute(m message.Message) {
	if m == nil {
		return
	}
	start := time.Now()
	if c.auth != nil {
		m = c.auth.Verify(m)
		if m.Envelope().MACStatus == message.MACInvalid {
			c.log.Warn().
				Str("type", string(m.Type())).
				Str("sender", m.Envelope().Sender).
				Msg("MAC verification failed")
		}
	}
	c.received.Add(1)

	c.mu.RLock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	observers := c.observers
	c.mu.RUnlock()

	c.notify(observers, Inbound, m)

	for _, s := range subs {
		if s.matches(m.Type()) {
			c.deliver(s.sub, m)
		}
	}

	if c.metrics != nil {
		c.metrics.recordMessage(m.Type(), Inbound)
		c.metrics.recordDistribution(m.Type(), time.Since(start))
	}

	if c.autoAck && m.Type() != message.TypeAcknowledge {
		if ack := m.Envelope().Acknowledgement; ack != nil && *ack {
			c.Send(message.NewAcknowledge(message.Header{}, m))
		}
	}
}

func (c *Communicator) deliver(sub Subscriber, m message.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.failures.Add(1)
			if c.metrics != nil {
				c.metrics.SubscriberFailures.Inc()
			}
			c.log.Error().
				Interface("panic", r).
				Str("type", string(m.Type())).
				Bytes("stack", debug.Stack()).
				Msg("Subscriber panicked")
		}
	}()

	if err := sub.HandleMessage(m); err != nil {
		c.failures.Add(1)
		if c.metrics != nil {
			c.metrics.SubscriberFailures.Inc()
		}
		c.log.Error().Err(err).Str("type", string(m.Type())).Msg("Subscriber failed")
	}
}

func (c *Communicator) notify(observers []Observer, dir Direction, m message.Message) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().Interface("panic", r).Str("direction", dir.String()).Msg("Observer panicked")
				}
			}()
			o.Observe(dir, m)
		}()
	}
}

// Send queues m for transmission. It never blocks: false is returned and the
// reason recorded in LastError when the hub is stopped or the queue is full.
func (c *Communicator) Send(m message.Message) bool {
	if m == nil {
		return false
	}
	if c.stopped.Load() {
		c.reject(ErrStopped, "stopped")
		return false
	}

	m = c.stamp(m)
	if c.auth != nil {
		m = c.auth.Sign(m)
	}

	select {
	case c.queue <- m:
	default:
		c.reject(ErrQueueFull, "queue_full")
		return false
	}
	c.sent.Add(1)

	c.mu.RLock()
	observers := c.observers
	c.mu.RUnlock()
	c.notify(observers, Outbound, m)

	if c.metrics != nil {
		c.metrics.recordMessage(m.Type(), Outbound)
		c.metrics.QueueDepth.Set(float64(len(c.queue)))
	}
	return true
}

func (c *Communicator) reject(err error, reason string) {
	c.dropped.Add(1)
	c.SetLastError(err)
	if c.metrics != nil {
		c.metrics.recordDropped(reason)
	}
	c.log.Warn().Err(err).Msg("Message not sent")
}

// stamp fills missing envelope fields when the sequencer is enabled.
func (c *Communicator) stamp(m message.Message) message.Message {
	if !c.sequencer {
		return m
	}
	h := m.Envelope()
	if h.Number == nil {
		n := uint8(c.seq.Add(1) - 1)
		h.Number = &n
	}
	if h.Time == nil {
		h.Time = message.Ptr(time.Now().UnixMilli())
	}
	if h.Sender == "" {
		h.Sender = c.sender
	}
	if h.Classification == message.ClassificationNone {
		h.Classification = c.classification
	}
	return m.WithEnvelope(h)
}

// Outbound is the queue a transport writer drains. There must be a single consumer.
func (c *Communicator) Outbound() <-chan message.Message {
	return c.queue
}

// Drain removes and returns everything currently queued without blocking.
func (c *Communicator) Drain() []message.Message {
	var out []message.Message
	for {
		select {
		case m := <-c.queue:
			out = append(out, m)
		default:
			if c.metrics != nil {
				c.metrics.QueueDepth.Set(float64(len(c.queue)))
			}
			return out
		}
	}
}

// Requeue puts messages back at the tail of the queue after a failed
// transmission, returning how many were accepted.
func (c *Communicator) Requeue(msgs []message.Message) int {
	n := 0
	for _, m := range msgs {
		select {
		case c.queue <- m:
			n++
		default:
			c.reject(ErrQueueFull, "queue_full")
		}
	}
	return n
}

// Stop stops accepting sends, cancels Context and runs the registered closers.
// It is safe to call more than once.
func (c *Communicator) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		c.cancel()

		c.mu.Lock()
		closers := c.closers
		c.closers = nil
		c.mu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				c.log.Warn().Err(err).Msg("Error releasing transport resource")
			}
		}
		c.log.Info().Msg("Communicator stopped")
	})
}

// Stopped reports whether Stop has been called.
func (c *Communicator) Stopped() bool {
	return c.stopped.Load()
}

// Context is cancelled by Stop. Transport loops derive from it.
func (c *Communicator) Context() context.Context {
	return c.ctx
}

// LastError returns the most recent transport or send failure.
func (c *Communicator) LastError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.lastErr
}

func (c *Communicator) SetLastError(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

// SenderID is the sender stamped on outbound messages, empty without sequencer.
func (c *Communicator) SenderID() string {
	return c.sender
}

func (c *Communicator) Stats() Stats {
	c.mu.RLock()
	subs := len(c.subs)
	c.mu.RUnlock()
	return Stats{
		Sent:               c.sent.Load(),
		Received:           c.received.Load(),
		Dropped:            c.dropped.Load(),
		SubscriberFailures: c.failures.Load(),
		Queued:             len(c.queue),
		Subscribers:        subs,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("sent=%d received=%d dropped=%d failures=%d queued=%d",
		s.Sent, s.Received, s.Dropped, s.SubscriberFailures, s.Queued)
}
