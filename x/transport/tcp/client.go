package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/transport"
)

// closeWait bounds how long Close waits for the loops to exit.
const closeWait = 5 * time.Second

// Client keeps one connection to a server and re-dials it after every failure.
type Client struct {
	cfg     transport.Config
	comm    *communicator.Communicator
	codec   codec.StreamCodec
	log     zerolog.Logger
	metrics *transport.Metrics

	state   transport.StateHolder
	started atomic.Bool

	mu     sync.Mutex
	conn   *connection
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a client for cfg.Address. Nothing is dialled before Connect.
func NewClient(
	cfg transport.Config, comm *communicator.Communicator, lc codec.StreamCodec, log zerolog.Logger, opts ...Option,
) *Client {
	o := buildOptions(log, opts)
	return &Client{
		cfg:     cfg.WithDefaults(),
		comm:    comm,
		codec:   lc,
		log:     o.log.With().Str("component", "tcp-client").Str("address", cfg.Address).Logger(),
		metrics: o.metrics,
		done:    make(chan struct{}),
	}
}

// Connect starts the connection supervisor and returns immediately. Dial
// failures are not returned: they are logged, stored as the communicator's
// LastError and retried every ReconnectDelay until ctx or the communicator
// is done.
func (c *Client) Connect(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return transport.ErrAlreadyConnected
	}

	loopCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(c.comm.Context(), cancel)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.comm.AddCloser(c.Close)
	go c.supervise(loopCtx)
	return nil
}

// State returns the connection state.
func (c *Client) State() transport.State {
	return c.state.Load()
}

func (c *Client) setState(s transport.State) {
	if prev := c.state.Store(s); prev != s {
		c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("State change")
	}
	if c.metrics != nil {
		c.metrics.RecordState(s)
	}
}

// Connection returns the live connection, if any.
func (c *Client) Connection() (transport.ConnectionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return transport.ConnectionInfo{}, false
	}
	return c.conn.Info(), true
}

func (c *Client) supervise(ctx context.Context) {
	defer close(c.done)
	defer c.setState(transport.StateDisconnected)

	next := transport.StateConnecting
	for {
		c.setState(next)
		if conn, err := c.dial(ctx); err != nil {
			c.fail(ctx, err, "dial")
		} else {
			c.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return
		}
		next = transport.StateReconnecting
		c.setState(next)
		if !transport.Sleep(ctx, c.cfg.ReconnectDelay) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*connection, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	netConn, err := d.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Address, err)
	}
	conn := newConnection(netConn, uuid.NewString(), c.codec, c.log, TimeoutConfig{
		Read:  c.cfg.ReadTimeout,
		Write: c.cfg.WriteTimeout,
	})
	return conn, nil
}

// serve runs the reader and writer of one connection until either fails.
func (c *Client) serve(ctx context.Context, conn *connection) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(transport.StateConnected)
	if c.metrics != nil {
		c.metrics.RecordConnection("established")
	}
	conn.log.Info().Msg("Connected")

	stop := context.AfterFunc(connCtx, func() { _ = conn.Close() })
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := readLoop(connCtx, conn, c.comm, c.metrics); err != nil {
			c.fail(connCtx, err, "read")
		}
	}()

	if err := c.writeLoop(connCtx, conn); err != nil {
		c.fail(connCtx, err, "write")
	}
	cancel()
	_ = conn.Close()
	wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordConnection("closed")
		c.metrics.RecordConnectionDuration(time.Since(conn.Info().ConnectedAt))
	}
	conn.log.Info().Msg("Disconnected")
}

// writeLoop drains the outbound queue onto conn. A record that could not be
// written goes back to the queue for the next connection.
func (c *Client) writeLoop(ctx context.Context, conn *connection) error {
	out := c.comm.Outbound()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-out:
			before := conn.bytesWritten.Load()
			if err := conn.WriteMessage(m); err != nil {
				c.comm.Requeue([]message.Message{m})
				return err
			}
			if c.metrics != nil {
				c.metrics.RecordMessageSent(string(m.Type()), int(conn.bytesWritten.Load()-before)) //nolint:gosec // one line
			}
		}
	}
}

// fail records a transport failure unless it was caused by shutdown.
func (c *Client) fail(ctx context.Context, err error, op string) {
	if ctx.Err() != nil {
		return
	}
	c.comm.SetLastError(err)
	if c.metrics != nil {
		c.metrics.RecordError("io", op)
	}
	if isClosed(err) {
		c.log.Warn().Err(err).Str("op", op).Msg("Connection closed by peer")
		return
	}
	c.log.Error().Err(err).Str("op", op).Dur("retry_in", c.cfg.ReconnectDelay).Msg("Connection failure")
}

// Close stops reconnecting and closes the live connection. It is safe to
// call more than once and before Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}

	select {
	case <-c.done:
	case <-time.After(closeWait):
		c.log.Warn().Msg("Timed out waiting for connection loops")
	}
	return nil
}
