package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/transport"
)

// closeWait bounds how long Close waits for the poll loop to exit.
const closeWait = 5 * time.Second

// Client polls a REST server for records and posts the outbound queue to it.
type Client struct {
	cfg     transport.Config
	url     string
	comm    *communicator.Communicator
	codec   codec.Codec
	log     zerolog.Logger
	metrics *transport.Metrics
	http    *http.Client

	state   transport.StateHolder
	started atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a client for the server at cfg.Address, a base URL such as
// "http://host:8080". Nothing is requested before Connect.
func NewClient(
	cfg transport.Config, comm *communicator.Communicator, lc codec.Codec, log zerolog.Logger, opts ...Option,
) *Client {
	cfg = cfg.WithDefaults()
	o := buildOptions(opts)
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.WriteTimeout}
	}
	return &Client{
		cfg:     cfg,
		url:     strings.TrimRight(cfg.Address, "/") + Path,
		comm:    comm,
		codec:   lc,
		log:     log.With().Str("component", "rest-client").Str("url", cfg.Address).Logger(),
		metrics: o.metrics,
		http:    hc,
		done:    make(chan struct{}),
	}
}

// Connect starts the poll loop and returns immediately. Request failures are
// logged, stored as LastError and followed by a ReconnectDelay pause.
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
	go c.run(loopCtx)
	return nil
}

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

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(transport.StateDisconnected)

	c.setState(transport.StateConnecting)
	for {
		if err := c.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.comm.SetLastError(err)
			if c.metrics != nil {
				c.metrics.RecordError("io", "request")
			}
			c.log.Error().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("Could not reach REST server")
			c.setState(transport.StateReconnecting)
			if !transport.Sleep(ctx, c.cfg.ReconnectDelay) {
				return
			}
		}
		if !transport.Sleep(ctx, c.cfg.PollInterval) {
			return
		}
	}
}

// cycle polls once and then posts whatever is queued. Only request failures
// are returned; a non-200 status is logged and recorded but does not pause
// the loop.
func (c *Client) cycle(ctx context.Context) error {
	if err := c.poll(ctx); err != nil {
		return err
	}

	pending := c.comm.Drain()
	if len(pending) == 0 {
		return nil
	}
	if err := c.post(ctx, pending); err != nil {
		c.comm.Requeue(pending)
		return err
	}
	return nil
}

func (c *Client) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()
	c.setState(transport.StateConnected)

	if resp.StatusCode != http.StatusOK {
		c.unexpected(http.MethodGet, resp)
		return nil
	}

	var batch Batch
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxBatchBytes)).Decode(&batch); err != nil {
		err = fmt.Errorf("decode GET response: %w", err)
		c.comm.SetLastError(err)
		c.log.Error().Err(err).Msg("Could not process server response")
		return nil
	}

	msgs, err := decodeBatch(c.codec, batch, c.log)
	if err != nil {
		c.comm.SetLastError(err)
	}
	for _, m := range msgs {
		if c.metrics != nil {
			c.metrics.RecordMessageReceived(string(m.Type()), len(message.Encode(m)))
		}
		c.comm.Distribute(m)
	}
	if len(msgs) > 0 {
		c.log.Debug().Int("count", len(msgs)).Msg("Received messages from server")
	}
	return nil
}

// post sends one batch. Messages the server refused with a status are not
// retried; they would be refused again.
func (c *Client) post(ctx context.Context, msgs []message.Message) error {
	batch, sent := encodeBatch(c.codec, msgs, c.log)
	if len(batch.Messages) == 0 {
		return nil
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.unexpected(http.MethodPost, resp)
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBatchBytes))

	if c.metrics != nil {
		for i, e := range batch.Messages {
			c.metrics.RecordMessageSent(string(sent[i].Type()), len(e.Message))
		}
	}
	c.log.Debug().Int("count", len(sent)).Msg("Sent messages to server")
	return nil
}

func (c *Client) unexpected(method string, resp *http.Response) {
	err := fmt.Errorf("%s %s: unexpected status %d", method, c.url, resp.StatusCode)
	c.comm.SetLastError(err)
	if c.metrics != nil {
		c.metrics.RecordError("status", strings.ToLower(method))
	}
	c.log.Error().Err(err).Msg("REST request failed")
}

// Close stops polling. It is safe to call more than once and before Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-c.done:
	case <-time.After(closeWait):
		c.log.Warn().Msg("Timed out waiting for poll loop")
	}
	return nil
}
