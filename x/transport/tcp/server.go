package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
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

// peer is one accepted connection with its own outbound queue
type peer struct {
	conn  *connection
	queue chan message.Message

	cancel context.CancelFunc
}

// Server accepts peers and broadcasts every outbound record to all of them.
type Server struct {
	cfg     transport.Config
	comm    *communicator.Communicator
	codec   codec.StreamCodec
	log     zerolog.Logger
	metrics *transport.Metrics

	state    transport.StateHolder
	started  atomic.Bool
	shutdown atomic.Bool

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.RWMutex
	peers map[string]*peer
}

var _ transport.Transport = (*Server)(nil)

// NewServer creates a server listening on cfg.Address once connected.
func NewServer(
	cfg transport.Config, comm *communicator.Communicator, lc codec.StreamCodec, log zerolog.Logger, opts ...Option,
) *Server {
	o := buildOptions(log, opts)
	return &Server{
		cfg:     cfg.WithDefaults(),
		comm:    comm,
		codec:   lc,
		log:     o.log.With().Str("component", "tcp-server").Logger(),
		metrics: o.metrics,
		peers:   make(map[string]*peer),
	}
}

// Connect binds the listening socket and starts accepting peers. A bind
// failure is returned and also stored as the communicator's LastError.
func (s *Server) Connect(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return transport.ErrAlreadyConnected
	}
	s.state.Store(transport.StateConnecting)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		err = fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
		s.comm.SetLastError(err)
		s.state.Store(transport.StateDisconnected)
		s.started.Store(false)
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(s.comm.Context(), cancel)
	context.AfterFunc(loopCtx, func() {
		s.shutdown.Store(true)
		_ = ln.Close()
	})

	s.listener = ln
	s.cancel = cancel
	s.setState(transport.StateConnected)
	s.comm.AddCloser(s.Close)

	s.wg.Add(2)
	go s.acceptLoop(loopCtx)
	go s.broadcastLoop(loopCtx)

	s.log.Info().Str("address", ln.Addr().String()).Msg("TCP server listening")
	return nil
}

// Addr returns the bound address, nil before Connect.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State returns StateConnected while the server is listening.
func (s *Server) State() transport.State {
	return s.state.Load()
}

func (s *Server) setState(st transport.State) {
	s.state.Store(st)
	if s.metrics != nil {
		s.metrics.RecordState(st)
	}
}

// Peers returns the live connections ordered by connect time.
func (s *Server) Peers() []transport.ConnectionInfo {
	s.mu.RLock()
	out := make([]transport.ConnectionInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.conn.Info())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.comm.SetLastError(err)
			if s.metrics != nil {
				s.metrics.RecordError("io", "accept")
			}
			s.log.Error().Err(err).Msg("Accept failed")
			if !transport.Sleep(ctx, s.cfg.ReconnectDelay) {
				return
			}
			continue
		}
		s.admit(ctx, netConn)
	}
}

// admit registers a new peer unless MaxConnections is reached.
func (s *Server) admit(ctx context.Context, netConn net.Conn) {
	s.mu.Lock()
	if len(s.peers) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		s.log.Warn().
			Str("remote", netConn.RemoteAddr().String()).
			Int("max_connections", s.cfg.MaxConnections).
			Msg("Connection limit reached, rejecting peer")
		if s.metrics != nil {
			s.metrics.RecordConnection("rejected")
		}
		_ = netConn.Close()
		return
	}

	peerCtx, cancel := context.WithCancel(ctx)
	p := &peer{
		conn: newConnection(netConn, uuid.NewString(), s.codec, s.log, TimeoutConfig{
			Read:  s.cfg.ReadTimeout,
			Write: s.cfg.WriteTimeout,
		}),
		queue:  make(chan message.Message, s.cfg.PeerQueueSize),
		cancel: cancel,
	}
	s.peers[p.conn.ID()] = p
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnection("accepted")
	}
	p.conn.log.Info().Msg("Peer connected")

	context.AfterFunc(peerCtx, func() { _ = p.conn.Close() })

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer s.release(p)
		if err := readLoop(peerCtx, p.conn, s.comm, s.metrics); err != nil {
			s.fail(peerCtx, p, err, "read")
		}
	}()
	go func() {
		defer s.wg.Done()
		defer s.release(p)
		if err := s.writeLoop(peerCtx, p); err != nil {
			s.fail(peerCtx, p, err, "write")
		}
	}()
}

func (s *Server) writeLoop(ctx context.Context, p *peer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-p.queue:
			before := p.conn.bytesWritten.Load()
			if err := p.conn.WriteMessage(m); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.RecordMessageSent(string(m.Type()), int(p.conn.bytesWritten.Load()-before)) //nolint:gosec // one line
			}
		}
	}
}

// broadcastLoop copies every outbound record into each peer queue. A peer
// whose queue is full misses the record; the others are not held up.
func (s *Server) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()

	out := s.comm.Outbound()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-out:
			start := time.Now()

			s.mu.RLock()
			n := 0
			for _, p := range s.peers {
				select {
				case p.queue <- m:
					n++
				default:
					p.conn.log.Warn().Str("type", string(m.Type())).Msg("Peer queue full, dropping message")
					if s.metrics != nil {
						s.metrics.RecordError("queue_full", "broadcast")
					}
				}
			}
			s.mu.RUnlock()

			if s.metrics != nil {
				s.metrics.RecordBroadcast(n, time.Since(start))
			}
		}
	}
}

// release drops p from the peer set. Both loops of a peer call it; only the
// first does the work.
func (s *Server) release(p *peer) {
	s.mu.Lock()
	_, ok := s.peers[p.conn.ID()]
	delete(s.peers, p.conn.ID())
	s.mu.Unlock()

	p.cancel()
	if !ok {
		return
	}
	_ = p.conn.Close()
	if s.metrics != nil {
		s.metrics.RecordConnection("closed")
		s.metrics.RecordConnectionDuration(time.Since(p.conn.Info().ConnectedAt))
	}
	p.conn.log.Info().Msg("Peer disconnected")
}

func (s *Server) fail(ctx context.Context, p *peer, err error, op string) {
	if ctx.Err() != nil {
		return
	}
	if isClosed(err) {
		return
	}
	s.comm.SetLastError(err)
	if s.metrics != nil {
		s.metrics.RecordError("io", op)
	}
	p.conn.log.Error().Err(err).Str("op", op).Msg("Peer connection failure")
}

// Close stops accepting, disconnects every peer and waits for their loops.
func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	s.mu.RLock()
	for _, p := range s.peers {
		p.cancel()
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
		s.log.Warn().Msg("Timed out waiting for peer loops")
	}
	s.setState(transport.StateDisconnected)
	return nil
}
