package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/server/api"
	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/transport"
)

// Server exposes the outbound queue of a communicator to polling clients.
type Server struct {
	comm    *communicator.Communicator
	codec   codec.Codec
	log     zerolog.Logger
	metrics *transport.Metrics

	http    *api.Server
	state   transport.StateHolder
	started atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Server)(nil)

// NewServer creates a REST server listening on cfg.ListenAddr once connected.
// The standard middleware chain is installed.
func NewServer(
	cfg api.Config, comm *communicator.Communicator, lc codec.Codec, log zerolog.Logger, opts ...Option,
) *Server {
	o := buildOptions(opts)
	s := &Server{
		comm:    comm,
		codec:   lc,
		log:     log.With().Str("component", "rest-server").Logger(),
		metrics: o.metrics,
		http:    api.NewServer(cfg, log),
		done:    make(chan struct{}),
	}
	s.http.UseDefaults()
	s.Register(s.http.Router)
	return s
}

// Register mounts the SEDAP-Express resource on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc(Path, s.handleGet).Methods(http.MethodGet)
	r.HandleFunc(Path, s.handlePost).Methods(http.MethodPost)
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	return s.http.Handler()
}

// API returns the underlying HTTP server for mounting extra routes before Connect.
func (s *Server) API() *api.Server {
	return s.http
}

// Addr returns the bound address, nil before Connect.
func (s *Server) Addr() net.Addr {
	return s.http.Addr()
}

// Connect binds the listener and serves in the background. A bind failure is
// returned and stored as the communicator's LastError.
func (s *Server) Connect(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return transport.ErrAlreadyConnected
	}
	s.setState(transport.StateConnecting)

	srvCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(s.comm.Context(), cancel)

	errCh := make(chan error, 1)
	go func() {
		defer close(s.done)
		errCh <- s.http.Start(srvCtx)
	}()

	select {
	case <-s.http.Ready():
	case err := <-errCh:
		cancel()
		if err == nil {
			err = errors.New("http server exited before listening")
		}
		err = fmt.Errorf("start REST server: %w", err)
		s.comm.SetLastError(err)
		s.setState(transport.StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.comm.AddCloser(s.Close)
	s.setState(transport.StateConnected)

	go func() {
		if err := <-errCh; err != nil {
			s.comm.SetLastError(err)
			s.log.Error().Err(err).Msg("REST server failed")
		}
		s.setState(transport.StateDisconnected)
	}()
	return nil
}

func (s *Server) State() transport.State {
	return s.state.Load()
}

func (s *Server) setState(st transport.State) {
	s.state.Store(st)
	if s.metrics != nil {
		s.metrics.RecordState(st)
	}
}

// handleGet hands every queued record to the caller. Each record is
// delivered to at most one poll.
func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	batch, msgs := encodeBatch(s.codec, s.comm.Drain(), s.log)

	if s.metrics != nil {
		for i, e := range batch.Messages {
			s.metrics.RecordMessageSent(string(msgs[i].Type()), len(e.Message))
		}
	}
	if len(batch.Messages) > 0 {
		s.log.Debug().Int("count", len(batch.Messages)).Msg("Sent messages to client")
	}
	api.WriteJSON(w, http.StatusOK, batch)
}

// handlePost distributes a batch. Records that decode are delivered even
// when others in the same batch fail; the reply then reports failure.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var batch Batch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBatchBytes)).Decode(&batch); err != nil {
		s.reject(w, fmt.Errorf("decode batch: %w", err))
		return
	}

	msgs, err := decodeBatch(s.codec, batch, s.log)
	for _, m := range msgs {
		if s.metrics != nil {
			s.metrics.RecordMessageReceived(string(m.Type()), len(message.Encode(m)))
		}
		s.comm.Distribute(m)
	}
	s.log.Debug().Int("count", len(msgs)).Msg("Received messages from client")

	if err != nil {
		s.reject(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, Result{Success: "true"})
}

func (s *Server) reject(w http.ResponseWriter, err error) {
	s.comm.SetLastError(err)
	if s.metrics != nil {
		s.metrics.RecordError("decode", "post")
	}
	s.log.Warn().Err(err).Msg("Rejected message batch")
	api.WriteJSON(w, http.StatusBadRequest, Result{Success: "false"})
}

// Close shuts the HTTP server down and waits for it to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-s.done
	s.setState(transport.StateDisconnected)
	return nil
}
