package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/metrics"
	"github.com/uniity/sedap-express/sedap-express-app/config"
	apisrv "github.com/uniity/sedap-express/server/api"
	"github.com/uniity/sedap-express/x/codec"
	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/heartbeat"
	"github.com/uniity/sedap-express/x/journal"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/security"
	"github.com/uniity/sedap-express/x/transport"
	"github.com/uniity/sedap-express/x/transport/rest"
	"github.com/uniity/sedap-express/x/transport/tcp"
)

const shutdownTimeout = 30 * time.Second

// App is one SEDAP-Express node
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	senderID string

	comm       *communicator.Communicator
	keys       *security.KeyRing
	negotiator *security.Negotiator
	transport  transport.Transport

	journal   *journal.Journal
	heartbeat *heartbeat.Runner
	apiServer *apisrv.Server

	startedAt   time.Time
	shutdownFns []func() error
	cancel      context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		shutdownFns: make([]func() error, 0),
	}

	if err := app.initialize(log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

func (a *App) initialize(log zerolog.Logger) error {
	a.senderID = a.cfg.SenderID
	if a.senderID == "" {
		a.senderID = message.NewSenderID()
		a.log.Info().Str("sender_id", a.senderID).Msg("Generated sender id")
	}

	if err := a.initializeSecurity(); err != nil {
		return err
	}
	if err := a.initializeCommunicator(log); err != nil {
		return err
	}
	lc, err := a.initializeCodec()
	if err != nil {
		return err
	}
	if err := a.initializeTransport(lc, log); err != nil {
		return err
	}
	if err := a.initializeJournal(log); err != nil {
		return err
	}
	a.initializeHeartbeat(log)
	a.initializeAPIServer(log)
	return nil
}

func (a *App) initializeSecurity() error {
	a.keys = security.NewKeyRing()
	if a.cfg.Security.Key == "" {
		return nil
	}
	key, err := hex.DecodeString(a.cfg.Security.Key)
	if err != nil {
		return fmt.Errorf("invalid security.key: %w", err)
	}
	a.keys.SetDefault(key)
	a.log.Info().Int("bits", len(key)*8).Msg("Pre-shared key installed")
	return nil
}

func (a *App) initializeCommunicator(log zerolog.Logger) error {
	cls := message.ClassificationNone
	if a.cfg.Classification != "" {
		cls, _ = message.ParseClassification(a.cfg.Classification)
	}

	opts := []communicator.Option{
		communicator.WithQueueSize(a.cfg.Communicator.QueueSize),
		communicator.WithSequencer(a.senderID, cls),
	}
	if a.cfg.Communicator.AutoAck {
		opts = append(opts, communicator.WithAutoAck())
	}
	if a.cfg.Security.Sign {
		opts = append(opts, communicator.WithAuthenticator(security.NewAuthenticator(a.keys)))
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, communicator.WithMetrics(communicator.NewMetrics()))
	}
	a.comm = communicator.New(log, opts...)

	kx := a.cfg.Security.KeyExchange
	if !kx.Enabled {
		return nil
	}
	alg, err := config.ParseAlgorithm(kx.Algorithm)
	if err != nil {
		return err
	}
	a.negotiator = security.NewNegotiator(a.senderID, a.keys, a.comm, log,
		security.WithDefaults(alg, kx.KeyBits, kx.ModulusBits),
		security.OnEstablished(func(peer string) {
			a.log.Info().Str("peer", peer).Msg("Session key established")
		}),
	)
	a.comm.Subscribe(a.negotiator, message.TypeKeyExchange)
	return nil
}

func (a *App) initializeCodec() (codec.Codec, error) {
	registry := codec.NewRegistry()
	mode, err := security.ParseMode(a.cfg.Security.Mode)
	if err != nil {
		return nil, err
	}
	registry.Register(codec.NewEncryptedCodec(registry.Default(), a.keys, a.cfg.Security.KeyExchange.Peer, mode))

	lc, ok := registry.Get(a.cfg.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q, have %v", a.cfg.Codec, registry.Names())
	}
	a.log.Info().Str("codec", lc.Name()).Msg("Wire codec selected")
	return lc, nil
}

func (a *App) initializeTransport(lc codec.Codec, log zerolog.Logger) error {
	tc := a.cfg.Transport
	if tc.MaxMessageSize <= 0 {
		tc.MaxMessageSize = lc.MaxMessageSize()
	}

	switch a.cfg.Mode {
	case config.ModeTCPServer, config.ModeTCPClient:
		sc, ok := lc.(codec.StreamCodec)
		if !ok {
			return fmt.Errorf("codec %s cannot frame a TCP stream", lc.Name())
		}
		var opts []tcp.Option
		if a.cfg.Metrics.Enabled {
			opts = append(opts, tcp.WithMetrics(transport.NewMetrics(a.cfg.Mode)))
		}
		if a.cfg.Mode == config.ModeTCPServer {
			a.transport = tcp.NewServer(tc, a.comm, sc, log, opts...)
		} else {
			a.transport = tcp.NewClient(tc, a.comm, sc, log, opts...)
		}

	case config.ModeRESTServer, config.ModeRESTClient:
		var opts []rest.Option
		if a.cfg.Metrics.Enabled {
			opts = append(opts, rest.WithMetrics(transport.NewMetrics(a.cfg.Mode)))
		}
		if a.cfg.Mode == config.ModeRESTServer {
			a.transport = rest.NewServer(a.cfg.REST, a.comm, lc, log, opts...)
		} else {
			a.transport = rest.NewClient(tc, a.comm, lc, log, opts...)
		}

	default:
		return fmt.Errorf("unsupported mode %q", a.cfg.Mode)
	}
	return nil
}

func (a *App) initializeJournal(log zerolog.Logger) error {
	if !a.cfg.Journal.Enabled {
		return nil
	}
	j, err := journal.Open(a.cfg.Journal.Config, log)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	a.journal = j
	a.comm.AddObserver(j)
	a.shutdownFns = append(a.shutdownFns, j.Close)
	return nil
}

func (a *App) initializeHeartbeat(log zerolog.Logger) {
	if !a.cfg.Heartbeat.Enabled {
		return
	}
	hc := heartbeat.DefaultConfig(log)
	hc.Interval = a.cfg.Heartbeat.Interval
	hc.Handler = heartbeat.Emitter(a.comm, a.cfg.Heartbeat.Recipient, log)
	a.heartbeat = heartbeat.NewRunner(hc)
}

// initializeAPIServer sets up the management HTTP server
func (a *App) initializeAPIServer(log zerolog.Logger) {
	if !a.cfg.API.Enabled {
		return
	}
	s := apisrv.NewServer(a.cfg.API.Config, log)
	s.UseDefaults()

	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	if a.journal != nil {
		s.Router.HandleFunc("/journal", a.handleJournal).Methods(http.MethodGet)
	}
	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startedAt = time.Now()

	if err := a.transport.Connect(runCtx); err != nil {
		cancel()
		a.comm.Stop()
		a.runShutdownFns()
		return fmt.Errorf("failed to start transport: %w", err)
	}

	if a.heartbeat != nil {
		if err := a.heartbeat.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("Heartbeat runner failed to start")
		}
	}

	if a.negotiator != nil && a.cfg.Security.KeyExchange.Peer != "" {
		go a.initiateKeyExchange(runCtx, a.cfg.Security.KeyExchange.Peer)
	}

	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.Start(runCtx); err != nil {
				a.log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	go a.statsReporter(runCtx)

	return a.runWithGracefulShutdown(runCtx)
}

// initiateKeyExchange starts a handshake with peer once the transport is up.
func (a *App) initiateKeyExchange(ctx context.Context, peer string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for a.transport.State() != transport.StateConnected {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	if err := a.negotiator.Initiate(peer); err != nil {
		a.comm.SetLastError(err)
		a.log.Error().Err(err).Str("peer", peer).Msg("Failed to start key exchange")
	}
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().
		Str("mode", a.cfg.Mode).
		Str("sender_id", a.senderID).
		Msg("SEDAP-Express node started")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops the heartbeat, then the communicator, which closes the
// transport, and finally runs the shutdown functions.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.heartbeat != nil {
			a.heartbeat.Stop()
		}
		a.comm.Stop()
		a.runShutdownFns()
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}

func (a *App) runShutdownFns() {
	for _, fn := range a.shutdownFns {
		if err := fn(); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
		}
	}
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) handleReady(w http.ResponseWriter, _ *http.Request) {
	state := a.transport.State()
	status, code := "ready", http.StatusOK
	if state != transport.StateConnected {
		status, code = "not_connected", http.StatusServiceUnavailable
	}
	apisrv.WriteJSON(w, code, map[string]string{
		"status":    status,
		"transport": state.String(),
	})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, a.GetStats())
}

func (a *App) handleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := journal.Filter{
		Direction: q.Get("direction"),
		Type:      message.Type(strings.ToUpper(q.Get("type"))),
		Sender:    q.Get("sender"),
	}
	entries, err := a.journal.Recent(r.Context(), limit, f)
	if err != nil {
		apisrv.WriteError(w, r, http.StatusInternalServerError, "journal_error", err.Error(), nil)
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// GetStats returns application statistics.
func (a *App) GetStats() map[string]any {
	stats := map[string]any{
		"app_version":    Version,
		"app_build_time": BuildTime,
		"app_git_commit": GitCommit,
		"mode":           a.cfg.Mode,
		"sender_id":      a.senderID,
		"transport":      a.transport.State().String(),
		"communicator":   a.comm.Stats(),
		"uptime_seconds": time.Since(a.startedAt).Seconds(),
		"session_keys":   a.keys.Peers(),
	}
	if err := a.comm.LastError(); err != nil {
		stats["last_error"] = err.Error()
	}
	switch t := a.transport.(type) {
	case *tcp.Server:
		stats["peers"] = t.Peers()
	case *tcp.Client:
		if info, ok := t.Connection(); ok {
			stats["connection"] = info
		}
	}
	if a.journal != nil {
		stats["journal_dropped"] = a.journal.Dropped()
	}
	return stats
}

// statsReporter periodically logs communicator statistics.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := a.comm.Stats()
			a.log.Info().
				Str("mode", a.cfg.Mode).
				Str("transport", a.transport.State().String()).
				Uint64("sent", s.Sent).
				Uint64("received", s.Received).
				Uint64("dropped", s.Dropped).
				Int("queued", s.Queued).
				Msg("SEDAP-Express statistics")
		}
	}
}
