// Package transport holds what the TCP and REST transports share: settings,
// connection state and network metrics.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 2 * time.Second

var ErrAlreadyConnected = errors.New("transport already connected")

// Transport moves messages between a communicator and the network.
type Transport interface {
	// Connect starts the transport loops. They run until ctx or the
	// communicator is done.
	Connect(ctx context.Context) error
	State() State
	// Close stops the loops and releases the network resources.
	Close() error
}

// Config contains the settings of one transport endpoint.
type Config struct {
	Address        string        `mapstructure:"address"         yaml:"address"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"    yaml:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"    yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"   yaml:"write_timeout"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections"`
	MaxMessageSize int           `mapstructure:"max_message_size" yaml:"max_message_size"`
	PeerQueueSize  int           `mapstructure:"peer_queue_size" yaml:"peer_queue_size"`
	PollInterval   time.Duration `mapstructure:"poll_interval"   yaml:"poll_interval"`
}

// DefaultConfig returns production defaults. ReadTimeout is zero: SEDAP-Express
// peers may stay silent for long periods and an idle link is not a failure.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay: DefaultReconnectDelay,
		DialTimeout:    5 * time.Second,
		WriteTimeout:   20 * time.Second,
		MaxConnections: 64,
		MaxMessageSize: 1 << 20,
		PeerQueueSize:  256,
		PollInterval:   time.Second,
	}
}

// WithDefaults fills unset values from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.PeerQueueSize <= 0 {
		c.PeerQueueSize = d.PeerQueueSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("address is required")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative: %s", c.ReadTimeout)
	}
	return nil
}

// State is the connection state of a transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StateHolder stores a State for concurrent readers.
type StateHolder struct {
	v atomic.Int32
}

func (h *StateHolder) Load() State { return State(h.v.Load()) }

// Store sets s and returns the previous state.
func (h *StateHolder) Store(s State) State { return State(h.v.Swap(int32(s))) }

// ConnectionInfo describes one live connection.
type ConnectionInfo struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastSeen     time.Time `json:"last_seen"`
	BytesRead    uint64    `json:"bytes_read"`
	BytesWritten uint64    `json:"bytes_written"`
}

// Sleep waits for d, returning false early when ctx is done.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
