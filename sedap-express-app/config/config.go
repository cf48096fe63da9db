package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/uniity/sedap-express/server/api"
	"github.com/uniity/sedap-express/x/journal"
	"github.com/uniity/sedap-express/x/message"
	"github.com/uniity/sedap-express/x/security"
	"github.com/uniity/sedap-express/x/transport"
)

// Node roles.
const (
	ModeTCPServer  = "tcp-server"
	ModeTCPClient  = "tcp-client"
	ModeRESTServer = "rest-server"
	ModeRESTClient = "rest-client"
)

// Config holds the complete application configuration
type Config struct {
	Mode           string `mapstructure:"mode"           yaml:"mode"`
	SenderID       string `mapstructure:"sender_id"      yaml:"sender_id"`
	Classification string `mapstructure:"classification" yaml:"classification"`
	Codec          string `mapstructure:"codec"          yaml:"codec"`

	Transport    transport.Config   `mapstructure:"transport"    yaml:"transport"`
	REST         api.Config         `mapstructure:"rest"         yaml:"rest"`
	API          APIConfig          `mapstructure:"api"          yaml:"api"`
	Communicator CommunicatorConfig `mapstructure:"communicator" yaml:"communicator"`
	Security     SecurityConfig     `mapstructure:"security"     yaml:"security"`
	Heartbeat    HeartbeatConfig    `mapstructure:"heartbeat"    yaml:"heartbeat"`
	Journal      JournalConfig      `mapstructure:"journal"      yaml:"journal"`
	Metrics      MetricsConfig      `mapstructure:"metrics"      yaml:"metrics"`
	Log          LogConfig          `mapstructure:"log"          yaml:"log"`
}

// APIConfig holds the management HTTP server configuration
type APIConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	api.Config `mapstructure:",squash" yaml:",inline"`
}

// CommunicatorConfig holds hub configuration
type CommunicatorConfig struct {
	QueueSize int  `mapstructure:"queue_size" yaml:"queue_size"`
	AutoAck   bool `mapstructure:"auto_ack"   yaml:"auto_ack"`
}

// SecurityConfig holds MAC, encryption and key exchange settings
type SecurityConfig struct {
	// Key is a pre-shared hex key used for every peer without a negotiated one.
	Key  string `mapstructure:"key"  yaml:"key"`
	Mode string `mapstructure:"mode" yaml:"mode"`
	Sign bool   `mapstructure:"sign" yaml:"sign"`

	KeyExchange KeyExchangeConfig `mapstructure:"key_exchange" yaml:"key_exchange"`
}

// KeyExchangeConfig holds KEYEXCHANGE handshake settings
type KeyExchangeConfig struct {
	Enabled     bool   `mapstructure:"enabled"      yaml:"enabled"`
	Algorithm   string `mapstructure:"algorithm"    yaml:"algorithm"`
	KeyBits     int    `mapstructure:"key_bits"     yaml:"key_bits"`
	ModulusBits int    `mapstructure:"modulus_bits" yaml:"modulus_bits"`
	// Peer is the sender id to start a handshake with once connected.
	Peer string `mapstructure:"peer" yaml:"peer"`
}

// HeartbeatConfig holds heartbeat emission settings
type HeartbeatConfig struct {
	Enabled   bool          `mapstructure:"enabled"   yaml:"enabled"`
	Interval  time.Duration `mapstructure:"interval"  yaml:"interval"`
	Recipient string        `mapstructure:"recipient" yaml:"recipient"`
}

// JournalConfig holds the traffic journal settings
type JournalConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	journal.Config `mapstructure:",squash" yaml:",inline"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Load loads configuration from file and environment. An empty path uses
// defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("mode", d.Mode)
	v.SetDefault("sender_id", d.SenderID)
	v.SetDefault("classification", d.Classification)
	v.SetDefault("codec", d.Codec)

	v.SetDefault("transport.address", d.Transport.Address)
	v.SetDefault("transport.reconnect_delay", d.Transport.ReconnectDelay)
	v.SetDefault("transport.dial_timeout", d.Transport.DialTimeout)
	v.SetDefault("transport.read_timeout", d.Transport.ReadTimeout)
	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.max_connections", d.Transport.MaxConnections)
	v.SetDefault("transport.max_message_size", d.Transport.MaxMessageSize)
	v.SetDefault("transport.peer_queue_size", d.Transport.PeerQueueSize)
	v.SetDefault("transport.poll_interval", d.Transport.PollInterval)

	setAPIDefaults(v, "rest", d.REST)
	v.SetDefault("api.enabled", d.API.Enabled)
	setAPIDefaults(v, "api", d.API.Config)

	v.SetDefault("communicator.queue_size", d.Communicator.QueueSize)
	v.SetDefault("communicator.auto_ack", d.Communicator.AutoAck)

	v.SetDefault("security.key", "")
	v.SetDefault("security.mode", d.Security.Mode)
	v.SetDefault("security.sign", d.Security.Sign)
	v.SetDefault("security.key_exchange.enabled", d.Security.KeyExchange.Enabled)
	v.SetDefault("security.key_exchange.algorithm", d.Security.KeyExchange.Algorithm)
	v.SetDefault("security.key_exchange.key_bits", d.Security.KeyExchange.KeyBits)
	v.SetDefault("security.key_exchange.modulus_bits", d.Security.KeyExchange.ModulusBits)
	v.SetDefault("security.key_exchange.peer", "")

	v.SetDefault("heartbeat.enabled", d.Heartbeat.Enabled)
	v.SetDefault("heartbeat.interval", d.Heartbeat.Interval)
	v.SetDefault("heartbeat.recipient", "")

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("journal.retention", d.Journal.Retention)
	v.SetDefault("journal.buffer", d.Journal.Buffer)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

func setAPIDefaults(v *viper.Viper, prefix string, c api.Config) {
	v.SetDefault(prefix+".listen_addr", c.ListenAddr)
	v.SetDefault(prefix+".read_header_timeout", c.ReadHeaderTimeout)
	v.SetDefault(prefix+".read_timeout", c.ReadTimeout)
	v.SetDefault(prefix+".write_timeout", c.WriteTimeout)
	v.SetDefault(prefix+".idle_timeout", c.IdleTimeout)
	v.SetDefault(prefix+".max_header_bytes", c.MaxHeaderBytes)
	v.SetDefault(prefix+".max_concurrent", c.MaxConcurrent)
	v.SetDefault(prefix+".queue_wait", c.QueueWait)
	v.SetDefault(prefix+".rate_limit", c.RateLimit)
	v.SetDefault(prefix+".rate_burst", c.RateBurst)
	v.SetDefault(prefix+".cors", c.CORS)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateNode(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateHeartbeat(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNode() error {
	switch c.Mode {
	case ModeTCPServer, ModeTCPClient, ModeRESTServer, ModeRESTClient:
	default:
		return fmt.Errorf("mode must be one of %s, %s, %s, %s, got %q",
			ModeTCPServer, ModeTCPClient, ModeRESTServer, ModeRESTClient, c.Mode)
	}
	if c.SenderID != "" {
		if _, err := hex.DecodeString(padEven(c.SenderID)); err != nil {
			return fmt.Errorf("sender_id must be hexadecimal, got %q", c.SenderID)
		}
	}
	if c.Classification != "" {
		if _, ok := message.ParseClassification(c.Classification); !ok {
			return fmt.Errorf("classification %q is not valid", c.Classification)
		}
	}
	switch c.Codec {
	case "text", "compressed", "encrypted":
	default:
		return fmt.Errorf("codec must be text, compressed or encrypted, got %q", c.Codec)
	}
	if c.Communicator.QueueSize <= 0 {
		return fmt.Errorf("communicator.queue_size must be positive, got %d", c.Communicator.QueueSize)
	}
	return nil
}

func (c *Config) validateTransport() error {
	if c.Mode == ModeRESTServer {
		if strings.TrimSpace(c.REST.ListenAddr) == "" {
			return fmt.Errorf("rest.listen_addr is required in %s mode", c.Mode)
		}
		return nil
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if c.Transport.MaxConnections <= 0 {
		return fmt.Errorf("transport.max_connections must be positive, got %d", c.Transport.MaxConnections)
	}
	if c.Mode == ModeRESTClient && !strings.HasPrefix(c.Transport.Address, "http") {
		return fmt.Errorf("transport.address must be an http(s) URL in %s mode", c.Mode)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if _, err := security.ParseMode(s.Mode); err != nil {
		return fmt.Errorf("security.mode: %w", err)
	}
	if s.Key != "" {
		key, err := hex.DecodeString(s.Key)
		if err != nil {
			return fmt.Errorf("security.key must be hexadecimal: %w", err)
		}
		if n := len(key); n != 16 && n != 32 {
			return fmt.Errorf("security.key must be 128 or 256 bits, got %d", n*8)
		}
	}
	if s.Sign && s.Key == "" && !s.KeyExchange.Enabled {
		return fmt.Errorf("security.sign needs security.key or security.key_exchange")
	}
	if c.Codec == "encrypted" && s.Key == "" && !s.KeyExchange.Enabled {
		return fmt.Errorf("codec encrypted needs security.key or security.key_exchange")
	}
	if s.KeyExchange.Enabled {
		if _, err := ParseAlgorithm(s.KeyExchange.Algorithm); err != nil {
			return fmt.Errorf("security.key_exchange.algorithm: %w", err)
		}
		if b := s.KeyExchange.KeyBits; b != 128 && b != 256 {
			return fmt.Errorf("security.key_exchange.key_bits must be 128 or 256, got %d", b)
		}
		if c.SenderID == "" {
			return fmt.Errorf("security.key_exchange needs sender_id")
		}
	}
	return nil
}

func (c *Config) validateHeartbeat() error {
	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	return nil
}

// ParseAlgorithm resolves a key exchange algorithm by its wire name,
// case-insensitively.
func ParseAlgorithm(s string) (message.Algorithm, error) {
	for a := message.AlgorithmDH; a <= message.AlgorithmFrodoKEM1344; a++ {
		if strings.EqualFold(a.String(), strings.TrimSpace(s)) {
			if !security.Supported(a) {
				return a, fmt.Errorf("%s: %w", a, security.ErrUnsupportedAlgorithm)
			}
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

// Default returns default configuration
func Default() *Config {
	tc := transport.DefaultConfig()
	tc.Address = "127.0.0.1:50000"

	rest := api.DefaultConfig()
	rest.ListenAddr = ":8080"

	mgmt := api.DefaultConfig()
	mgmt.ListenAddr = ":8081"

	return &Config{
		Mode:           ModeTCPServer,
		Classification: "U",
		Codec:          "text",
		Transport:      tc,
		REST:           rest,
		API:            APIConfig{Enabled: true, Config: mgmt},
		Communicator: CommunicatorConfig{
			QueueSize: 1024,
		},
		Security: SecurityConfig{
			Mode: security.ModeCTR.String(),
			KeyExchange: KeyExchangeConfig{
				Algorithm:   message.AlgorithmDHCurve25519.String(),
				KeyBits:     256,
				ModulusBits: 2048,
			},
		},
		Heartbeat: HeartbeatConfig{
			Interval: 10 * time.Second,
		},
		Journal: JournalConfig{
			Config: journal.Config{
				Path:      "sedap-journal.db",
				Retention: journal.DefaultRetention,
				Buffer:    journal.DefaultBuffer,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
