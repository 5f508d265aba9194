// Package config loads node configuration from YAML.
package config

import (
	"net"
	"os"
	"time"

	"github.com/lthibault/peerwire/pkg/frame"
	"github.com/lthibault/peerwire/pkg/transport/inproc"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config for a peerwire node
type Config struct {
	Listen           string        `yaml:"listen"`
	Network          string        `yaml:"network"`
	Mux              bool          `yaml:"mux"`
	MaxMessageSize   int           `yaml:"max_message_size"`
	RecordMarking    bool          `yaml:"record_marking"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	Linger           time.Duration `yaml:"linger"`
	MaxInboundPeers  int           `yaml:"max_inbound_peers"`
	Seeds            []string      `yaml:"seeds"`
	AcceptRate       float64       `yaml:"accept_rate"`
	AcceptBurst      int           `yaml:"accept_burst"`
	LogLevel         string        `yaml:"log_level"`
	Directory        Directory     `yaml:"directory"`
	Backoff          Backoff       `yaml:"backoff"`
}

// Directory selects and configures the peer directory backend
type Directory struct {
	Backend  string   `yaml:"backend"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
	Etcd     Etcd     `yaml:"etcd"`
}

// Redis backend
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Postgres backend
type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Etcd backend
type Etcd struct {
	Endpoints []string `yaml:"endpoints"`
}

// Backoff schedule for failed outbound connections
type Backoff struct {
	Min    time.Duration `yaml:"min"`
	Max    time.Duration `yaml:"max"`
	Factor float64       `yaml:"factor"`
}

// Default configuration
func Default() *Config {
	return &Config{
		Listen:           "0.0.0.0:11625",
		Network:          "tcp",
		MaxMessageSize:   frame.MaxMessageSize,
		HandshakeTimeout: time.Second * 2,
		Linger:           time.Second,
		MaxInboundPeers:  64,
		AcceptRate:       100,
		AcceptBurst:      10,
		LogLevel:         "info",
		Directory:        Directory{Backend: "memory"},
		Backoff: Backoff{
			Min:    time.Second * 10,
			Max:    time.Hour,
			Factor: 2,
		},
	}
}

// Load reads the configuration from the given YAML file path.  If the file
// does not exist, the default configuration is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	} else if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	return Parse(data)
}

// Parse YAML over the default configuration and validate the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return cfg, cfg.Validate()
}

// Validate the configuration
func (c *Config) Validate() error {
	switch c.Network {
	case "tcp", "tcp4", "tcp6", "unix", inproc.Network:
	default:
		return errors.Errorf("invalid network %q", c.Network)
	}

	switch {
	case c.MaxMessageSize <= 0 || c.MaxMessageSize > frame.MaxMessageSize:
		return errors.Errorf("max_message_size must be in (0, %d]", frame.MaxMessageSize)
	case c.HandshakeTimeout <= 0:
		return errors.New("handshake_timeout must be positive")
	case c.Linger < 0:
		return errors.New("linger must not be negative")
	case c.AcceptRate < 0:
		return errors.New("accept_rate must not be negative")
	case c.AcceptRate > 0 && c.AcceptBurst < 1:
		return errors.New("accept_burst must be at least 1")
	case c.Backoff.Min <= 0 || c.Backoff.Max < c.Backoff.Min:
		return errors.New("backoff requires 0 < min <= max")
	case c.Backoff.Factor < 1:
		return errors.New("backoff factor must be at least 1")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "none":
	default:
		return errors.Errorf("invalid log_level %q", c.LogLevel)
	}

	switch c.Directory.Backend {
	case "memory":
	case "redis":
		if c.Directory.Redis.Addr == "" {
			return errors.New("directory.redis.addr is required")
		}
	case "postgres":
		if c.Directory.Postgres.DSN == "" {
			return errors.New("directory.postgres.dsn is required")
		}
	case "etcd":
		if len(c.Directory.Etcd.Endpoints) == 0 {
			return errors.New("directory.etcd.endpoints is required")
		}
	default:
		return errors.Errorf("invalid directory backend %q", c.Directory.Backend)
	}

	return nil
}

// ListenAddr resolves Listen on Network
func (c *Config) ListenAddr() (net.Addr, error) {
	return ResolveAddr(c.Network, c.Listen)
}

// SeedAddrs resolves Seeds on Network
func (c *Config) SeedAddrs() ([]net.Addr, error) {
	as := make([]net.Addr, 0, len(c.Seeds))
	for _, s := range c.Seeds {
		a, err := ResolveAddr(c.Network, s)
		if err != nil {
			return nil, err
		}
		as = append(as, a)
	}

	return as, nil
}

// ResolveAddr parses address for network
func ResolveAddr(network, address string) (net.Addr, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
		a, err := net.ResolveTCPAddr(network, address)
		return a, errors.Wrapf(err, "resolve %s", address)
	case "unix":
		a, err := net.ResolveUnixAddr(network, address)
		return a, errors.Wrapf(err, "resolve %s", address)
	case inproc.Network:
		return inproc.Addr(address), nil
	}

	return nil, errors.Errorf("invalid network %q", network)
}
