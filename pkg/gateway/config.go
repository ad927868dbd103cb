package gateway

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"avaneesh/zgw-go/pkg/channel"
	"avaneesh/zgw-go/pkg/internal/logger"
	"avaneesh/zgw-go/pkg/link"
	"avaneesh/zgw-go/pkg/radio"
	"avaneesh/zgw-go/pkg/s0"
	"avaneesh/zgw-go/pkg/senddata"
	"avaneesh/zgw-go/pkg/types"
)

// Duration is a time.Duration written as a string ("1500ms", "10s") in YAML
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Transport kinds for the radio connection
const (
	TransportTCP  = "tcp"
	TransportUDP  = "udp"
	TransportQUIC = "quic"
)

// RadioConfig selects how the serial API of the radio module is reached
type RadioConfig struct {
	Transport       string   `yaml:"transport"` // tcp, udp or quic
	Address         string   `yaml:"address"`   // host:port of the serial bridge
	Server          bool     `yaml:"server"`    // Listen instead of connecting
	ReconnectDelay  Duration `yaml:"reconnect_delay"`
	AckTimeout      Duration `yaml:"ack_timeout"`
	MaxRetries      int      `yaml:"max_retries"`
	ResponseTimeout Duration `yaml:"response_timeout"`
	QueueDepth      int      `yaml:"queue_depth"`
}

// S0Config holds the S0 timings that may be tuned per installation
type S0Config struct {
	NonceRequestTimeout Duration `yaml:"nonce_request_timeout"`
	SecureLearnTimeout  Duration `yaml:"secure_learn_timeout"`
	RxLifetime          Duration `yaml:"rx_lifetime"`
	MaxNoncesPerPeer    int      `yaml:"max_nonces_per_peer"`
	MaxFrameSize        int      `yaml:"max_frame_size"`
}

// SendDataConfig holds the session layer settings
type SendDataConfig struct {
	PoolSize      int      `yaml:"pool_size"`
	Watchdog      Duration `yaml:"watchdog"`
	BackoffMargin Duration `yaml:"backoff_margin"`
	TickUnit      Duration `yaml:"tick_unit"`
}

// NodeConfig describes a peer known to the gateway
type NodeConfig struct {
	ID             uint16   `yaml:"id"`
	Schemes        []string `yaml:"schemes"`         // s0, s2_unauthenticated, s2_authenticated, s2_access
	CommandClasses []int    `yaml:"command_classes"` // Supported non-secure command classes
	KnownBad       bool     `yaml:"known_bad"`
}

// Config is the gateway configuration file
type Config struct {
	NodeID     uint16   `yaml:"node_id"`
	NetworkKey string   `yaml:"network_key"` // 32 hex digits, empty disables S0
	Schemes    []string `yaml:"schemes"`     // Keys granted to the gateway itself
	LogLevel   string   `yaml:"log_level"`
	FrameDebug bool     `yaml:"frame_debug"`
	TraceFile  string   `yaml:"trace_file"`
	EventQueue int      `yaml:"event_queue"`

	Radio    RadioConfig    `yaml:"radio"`
	S0       S0Config       `yaml:"s0"`
	SendData SendDataConfig `yaml:"senddata"`
	Nodes    []NodeConfig   `yaml:"nodes"`
}

// DefaultConfig returns a configuration for node 1 connecting to a serial
// bridge on localhost
func DefaultConfig() Config {
	s0cfg := s0.DefaultConfig()
	sdcfg := senddata.DefaultConfig()

	return Config{
		NodeID:     1,
		LogLevel:   "info",
		EventQueue: 256,
		Radio: RadioConfig{
			Transport:       TransportTCP,
			Address:         "127.0.0.1:4901",
			ReconnectDelay:  Duration(5 * time.Second),
			AckTimeout:      Duration(link.DefaultAckTimeout),
			MaxRetries:      link.DefaultMaxRetries,
			ResponseTimeout: Duration(link.DefaultResTimeout),
			QueueDepth:      radio.DefaultConfig().QueueDepth,
		},
		S0: S0Config{
			NonceRequestTimeout: Duration(s0cfg.NonceRequestTimeout),
			SecureLearnTimeout:  Duration(s0cfg.SecureLearnTimeout),
			RxLifetime:          Duration(s0cfg.RxLifetime),
			MaxNoncesPerPeer:    s0cfg.MaxNoncesPerPeer,
			MaxFrameSize:        s0cfg.MaxFrameSize,
		},
		SendData: SendDataConfig{
			PoolSize:      sdcfg.PoolSize,
			Watchdog:      Duration(sdcfg.Watchdog),
			BackoffMargin: Duration(sdcfg.BackoffMargin),
			TickUnit:      Duration(sdcfg.TickUnit),
		},
	}
}

// LoadConfig reads a YAML configuration file. Settings missing from the
// file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration on top of DefaultConfig
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !types.NodeID(c.NodeID).IsValid() {
		return fmt.Errorf("invalid node id %d", c.NodeID)
	}
	if _, _, err := c.Key(); err != nil {
		return err
	}
	if _, err := ParseSchemes(c.Schemes); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Radio.Transport {
	case TransportTCP, TransportUDP, TransportQUIC:
	default:
		return fmt.Errorf("unknown radio transport %q", c.Radio.Transport)
	}
	if c.Radio.Address == "" {
		return fmt.Errorf("radio address is required")
	}
	if c.Radio.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if err := c.s0Config().Validate(); err != nil {
		return fmt.Errorf("s0: %w", err)
	}
	if err := c.sendDataConfig().Validate(); err != nil {
		return fmt.Errorf("senddata: %w", err)
	}

	seen := make(map[uint16]bool)
	for _, n := range c.Nodes {
		if !types.NodeID(n.ID).IsValid() {
			return fmt.Errorf("node %d: invalid id", n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("node %d listed twice", n.ID)
		}
		seen[n.ID] = true
		if _, err := ParseSchemes(n.Schemes); err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
		for _, cc := range n.CommandClasses {
			if cc < 0 || cc > 0xFF {
				return fmt.Errorf("node %d: command class %d out of range", n.ID, cc)
			}
		}
	}
	return nil
}

// Key returns the configured network key. ok is false when none is set.
func (c Config) Key() (key [16]byte, ok bool, err error) {
	if c.NetworkKey == "" {
		return key, false, nil
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(c.NetworkKey, " ", ""))
	if err != nil {
		return key, false, fmt.Errorf("network key: %w", err)
	}
	if len(raw) != len(key) {
		return key, false, fmt.Errorf("network key must be %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, true, nil
}

// ParseSchemes converts scheme names into node capability flags
func ParseSchemes(names []string) (types.SchemeMask, error) {
	var mask types.SchemeMask
	for _, name := range names {
		switch strings.ToLower(name) {
		case "s0":
			mask |= types.NodeFlagS0
		case "s2_unauthenticated":
			mask |= types.NodeFlagS2Unauthenticated
		case "s2_authenticated":
			mask |= types.NodeFlagS2Authenticated
		case "s2_access":
			mask |= types.NodeFlagS2Access
		default:
			return 0, fmt.Errorf("unknown scheme %q", name)
		}
	}
	return mask, nil
}

func (c Config) s0Config() s0.Config {
	cfg := s0.DefaultConfig()
	cfg.NonceRequestTimeout = c.S0.NonceRequestTimeout.Std()
	cfg.SecureLearnTimeout = c.S0.SecureLearnTimeout.Std()
	cfg.RxLifetime = c.S0.RxLifetime.Std()
	cfg.MaxNoncesPerPeer = c.S0.MaxNoncesPerPeer
	cfg.MaxFrameSize = c.S0.MaxFrameSize
	return cfg
}

func (c Config) sendDataConfig() senddata.Config {
	cfg := senddata.DefaultConfig()
	cfg.PoolSize = c.SendData.PoolSize
	cfg.Watchdog = c.SendData.Watchdog.Std()
	cfg.BackoffMargin = c.SendData.BackoffMargin.Std()
	cfg.TickUnit = c.SendData.TickUnit.Std()
	return cfg
}

func (c Config) linkConfig() link.LinkLayerConfig {
	cfg := link.DefaultLinkLayerConfig()
	cfg.AckTimeout = c.Radio.AckTimeout.Std()
	cfg.MaxRetries = c.Radio.MaxRetries
	return cfg
}

func (c Config) radioConfig() radio.Config {
	return radio.Config{
		ResponseTimeout: c.Radio.ResponseTimeout.Std(),
		QueueDepth:      c.Radio.QueueDepth,
	}
}

// Dial creates the physical channel to the radio serial bridge
func (c RadioConfig) Dial() (channel.PhysicalChannel, error) {
	var (
		physical channel.PhysicalChannel
		err      error
	)

	endpoint := channel.EndpointConfig{
		Address:        c.Address,
		Server:         c.Server,
		ReconnectDelay: c.ReconnectDelay.Std(),
	}

	switch c.Transport {
	case TransportTCP:
		var tc *channel.TCPChannel
		tc, err = channel.NewTCPChannel(endpoint)
		physical = tc
	case TransportUDP:
		var uc *channel.UDPChannel
		uc, err = channel.NewUDPChannel(endpoint)
		physical = uc
	case TransportQUIC:
		var qc *channel.QUICChannel
		qc, err = channel.NewQUICChannel(endpoint, nil)
		physical = qc
	default:
		return nil, fmt.Errorf("unknown radio transport %q", c.Transport)
	}

	if err != nil {
		return nil, fmt.Errorf("%s channel to %s: %w", c.Transport, c.Address, err)
	}
	return physical, nil
}
