package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	// LogFormatPlain is a format for logfmt key=value text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"
)

// NOTE: the struct fields & defaults here generate config.toml; reflect any
// change here in defaultConfigTemplate in config/toml.go.
var (
	DefaultSilkwormDir = ".silkworm"
	defaultConfigDir   = "config"
	defaultDataDir     = "data"

	defaultConfigFileName = "config.toml"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
)

// Config is the top level configuration for a silkworm node.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	Sentry          *SentryConfig          `mapstructure:"sentry"`
	Exchange        *ExchangeConfig        `mapstructure:"exchange"`
	Store           *StoreConfig           `mapstructure:"store"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a configuration populated with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Sentry:          DefaultSentryConfig(),
		Exchange:        DefaultExchangeConfig(),
		Store:           DefaultStoreConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration suitable for unit tests: small
// timeouts and a memory-backed store; the sentry address is the default.
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Sentry:          TestSentryConfig(),
		Exchange:        TestExchangeConfig(),
		Store:           TestStoreConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets RootDir on the config and everything rooted under it.
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Store.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation and returns an error on the first
// failing section.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Sentry.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [sentry] section")
	}
	if err := cfg.Exchange.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [exchange] section")
	}
	if err := cfg.Store.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [store] section")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the top level options shared by every component.
type BaseConfig struct {
	RootDir string `mapstructure:"home"`

	// Chain selects which ChainIdentity to sync against (mainnet, ropsten,
	// sepolia). See types.ResolveChain.
	Chain string `mapstructure:"chain"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is either LogFormatPlain or LogFormatJSON.
	LogFormat string `mapstructure:"log_format"`
}

// DefaultBaseConfig returns a default base configuration.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Chain:     "mainnet",
		LogLevel:  "info",
		LogFormat: LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for tests.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Chain = "sepolia"
	cfg.LogLevel = "error"
	return cfg
}

func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log_format %q", cfg.LogFormat)
	}
	return nil
}

// ConfigFile returns the path to the config.toml file under RootDir.
func (cfg BaseConfig) ConfigFile() string {
	return filepath.Join(cfg.RootDir, defaultConfigFilePath)
}

//-----------------------------------------------------------------------------
// SentryConfig

// SentryConfig configures the gRPC connection to the peer-transport
// ("sentry") daemon described in spec.md §4.1.
type SentryConfig struct {
	// Addr is the gRPC dial target for the sentry peer-transport service,
	// e.g. "localhost:9091".
	Addr string `mapstructure:"api_addr"`

	// DialTimeout bounds how long to wait for the gRPC channel to connect.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// StatsInterval is how long PeerClient waits before reopening the
	// sentry peer-stats stream after opening it fails.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

func DefaultSentryConfig() *SentryConfig {
	return &SentryConfig{
		Addr:          "localhost:9091",
		DialTimeout:   10 * time.Second,
		StatsInterval: 5 * time.Second,
	}
}

func TestSentryConfig() *SentryConfig {
	cfg := DefaultSentryConfig()
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.StatsInterval = 10 * time.Millisecond
	return cfg
}

func (cfg *SentryConfig) ValidateBasic() error {
	if cfg.Addr == "" {
		return errors.New("api_addr is required")
	}
	if cfg.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ExchangeConfig

// ExchangeConfig bounds BlockExchange's outstanding work, mirroring the
// limits named in spec.md §4.2/§6.
type ExchangeConfig struct {
	// MaxBlocksPerRequest caps how many headers/bodies one request asks for.
	MaxBlocksPerRequest uint64 `mapstructure:"max_blocks_per_req"`

	// MaxRequestsPerPeer caps how many in-flight requests one peer may carry.
	MaxRequestsPerPeer int `mapstructure:"max_requests_per_peer"`

	// RequestDeadline is how long BlockExchange waits for a response before
	// it times the request out and penalizes the peer.
	RequestDeadline time.Duration `mapstructure:"request_deadline"`

	// NoPeerDelay is how long the loop backs off when no peer is eligible
	// for more work.
	NoPeerDelay time.Duration `mapstructure:"no_peer_delay"`
}

func DefaultExchangeConfig() *ExchangeConfig {
	return &ExchangeConfig{
		MaxBlocksPerRequest: 192,
		MaxRequestsPerPeer:  4,
		RequestDeadline:     5 * time.Second,
		NoPeerDelay:         500 * time.Millisecond,
	}
}

func TestExchangeConfig() *ExchangeConfig {
	cfg := DefaultExchangeConfig()
	cfg.MaxBlocksPerRequest = 8
	cfg.RequestDeadline = 50 * time.Millisecond
	cfg.NoPeerDelay = 5 * time.Millisecond
	return cfg
}

func (cfg *ExchangeConfig) ValidateBasic() error {
	if cfg.MaxBlocksPerRequest == 0 {
		return errors.New("max_blocks_per_req must be positive")
	}
	if cfg.MaxRequestsPerPeer <= 0 {
		return errors.New("max_requests_per_peer must be positive")
	}
	if cfg.RequestDeadline <= 0 {
		return errors.New("request_deadline must be positive")
	}
	if cfg.NoPeerDelay <= 0 {
		return errors.New("no_peer_delay must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// StoreConfig

// StoreConfig configures the on-disk KV store backing headers, bodies, and
// progress tables.
type StoreConfig struct {
	RootDir string `mapstructure:"-"`

	// Backend is a tm-db backend name ("goleveldb", "memdb", "boltdb", ...).
	Backend string `mapstructure:"backend"`

	// Dir is relative to RootDir.
	Dir string `mapstructure:"dir"`
}

func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend: "goleveldb",
		Dir:     defaultDataDir,
	}
}

func TestStoreConfig() *StoreConfig {
	cfg := DefaultStoreConfig()
	cfg.Backend = "memdb"
	return cfg
}

func (cfg *StoreConfig) ValidateBasic() error {
	if cfg.Backend == "" {
		return errors.New("backend is required")
	}
	return nil
}

// DBDir returns the full directory the store's database lives in.
func (cfg StoreConfig) DBDir() string {
	return filepath.Join(cfg.RootDir, cfg.Dir)
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig configures the Prometheus metrics endpoint.
type InstrumentationConfig struct {
	Prometheus         bool   `mapstructure:"prometheus"`
	PrometheusListener string `mapstructure:"prometheus_listen_addr"`
	Namespace          string `mapstructure:"namespace"`
}

func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:         false,
		PrometheusListener: ":26660",
		Namespace:          "silkworm",
	}
}

func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}
