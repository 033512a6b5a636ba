// Package config loads the YAML runtime configuration shared by the
// blotter and algo daemons.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"

	"tickerplant/internal/schema"
)

var (
	// ErrEmptyPath reports a missing config file path.
	ErrEmptyPath = errors.New("config: empty path")
	// ErrNoInstruments reports an empty instrument list.
	ErrNoInstruments = errors.New("config: no instruments")
	// ErrInvalidResolution reports an unusable resolution section.
	ErrInvalidResolution = errors.New("config: invalid resolution")
)

// Instrument mirrors one registry entry in the config file.
type Instrument struct {
	Symbol     string `yaml:"symbol"`
	Exchange   string `yaml:"exchange"`
	AssetClass string `yaml:"asset_class"`
	TickSize   int64  `yaml:"tick_size"`
	LotSize    int64  `yaml:"lot_size"`
	PriceScale int32  `yaml:"price_scale"`
	QtyScale   int32  `yaml:"qty_scale"`
}

// Feed selects and tunes the feed adapter.
type Feed struct {
	// Kind is "sim" or "binance".
	Kind       string        `yaml:"kind"`
	Interval   time.Duration `yaml:"interval"`
	BasePrice  int64         `yaml:"base_price"`
	Spread     int64         `yaml:"spread"`
	BookLevels int           `yaml:"book_levels"`
	Seed       int64         `yaml:"seed"`
}

// Transport configures the pub/sub sockets.
type Transport struct {
	SocketPath   string        `yaml:"socket_path"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

// Store configures the PostgreSQL archive.
type Store struct {
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	User       string            `yaml:"user"`
	Password   string            `yaml:"password"`
	Database   string            `yaml:"database"`
	SSLMode    string            `yaml:"ssl_mode"`
	Params     map[string]string `yaml:"params"`
	ConnString string            `yaml:"conn_string"`
}

// Resolution configures the bar close policy.
type Resolution struct {
	// Kind is "time", "ticks" or "volume".
	Kind      string        `yaml:"kind"`
	Interval  time.Duration `yaml:"interval"`
	TickCount int           `yaml:"tick_count"`
	Volume    int64         `yaml:"volume"`
}

// Windows bounds the rolling tick and bar windows.
type Windows struct {
	Ticks int `yaml:"ticks"`
	Bars  int `yaml:"bars"`
}

// Risk holds the budgets for one strategy instance.
type Risk struct {
	InitialCapital int64 `yaml:"initial_capital"`
	InitialMargin  int64 `yaml:"initial_margin"`
	RiskPerTrade   int64 `yaml:"risk_per_trade"`
	Risk2RewardBps int64 `yaml:"risk2reward_bps"`
	MaxTrades      int   `yaml:"max_trades"`
}

// Broker bounds broker call retries and reconciliation.
type Broker struct {
	AuthRetries int           `yaml:"auth_retries"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	// Reconcile bounds how often broker positions are compared against
	// runtime state. Zero takes the runtime default; negative disables.
	Reconcile time.Duration `yaml:"reconcile"`
	// FeeBps is the paper broker commission in basis points of notional.
	FeeBps int64 `yaml:"fee_bps"`
}

// Backoff tunes the feed reconnect policy.
type Backoff struct {
	Min    time.Duration `yaml:"min"`
	Max    time.Duration `yaml:"max"`
	Factor float64       `yaml:"factor"`
	Jitter float64       `yaml:"jitter"`
}

// Config is the full runtime configuration.
type Config struct {
	Instruments []Instrument `yaml:"instruments"`
	Feed        Feed         `yaml:"feed"`
	Transport   Transport    `yaml:"transport"`
	Store       Store        `yaml:"store"`
	Resolution  Resolution   `yaml:"resolution"`
	Windows     Windows      `yaml:"windows"`
	Risk        Risk         `yaml:"risk"`
	Broker      Broker       `yaml:"broker"`
	Backoff     Backoff      `yaml:"backoff"`

	// RegistryCache is the on-disk instrument registry location.
	RegistryCache string `yaml:"registry_cache"`
	// OrderBook enables order book snapshot capture and publication.
	OrderBook bool `yaml:"orderbook"`
	// Preload is how much bar history to load before OnStart.
	Preload time.Duration `yaml:"preload"`
	// Strategy names the running strategy instance in orders and logs.
	Strategy string `yaml:"strategy"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config").With("path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, errors.Wrap(err, "parse config").With("path", path)
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Feed.Kind == "" {
		c.Feed.Kind = "sim"
	}
	if c.Transport.SocketPath == "" {
		c.Transport.SocketPath = "/tmp/tickerplant.sock"
	}
	if c.Resolution.Kind == "" {
		c.Resolution.Kind = "time"
	}
	if c.Resolution.Kind == "time" && c.Resolution.Interval <= 0 {
		c.Resolution.Interval = time.Minute
	}
	if c.Windows.Ticks <= 0 {
		c.Windows.Ticks = 1000
	}
	if c.Windows.Bars <= 0 {
		c.Windows.Bars = 500
	}
	if c.RegistryCache == "" {
		c.RegistryCache = "registry.json"
	}
	if c.Strategy == "" {
		c.Strategy = "default"
	}
	return c
}

// Validate checks the sections the daemons cannot default. An empty
// instrument list is allowed here; daemons fall back to the registry
// cache through BuildOrCachedRegistry.
func (c Config) Validate() error {
	if _, err := c.SchemaResolution(); err != nil {
		return err
	}
	return nil
}

// SchemaResolution converts the config section into the runtime policy.
func (c Config) SchemaResolution() (schema.Resolution, error) {
	switch c.Resolution.Kind {
	case "time":
		if c.Resolution.Interval <= 0 {
			return schema.Resolution{}, ErrInvalidResolution
		}
		return schema.Resolution{Kind: schema.ResolutionTime, Interval: c.Resolution.Interval}, nil
	case "ticks":
		if c.Resolution.TickCount <= 0 {
			return schema.Resolution{}, ErrInvalidResolution
		}
		return schema.Resolution{Kind: schema.ResolutionTicks, TickCount: c.Resolution.TickCount}, nil
	case "volume":
		if c.Resolution.Volume <= 0 {
			return schema.Resolution{}, ErrInvalidResolution
		}
		return schema.Resolution{Kind: schema.ResolutionVolume, Volume: schema.Quantity(c.Resolution.Volume)}, nil
	default:
		return schema.Resolution{}, ErrInvalidResolution
	}
}

// BuildRegistry materializes the instrument list into a registry with
// sequential ids.
func (c Config) BuildRegistry() (*schema.Registry, error) {
	if len(c.Instruments) == 0 {
		return nil, ErrNoInstruments
	}
	reg := schema.NewRegistry()
	for _, in := range c.Instruments {
		if _, err := reg.Add(schema.Instrument{
			Symbol:     in.Symbol,
			Exchange:   in.Exchange,
			AssetClass: in.AssetClass,
			TickSize:   schema.Price(in.TickSize),
			LotSize:    in.LotSize,
			PriceScale: schema.Scale(in.PriceScale),
			QtyScale:   schema.Scale(in.QtyScale),
		}); err != nil {
			return nil, errors.Wrap(err, "add instrument").With("symbol", in.Symbol)
		}
	}
	return reg, nil
}

// BuildOrCachedRegistry materializes the configured instrument list,
// falling back to the on-disk cache when the config carries none.
func BuildOrCachedRegistry(c *Config) (*schema.Registry, error) {
	reg, err := c.BuildRegistry()
	if err == nil {
		return reg, nil
	}
	if c.RegistryCache == "" {
		return nil, err
	}
	cached, cacheErr := schema.LoadCache(c.RegistryCache)
	if cacheErr != nil {
		return nil, err
	}
	return cached, nil
}
