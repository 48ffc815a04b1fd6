package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rzzdr/options-risk-engine/internal/broker"
	"github.com/rzzdr/options-risk-engine/internal/chain"
	"github.com/rzzdr/options-risk-engine/internal/kafka"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/internal/scenario"
	"github.com/rzzdr/options-risk-engine/internal/strategy"
	"github.com/rzzdr/options-risk-engine/pkg/utils/circuit"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// EnvPrefix prefixes every environment override, e.g. OPTRISK_API_PORT
const EnvPrefix = "OPTRISK"

// Config for the whole application
type Config struct {
	App            AppConfig       `mapstructure:"app"`
	API            APIConfig       `mapstructure:"api"`
	Risk           RiskConfig      `mapstructure:"risk"`
	LotSizes       map[string]int  `mapstructure:"lot_sizes"`
	DefaultLotSize int             `mapstructure:"default_lot_size"`
	Chain          ChainConfig     `mapstructure:"chain"`
	Broker         BrokerConfig    `mapstructure:"broker"`
	Store          StoreConfig     `mapstructure:"store"`
	Kafka          KafkaConfig     `mapstructure:"kafka"`
	Metrics        MetricsConfig   `mapstructure:"metrics"`
	Websocket      WebsocketConfig `mapstructure:"websocket"`
}

// AppConfig is the general application configuration
type AppConfig struct {
	Name          string `mapstructure:"name"`
	Environment   string `mapstructure:"environment"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// APIConfig configures the HTTP server
type APIConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	AuthToken       string          `mapstructure:"auth_token"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	CORS            CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig is a per-client token bucket; rps 0 disables it
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CORSConfig lists the allowed origins
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RiskConfig configures the margin and metrics engines
type RiskConfig struct {
	SpotMoves         []float64 `mapstructure:"spot_moves"`
	VolShifts         []float64 `mapstructure:"vol_shifts"`
	ExposurePercent   float64   `mapstructure:"exposure_percent"`
	RiskFreeRate      float64   `mapstructure:"risk_free_rate"`
	Workers           int       `mapstructure:"workers"`
	MarginWorkers     int       `mapstructure:"margin_workers"`
	AnalyticUnlimited bool      `mapstructure:"analytic_unlimited"`
	SampledPOP        bool      `mapstructure:"sampled_pop"`
	SweepWidth        float64   `mapstructure:"sweep_width"`
	SweepSteps        int       `mapstructure:"sweep_steps"`
	// CachePrices memoizes option prices up to this many entries; 0 disables it
	CachePrices int `mapstructure:"cache_prices"`
}

// ChainConfig configures the option chain provider
type ChainConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	// Cache is memory or redis
	Cache   string        `mapstructure:"cache"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// RedisConfig holds the redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BreakerConfig configures a circuit breaker
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// BrokerConfig configures the order gateway client
type BrokerConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	APIKey    string        `mapstructure:"api_key"`
	Strategy  string        `mapstructure:"strategy"`
	Exchange  string        `mapstructure:"exchange"`
	Product   string        `mapstructure:"product"`
	PriceType string        `mapstructure:"pricetype"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	// Driver is memory or sqlite
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// KafkaConfig configures position events and risk reports
type KafkaConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Brokers []string          `mapstructure:"brokers"`
	GroupID string            `mapstructure:"group_id"`
	Topics  KafkaTopicsConfig `mapstructure:"topics"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// KafkaTopicsConfig names the topics
type KafkaTopicsConfig struct {
	PositionEvents string `mapstructure:"position_events"`
	RiskReports    string `mapstructure:"risk_reports"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Interval   time.Duration    `mapstructure:"interval"`
}

// PrometheusConfig configures the metrics endpoint. Port is used by workers
// without an API server.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// WebsocketConfig configures the live risk stream
type WebsocketConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// Load reads the configuration from path, or from config.yaml in ./config or
// the working directory when path is empty, then applies OPTRISK_* environment
// overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.normalize()

	return &config, nil
}

func (c *Config) normalize() {
	// viper lower-cases map keys
	lots := make(map[string]int, len(c.LotSizes))
	for name, size := range c.LotSizes {
		lots[strings.ToUpper(name)] = size
	}
	c.LotSizes = lots

	c.Store.Driver = strings.ToLower(c.Store.Driver)
	c.Chain.Cache = strings.ToLower(c.Chain.Cache)
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "options-risk-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.log_max_size_mb", 100)
	v.SetDefault("app.log_max_backups", 5)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.shutdown_timeout", "15s")
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.rate_limit.rps", 20)
	v.SetDefault("api.rate_limit.burst", 40)
	v.SetDefault("api.cors.allowed_origins", []string{"*"})

	// Risk defaults
	v.SetDefault("risk.spot_moves", scenario.DefaultSpotMoves)
	v.SetDefault("risk.vol_shifts", scenario.DefaultVolShifts)
	v.SetDefault("risk.exposure_percent", scenario.DefaultExposurePercent)
	v.SetDefault("risk.risk_free_rate", 0.0)
	v.SetDefault("risk.workers", 4)
	v.SetDefault("risk.margin_workers", 1)
	v.SetDefault("risk.analytic_unlimited", false)
	v.SetDefault("risk.sampled_pop", false)
	v.SetDefault("risk.sweep_width", 0.3)
	v.SetDefault("risk.sweep_steps", 121)
	v.SetDefault("risk.cache_prices", 0)

	// Lot sizes
	v.SetDefault("lot_sizes", map[string]interface{}{
		"NIFTY":      75,
		"BANKNIFTY":  35,
		"FINNIFTY":   65,
		"MIDCPNIFTY": 140,
	})
	v.SetDefault("default_lot_size", 1)

	// Chain defaults
	v.SetDefault("chain.base_url", chain.DefaultBaseURL)
	v.SetDefault("chain.cache_ttl", "60s")
	v.SetDefault("chain.max_retries", 3)
	v.SetDefault("chain.retry_backoff", "500ms")
	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.rate_limit", 2)
	v.SetDefault("chain.rate_burst", 2)
	v.SetDefault("chain.cache", "memory")
	v.SetDefault("chain.redis.addr", "localhost:6379")
	v.SetDefault("chain.redis.password", "")
	v.SetDefault("chain.redis.db", 0)
	v.SetDefault("chain.breaker.max_failures", 5)
	v.SetDefault("chain.breaker.timeout", "30s")

	// Broker defaults
	v.SetDefault("broker.host", "127.0.0.1")
	v.SetDefault("broker.port", 5000)
	v.SetDefault("broker.api_key", "")
	v.SetDefault("broker.strategy", "optrisk")
	v.SetDefault("broker.exchange", "NFO")
	v.SetDefault("broker.product", "NRML")
	v.SetDefault("broker.pricetype", "MARKET")
	v.SetDefault("broker.timeout", "15s")
	v.SetDefault("broker.breaker.max_failures", 3)
	v.SetDefault("broker.breaker.timeout", "30s")

	// Store defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "data/optrisk.db")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "optrisk-risk-engine")
	v.SetDefault("kafka.topics.position_events", "position_events")
	v.SetDefault("kafka.topics.risk_reports", "risk_reports")
	v.SetDefault("kafka.timeout", "10s")

	// Metrics defaults
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.interval", "15s")

	// Websocket defaults
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.refresh_interval", "5s")
}

// GetConfigPath returns OPTRISK_CONFIG_PATH, or empty for the default lookup
func GetConfigPath() string {
	return os.Getenv(EnvPrefix + "_CONFIG_PATH")
}

// LoggerConfig returns the logger settings
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.App.LogLevel,
		Environment: c.App.Environment,
		File:        c.App.LogFile,
		MaxSizeMB:   c.App.LogMaxSizeMB,
		MaxBackups:  c.App.LogMaxBackups,
	}
}

// Grid returns the configured scenario grid
func (c *Config) Grid() scenario.Grid {
	return scenario.Grid{
		SpotMoves:       c.Risk.SpotMoves,
		VolShifts:       c.Risk.VolShifts,
		ExposurePercent: c.Risk.ExposurePercent,
	}.WithDefaults()
}

// CalculatorConfig returns the risk calculator settings
func (c *Config) CalculatorConfig() risk.CalculatorConfig {
	return risk.CalculatorConfig{
		Grid:           c.Grid(),
		RiskFreeRate:   c.Risk.RiskFreeRate,
		SweepWidth:     c.Risk.SweepWidth,
		SweepSteps:     c.Risk.SweepSteps,
		WorkerCount:    c.Risk.Workers,
		MarginWorkers:  c.Risk.MarginWorkers,
		LotSizes:       c.LotSizes,
		DefaultLotSize: c.DefaultLotSize,
		Metrics: strategy.Options{
			AnalyticUnlimited:           c.Risk.AnalyticUnlimited,
			SampledPOPWithoutBreakevens: c.Risk.SampledPOP,
		},
	}
}

// NSEConfig returns the option chain client settings
func (c *Config) NSEConfig() chain.Config {
	return chain.Config{
		BaseURL:        c.Chain.BaseURL,
		MaxRetries:     c.Chain.MaxRetries,
		RetryBackoff:   c.Chain.RetryBackoff,
		RequestTimeout: c.Chain.RequestTimeout,
		RateLimit:      c.Chain.RateLimit,
		RateBurst:      c.Chain.RateBurst,
		RiskFreeRate:   c.Risk.RiskFreeRate,
	}
}

// BrokerClientConfig returns the gateway client settings
func (c *Config) BrokerClientConfig() broker.Config {
	return broker.Config{
		Strategy:  c.Broker.Strategy,
		Exchange:  c.Broker.Exchange,
		Product:   c.Broker.Product,
		PriceType: c.Broker.PriceType,
		Timeout:   c.Broker.Timeout,
	}
}

// KafkaClientConfig returns the kafka client settings
func (c *Config) KafkaClientConfig() *kafka.Config {
	cfg := kafka.DefaultConfig()
	cfg.Brokers = c.Kafka.Brokers
	cfg.GroupID = c.Kafka.GroupID
	cfg.PositionTopic = c.Kafka.Topics.PositionEvents
	cfg.RiskTopic = c.Kafka.Topics.RiskReports
	if c.Kafka.Timeout > 0 {
		cfg.DefaultTimeout = c.Kafka.Timeout
	}
	return cfg
}

// CircuitConfig converts breaker settings; upstream failures only count
func (b BreakerConfig) CircuitConfig() circuit.Config {
	return circuit.Config{
		MaxFailures: b.MaxFailures,
		Timeout:     b.Timeout,
		IsFailure:   circuit.UpstreamFailure,
	}
}
