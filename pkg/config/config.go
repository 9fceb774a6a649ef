package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/kiheon-jang/autoTrade-sub000/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Exchange struct {
		RESTURL        string        `yaml:"rest_url" default:"https://api.bithumb.com"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://pubwss.bithumb.com/pub/ws"`
		APIKey         string        `yaml:"api_key"`
		SecretKey      string        `yaml:"secret_key"`
		Timeout        time.Duration `yaml:"timeout" default:"5s"`
		PublicRPS      float64       `yaml:"public_rps" default:"90"`
		PrivateRPS     float64       `yaml:"private_rps" default:"10"`
		StreamEnabled  bool          `yaml:"stream_enabled"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
	} `yaml:"exchange"`
	Market struct {
		HotSize          int           `yaml:"hot_size" default:"10"`
		HotPeriod        time.Duration `yaml:"hot_period" default:"1s"`
		CoreSymbols      []string      `yaml:"core_symbols"`
		CorePeriod       time.Duration `yaml:"core_period" default:"5s"`
		BroadSize        int           `yaml:"broad_size" default:"30"`
		BroadPeriod      time.Duration `yaml:"broad_period" default:"30s"`
		IndicatorPeriod  time.Duration `yaml:"indicator_period" default:"60s"`
		MLPeriod         time.Duration `yaml:"ml_period" default:"300s"`
		ReclassifyPeriod time.Duration `yaml:"reclassify_period" default:"3600s"`
		CandleWindow     int           `yaml:"candle_window" default:"200"`
		CandleTimeframe  string        `yaml:"candle_timeframe" default:"1m"`
	} `yaml:"market"`
	Trading struct {
		Mode             string        `yaml:"mode" default:"simulation"`
		InitialCapital   float64       `yaml:"initial_capital" default:"1000000"`
		MaxPositions     int           `yaml:"max_positions" default:"3"`
		MinOrderNotional float64       `yaml:"min_order_notional" default:"5000"`
		MaxPositionPct   float64       `yaml:"max_position_pct" default:"0.3"`
		StopLossPct      float64       `yaml:"stop_loss_pct" default:"0.05"`
		TakeProfitPct    float64       `yaml:"take_profit_pct" default:"0.1"`
		MonitorInterval  time.Duration `yaml:"monitor_interval" default:"10s"`
		StopWait         time.Duration `yaml:"stop_wait" default:"5s"`
	} `yaml:"trading"`
	Backtest struct {
		StopLossPct   float64       `yaml:"stop_loss_pct" default:"0.02"`
		TakeProfitPct float64       `yaml:"take_profit_pct" default:"0.04"`
		Workers       int           `yaml:"workers" default:"2"`
		ResultTTL     time.Duration `yaml:"result_ttl" default:"24h"`
	} `yaml:"backtest"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		FillsTopic   string   `yaml:"fills_topic" default:"trading.fills"`
		LogsTopic    string   `yaml:"logs_topic" default:"trading.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"trade-journal"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"trading.fills.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"autotrade"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		CandleTTL   time.Duration `yaml:"candle_ttl" default:"55s"`
		ResponseTTL time.Duration `yaml:"response_ttl" default:"5s"`
	} `yaml:"cache"`
	Analytics struct {
		ScorerURL string        `yaml:"scorer_url"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"analytics"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fill unset fields before validating
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Market.CoreSymbols) == 0 {
		c.Market.CoreSymbols = DefaultCoreSymbols()
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("BITHUMB_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BITHUMB_SECRET_KEY"); v != "" {
		c.Exchange.SecretKey = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Trading.Mode = v
	}
	if v := os.Getenv("CORE_SYMBOLS"); v != "" {
		c.Market.CoreSymbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// DefaultCoreSymbols returns the curated majors tracked when none are configured.
func DefaultCoreSymbols() []string {
	return []string{"BTC", "ETH", "XRP", "SOL", "ADA", "DOGE", "TRX", "LINK", "DOT", "AVAX"}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Trading.Mode {
	case "simulation", "paper", "live":
	default:
		return fmt.Errorf("trading.mode must be 'simulation', 'paper' or 'live', got '%s'", c.Trading.Mode)
	}
	if c.Trading.Mode == "live" && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		return fmt.Errorf("exchange.api_key and exchange.secret_key are required in live mode")
	}
	if c.Trading.InitialCapital <= 0 {
		return fmt.Errorf("trading.initial_capital must be positive")
	}
	if c.Trading.MaxPositions < 1 {
		return fmt.Errorf("trading.max_positions must be >= 1")
	}
	if c.Market.HotPeriod <= 0 || c.Market.CorePeriod <= 0 || c.Market.BroadPeriod <= 0 {
		return fmt.Errorf("market tier periods must be positive")
	}
	if len(c.Market.CoreSymbols) == 0 {
		return fmt.Errorf("market.core_symbols cannot be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers are required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
