package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"queue-wait-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Window     WindowConfig     `mapstructure:"window"`
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly"`
	Predictor  PredictorConfig  `mapstructure:"predictor"`
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name           string `mapstructure:"name"`
	Environment    string `mapstructure:"environment"`
	DefaultCounter string `mapstructure:"default_counter"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN
// disables persistence entirely.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// WindowConfig bounds the rolling interval window.
type WindowConfig struct {
	Capacity          int `mapstructure:"capacity"`
	EventLogRetention int `mapstructure:"event_log_retention"`
}

// EstimatorConfig tunes rate smoothing and trend classification.
type EstimatorConfig struct {
	HalfLife          time.Duration `mapstructure:"half_life"`
	TrendThresholdPct float64       `mapstructure:"trend_threshold_pct"`
	MinInterval       time.Duration `mapstructure:"min_interval"`
}

// AnomalyConfig tunes slowdown, stall, and instability detection.
type AnomalyConfig struct {
	SlowdownSigma    float64 `mapstructure:"slowdown_sigma"`
	StallMultiple    float64 `mapstructure:"stall_multiple"`
	InstabilityRatio float64 `mapstructure:"instability_ratio"`
}

// PredictorConfig tunes the wait computation. ReferenceDepth is the
// assumed queue depth the published wait refers to; with no arrival data
// it is an explicit operational assumption, not a measurement.
type PredictorConfig struct {
	ReferenceDepth  float64 `mapstructure:"reference_depth"`
	TrendAdjustment float64 `mapstructure:"trend_adjustment"`
}

// ServerConfig governs the HTTP query/ingestion interface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig governs periodic re-evaluation, which is what lets a
// stall surface while no events arrive.
type SchedulerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines operator alert thresholds and routing.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinSeverity string         `mapstructure:"min_severity"`
	Cooldown    time.Duration  `mapstructure:"cooldown"`
	Channels    []string       `mapstructure:"channels"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SimulationConfig drives the synthetic completion generator.
type SimulationConfig struct {
	Hours           int           `mapstructure:"hours"`
	BaseServiceTime time.Duration `mapstructure:"base_service_time"`
	Seed            int64         `mapstructure:"seed"`
	DisplayEvery    int           `mapstructure:"display_every"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUEUEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "queuewatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.default_counter", "counter-1")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("window.capacity", 10)
	v.SetDefault("window.event_log_retention", 1000)

	v.SetDefault("estimator.half_life", "5m")
	v.SetDefault("estimator.trend_threshold_pct", 15.0)
	v.SetDefault("estimator.min_interval", "1s")

	v.SetDefault("anomaly.slowdown_sigma", 1.5)
	v.SetDefault("anomaly.stall_multiple", 3.0)
	v.SetDefault("anomaly.instability_ratio", 2.0)

	v.SetDefault("predictor.reference_depth", 5.0)
	v.SetDefault("predictor.trend_adjustment", 0.25)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("scheduler.refresh_interval", "30s")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x71777463))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_severity", "warning")
	v.SetDefault("alerting.cooldown", "10m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("simulation.hours", 8)
	v.SetDefault("simulation.base_service_time", "4m")
	v.SetDefault("simulation.seed", int64(0))
	v.SetDefault("simulation.display_every", 5)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.run_migrations", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Non-positive capacities and thresholds fail fast here rather than deep
// in the pipeline.
func (c *Config) Validate() error {
	if c.Window.Capacity < 2 {
		return fmt.Errorf("window.capacity must be at least 2")
	}
	if c.Window.EventLogRetention <= 0 {
		return fmt.Errorf("window.event_log_retention must be greater than zero")
	}
	if c.Estimator.HalfLife <= 0 {
		return fmt.Errorf("estimator.half_life must be greater than zero")
	}
	if c.Estimator.TrendThresholdPct <= 0 {
		return fmt.Errorf("estimator.trend_threshold_pct must be greater than zero")
	}
	if c.Estimator.MinInterval <= 0 {
		return fmt.Errorf("estimator.min_interval must be greater than zero")
	}
	if c.Anomaly.SlowdownSigma <= 0 {
		return fmt.Errorf("anomaly.slowdown_sigma must be greater than zero")
	}
	if c.Anomaly.StallMultiple <= 0 {
		return fmt.Errorf("anomaly.stall_multiple must be greater than zero")
	}
	if c.Anomaly.InstabilityRatio <= 0 {
		return fmt.Errorf("anomaly.instability_ratio must be greater than zero")
	}
	if c.Predictor.ReferenceDepth <= 0 {
		return fmt.Errorf("predictor.reference_depth must be greater than zero")
	}
	if c.Predictor.TrendAdjustment <= 0 {
		return fmt.Errorf("predictor.trend_adjustment must be greater than zero")
	}
	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler.refresh_interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Simulation.Hours <= 0 {
		return fmt.Errorf("simulation.hours must be greater than zero")
	}
	if c.Simulation.BaseServiceTime <= 0 {
		return fmt.Errorf("simulation.base_service_time must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
