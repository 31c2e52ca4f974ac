package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/irfndi/commodity-forecast/internal/utils"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	Anomaly     AnomalyConfig   `mapstructure:"anomaly"`
	Cache       CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    string   `mapstructure:"read_timeout"`
	WriteTimeout   string   `mapstructure:"write_timeout"`
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig selects the trace exporter. Exporter is "stdout" or "otlp".
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Exporter       string `mapstructure:"exporter"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	LogLevel       string `mapstructure:"log_level"`
}

type ARIMAConfig struct {
	P    int  `mapstructure:"p"`
	D    int  `mapstructure:"d"`
	Q    int  `mapstructure:"q"`
	Auto bool `mapstructure:"auto"`
}

type HoltWintersConfig struct {
	Alpha          float64 `mapstructure:"alpha"`
	Beta           float64 `mapstructure:"beta"`
	Gamma          float64 `mapstructure:"gamma"`
	SeasonalPeriod int     `mapstructure:"seasonal_period"`
	Optimize       bool    `mapstructure:"optimize"`
}

// ForecastConfig drives the ensemble predictor and the history window it reads.
type ForecastConfig struct {
	LookbackDays       int               `mapstructure:"lookback_days"`
	DefaultHorizon     int               `mapstructure:"default_horizon"`
	Horizons           []int             `mapstructure:"horizons"`
	MaxHorizon         int               `mapstructure:"max_horizon"`
	ATRPeriod          int               `mapstructure:"atr_period"`
	IncludeARIMA       bool              `mapstructure:"include_arima"`
	IncludeHoltWinters bool              `mapstructure:"include_holt_winters"`
	MaxConcurrency     int               `mapstructure:"max_concurrency"`
	ARIMA              ARIMAConfig       `mapstructure:"arima"`
	HoltWinters        HoltWintersConfig `mapstructure:"holt_winters"`
}

type ThresholdConfig struct {
	Low    float64 `mapstructure:"low"`
	Medium float64 `mapstructure:"medium"`
	High   float64 `mapstructure:"high"`
}

type VolatilityThresholdConfig struct {
	Trigger float64 `mapstructure:"trigger"`
	Medium  float64 `mapstructure:"medium"`
	High    float64 `mapstructure:"high"`
}

type AnomalyConfig struct {
	MinDataPoints       int                       `mapstructure:"min_data_points"`
	RecentWindow        int                       `mapstructure:"recent_window"`
	VolatilityMinPoints int                       `mapstructure:"volatility_min_points"`
	ZScore              ThresholdConfig           `mapstructure:"zscore"`
	DailyChange         ThresholdConfig           `mapstructure:"daily_change"`
	Volatility          VolatilityThresholdConfig `mapstructure:"volatility"`
}

type CacheConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PredictionTTL string `mapstructure:"prediction_ttl"`
	AnomalyTTL    string `mapstructure:"anomaly_ttl"`
}

// Load reads .env, config.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}
	if err := viper.BindEnv("server.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"database.conn_max_lifetime":  c.Database.ConnMaxLifetime,
		"database.conn_max_idle_time": c.Database.ConnMaxIdleTime,
		"cache.prediction_ttl":        c.Cache.PredictionTTL,
		"cache.anomaly_ttl":           c.Cache.AnomalyTTL,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return utils.NewFieldError(key, "invalid duration %q", value)
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Exporter != "stdout" && c.Telemetry.Exporter != "otlp" {
		return utils.NewFieldError("telemetry.exporter", "must be stdout or otlp, got %q", c.Telemetry.Exporter)
	}

	if err := c.Forecast.validate(); err != nil {
		return err
	}
	return c.Anomaly.validate()
}

func (f ForecastConfig) validate() error {
	if f.LookbackDays < 7 {
		return utils.NewFieldError("forecast.lookback_days", "must be at least 7, got %d", f.LookbackDays)
	}
	if f.MaxHorizon < 1 {
		return utils.NewFieldError("forecast.max_horizon", "must be positive, got %d", f.MaxHorizon)
	}
	if f.DefaultHorizon < 1 || f.DefaultHorizon > f.MaxHorizon {
		return utils.NewFieldError("forecast.default_horizon", "must be between 1 and %d, got %d", f.MaxHorizon, f.DefaultHorizon)
	}
	for _, h := range f.Horizons {
		if h < 1 || h > f.MaxHorizon {
			return utils.NewFieldError("forecast.horizons", "horizon %d outside 1..%d", h, f.MaxHorizon)
		}
	}
	if f.ARIMA.P < 0 || f.ARIMA.D < 0 || f.ARIMA.Q < 0 {
		return utils.NewFieldError("forecast.arima", "orders must be non-negative")
	}

	hw := f.HoltWinters
	for name, v := range map[string]float64{"alpha": hw.Alpha, "beta": hw.Beta, "gamma": hw.Gamma} {
		if v <= 0 || v > 1 {
			return utils.NewFieldError("forecast.holt_winters."+name, "must be in (0, 1], got %v", v)
		}
	}
	if hw.SeasonalPeriod < 2 {
		return utils.NewFieldError("forecast.holt_winters.seasonal_period", "must be at least 2, got %d", hw.SeasonalPeriod)
	}
	return nil
}

func (a AnomalyConfig) validate() error {
	if a.MinDataPoints < 2 {
		return utils.NewFieldError("anomaly.min_data_points", "must be at least 2, got %d", a.MinDataPoints)
	}
	if a.RecentWindow < 2 {
		return utils.NewFieldError("anomaly.recent_window", "must be at least 2, got %d", a.RecentWindow)
	}
	if !ascending(a.ZScore.Low, a.ZScore.Medium, a.ZScore.High) {
		return utils.NewFieldError("anomaly.zscore", "thresholds must be positive and ascending")
	}
	if !ascending(a.DailyChange.Low, a.DailyChange.Medium, a.DailyChange.High) {
		return utils.NewFieldError("anomaly.daily_change", "thresholds must be positive and ascending")
	}
	if !ascending(a.Volatility.Trigger, a.Volatility.Medium, a.Volatility.High) {
		return utils.NewFieldError("anomaly.volatility", "thresholds must be positive and ascending")
	}
	return nil
}

func ascending(low, medium, high float64) bool {
	return low > 0 && low <= medium && medium <= high
}

// ReadTimeoutDuration returns the parsed read timeout, or fallback when unset.
func (s ServerConfig) ReadTimeoutDuration(fallback time.Duration) time.Duration {
	return parseDuration(s.ReadTimeout, fallback)
}

// WriteTimeoutDuration returns the parsed write timeout, or fallback when unset.
func (s ServerConfig) WriteTimeoutDuration(fallback time.Duration) time.Duration {
	return parseDuration(s.WriteTimeout, fallback)
}

func (c CacheConfig) PredictionTTLDuration() time.Duration {
	return parseDuration(c.PredictionTTL, time.Hour)
}

func (c CacheConfig) AnomalyTTLDuration() time.Duration {
	return parseDuration(c.AnomalyTTL, 30*time.Minute)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.admin_api_key", "")

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "commodity_prices")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "commodity-forecast")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.log_level", "info")

	// Forecast
	viper.SetDefault("forecast.lookback_days", 180)
	viper.SetDefault("forecast.default_horizon", 7)
	viper.SetDefault("forecast.horizons", []int{7, 14, 30})
	viper.SetDefault("forecast.max_horizon", 90)
	viper.SetDefault("forecast.atr_period", 14)
	viper.SetDefault("forecast.include_arima", true)
	viper.SetDefault("forecast.include_holt_winters", true)
	viper.SetDefault("forecast.max_concurrency", 8)
	viper.SetDefault("forecast.arima.p", 2)
	viper.SetDefault("forecast.arima.d", 1)
	viper.SetDefault("forecast.arima.q", 1)
	viper.SetDefault("forecast.arima.auto", true)
	viper.SetDefault("forecast.holt_winters.alpha", 0.3)
	viper.SetDefault("forecast.holt_winters.beta", 0.1)
	viper.SetDefault("forecast.holt_winters.gamma", 0.2)
	viper.SetDefault("forecast.holt_winters.seasonal_period", 7)
	viper.SetDefault("forecast.holt_winters.optimize", true)

	// Anomaly detection
	viper.SetDefault("anomaly.min_data_points", 14)
	viper.SetDefault("anomaly.recent_window", 7)
	viper.SetDefault("anomaly.volatility_min_points", 30)
	viper.SetDefault("anomaly.zscore.low", 1.5)
	viper.SetDefault("anomaly.zscore.medium", 2.0)
	viper.SetDefault("anomaly.zscore.high", 2.5)
	viper.SetDefault("anomaly.daily_change.low", 3.0)
	viper.SetDefault("anomaly.daily_change.medium", 5.0)
	viper.SetDefault("anomaly.daily_change.high", 8.0)
	viper.SetDefault("anomaly.volatility.trigger", 2.0)
	viper.SetDefault("anomaly.volatility.medium", 2.5)
	viper.SetDefault("anomaly.volatility.high", 3.0)

	// Cache
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.prediction_ttl", "1h")
	viper.SetDefault("cache.anomaly_ttl", "30m")
}
