package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"weather-ready/internal/logging"
	"weather-ready/internal/weather"
)

// Snapshot store backends.
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Logging   logging.Config   `mapstructure:"logging"`
	Feed      FeedConfig       `mapstructure:"feed"`
	Locations []LocationConfig `mapstructure:"locations"`
	Snapshots SnapshotsConfig  `mapstructure:"snapshots"`
	Database  DatabaseConfig   `mapstructure:"database"`
	SQLite    SQLiteConfig     `mapstructure:"sqlite"`
	Watch     WatchConfig      `mapstructure:"watch"`
	Alerting  AlertingConfig   `mapstructure:"alerting"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Export    ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig covers the Open-Meteo forecast API.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxDayOffset   int           `mapstructure:"max_day_offset"`
}

// LocationConfig is one entry of the location registry.
type LocationConfig struct {
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// SnapshotsConfig selects where raw, cleaned and report snapshots go.
type SnapshotsConfig struct {
	Backend   string `mapstructure:"backend"`
	RawDir    string `mapstructure:"raw_dir"`
	CleanDir  string `mapstructure:"clean_dir"`
	ReportDir string `mapstructure:"report_dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// SQLiteConfig encapsulates the SQLite snapshot database.
type SQLiteConfig struct {
	Path         string `mapstructure:"path"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// WatchConfig governs the long-running watch loop.
type WatchConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	Queries         []WatchQuery  `mapstructure:"queries"`
}

// WatchQuery is a standing query evaluated for today's date on every tick.
type WatchQuery struct {
	Location       string   `mapstructure:"location"`
	Unit           string   `mapstructure:"unit"`
	AlertStartHour *int     `mapstructure:"alert_start_hour"`
	MaxTemp        *float64 `mapstructure:"max_temp"`
	MinTemp        *float64 `mapstructure:"min_temp"`
	MaxWind        *float64 `mapstructure:"max_wind"`
	MinHumidity    *float64 `mapstructure:"min_humidity"`
	Precipitation  *float64 `mapstructure:"precip_threshold"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// KafkaConfig describes the Kafka alert topic.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MQTTConfig describes the MQTT alert channel.
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// HTTPConfig controls the query/health HTTP server started by `run`.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Dir         string `mapstructure:"dir"`
	ChartWidth  int    `mapstructure:"chart_width"`
	ChartHeight int    `mapstructure:"chart_height"`
}

// LoadEnvFiles loads dotenv files into the process environment. Missing files
// are ignored; variables already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEATHERREADY")
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
	v.SetDefault("app.name", "weatherready")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("feed.base_url", "https://api.open-meteo.com/v1")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.max_day_offset", 7)

	defaults := weather.DefaultLocations()
	locations := make([]map[string]any, 0, len(defaults))
	for _, loc := range defaults {
		locations = append(locations, map[string]any{
			"name":      loc.Name,
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
		})
	}
	v.SetDefault("locations", locations)

	v.SetDefault("snapshots.backend", BackendCSV)
	v.SetDefault("snapshots.raw_dir", "raw_weather_data")
	v.SetDefault("snapshots.clean_dir", "cleaned_weather_data")
	v.SetDefault("snapshots.report_dir", "weather_reports")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("sqlite.path", "data/weatherready.db")
	v.SetDefault("sqlite.max_open_conns", 1)

	v.SetDefault("watch.interval", "1h")
	v.SetDefault("watch.align_to_interval", true)
	v.SetDefault("watch.startup_delay", "0s")
	v.SetDefault("watch.advisory_lock_key", int64(0x57544852))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "6h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.topic", "weather-alerts")
	v.SetDefault("alerting.kafka.write_timeout", "10s")
	v.SetDefault("alerting.mqtt.enabled", false)
	v.SetDefault("alerting.mqtt.client_id", "weatherready")
	v.SetDefault("alerting.mqtt.topic_prefix", "weatherready/alerts")
	v.SetDefault("alerting.mqtt.qos", 1)
	v.SetDefault("alerting.mqtt.connect_timeout", "10s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)
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
func (c *Config) Validate() error {
	if c.Feed.RequestTimeout <= 0 {
		return fmt.Errorf("feed.request_timeout must be greater than zero")
	}
	if c.Feed.MaxDayOffset < 0 {
		return fmt.Errorf("feed.max_day_offset cannot be negative")
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("locations: %w", err)
	}

	switch c.Snapshots.Backend {
	case BackendCSV:
		if c.Snapshots.RawDir == "" || c.Snapshots.CleanDir == "" || c.Snapshots.ReportDir == "" {
			return fmt.Errorf("snapshots.raw_dir, clean_dir and report_dir are required for the csv backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" && c.SQLite.DSN == "" {
			return fmt.Errorf("sqlite.path or sqlite.dsn is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("snapshots.backend %q is not one of csv, postgres, sqlite", c.Snapshots.Backend)
	}

	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be greater than zero")
	}
	for i, q := range c.Watch.Queries {
		if _, err := q.Request(weather.Date{Year: 2000, Month: time.January, Day: 1}); err != nil {
			return fmt.Errorf("watch.queries[%d]: %w", i, err)
		}
	}

	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Kafka.Enabled {
		if len(c.Alerting.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerting.kafka.brokers is required")
		}
		if c.Alerting.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.topic is required")
		}
	}
	if c.Alerting.MQTT.Enabled {
		if c.Alerting.MQTT.Broker == "" {
			return fmt.Errorf("alerting.mqtt.broker is required")
		}
		if c.Alerting.MQTT.QoS > 2 {
			return fmt.Errorf("alerting.mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}
	if c.Export.ChartWidth <= 0 || c.Export.ChartHeight <= 0 {
		return fmt.Errorf("export.chart_width and export.chart_height must be greater than zero")
	}
	return nil
}

// Registry builds the location registry from the configured locations.
func (c *Config) Registry() (*weather.Registry, error) {
	if len(c.Locations) == 0 {
		return nil, fmt.Errorf("at least one location is required")
	}
	locs := make([]weather.Location, 0, len(c.Locations))
	for _, l := range c.Locations {
		locs = append(locs, weather.Location{Name: l.Name, Latitude: l.Latitude, Longitude: l.Longitude})
	}
	return weather.NewRegistry(locs)
}

// ResolveChartSize returns the CLI override when set, otherwise the configured size.
func (c *Config) ResolveChartSize(width, height int) (int, int) {
	if width <= 0 {
		width = c.Export.ChartWidth
	}
	if height <= 0 {
		height = c.Export.ChartHeight
	}
	return width, height
}

// Request turns the standing query into a pipeline request for day.
func (q WatchQuery) Request(day weather.Date) (weather.QueryRequest, error) {
	unit, err := weather.ParseUnit(q.Unit)
	if err != nil {
		return weather.QueryRequest{}, err
	}
	req := weather.QueryRequest{
		Location:       q.Location,
		Date:           day,
		Unit:           unit,
		AlertStartHour: q.AlertStartHour,
		Thresholds: weather.Thresholds{
			MaxTemp:       q.MaxTemp,
			MinTemp:       q.MinTemp,
			MaxWind:       q.MaxWind,
			MinHumidity:   q.MinHumidity,
			Precipitation: q.Precipitation,
		},
	}
	if err := req.Validate(); err != nil {
		return weather.QueryRequest{}, err
	}
	return req, nil
}
