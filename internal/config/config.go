package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Alturino/storefront/internal/log"
)

type Application struct {
	Env            string        `mapstructure:"env"              json:"env"`
	Host           string        `mapstructure:"host"             json:"host"`
	SecretKey      string        `mapstructure:"secret_key"       json:"-"`
	FrontendURL    string        `mapstructure:"frontend_url"     json:"frontend_url"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" json:"access_token_ttl"`
	AdminEmails    []string      `mapstructure:"admin_emails"     json:"admin_emails"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"   json:"max_body_bytes"`
	Port           int           `mapstructure:"port"             json:"port"`
}

type Database struct {
	Name           string `mapstructure:"name"            json:"name"`
	Host           string `mapstructure:"host"            json:"host"`
	Password       string `mapstructure:"password"        json:"-"`
	TimeZone       string `mapstructure:"timezone"        json:"timezone"`
	Username       string `mapstructure:"username"        json:"username"`
	MaxConnections int32  `mapstructure:"max_connections" json:"max_connections"`
	MinConnections int32  `mapstructure:"min_connections" json:"min_connections"`
	Port           uint16 `mapstructure:"port"            json:"port"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"-"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Otel struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type Payment struct {
	SecretKey       string        `mapstructure:"secret_key"        json:"-"`
	WebhookSecret   string        `mapstructure:"webhook_secret"    json:"-"`
	ApiURL          string        `mapstructure:"api_url"           json:"api_url"`
	Currency        string        `mapstructure:"currency"          json:"currency"`
	Timeout         time.Duration `mapstructure:"timeout"           json:"timeout"`
	MaxWebhookBytes int64         `mapstructure:"max_webhook_bytes" json:"max_webhook_bytes"`
}

type Kafka struct {
	Brokers       []string      `mapstructure:"brokers"        json:"brokers"`
	Topic         string        `mapstructure:"topic"          json:"topic"`
	GroupID       string        `mapstructure:"group_id"       json:"group_id"`
	RelayInterval time.Duration `mapstructure:"relay_interval" json:"relay_interval"`
}

type Config struct {
	Application Application `mapstructure:"application" json:"application"`
	Database    Database    `mapstructure:"db"          json:"db"`
	Cache       Cache       `mapstructure:"cache"       json:"cache"`
	Otel        Otel        `mapstructure:"otel"        json:"otel"`
	Payment     Payment     `mapstructure:"payment"     json:"payment"`
	Kafka       Kafka       `mapstructure:"kafka"       json:"kafka"`
}

var (
	once   sync.Once
	config *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.env", "development")
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 8080)
	v.SetDefault("application.frontend_url", "http://localhost:5173")
	v.SetDefault("application.access_token_ttl", 24*time.Hour)
	v.SetDefault("application.max_body_bytes", 1<<20)
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.max_connections", 10)
	v.SetDefault("db.min_connections", 2)
	v.SetDefault("cache.port", 6379)
	v.SetDefault("otel.host", "otel-collector")
	v.SetDefault("otel.port", 4317)
	v.SetDefault("payment.currency", "usd")
	v.SetDefault("payment.timeout", 10*time.Second)
	v.SetDefault("payment.max_webhook_bytes", 64<<10)
	v.SetDefault("kafka.topic", "storefront.orders")
	v.SetDefault("kafka.group_id", "storefront-notification")
	v.SetDefault("kafka.relay_interval", time.Second)
}

// Load reads <dir>/<name>.yaml. Environment variables override file values,
// with dots replaced by underscores (DB_HOST overrides db.host).
func Load(c context.Context, dir string, name string) (*Config, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "config Load").
		Str("filename", name).
		Logger()

	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(dir)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
	logger.Info().Msg("reading config")
	if err := v.ReadInConfig(); err != nil {
		err = fmt.Errorf("failed reading config with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("read config")

	logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
	logger.Info().Msg("unmarshaling config")
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		err = fmt.Errorf("failed unmarshaling config with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Any(log.KeyConfig, cfg).Msg("unmarshaled config")

	return &cfg, nil
}

// Get loads the config from ./env once per process and exits on failure.
func Get(c context.Context, name string) *Config {
	once.Do(func() {
		cfg, err := Load(c, "./env", name)
		if err != nil {
			zerolog.Ctx(c).Fatal().Err(err).Str(log.KeyTag, "config Get").Msg(err.Error())
		}
		config = cfg
	})
	return config
}
