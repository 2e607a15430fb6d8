package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Relay    RelayConfig
}

type AppConfig struct {
	Env      string
	LogLevel string
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver       string // postgres | mysql
	URL          string
	AutoMigrate  bool
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// RedisConfig is optional: an empty URL disables presence persistence,
// rate limiting and cross-instance fan-out.
type RedisConfig struct {
	URL          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// KafkaConfig is optional: no brokers means no message events.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type RelayConfig struct {
	HistoryLimit   int
	StorageTimeout time.Duration
	SendBufferSize int
	RedisFanout    bool
	FanoutChannel  string
	WSRateLimit    int
	WSRateWindow   time.Duration
}

func (c *Config) Development() bool {
	return c.App.Env == "development"
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return ErrMissingDatabaseURL
	}
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Relay.RedisFanout && c.Redis.URL == "" {
		return errors.New("REDIS_FANOUT requires REDIS_URL")
	}
	if c.Relay.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must be >= 0, got %d", c.Relay.HistoryLimit)
	}
	if c.Relay.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", c.Relay.StorageTimeout)
	}
	return nil
}

// LoadConfig reads a .env file when present, then the environment.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Server: ServerConfig{
			Host:           v.GetString("RELAY_HOST"),
			Port:           v.GetString("RELAY_PORT"),
			ReadTimeout:    v.GetDuration("RELAY_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("RELAY_WRITE_TIMEOUT"),
			IdleTimeout:    v.GetDuration("RELAY_IDLE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
			URL:          v.GetString("DATABASE_URL"),
			AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLife:  v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(v.GetString("KAFKA_BROKERS")),
			Topic:    v.GetString("KAFKA_TOPIC"),
			ClientID: v.GetString("KAFKA_CLIENT_ID"),
		},
		Relay: RelayConfig{
			HistoryLimit:   v.GetInt("HISTORY_LIMIT"),
			StorageTimeout: v.GetDuration("STORAGE_TIMEOUT"),
			SendBufferSize: v.GetInt("SEND_BUFFER_SIZE"),
			RedisFanout:    v.GetBool("REDIS_FANOUT"),
			FanoutChannel:  v.GetString("REDIS_FANOUT_CHANNEL"),
			WSRateLimit:    v.GetInt("WS_RATE_LIMIT"),
			WSRateWindow:   v.GetDuration("WS_RATE_WINDOW"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("RELAY_PORT", "8080")
	v.SetDefault("RELAY_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_IDLE_TIMEOUT", 120*time.Second)

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", time.Hour)

	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("KAFKA_TOPIC", "chat.messages")
	v.SetDefault("KAFKA_CLIENT_ID", "chat-relay")

	v.SetDefault("HISTORY_LIMIT", 50)
	v.SetDefault("STORAGE_TIMEOUT", 5*time.Second)
	v.SetDefault("SEND_BUFFER_SIZE", 256)
	v.SetDefault("REDIS_FANOUT", false)
	v.SetDefault("REDIS_FANOUT_CHANNEL", "relay:deliveries")
	v.SetDefault("WS_RATE_LIMIT", 30)
	v.SetDefault("WS_RATE_WINDOW", time.Minute)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
