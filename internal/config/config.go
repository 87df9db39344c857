package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP   HTTP
	DB     DB
	Redis  Redis
	Kafka  Kafka
	Orders Orders
	Admin  Admin

	JWTSecret string `env:"JWT_SECRET" env-default:"secret"`
	LogLevel  string `env:"LOG_LEVEL"  env-default:"info"`
}

type HTTP struct {
	Port      int           `env:"HTTP_PORT"        env-default:"8082"`
	RateLimit float64       `env:"RATE_LIMIT"       env-default:"1"`
	RateBurst int           `env:"RATE_BURST"       env-default:"3"`
	RateTTL   time.Duration `env:"RATE_LIMIT_TTL"   env-default:"3m"`
	Timeout   time.Duration `env:"HTTP_TIMEOUT"     env-default:"10s"`
}

type DB struct {
	Driver  string `env:"DB_DRIVER"          env-default:"mysql"`
	Host    string `env:"DB_HOST"            env-default:"127.0.0.1"`
	Port    string `env:"DB_PORT"            env-default:"3306"`
	User    string `env:"DB_USER"            env-default:"root"`
	Pass    string `env:"DB_PASS"`
	Name    string `env:"DB_NAME"            env-default:"order-db"`
	Retries int    `env:"DB_CONNECT_RETRIES" env-default:"10"`
}

type Redis struct {
	Addr          string        `env:"REDIS_ADDR"        env-default:"localhost:6379"`
	ProductTTL    time.Duration `env:"PRODUCT_CACHE_TTL" env-default:"1m"`
	IdempotentTTL time.Duration `env:"IDEMPOTENT_TTL"    env-default:"24h"`
	SessionTTL    time.Duration `env:"SESSION_TTL"       env-default:"24h"`
}

type Kafka struct {
	Enabled       bool     `env:"EVENTS_ENABLED"       env-default:"false"`
	Brokers       []string `env:"KAFKA_BROKERS"        env-default:"localhost:9092,localhost:9093,localhost:9094" env-separator:","`
	OrderTopic    string   `env:"KAFKA_ORDER_TOPIC"    env-default:"order-topic"`
	ProductTopic  string   `env:"KAFKA_PRODUCT_TOPIC"  env-default:"product-topic"`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" env-default:"order-service-group"`
}

type Orders struct {
	ReconcileMode string `env:"RECONCILE_MODE"    env-default:"positional"`
	LockShards    int    `env:"ORDER_LOCK_SHARDS" env-default:"64"`
}

// Admin is the account promoted to ADMIN at startup. No password, no bootstrap.
type Admin struct {
	Username string `env:"ADMIN_USERNAME" env-default:"admin"`
	Email    string `env:"ADMIN_EMAIL"    env-default:"admin@example.com"`
	Password string `env:"ADMIN_PASSWORD"`
}

// Load reads the environment, after merging in the given .env files when they exist.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch cfg.DB.Driver {
	case "mysql", "memory":
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DB.Driver)
	}
	if cfg.Orders.LockShards < 1 {
		return nil, fmt.Errorf("ORDER_LOCK_SHARDS must be positive, got %d", cfg.Orders.LockShards)
	}
	return &cfg, nil
}

// DSN builds the MySQL data source name. parseTime is required to scan DATETIME columns.
func (d DB) DSN() string {
	c := mysql.NewConfig()
	c.User = d.User
	c.Passwd = d.Pass
	c.Net = "tcp"
	c.Addr = d.Host + ":" + d.Port
	c.DBName = d.Name
	c.ParseTime = true
	return c.FormatDSN()
}

func (h HTTP) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}
