package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DB        *Postgres  `yaml:"database"`
	RMQ       *RabbitMQ  `yaml:"rabbitmq"`
	Redis     *Redis     `yaml:"redis"`
	Auth      *Auth      `yaml:"auth"`
	Pricing   *Pricing   `yaml:"pricing"`
	Registrar *Registrar `yaml:"registrar"`
	IDs       *IDs       `yaml:"ids"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

type RabbitMQ struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	VHost    string `yaml:"vhost"`
}

// Redis is optional; an empty Addr disables the catalog cache.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Pricing struct {
	TaxRate     decimal.Decimal `yaml:"tax_rate"`
	DeliveryFee decimal.Decimal `yaml:"delivery_fee"`
}

type Registrar struct {
	Timeout     time.Duration `yaml:"timeout"`
	Latency     time.Duration `yaml:"latency"`
	FailureRate float64       `yaml:"failure_rate"`
}

// IDs selects the snowflake node for order and receipt numbers. -1 picks
// a random node per process.
type IDs struct {
	Node int64 `yaml:"node"`
}

// Default returns the configuration used when a section is missing.
func Default() *Config {
	return &Config{
		DB: &Postgres{
			Host:     "localhost",
			Port:     "5432",
			User:     "restaurant",
			Password: "restaurant",
			Database: "restaurant_db",
			MaxConns: 10,
		},
		RMQ: &RabbitMQ{
			User:     "guest",
			Password: "guest",
			Host:     "localhost",
			Port:     "5672",
		},
		Redis: &Redis{TTL: 5 * time.Minute},
		Auth: &Auth{
			Issuer:   "restaurant-system",
			TokenTTL: 12 * time.Hour,
		},
		Pricing: &Pricing{
			TaxRate:     decimal.RequireFromString("0.10"),
			DeliveryFee: decimal.RequireFromString("150.00"),
		},
		Registrar: &Registrar{
			Timeout: 10 * time.Second,
			Latency: 200 * time.Millisecond,
		},
		IDs: &IDs{Node: -1},
	}
}

// LoadConfig reads the yaml file at configPath on top of Default, then
// applies environment overrides. A missing file is not an error; a .env
// file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	cfg.fillDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// fillDefaults restores sections that the yaml file set to null.
func (c *Config) fillDefaults() {
	d := Default()
	if c.DB == nil {
		c.DB = d.DB
	}
	if c.RMQ == nil {
		c.RMQ = d.RMQ
	}
	if c.Redis == nil {
		c.Redis = d.Redis
	}
	if c.Auth == nil {
		c.Auth = d.Auth
	}
	if c.Pricing == nil {
		c.Pricing = d.Pricing
	}
	if c.Registrar == nil {
		c.Registrar = d.Registrar
	}
	if c.IDs == nil {
		c.IDs = d.IDs
	}
}

func (c *Config) applyEnv() error {
	setString(&c.DB.Host, "POSTGRES_HOST")
	setString(&c.DB.Port, "POSTGRES_PORT")
	setString(&c.DB.User, "POSTGRES_USER")
	setString(&c.DB.Password, "POSTGRES_PASSWORD")
	setString(&c.DB.Database, "POSTGRES_DBNAME")

	setString(&c.RMQ.Host, "RABBITMQ_HOST")
	setString(&c.RMQ.Port, "RABBITMQ_PORT")
	setString(&c.RMQ.User, "RABBITMQ_USER")
	setString(&c.RMQ.Password, "RABBITMQ_PASSWORD")
	setString(&c.RMQ.VHost, "RABBITMQ_VHOST")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")

	if v := os.Getenv("TAX_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("TAX_RATE: %w", err)
		}
		c.Pricing.TaxRate = rate
	}
	if v := os.Getenv("DELIVERY_FEE"); v != "" {
		fee, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("DELIVERY_FEE: %w", err)
		}
		c.Pricing.DeliveryFee = fee
	}
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		node, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SNOWFLAKE_NODE: %w", err)
		}
		c.IDs.Node = node
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Pricing.TaxRate.IsNegative() {
		return fmt.Errorf("pricing.tax_rate cannot be negative: %s", c.Pricing.TaxRate)
	}
	if c.Pricing.DeliveryFee.IsNegative() {
		return fmt.Errorf("pricing.delivery_fee cannot be negative: %s", c.Pricing.DeliveryFee)
	}
	if c.Registrar.Timeout <= 0 {
		return fmt.Errorf("registrar.timeout must be positive: %s", c.Registrar.Timeout)
	}
	if c.Registrar.FailureRate < 0 || c.Registrar.FailureRate > 1 {
		return fmt.Errorf("registrar.failure_rate must be in [0, 1]: %v", c.Registrar.FailureRate)
	}
	if c.IDs.Node < -1 || c.IDs.Node > 1023 {
		return fmt.Errorf("ids.node must be -1 or in [0, 1023]: %d", c.IDs.Node)
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}
