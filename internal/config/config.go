package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FIELDTRACKER"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Locking    LockingConfig    `mapstructure:"locking"`
	Forwarder  ForwarderConfig  `mapstructure:"forwarder"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Route      RouteConfig      `mapstructure:"route"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int32         `mapstructure:"max_connections"`
	MinConnections int32         `mapstructure:"min_connections"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	// прогонять миграции при старте
	Migrate bool `mapstructure:"migrate"`
}

// RedisConfig - пустой Addr отключает Redis, блокировки и присутствие живут в памяти
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type RepositoryConfig struct {
	Type string `mapstructure:"type"` // "postgres" или "inmemory"
}

type LockingConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Backoff time.Duration `mapstructure:"backoff"`
	Wait    time.Duration `mapstructure:"wait"`
}

type ForwarderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	Timezone  string        `mapstructure:"timezone"`
}

type PresenceConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	RPM   int `mapstructure:"rpm"`
	Burst int `mapstructure:"burst"`
}

type RouteConfig struct {
	Parallel int `mapstructure:"parallel"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.idle_timeout", 5*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("repository.type", "inmemory")

	v.SetDefault("locking.ttl", 5*time.Second)
	v.SetDefault("locking.backoff", 50*time.Millisecond)
	v.SetDefault("locking.wait", 2*time.Second)

	v.SetDefault("forwarder.enabled", true)
	v.SetDefault("forwarder.interval", 5*time.Minute)
	v.SetDefault("forwarder.batch_size", 100)
	v.SetDefault("forwarder.timezone", "UTC")

	v.SetDefault("presence.capacity", 10000)
	v.SetDefault("presence.ttl", 24*time.Hour)

	v.SetDefault("rate_limit.rpm", 600)
	v.SetDefault("rate_limit.burst", 60)

	v.SetDefault("route.parallel", 4)
}

// Load читает .env, затем yaml файл, затем переменные FIELDTRACKER_*.
// Отсутствующий файл не ошибка, берутся значения по умолчанию
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		values, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("ошибка слияния %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readYAML(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не могу открыть %s: %w", path, err)
	}
	defer file.Close()

	values := map[string]any{}
	if err := yaml.NewDecoder(file).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ошибка парсинга %s: %w", path, err)
	}
	return values, nil
}

func (c *Config) Validate() error {
	switch c.Repository.Type {
	case "inmemory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url обязателен для repository.type=postgres")
		}
	default:
		return fmt.Errorf("неизвестный repository.type: %q", c.Repository.Type)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Forwarder.Interval <= 0 || c.Forwarder.BatchSize <= 0 {
		return errors.New("forwarder.interval и forwarder.batch_size должны быть положительными")
	}
	return nil
}

// Location - часовой пояс, в котором считается начало дня для переноса
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Forwarder.Timezone)
	if err != nil {
		return nil, fmt.Errorf("неизвестный forwarder.timezone %q: %w", c.Forwarder.Timezone, err)
	}
	return loc, nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
