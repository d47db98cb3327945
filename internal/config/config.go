package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ANALYTICS_SERVER_PORT.
const EnvPrefix = "ANALYTICS"

// ServiceURLEnv selects the analytics service base URL.
const ServiceURLEnv = "ANALYTICS_SERVICE_URL"

type Config struct {
	Server struct {
		Port           int      `mapstructure:"port" yaml:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
		MaxUploadMB    int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
		RateLimit      struct {
			Capacity     int `mapstructure:"capacity" yaml:"capacity"`
			RefillPerSec int `mapstructure:"refill_per_sec" yaml:"refill_per_sec"`
		} `mapstructure:"rate_limit" yaml:"rate_limit"`
	} `mapstructure:"server" yaml:"server"`

	Upstream struct {
		BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
		HealthPath        string `mapstructure:"health_path" yaml:"health_path"`
		AnalyzeTimeoutSec int    `mapstructure:"analyze_timeout_sec" yaml:"analyze_timeout_sec"`
		DetailTimeoutSec  int    `mapstructure:"detail_timeout_sec" yaml:"detail_timeout_sec"`
		ExportTimeoutSec  int    `mapstructure:"export_timeout_sec" yaml:"export_timeout_sec"`
		ListTimeoutSec    int    `mapstructure:"list_timeout_sec" yaml:"list_timeout_sec"`
	} `mapstructure:"upstream" yaml:"upstream"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"` // json | console
	} `mapstructure:"log" yaml:"log"`

	Database struct {
		Driver   string `mapstructure:"driver" yaml:"driver"` // sqlite | mysql | postgres | none
		Path     string `mapstructure:"path" yaml:"path"`     // sqlite file
		Host     string `mapstructure:"host" yaml:"host"`
		Port     int    `mapstructure:"port" yaml:"port"`
		User     string `mapstructure:"user" yaml:"user"`
		Password string `mapstructure:"password" yaml:"password"`
		Name     string `mapstructure:"name" yaml:"name"`
	} `mapstructure:"database" yaml:"database"`

	Minio struct {
		Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
		Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
		AccessKey   string `mapstructure:"access_key" yaml:"access_key"`
		SecretKey   string `mapstructure:"secret_key" yaml:"secret_key"`
		BucketName  string `mapstructure:"bucket_name" yaml:"bucket_name"`
		Region      string `mapstructure:"region" yaml:"region"`
		UseSSL      bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
		URLTTLHours int    `mapstructure:"url_ttl_hours" yaml:"url_ttl_hours"`
	} `mapstructure:"minio" yaml:"minio"`

	AI struct {
		APIKey  string `mapstructure:"api_key" yaml:"api_key"`
		Model   string `mapstructure:"model" yaml:"model"`
		BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	} `mapstructure:"ai" yaml:"ai"`

	Cache struct {
		Size int `mapstructure:"size" yaml:"size"`
	} `mapstructure:"cache" yaml:"cache"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.rate_limit.capacity", 60)
	v.SetDefault("server.rate_limit.refill_per_sec", 2)

	v.SetDefault("upstream.base_url", "http://localhost:5000")
	v.SetDefault("upstream.health_path", "/api/sessions")
	v.SetDefault("upstream.analyze_timeout_sec", 60)
	v.SetDefault("upstream.detail_timeout_sec", 30)
	v.SetDefault("upstream.export_timeout_sec", 30)
	v.SetDefault("upstream.list_timeout_sec", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join("data", "bridge.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "analytics_bridge")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket_name", "analytics-artifacts")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.url_ttl_hours", 24)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "")

	v.SetDefault("cache.size", 256)
}

// Load reads defaults, then the YAML file at path (optional when empty or
// missing), then environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("upstream.base_url", ServiceURLEnv); err != nil {
		return nil, err
	}
	if err := v.BindEnv("ai.api_key", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Default returns the configuration Load produces with no file and no env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// Save writes c as YAML, creating the parent directory.
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) AnalyzeTimeout() time.Duration { return seconds(c.Upstream.AnalyzeTimeoutSec) }
func (c *Config) DetailTimeout() time.Duration { return seconds(c.Upstream.DetailTimeoutSec) }
func (c *Config) ExportTimeout() time.Duration { return seconds(c.Upstream.ExportTimeoutSec) }
func (c *Config) ListTimeout() time.Duration { return seconds(c.Upstream.ListTimeoutSec) }
